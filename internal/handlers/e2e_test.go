package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/deepgram/parley/internal/services/chat"
	"github.com/deepgram/parley/internal/services/conversation"
	"github.com/deepgram/parley/internal/services/responder"
	"github.com/deepgram/parley/internal/services/session"
	"github.com/deepgram/parley/internal/storage"
	"github.com/deepgram/parley/internal/transport/rest"
	"github.com/deepgram/parley/internal/transport/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClientAgainstDevBackend drives the client stack in both modes against
// the development backend.
func TestClientAgainstDevBackend(t *testing.T) {
	h := newTestHandler(t, responder.NewEcho(time.Millisecond))
	server := httptest.NewServer(NewRouter(h))
	t.Cleanup(server.Close)

	store := storage.NewMemoryStore()
	sessions := session.NewManager(store)
	transcript := conversation.NewStore(store, time.Hour)

	streamClient := stream.NewClient(stream.Config{
		URL:               "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/chat",
		ReconnectAttempts: 1,
		ReconnectDelay:    10 * time.Millisecond,
		HandshakeTimeout:  time.Second,
		Timeouts:          testTimeouts,
	})
	t.Cleanup(streamClient.Close)

	var deltas []string
	coord := chat.NewCoordinator(sessions, transcript,
		rest.NewClient(server.URL, 5*time.Second, sessions),
		streamClient,
		chat.CoordinatorConfig{
			Mode:             chat.ModeStreaming,
			MaxMessageLength: 2000,
			Listener: chat.ListenerFuncs{
				AssistantDelta: func(fragment string) { deltas = append(deltas, fragment) },
			},
		},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reply, err := coord.Send(ctx, "streamed hello")
	require.NoError(t, err)
	assert.Equal(t, "You said: streamed hello", reply.Content)
	assert.Equal(t, "You said: streamed hello", strings.Join(deltas, ""))
	assert.Equal(t, models.Connected, coord.ConnectionState())

	coord.SetMode(chat.ModeRequest)
	assert.Equal(t, models.Disconnected, coord.ConnectionState())

	reply, err = coord.Send(ctx, "plain hello")
	require.NoError(t, err)
	assert.Equal(t, "You said: plain hello", reply.Content)

	msgs := coord.Transcript()
	require.Len(t, msgs, 4)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAssistant, models.RoleUser, models.RoleAssistant},
		[]models.Role{msgs[0].Role, msgs[1].Role, msgs[2].Role, msgs[3].Role})

	assert.Equal(t, 1, h.history.Stats().Total, "both transports share one server session")

	coord.Clear(ctx)
	assert.Empty(t, coord.Transcript())

	_, err = coord.Send(ctx, "after clear")
	require.NoError(t, err)
	assert.Equal(t, 2, h.history.Stats().Total, "a cleared session starts a new server session")
}
