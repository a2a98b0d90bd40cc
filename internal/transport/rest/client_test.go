package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/deepgram/parley/internal/services/session"
	"github.com/deepgram/parley/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *session.Manager) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sessions := session.NewManager(storage.NewMemoryStore())
	return NewClient(server.URL+"/", time.Second, sessions), sessions
}

func TestSendSuccess(t *testing.T) {
	var got chatRequest
	client, sessions := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, chatPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse{SessionID: "server-session", Message: "Hi!"})
	})

	local := sessions.GetOrCreate(context.Background())
	exchange, err := client.Send(context.Background(), "Hello")
	require.NoError(t, err)

	assert.Equal(t, local, got.SessionID)
	assert.Equal(t, "Hello", got.Message)

	assert.Equal(t, models.RoleUser, exchange.User.Role)
	assert.Equal(t, "Hello", exchange.User.Content)
	assert.Equal(t, models.RoleAssistant, exchange.Assistant.Role)
	assert.Equal(t, "Hi!", exchange.Assistant.Content)
	assert.Equal(t, "server-session", exchange.SessionID)
	assert.Equal(t, "server-session", sessions.ID(), "server id becomes authoritative")
}

func TestSendFailures(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantReason string
	}{
		{
			name: "reason from body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"message":"slow down"}`))
			},
			wantStatus: http.StatusTooManyRequests,
			wantReason: "slow down",
		},
		{
			name: "no reason in body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantStatus: http.StatusInternalServerError,
			wantReason: ReasonRequestFailed,
		},
		{
			name: "malformed success body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			wantReason: "invalid response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, sessions := newTestClient(t, tt.handler)
			before := sessions.GetOrCreate(context.Background())

			exchange, err := client.Send(context.Background(), "Hello")
			require.Error(t, err)
			assert.Nil(t, exchange)

			var failed *RequestFailedError
			require.True(t, errors.As(err, &failed))
			assert.Equal(t, tt.wantStatus, failed.StatusCode)
			assert.Equal(t, tt.wantReason, failed.Reason)
			assert.Equal(t, before, sessions.ID(), "failed requests do not touch the session")
		})
	}
}

func TestSendTransportFailure(t *testing.T) {
	sessions := session.NewManager(storage.NewMemoryStore())
	client := NewClient("http://127.0.0.1:1", time.Second, sessions)

	_, err := client.Send(context.Background(), "Hello")

	var failed *RequestFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 0, failed.StatusCode)
	assert.Equal(t, ReasonRequestFailed, failed.Reason)
	assert.NotNil(t, failed.Unwrap())
}

func TestSendHonorsContext(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Send(ctx, "Hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
