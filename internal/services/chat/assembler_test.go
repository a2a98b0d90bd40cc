package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	events chan models.StreamEvent
	done   chan struct{}
	reason string
	err    error
}

func newFakeSource(events ...models.StreamEvent) *fakeSource {
	src := &fakeSource{
		events: make(chan models.StreamEvent, len(events)+1),
		done:   make(chan struct{}),
	}
	for _, ev := range events {
		src.events <- ev
	}
	return src
}

func (f *fakeSource) Events() <-chan models.StreamEvent { return f.events }
func (f *fakeSource) Done() <-chan struct{}             { return f.done }
func (f *fakeSource) Reason() string                    { return f.reason }
func (f *fakeSource) Err() error                        { return f.err }

func (f *fakeSource) end(reason string, err error) {
	f.reason = reason
	f.err = err
	close(f.done)
}

type commitLog struct {
	committed []models.Message
	err       error
}

func (c *commitLog) commit(msg models.Message) error {
	if c.err != nil {
		return c.err
	}
	c.committed = append(c.committed, msg)
	return nil
}

func TestAssembleCommitsOnDone(t *testing.T) {
	log := &commitLog{}
	var deltas []string
	var commitsSeenAtDelta []int

	a := NewAssembler(log.commit, ListenerFuncs{
		AssistantDelta: func(fragment string) {
			deltas = append(deltas, fragment)
			commitsSeenAtDelta = append(commitsSeenAtDelta, len(log.committed))
		},
	})

	msg, err := a.Assemble(context.Background(), newFakeSource(models.Token("H"), models.Token("i"), models.Done()))
	require.NoError(t, err)

	assert.Equal(t, "Hi", msg.Content)
	assert.Equal(t, models.RoleAssistant, msg.Role)
	assert.Equal(t, []string{"H", "i"}, deltas)
	assert.Equal(t, []int{0, 0}, commitsSeenAtDelta, "nothing is committed before DONE")
	require.Len(t, log.committed, 1)
	assert.Equal(t, "Hi", log.committed[0].Content)
}

func TestAssembleErrorCommitsNothing(t *testing.T) {
	log := &commitLog{}
	a := NewAssembler(log.commit, nil)

	_, err := a.Assemble(context.Background(), newFakeSource(models.Token("H"), models.Error("x")))

	var streamErr *StreamError
	require.True(t, errors.As(err, &streamErr))
	assert.Equal(t, "x", streamErr.Reason)
	assert.Empty(t, log.committed)
}

func TestAssembleSourceEndedWithoutTerminal(t *testing.T) {
	log := &commitLog{}
	a := NewAssembler(log.commit, nil)

	src := newFakeSource(models.Token("partial"))
	src.end("", nil)

	_, err := a.Assemble(context.Background(), src)

	var streamErr *StreamError
	require.True(t, errors.As(err, &streamErr))
	assert.Equal(t, models.ReasonConnectionClosed, streamErr.Reason)
	assert.Empty(t, log.committed)
}

func TestAssembleSourceEndedWithConnectionError(t *testing.T) {
	cause := errors.New("dial refused")
	src := newFakeSource()
	src.end("stream dial failed", cause)

	_, err := NewAssembler((&commitLog{}).commit, nil).Assemble(context.Background(), src)

	assert.ErrorIs(t, err, cause)
}

func TestAssembleDrainsBufferedEventsAfterEnd(t *testing.T) {
	log := &commitLog{}
	src := newFakeSource(models.Token("late"), models.Done())
	src.end(models.ReasonConnectionClosed, nil)

	msg, err := NewAssembler(log.commit, nil).Assemble(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "late", msg.Content)
	assert.Len(t, log.committed, 1)
}

func TestAssembleEmptyReply(t *testing.T) {
	log := &commitLog{}
	_, err := NewAssembler(log.commit, nil).Assemble(context.Background(), newFakeSource(models.Token(""), models.Done()))

	var streamErr *StreamError
	require.True(t, errors.As(err, &streamErr))
	assert.Empty(t, log.committed)
}

func TestAssembleCommitFailure(t *testing.T) {
	log := &commitLog{err: ErrSessionCleared}
	committed := false
	a := NewAssembler(log.commit, ListenerFuncs{
		AssistantMessageCommitted: func(models.Message) { committed = true },
	})

	_, err := a.Assemble(context.Background(), newFakeSource(models.Token("a"), models.Done()))
	assert.ErrorIs(t, err, ErrSessionCleared)
	assert.False(t, committed)
}

func TestAssembleHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	log := &commitLog{}
	_, err := NewAssembler(log.commit, nil).Assemble(ctx, newFakeSource(models.Token("H")))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, log.committed)
}
