package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/licitahub/atendechat/internal/domain"
	"github.com/licitahub/atendechat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBus(t *testing.T) *Bus {
	t.Helper()
	return NewBus(logging.New(nil, "silent", "json"))
}

func TestEmit_CallsHandlersInOrder(t *testing.T) {
	b := testBus(t)
	var order []string

	b.On(SessionStarted, "first", func(ctx context.Context, ev Event) error {
		order = append(order, "first")
		return nil
	})
	b.On(SessionStarted, "second", func(ctx context.Context, ev Event) error {
		order = append(order, "second")
		return nil
	})

	b.Emit(context.Background(), Event{Type: SessionStarted})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestEmit_PayloadReachesHandler(t *testing.T) {
	b := testBus(t)
	var got Event

	b.On(MessageSent, "capture", func(ctx context.Context, ev Event) error {
		got = ev
		return nil
	})

	sess := &domain.ChatSession{ID: "s1"}
	msg := &domain.ChatMessage{ID: "m1", Content: "oi"}
	b.Emit(context.Background(), Event{Type: MessageSent, Session: sess, Message: msg})

	require.NotNil(t, got.Session)
	assert.Equal(t, "s1", got.Session.ID)
	assert.Equal(t, "oi", got.Message.Content)
}

func TestEmit_ErrorDoesNotStopOthers(t *testing.T) {
	b := testBus(t)
	called := false

	b.On(SessionClosed, "failing", func(ctx context.Context, ev Event) error {
		return errors.New("boom")
	})
	b.On(SessionClosed, "after", func(ctx context.Context, ev Event) error {
		called = true
		return nil
	})

	b.Emit(context.Background(), Event{Type: SessionClosed})
	assert.True(t, called)
}

func TestEmit_IgnoresOtherTypes(t *testing.T) {
	b := testBus(t)
	called := false

	b.On(QueueUpdate, "only-queue", func(ctx context.Context, ev Event) error {
		called = true
		return nil
	})

	b.Emit(context.Background(), Event{Type: SessionStarted})
	assert.False(t, called)
}

func TestOff_RemovesByName(t *testing.T) {
	b := testBus(t)
	b.On(AgentAssigned, "h1", func(ctx context.Context, ev Event) error { return nil })
	b.On(AgentAssigned, "h2", func(ctx context.Context, ev Event) error { return nil })

	b.Off(AgentAssigned, "h1")
	assert.Equal(t, 1, b.Count(AgentAssigned))
}

func TestEmitAsync_EventuallyDelivers(t *testing.T) {
	b := testBus(t)
	var wg sync.WaitGroup
	wg.Add(1)

	b.On(AddedToQueue, "async", func(ctx context.Context, ev Event) error {
		wg.Done()
		return nil
	})

	b.EmitAsync(context.Background(), Event{Type: AddedToQueue, Queue: &QueueInfo{Position: 1, Length: 1, EstimatedWait: time.Minute}})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handler never ran")
	}
}
