package store

import (
	"context"
	"sync"

	"github.com/licitahub/atendechat/internal/events"
	"github.com/licitahub/atendechat/internal/logging"
)

// Recorder subscribes to lifecycle events and persists them through a
// ChatStore. Writes happen on a single goroutine behind a buffered channel
// so slow disk I/O never blocks the chat path; when the buffer is full the
// event is dropped with a warning.
type Recorder struct {
	chat *ChatStore
	log  *logging.Logger

	queue chan events.Event
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	bus     *events.Bus
	stopped bool
}

var recordedTypes = []events.Type{
	events.SessionStarted,
	events.MessageSent,
	events.AgentAssigned,
	events.SessionClosed,
	events.SessionRated,
	events.AgentStatusChanged,
}

const recorderBuffer = 256

// NewRecorder creates a recorder writing to the given chat store.
func NewRecorder(chat *ChatStore, log *logging.Logger) *Recorder {
	return &Recorder{
		chat:  chat,
		log:   log.Sub("recorder"),
		queue: make(chan events.Event, recorderBuffer),
		done:  make(chan struct{}),
	}
}

// Subscribe attaches the recorder to the bus and starts the writer goroutine.
func (r *Recorder) Subscribe(bus *events.Bus) {
	r.mu.Lock()
	r.bus = bus
	r.mu.Unlock()

	for _, t := range recordedTypes {
		bus.On(t, "recorder", r.enqueue)
	}
	go r.run()
}

// Stop detaches the recorder from the bus, drains pending writes and shuts
// the writer down. Events emitted after Stop are silently discarded: the
// engine keeps running through shutdown, only persistence ends.
func (r *Recorder) Stop() {
	r.once.Do(func() {
		r.mu.Lock()
		r.stopped = true
		if r.bus != nil {
			for _, t := range recordedTypes {
				r.bus.Off(t, "recorder")
			}
		}
		close(r.queue)
		r.mu.Unlock()

		<-r.done
	})
}

func (r *Recorder) enqueue(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	select {
	case r.queue <- ev:
	default:
		r.log.Warn().Str("type", string(ev.Type)).Msg("recorder buffer full, event dropped")
	}
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.queue {
		r.persist(ev)
	}
}

func (r *Recorder) persist(ev events.Event) {
	var err error
	switch ev.Type {
	case events.SessionStarted, events.AgentAssigned, events.SessionClosed:
		if ev.Session != nil {
			err = r.chat.UpsertSession(ev.Session)
		}
	case events.MessageSent:
		if ev.Message != nil {
			err = r.chat.AppendMessage(ev.Message)
		}
	case events.SessionRated:
		if ev.Session != nil {
			err = r.chat.UpdateRating(ev.Session.ID, ev.Rating)
		}
	case events.AgentStatusChanged:
		if ev.Agent != nil {
			err = r.chat.UpsertAgent(ev.Agent)
		}
	}
	if err != nil {
		r.log.Error().Err(err).Str("type", string(ev.Type)).Msg("failed to persist event")
	}
}
