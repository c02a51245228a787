package events

import (
	"context"
	"errors"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// ErrReaderAttached is returned when a second reader subscribes while one is active
var ErrReaderAttached = errors.New("progress bus already has a reader")

// Bus is an unbounded FIFO of progress events with a single reader.
// Producers never block. The complete event is always the last one delivered.
type Bus struct {
	mu         sync.Mutex
	queue      []models.ProgressEvent
	generation uint64 // bumped by Reset so an in-flight delivery does not pop a fresh backlog
	completed  bool
	attached   bool
	notify     chan struct{}
	logger     arbor.ILogger
}

var _ interfaces.ProgressBus = (*Bus)(nil)

// NewBus creates an empty progress bus
func NewBus(logger arbor.ILogger) *Bus {
	return &Bus{
		notify: make(chan struct{}, 1),
		logger: logger,
	}
}

// Publish appends an event. Events published after completion are dropped.
func (b *Bus) Publish(event models.ProgressEvent) {
	b.mu.Lock()
	if b.completed {
		b.mu.Unlock()
		b.logger.Debug().
			Str("status", string(event.Kind)).
			Str("message", event.Message).
			Msg("Dropping progress event published after completion")
		return
	}
	if event.IsTerminal() {
		b.completed = true
	}
	b.queue = append(b.queue, event)
	b.mu.Unlock()

	b.logEvent(event)

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Complete appends the terminal event. Calling it more than once is harmless.
func (b *Bus) Complete() {
	b.Publish(models.CompleteEvent())
}

// Completed reports whether the terminal event has been published
func (b *Bus) Completed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}

// Pending returns the number of undelivered events
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Reset discards the undelivered backlog and reopens the bus for publishing
func (b *Bus) Reset() {
	b.mu.Lock()
	b.queue = nil
	b.completed = false
	b.generation++
	b.mu.Unlock()
}

// Subscribe attaches the single reader
func (b *Bus) Subscribe(ctx context.Context) (<-chan models.ProgressEvent, error) {
	b.mu.Lock()
	if b.attached {
		b.mu.Unlock()
		return nil, ErrReaderAttached
	}
	b.attached = true
	b.mu.Unlock()

	out := make(chan models.ProgressEvent)
	go b.deliver(ctx, out)
	return out, nil
}

// deliver moves events to the reader, removing each only after it was handed over
func (b *Bus) deliver(ctx context.Context, out chan<- models.ProgressEvent) {
	defer close(out)
	defer func() {
		b.mu.Lock()
		b.attached = false
		b.mu.Unlock()
	}()

	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-b.notify:
				continue
			}
		}
		event := b.queue[0]
		generation := b.generation
		b.mu.Unlock()

		select {
		case out <- event:
		case <-ctx.Done():
			return
		}

		b.mu.Lock()
		if b.generation == generation && len(b.queue) > 0 {
			b.queue = b.queue[1:]
		}
		b.mu.Unlock()

		if event.IsTerminal() {
			return
		}
	}
}

// Drain reads every event until completion, passing each to fn
func (b *Bus) Drain(ctx context.Context, fn func(models.ProgressEvent)) error {
	events, err := b.Subscribe(ctx)
	if err != nil {
		return err
	}
	for event := range events {
		if fn != nil {
			fn(event)
		}
	}
	return ctx.Err()
}

func (b *Bus) logEvent(event models.ProgressEvent) {
	switch event.Kind {
	case models.EventError:
		b.logger.Error().Str("step", event.Step).Str("message", event.Message).Msg("Run error")
	case models.EventWarning:
		b.logger.Warn().Str("message", event.Message).Msg("Run warning")
	case models.EventProgress:
		b.logger.Debug().Int("current", event.Current).Int("total", event.Total).Str("message", event.Message).Msg("Run progress")
	case models.EventComplete:
		b.logger.Debug().Msg("Run complete")
	default:
		b.logger.Info().Str("status", string(event.Kind)).Str("message", event.Message).Msg("Run update")
	}
}
