package interfaces

import (
	"context"

	"github.com/ternarybob/prospector/internal/models"
)

// ProgressPublisher is the write side of a run's progress bus.
// Publish never blocks on the reader.
type ProgressPublisher interface {
	Publish(event models.ProgressEvent)
}

// ProgressBus is an ordered, single-reader event queue that ends with one complete event
type ProgressBus interface {
	ProgressPublisher

	// Complete appends the terminal event; later publishes are dropped
	Complete()

	// Subscribe attaches the single reader. The channel closes after the complete
	// event has been delivered or ctx is cancelled.
	Subscribe(ctx context.Context) (<-chan models.ProgressEvent, error)

	// Reset discards any undelivered backlog
	Reset()
}
