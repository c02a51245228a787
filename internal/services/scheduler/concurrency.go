package scheduler

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of units run at once when no limit is configured
const DefaultConcurrency = 10

// ConcurrencyScheduler bounds how many units of work run at once
type ConcurrencyScheduler struct {
	limit  int
	logger arbor.ILogger
}

func NewConcurrencyScheduler(limit int, logger arbor.ILogger) *ConcurrencyScheduler {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &ConcurrencyScheduler{limit: limit, logger: logger}
}

// Limit returns the concurrency bound
func (s *ConcurrencyScheduler) Limit() int {
	return s.limit
}

// Map runs fn over items with at most s.Limit() calls in flight. Result i always belongs
// to items[i] whatever order the calls finish in. A panicking unit leaves the zero value
// in its slot and does not affect its siblings.
func Map[In, Out any](ctx context.Context, s *ConcurrencyScheduler, items []In, fn func(ctx context.Context, index int, item In) Out) []Out {
	results := make([]Out, len(items))

	var g errgroup.Group
	g.SetLimit(s.limit)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().
						Int("index", i).
						Str("panic", fmt.Sprintf("%v", r)).
						Msg("Recovered from panic in scheduled unit")
				}
			}()
			results[i] = fn(ctx, i, item)
			return nil
		})
	}

	_ = g.Wait()
	return results
}
