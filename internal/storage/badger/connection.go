package badger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// InterruptedRunError is recorded on runs that were still running when the process stopped
const InterruptedRunError = "interrupted: service stopped before the run completed"

// BadgerDB is the run history store
type BadgerDB struct {
	store  *badgerhold.Store
	path   string
	logger arbor.ILogger
}

// NewBadgerDB opens the run history at config.Path. With reset_on_startup the history is
// wiped first; otherwise runs left in the running state by a previous process are marked failed.
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if err := os.RemoveAll(config.Path); err != nil {
			logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to wipe run history")
		} else {
			logger.Debug().Str("path", config.Path).Msg("Run history wiped (reset_on_startup)")
		}
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run history directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // arbor carries our logging

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}

	db := &BadgerDB{
		store:  store,
		path:   config.Path,
		logger: logger,
	}

	interrupted, err := db.failInterruptedRuns(time.Now())
	if err != nil {
		store.Close()
		return nil, err
	}

	logger.Debug().
		Str("path", config.Path).
		Int("interrupted_runs", interrupted).
		Msg("Run history opened")

	return db, nil
}

// failInterruptedRuns closes out records no process will ever finish
func (b *BadgerDB) failInterruptedRuns(now time.Time) (int, error) {
	var stale []models.RunRecord
	if err := b.store.Find(&stale, badgerhold.Where("Status").Eq(models.RunStatusRunning)); err != nil {
		return 0, fmt.Errorf("failed to scan run history: %w", err)
	}

	for i := range stale {
		run := &stale[i]
		run.Status = models.RunStatusFailed
		run.Error = InterruptedRunError
		run.CompletedAt = now
		if err := b.store.Upsert(run.ID, run); err != nil {
			return i, fmt.Errorf("failed to close interrupted run %s: %w", run.ID, err)
		}
		b.logger.Warn().
			Str("run_id", run.ID).
			Str("query", run.SearchQuery).
			Msg("Marked interrupted run as failed")
	}
	return len(stale), nil
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Path returns the directory holding the run history
func (b *BadgerDB) Path() string {
	return b.path
}

func (b *BadgerDB) Close() error {
	if b.store == nil {
		return nil
	}
	return b.store.Close()
}
