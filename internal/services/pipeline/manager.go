package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/events"
)

// ErrNoRun is returned when no run has been started yet
var ErrNoRun = errors.New("no run has been started")

// Run is one pipeline execution with its own progress bus
type Run struct {
	ID      string
	Request Request

	bus  *events.Bus
	done chan struct{}

	mu     sync.Mutex
	record models.RunRecord
}

// Bus returns the run's progress stream
func (r *Run) Bus() interfaces.ProgressBus {
	return r.bus
}

// Done is closed once the run has finished and its complete event was published
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Record returns a snapshot of the run's summary
func (r *Run) Record() models.RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record
}

// Manager starts runs on their own goroutines and keeps track of the latest one
type Manager struct {
	runner *Runner
	runs   interfaces.RunStorage // optional
	logger arbor.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current *Run
	active  map[string]*Run
}

func NewManager(runner *Runner, runs interfaces.RunStorage, logger arbor.ILogger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runner: runner,
		runs:   runs,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		active: make(map[string]*Run),
	}
}

// Start validates the request and launches a run. Each run streams on a fresh bus,
// so a reader attaching to it never sees a previous run's backlog.
func (m *Manager) Start(req Request) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := common.NewRunID()
	run := &Run{
		ID:      id,
		Request: req,
		bus:     events.NewBus(m.logger),
		done:    make(chan struct{}),
		record: models.RunRecord{
			ID:           id,
			SearchQuery:  req.SearchQuery,
			TotalResults: req.TotalResults,
			Status:       models.RunStatusRunning,
			StartedAt:    time.Now(),
		},
	}

	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("pipeline manager is shut down")
	}
	m.current = run
	m.active[id] = run
	m.wg.Add(1)
	m.mu.Unlock()

	m.save(run.Record())

	m.logger.Info().
		Str("run_id", id).
		Str("query", req.SearchQuery).
		Int("total_results", req.TotalResults).
		Msg("Run started")

	common.SafeGo(m.logger, "pipeline-run-"+id, func() {
		m.execute(run)
	})
	return run, nil
}

// RunSync starts a run and drains its events until completion, passing each to fn
func (m *Manager) RunSync(ctx context.Context, req Request, fn func(models.ProgressEvent)) (models.RunRecord, error) {
	run, err := m.Start(req)
	if err != nil {
		return models.RunRecord{}, err
	}
	if err := run.bus.Drain(ctx, fn); err != nil {
		return run.Record(), err
	}
	<-run.done
	record := run.Record()
	if record.Status == models.RunStatusFailed {
		return record, fmt.Errorf("run %s failed: %s", run.ID, record.Error)
	}
	return record, nil
}

// Current returns the most recently started run
func (m *Manager) Current() (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, ErrNoRun
	}
	return m.current, nil
}

// Get returns the record of an active or persisted run
func (m *Manager) Get(ctx context.Context, id string) (models.RunRecord, error) {
	m.mu.Lock()
	run, ok := m.active[id]
	m.mu.Unlock()
	if ok {
		return run.Record(), nil
	}
	if m.runs == nil {
		return models.RunRecord{}, fmt.Errorf("%w: %s", interfaces.ErrRunNotFound, id)
	}
	record, err := m.runs.GetRun(ctx, id)
	if err != nil {
		return models.RunRecord{}, err
	}
	return *record, nil
}

// List returns persisted runs, newest first
func (m *Manager) List(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	if m.runs == nil {
		return []*models.RunRecord{}, nil
	}
	return m.runs.ListRuns(ctx, limit)
}

// Shutdown cancels active runs and waits for them to publish their complete events
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for runs to stop: %w", ctx.Err())
	}
}

func (m *Manager) execute(run *Run) {
	defer m.wg.Done()
	defer close(run.done)
	defer run.bus.Complete()

	record := run.Record()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Str("run_id", run.ID).Str("panic", fmt.Sprintf("%v", r)).Msg("Run panicked")
			record.Status = models.RunStatusFailed
			record.Error = fmt.Sprintf("panic: %v", r)
			run.bus.Publish(models.ErrorEvent("run", fmt.Sprintf("Scraper error: %v", r)))
		}
		record.CompletedAt = time.Now()
		m.finish(run, record)
	}()

	if err := m.runner.Run(m.ctx, &record, run.Request, run.bus, func(snapshot models.RunRecord) {
		run.setRecord(snapshot)
		m.save(snapshot)
	}); err != nil {
		m.logger.Error().Err(err).Str("run_id", run.ID).Msg("Run failed")
	}
}

func (r *Run) setRecord(record models.RunRecord) {
	r.mu.Lock()
	r.record = record
	r.mu.Unlock()
}

func (m *Manager) finish(run *Run, record models.RunRecord) {
	run.setRecord(record)

	m.save(record)

	m.mu.Lock()
	delete(m.active, run.ID)
	m.mu.Unlock()

	m.logger.Info().
		Str("run_id", run.ID).
		Str("status", record.Status).
		Int("listings", record.ListingsCount).
		Dur("duration", record.CompletedAt.Sub(record.StartedAt)).
		Msg("Run finished")
}

func (m *Manager) save(record models.RunRecord) {
	if m.runs == nil {
		return
	}
	if err := m.runs.SaveRun(context.Background(), &record); err != nil {
		m.logger.Warn().Err(err).Str("run_id", record.ID).Msg("Failed to save run record")
	}
}
