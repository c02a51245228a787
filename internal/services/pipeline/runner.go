package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/output"
	"github.com/ternarybob/prospector/internal/services/scheduler"
)

// Discoverer lists the directory entries for a search phrase
type Discoverer interface {
	Discover(ctx context.Context, query string, total int, pub interfaces.ProgressPublisher) ([]models.ListingReference, error)
}

// DetailExtractor reads one listing. It never fails; failures come back as sentinel records.
type DetailExtractor interface {
	Extract(ctx context.Context, ref models.ListingReference, total int, pub interfaces.ProgressPublisher) models.DetailRecord
}

// Aggregator merges detail records with their enrichment
type Aggregator interface {
	Aggregate(ctx context.Context, searchQuery string, records []models.DetailRecord, pub interfaces.ProgressPublisher) models.Dataset
}

// Exporter persists a dataset and returns the run payload
type Exporter interface {
	Write(ctx context.Context, dataset models.Dataset, pub interfaces.ProgressPublisher) (output.Files, models.RunPayload, error)
}

// Deliverer submits the run payload to an external endpoint
type Deliverer interface {
	Deliver(ctx context.Context, endpoint, apiKey string, payload models.RunPayload, pub interfaces.ProgressPublisher) bool
}

// Runner executes the stages of one run in order
type Runner struct {
	discovery  Discoverer
	extractor  DetailExtractor
	aggregator Aggregator
	exporter   Exporter
	deliverer  Deliverer
	scheduler  *scheduler.ConcurrencyScheduler
	listings   interfaces.ListingStorage // optional
	logger     arbor.ILogger
}

// Stages groups the runner's collaborators
type Stages struct {
	Discovery  Discoverer
	Extractor  DetailExtractor
	Aggregator Aggregator
	Exporter   Exporter
	Deliverer  Deliverer
	Scheduler  *scheduler.ConcurrencyScheduler
	Listings   interfaces.ListingStorage
}

func NewRunner(stages Stages, logger arbor.ILogger) *Runner {
	sched := stages.Scheduler
	if sched == nil {
		sched = scheduler.NewConcurrencyScheduler(scheduler.DefaultConcurrency, logger)
	}
	return &Runner{
		discovery:  stages.Discovery,
		extractor:  stages.Extractor,
		aggregator: stages.Aggregator,
		exporter:   stages.Exporter,
		deliverer:  stages.Deliverer,
		scheduler:  sched,
		listings:   stages.Listings,
		logger:     logger,
	}
}

// Checkpoint receives a copy of the run summary after each stage that changes it
type Checkpoint func(models.RunRecord)

// Run executes discovery, bounded extraction, aggregation, export and delivery, updating run as it goes.
// A returned error is run-fatal and has already been published as an error event.
// The terminal complete event is left to the caller.
func (r *Runner) Run(ctx context.Context, run *models.RunRecord, req Request, pub interfaces.ProgressPublisher, checkpoint Checkpoint) error {
	if checkpoint == nil {
		checkpoint = func(models.RunRecord) {}
	}

	pub.Publish(models.InfoEvent(fmt.Sprintf("Starting scraper for '%s' with %d results", req.SearchQuery, req.TotalResults)))

	refs, err := r.discovery.Discover(ctx, req.SearchQuery, req.TotalResults, pub)
	if err != nil {
		return r.fatal(run, "discovery", err, pub)
	}
	run.Discovered = len(refs)
	checkpoint(*run)

	r.logger.Info().
		Str("run_id", run.ID).
		Int("listings", len(refs)).
		Int("concurrency", r.scheduler.Limit()).
		Msg("Extracting listing details")

	started := time.Now()
	records := scheduler.Map(ctx, r.scheduler, refs, func(ctx context.Context, i int, ref models.ListingReference) models.DetailRecord {
		return r.extractor.Extract(ctx, ref, len(refs), pub)
	})
	for i := range records {
		if records[i].Name == "" {
			records[i] = models.FailedDetailRecord(refs[i].Index)
		}
	}
	r.logger.Info().Str("run_id", run.ID).Dur("elapsed", time.Since(started)).Msg("Listing details extracted")

	if err := ctx.Err(); err != nil {
		return r.fatal(run, "extraction", err, pub)
	}

	dataset := r.aggregator.Aggregate(ctx, req.SearchQuery, records, pub)
	run.ListingsCount = len(dataset.Listings)
	checkpoint(*run)

	files, payload, err := r.exporter.Write(ctx, dataset, pub)
	if err != nil {
		return r.fatal(run, "output", err, pub)
	}
	run.CSVFile = files.CSV
	run.JSONFile = files.JSON
	run.PayloadFile = files.Payload
	run.ReportFile = files.Report
	checkpoint(*run)

	if r.listings != nil {
		if err := r.listings.UpsertListings(ctx, run.ID, req.SearchQuery, dataset.Listings); err != nil {
			r.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to mirror listings")
			pub.Publish(models.WarningEvent(fmt.Sprintf("Failed to store listings in database: %v", err)))
		}
	}

	run.Delivered = r.deliverer.Deliver(ctx, req.APIEndpoint, req.APIKey, payload, pub)
	run.Status = models.RunStatusCompleted
	return nil
}

func (r *Runner) fatal(run *models.RunRecord, step string, err error, pub interfaces.ProgressPublisher) error {
	run.Status = models.RunStatusFailed
	run.Error = err.Error()
	pub.Publish(models.ErrorEvent(step, fmt.Sprintf("Scraper error: %v", err)))
	return fmt.Errorf("%s: %w", step, err)
}
