package batch

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/pipeline"
	"github.com/ternarybob/prospector/internal/services/scheduler"
	"gopkg.in/yaml.v3"
)

// JobName is the scheduler job that executes the batch
const JobName = "query-batch"

const localityPlaceholder = "{locality}"

// QueryFile lists the searches of one batch. Template is expanded once per locality,
// explicit queries follow.
type QueryFile struct {
	Template     string   `yaml:"template"`
	Localities   []string `yaml:"localities"`
	Queries      []string `yaml:"queries"`
	TotalResults int      `yaml:"total_results"`
	APIEndpoint  string   `yaml:"api_endpoint"`
	APIKey       string   `yaml:"api_key"`
}

// LoadQueryFile reads and parses a batch file
func LoadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file %s: %w", path, err)
	}
	var file QueryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse batch file %s: %w", path, err)
	}
	return &file, nil
}

// SearchQueries expands the template and appends the explicit queries, skipping blanks
func (f *QueryFile) SearchQueries() []string {
	var out []string
	if strings.TrimSpace(f.Template) != "" {
		for _, locality := range f.Localities {
			locality = strings.TrimSpace(locality)
			if locality == "" {
				continue
			}
			if strings.Contains(f.Template, localityPlaceholder) {
				out = append(out, strings.ReplaceAll(f.Template, localityPlaceholder, locality))
			} else {
				out = append(out, f.Template+" in "+locality)
			}
		}
	}
	for _, q := range f.Queries {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// Runner executes one pipeline run to completion
type Runner interface {
	RunSync(ctx context.Context, req pipeline.Request, fn func(models.ProgressEvent)) (models.RunRecord, error)
}

// Service runs every query of a batch file serially
type Service struct {
	runner       Runner
	path         string
	defaultTotal int
	logger       arbor.ILogger
}

func NewService(runner Runner, path string, defaultTotal int, logger arbor.ILogger) *Service {
	return &Service{
		runner:       runner,
		path:         path,
		defaultTotal: defaultTotal,
		logger:       logger,
	}
}

// Register adds the batch as a scheduler job. An empty schedule registers it for manual triggering only.
func (s *Service) Register(sched *scheduler.Service, schedule string) error {
	return sched.RegisterJob(JobName, schedule, "Run every search in "+s.path, s.Execute)
}

// Execute reloads the batch file and runs its queries one after another.
// A failed run does not stop the batch.
func (s *Service) Execute(ctx context.Context) error {
	file, err := LoadQueryFile(s.path)
	if err != nil {
		return err
	}

	total := file.TotalResults
	if total <= 0 {
		total = s.defaultTotal
	}

	queries := file.SearchQueries()
	s.logger.Info().Str("file", s.path).Int("queries", len(queries)).Msg("Starting query batch")

	failed := 0
	for i, query := range queries {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("batch interrupted after %d of %d queries: %w", i, len(queries), err)
		}

		record, err := s.runner.RunSync(ctx, pipeline.Request{
			SearchQuery:  query,
			TotalResults: total,
			APIEndpoint:  file.APIEndpoint,
			APIKey:       file.APIKey,
		}, nil)
		if err != nil {
			failed++
			s.logger.Warn().Err(err).Str("query", query).Msg("Batch query failed")
			continue
		}

		s.logger.Info().
			Str("query", query).
			Str("run_id", record.ID).
			Int("listings", record.ListingsCount).
			Msgf("Batch query %d/%d done", i+1, len(queries))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d batch queries failed", failed, len(queries))
	}
	return nil
}
