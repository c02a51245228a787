package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/pipeline"
	"github.com/ternarybob/prospector/internal/services/scheduler"
)

type fakeRunner struct {
	requests []pipeline.Request
	failOn   string
}

func (f *fakeRunner) RunSync(_ context.Context, req pipeline.Request, _ func(models.ProgressEvent)) (models.RunRecord, error) {
	f.requests = append(f.requests, req)
	if req.SearchQuery == f.failOn {
		return models.RunRecord{}, errors.New("search box not found")
	}
	return models.RunRecord{ID: "run_" + req.SearchQuery, ListingsCount: 3}, nil
}

const sample = `
template: "salon in {locality}, austria"
total_results: 20
api_endpoint: https://api.example/leads
localities:
  - Linz
  - " "
  - Salzburg
queries:
  - dentist in Vienna
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestQueryFile_SearchQueries(t *testing.T) {
	file, err := LoadQueryFile(writeFile(t, sample))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"salon in Linz, austria",
		"salon in Salzburg, austria",
		"dentist in Vienna",
	}, file.SearchQueries())
	assert.Equal(t, 20, file.TotalResults)
}

func TestQueryFile_TemplateWithoutPlaceholder(t *testing.T) {
	file := &QueryFile{Template: "barber", Localities: []string{"Berlin"}}
	assert.Equal(t, []string{"barber in Berlin"}, file.SearchQueries())
}

func TestLoadQueryFile_Errors(t *testing.T) {
	_, err := LoadQueryFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadQueryFile(writeFile(t, "localities: [unclosed"))
	assert.Error(t, err)
}

func TestExecute_RunsSeriallyAndContinuesPastFailures(t *testing.T) {
	runner := &fakeRunner{failOn: "salon in Linz, austria"}
	svc := NewService(runner, writeFile(t, sample), 5, arbor.NewLogger())

	err := svc.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3")

	require.Len(t, runner.requests, 3)
	assert.Equal(t, "dentist in Vienna", runner.requests[2].SearchQuery)
	assert.Equal(t, 20, runner.requests[0].TotalResults)
	assert.Equal(t, "https://api.example/leads", runner.requests[0].APIEndpoint)
}

func TestExecute_DefaultTotal(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewService(runner, writeFile(t, "queries: [barber in Berlin]"), 7, arbor.NewLogger())

	require.NoError(t, svc.Execute(context.Background()))
	require.Len(t, runner.requests, 1)
	assert.Equal(t, 7, runner.requests[0].TotalResults)
}

func TestExecute_StopsWhenCancelled(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewService(runner, writeFile(t, sample), 5, arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, svc.Execute(ctx), context.Canceled)
	assert.Empty(t, runner.requests)
}

func TestRegister_RunsThroughScheduler(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewService(runner, writeFile(t, "queries: [barber in Berlin]"), 5, arbor.NewLogger())
	sched := scheduler.NewService(arbor.NewLogger())

	require.NoError(t, svc.Register(sched, ""))
	require.NoError(t, sched.RunJob(JobName))
	assert.Len(t, runner.requests, 1)

	status, err := sched.GetJobStatus(JobName)
	require.NoError(t, err)
	assert.NotNil(t, status)
}
