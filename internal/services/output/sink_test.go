package output

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (p *recordingPublisher) Publish(event models.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) ofKind(kind models.EventKind) []models.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.ProgressEvent
	for _, e := range p.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeUploader struct {
	uploaded []string
	failOn   string
}

func (f *fakeUploader) Upload(_ context.Context, localPath string) (string, error) {
	name := filepath.Base(localPath)
	if name == f.failOn {
		return "", errors.New("access denied")
	}
	f.uploaded = append(f.uploaded, name)
	return "s3://bucket/" + name, nil
}

func testDataset() models.Dataset {
	a := models.NewDetailRecord(0)
	a.Name = "Fade Factory"
	a.Website = "https://fade.example"
	a.AverageRating = 4.5
	a.ReviewCount = 120
	b := models.NewDetailRecord(1)
	b.Name = "Clip Joint"

	enrichment := models.NewEnrichmentRecord("https://fade.example")
	enrichment.ContactInfo.Emails = []string{"info@fade.example"}

	return models.Dataset{
		SearchQuery: "barber in Berlin",
		Listings: []models.MergedListing{
			{Detail: a, Enrichment: enrichment, Email: "info@fade.example", Address: models.AddressComponents{City: "Berlin"}},
			{Detail: b, Enrichment: models.NewEnrichmentRecord(models.Absent), Email: models.Absent},
		},
		Table: models.Table{
			Columns: []string{"Names", "Email"},
			Rows: [][]string{
				{"Fade Factory", "info@fade.example"},
				{"Clip Joint", "N/A"},
			},
		},
	}
}

func newTestSink(t *testing.T, pdf bool, uploader *fakeUploader) *Sink {
	t.Helper()
	var sink *Sink
	if uploader != nil {
		sink = NewSink(common.OutputConfig{Dir: t.TempDir(), PDFReport: pdf}, uploader, arbor.NewLogger())
	} else {
		sink = NewSink(common.OutputConfig{Dir: t.TempDir(), PDFReport: pdf}, nil, arbor.NewLogger())
	}
	sink.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	return sink
}

func TestSink_WritesExports(t *testing.T) {
	sink := newTestSink(t, false, nil)
	pub := &recordingPublisher{}

	files, payload, err := sink.Write(context.Background(), testDataset(), pub)
	require.NoError(t, err)

	assert.Equal(t, "business_data_20240309-140507.csv", files.CSV)
	assert.Equal(t, "detailed_business_data_20240309-140507.json", files.JSON)
	assert.Equal(t, "API Data_detailed_business_data_20240309-140507.json", files.Payload)
	assert.Empty(t, files.Report)

	f, err := os.Open(filepath.Join(sink.Dir(), files.CSV))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Names", "Email"}, {"Fade Factory", "info@fade.example"}, {"Clip Joint", "N/A"}}, records)

	data, err := os.ReadFile(filepath.Join(sink.Dir(), files.JSON))
	require.NoError(t, err)
	var detailed []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &detailed))
	require.Len(t, detailed, 2)
	assert.Equal(t, "https://fade.example", detailed[0]["website"])
	assert.Contains(t, detailed[0], "reviews")
	assert.Contains(t, detailed[0], "atmosphere")
	assert.Contains(t, detailed[0], "map_social_media")

	data, err = os.ReadFile(filepath.Join(sink.Dir(), files.Payload))
	require.NoError(t, err)
	var stored models.RunPayload
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, "barber in Berlin", stored.SearchQuery)
	assert.Equal(t, "20240309-140507", stored.Timestamp)
	assert.Equal(t, 2, stored.ListingsCount)
	assert.Equal(t, "Clip Joint", stored.DataframeData[1]["Names"])
	assert.Equal(t, payload.ListingsCount, stored.ListingsCount)

	successes := pub.ofKind(models.EventSuccess)
	require.Len(t, successes, 1)
	assert.Equal(t, "Data saved to business_data_20240309-140507.csv and detailed_business_data_20240309-140507.json", successes[0].Message)
	assert.Equal(t, files.CSV, successes[0].CSVFile)
	assert.Equal(t, files.JSON, successes[0].JSONFile)
}

func TestSink_SameSecondRunsGetDistinctNames(t *testing.T) {
	sink := newTestSink(t, true, nil)

	names := make([]Files, 3)
	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			files, _, err := sink.Write(context.Background(), testDataset(), &recordingPublisher{})
			assert.NoError(t, err)
			names[i] = files
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, files := range names {
		for _, name := range []string{files.CSV, files.JSON, files.Payload, files.Report} {
			assert.Contains(t, name, "20240309-140507")
			assert.False(t, seen[name], "duplicate export name %s", name)
			seen[name] = true

			info, err := os.Stat(filepath.Join(sink.Dir(), name))
			require.NoError(t, err)
			assert.NotZero(t, info.Size())
		}
	}
	assert.Len(t, seen, 12)

	_, err := os.Stat(filepath.Join(sink.Dir(), "business_data_20240309-140507-3.csv"))
	assert.NoError(t, err)
}

func TestSink_WritesPDFReport(t *testing.T) {
	sink := newTestSink(t, true, nil)

	files, _, err := sink.Write(context.Background(), testDataset(), &recordingPublisher{})
	require.NoError(t, err)
	require.Equal(t, "business_report_20240309-140507.pdf", files.Report)

	data, err := os.ReadFile(filepath.Join(sink.Dir(), files.Report))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestSink_UploadFailuresAreWarnings(t *testing.T) {
	uploader := &fakeUploader{failOn: "business_data_20240309-140507.csv"}
	sink := newTestSink(t, false, uploader)
	pub := &recordingPublisher{}

	files, _, err := sink.Write(context.Background(), testDataset(), pub)
	require.NoError(t, err)

	assert.Equal(t, []string{files.JSON, files.Payload}, uploader.uploaded)
	assert.Len(t, files.Remote, 2)
	warnings := pub.ofKind(models.EventWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "access denied")
}

func TestSink_Open(t *testing.T) {
	sink := newTestSink(t, false, nil)
	files, _, err := sink.Write(context.Background(), testDataset(), &recordingPublisher{})
	require.NoError(t, err)

	path, err := sink.Open(files.CSV)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sink.Dir(), files.CSV), path)

	for _, name := range []string{"missing.csv", "", "..", "../etc/passwd", "sub/" + files.CSV} {
		_, err := sink.Open(name)
		assert.ErrorIs(t, err, ErrExportNotFound, name)
	}
}

func TestRenderReport_NonLatinText(t *testing.T) {
	dataset := testDataset()
	dataset.Listings[0].Detail.Name = "Friseur Käse ✂ 理髪店"

	data, err := RenderReport(dataset, "20240309-140507")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}
