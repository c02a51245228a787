package output

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// TimestampLayout names every export of one run
const TimestampLayout = "20060102-150405"

// ErrExportNotFound is returned by Open for names that do not exist in the output directory
var ErrExportNotFound = errors.New("export not found")

// Files names the exports written for one run, relative to the output directory
type Files struct {
	CSV     string   `json:"csv_file"`
	JSON    string   `json:"json_file"`
	Payload string   `json:"payload_file"`
	Report  string   `json:"report_file,omitempty"`
	Remote  []string `json:"remote,omitempty"`
}

// Sink writes a run's dataset to the output directory and optionally mirrors the files to object storage
type Sink struct {
	dir       string
	pdfReport bool
	uploader  interfaces.ExportUploader
	logger    arbor.ILogger
	now       func() time.Time

	mu sync.Mutex // serialises export name reservation
}

// NewSink creates a sink. uploader may be nil.
func NewSink(config common.OutputConfig, uploader interfaces.ExportUploader, logger arbor.ILogger) *Sink {
	dir := config.Dir
	if dir == "" {
		dir = "."
	}
	return &Sink{
		dir:       dir,
		pdfReport: config.PDFReport,
		uploader:  uploader,
		logger:    logger,
		now:       time.Now,
	}
}

// Dir returns the output directory
func (s *Sink) Dir() string {
	return s.dir
}

// Write persists the tabular export, the detailed export and the run payload, plus the PDF report when enabled
func (s *Sink) Write(ctx context.Context, dataset models.Dataset, pub interfaces.ProgressPublisher) (Files, models.RunPayload, error) {
	pub.Publish(models.InfoEvent("Saving data to files..."))

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return Files{}, models.RunPayload{}, fmt.Errorf("create output directory: %w", err)
	}

	timestamp := s.now().Format(TimestampLayout)
	files, stem, err := s.reserve(timestamp)
	if err != nil {
		return Files{}, models.RunPayload{}, err
	}

	detailed := make([]models.DetailedListing, len(dataset.Listings))
	for i, listing := range dataset.Listings {
		detailed[i] = models.NewDetailedListing(listing)
	}

	if err := s.writeJSON(files.JSON, detailed, "  "); err != nil {
		return Files{}, models.RunPayload{}, err
	}
	if err := s.writeCSV(files.CSV, dataset.Table); err != nil {
		return Files{}, models.RunPayload{}, err
	}

	success := models.SuccessEvent(fmt.Sprintf("Data saved to %s and %s", files.CSV, files.JSON))
	success.CSVFile = files.CSV
	success.JSONFile = files.JSON
	pub.Publish(success)

	payload := models.RunPayload{
		SearchQuery:         dataset.SearchQuery,
		Timestamp:           timestamp,
		ListingsCount:       len(dataset.Table.Rows),
		DataframeData:       dataset.Table.Records(),
		DetailedWebsiteData: detailed,
	}
	if err := s.writeJSON(files.Payload, payload, "    "); err != nil {
		return Files{}, models.RunPayload{}, err
	}

	if s.pdfReport {
		files.Report = fmt.Sprintf("business_report_%s.pdf", stem)
		report, err := RenderReport(dataset, timestamp)
		if err == nil {
			err = s.writeFile(files.Report, report)
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to write PDF report")
			pub.Publish(models.WarningEvent(fmt.Sprintf("Failed to write PDF report: %v", err)))
			files.Report = ""
		}
	}

	if s.uploader != nil {
		files.Remote = s.upload(ctx, files, pub)
	}

	s.logger.Info().
		Str("csv", files.CSV).
		Str("json", files.JSON).
		Int("rows", len(dataset.Table.Rows)).
		Msg("Exports written")

	return files, payload, nil
}

func exportFiles(stem string) Files {
	return Files{
		CSV:     fmt.Sprintf("business_data_%s.csv", stem),
		JSON:    fmt.Sprintf("detailed_business_data_%s.json", stem),
		Payload: fmt.Sprintf("API Data_detailed_business_data_%s.json", stem),
	}
}

// reserve claims a free set of export names for timestamp. Runs finishing in the same
// second get a numeric suffix ("20240309-140507-2"). The CSV is created empty to hold the name.
func (s *Sink) reserve(timestamp string) (Files, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for n := 1; n <= 1000; n++ {
		stem := timestamp
		if n > 1 {
			stem = fmt.Sprintf("%s-%d", timestamp, n)
		}
		files := exportFiles(stem)
		if s.exists(files.JSON) || s.exists(files.Payload) {
			continue
		}
		f, err := os.OpenFile(filepath.Join(s.dir, files.CSV), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return Files{}, "", fmt.Errorf("reserve %s: %w", files.CSV, err)
		}
		f.Close()
		return files, stem, nil
	}
	return Files{}, "", fmt.Errorf("no free export name for %s", timestamp)
}

func (s *Sink) exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil
}

// Open resolves an export name to its path. Names must not contain path separators.
func (s *Sink) Open(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %s", ErrExportNotFound, name)
	}
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrExportNotFound, name)
	}
	return path, nil
}

func (s *Sink) upload(ctx context.Context, files Files, pub interfaces.ProgressPublisher) []string {
	names := []string{files.CSV, files.JSON, files.Payload}
	if files.Report != "" {
		names = append(names, files.Report)
	}

	remote := make([]string, 0, len(names))
	for _, name := range names {
		location, err := s.uploader.Upload(ctx, filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("Export upload failed")
			pub.Publish(models.WarningEvent(fmt.Sprintf("Failed to upload %s: %v", name, err)))
			continue
		}
		remote = append(remote, location)
	}
	return remote
}

func (s *Sink) writeCSV(name string, table models.Table) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(table.Columns); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.WriteAll(table.Rows); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return s.writeFile(name, buf.Bytes())
}

func (s *Sink) writeJSON(name string, v interface{}, indent string) error {
	data, err := json.MarshalIndent(v, "", indent)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.writeFile(name, data)
}

func (s *Sink) writeFile(name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
