package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/prospector/internal/models"
)

// ErrRunNotFound is returned when no run record exists for an ID
var ErrRunNotFound = errors.New("run not found")

// RunStorage persists run history
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
}

// ListingStorage mirrors merged listings into an external table
type ListingStorage interface {
	UpsertListings(ctx context.Context, runID, searchQuery string, listings []models.MergedListing) error
}

// ExportUploader copies export files to remote object storage
type ExportUploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}
