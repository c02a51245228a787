package handlers

import (
	"context"

	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/pipeline"
)

// RunManager starts pipeline runs and exposes their state
type RunManager interface {
	Start(req pipeline.Request) (*pipeline.Run, error)
	Current() (*pipeline.Run, error)
	Get(ctx context.Context, id string) (models.RunRecord, error)
	List(ctx context.Context, limit int) ([]*models.RunRecord, error)
}

// ExportOpener resolves export file names to local paths
type ExportOpener interface {
	Open(name string) (string, error)
}
