package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
)

var downloadTypes = map[string]string{
	".csv":  "text/csv",
	".json": "application/json",
	".pdf":  "application/pdf",
}

// DownloadHandler serves export files by name
type DownloadHandler struct {
	exports ExportOpener
	logger  arbor.ILogger
}

func NewDownloadHandler(exports ExportOpener, logger arbor.ILogger) *DownloadHandler {
	return &DownloadHandler{
		exports: exports,
		logger:  logger,
	}
}

// DownloadHandler handles GET /download/{filename}
func (h *DownloadHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/download/")
	path, err := h.exports.Open(name)
	if err != nil {
		h.logger.Debug().Str("file", name).Msg("Download of missing export")
		WriteError(w, http.StatusNotFound, fmt.Sprintf("File %s not found", name))
		return
	}

	contentType, ok := downloadTypes[strings.ToLower(filepath.Ext(name))]
	if !ok {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}
