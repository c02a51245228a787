package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/prospector/internal/models"
)

// formatRun formats one run record as markdown
func formatRun(record models.RunRecord) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Run %s\n\n", record.ID))
	sb.WriteString(fmt.Sprintf("**Query:** %s\n", record.SearchQuery))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", record.Status))
	sb.WriteString(fmt.Sprintf("**Listings:** %d of %d discovered (requested %d)\n", record.ListingsCount, record.Discovered, record.TotalResults))
	sb.WriteString(fmt.Sprintf("**Started:** %s\n", record.StartedAt.Format(time.RFC3339)))
	if !record.CompletedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("**Completed:** %s\n", record.CompletedAt.Format(time.RFC3339)))
	}
	if record.Delivered {
		sb.WriteString("**Delivered:** yes\n")
	}
	if record.Error != "" {
		sb.WriteString(fmt.Sprintf("**Error:** %s\n", record.Error))
	}

	files := []string{record.CSVFile, record.JSONFile, record.PayloadFile, record.ReportFile}
	var listed []string
	for _, f := range files {
		if f != "" {
			listed = append(listed, "- "+f)
		}
	}
	if len(listed) > 0 {
		sb.WriteString("\n## Files\n")
		sb.WriteString(strings.Join(listed, "\n"))
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatRunResult formats a finished run with its notable events
func formatRunResult(record models.RunRecord, events []models.ProgressEvent) string {
	var sb strings.Builder
	sb.WriteString(formatRun(record))
	if len(events) > 0 {
		sb.WriteString("\n## Events\n")
		for _, e := range events {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", e.Kind, e.Message))
		}
	}
	return sb.String()
}

// formatRunList formats run records as a markdown table
func formatRunList(records []*models.RunRecord) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Runs (%d)\n\n", len(records)))
	if len(records) == 0 {
		sb.WriteString("No runs found.\n")
		return sb.String()
	}

	sb.WriteString("| ID | Query | Status | Listings | Started |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, r := range records {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %s |\n",
			r.ID, r.SearchQuery, r.Status, r.ListingsCount, r.StartedAt.Format(time.RFC3339)))
	}
	return sb.String()
}
