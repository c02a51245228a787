package output

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/prospector/internal/models"
)

const (
	reportFont       = "Arial"
	reportFontSize   = 8.0
	reportLineHeight = 4.0
	reportPageWidth  = 277.0 // A4 landscape minus margins
	reportPageHeight = 210.0 - 10.0
	reportMaxLines   = 4
)

var reportColumns = []string{"Name", "Phone", "Email", "Website", "Rating", "Reviews", "City"}

// RenderReport draws a one-table PDF summary of the dataset
func RenderReport(dataset models.Dataset, timestamp string) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.SetTitle("Business report "+timestamp, true)
	pdf.AddPage()

	pdf.SetFont(reportFont, "B", 14)
	pdf.CellFormat(0, 8, latin1(dataset.SearchQuery), "", 1, "L", false, 0, "")
	pdf.SetFont(reportFont, "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d listings, generated %s", len(dataset.Listings), timestamp), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	rows := make([][]string, 0, len(dataset.Listings)+1)
	rows = append(rows, reportColumns)
	for _, listing := range dataset.Listings {
		d := listing.Detail
		rows = append(rows, []string{
			d.Name,
			d.Phone,
			listing.Email,
			d.Website,
			strconv.FormatFloat(d.AverageRating, 'f', 1, 64),
			strconv.Itoa(d.ReviewCount),
			listing.Address.City,
		})
	}

	t := &reportTable{pdf: pdf}
	t.render(rows)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// latin1 replaces characters the core fonts cannot encode
func latin1(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFF {
			return '?'
		}
		return r
	}, s)
}

type reportTable struct {
	pdf *fpdf.Fpdf
}

func (t *reportTable) render(rows [][]string) {
	widths := t.columnWidths(rows)

	for i, row := range rows {
		style := ""
		if i == 0 {
			style = "B"
		}
		t.pdf.SetFont(reportFont, style, reportFontSize)

		lines := make([][]string, len(row))
		maxLines := 1
		for j, cell := range row {
			lines[j] = t.wrap(latin1(cell), widths[j]-2)
			if len(lines[j]) > maxLines {
				maxLines = len(lines[j])
			}
		}
		if maxLines > reportMaxLines {
			maxLines = reportMaxLines
		}

		rowHeight := float64(maxLines)*reportLineHeight + 2
		startX, startY := t.pdf.GetX(), t.pdf.GetY()
		if startY+rowHeight > reportPageHeight {
			t.pdf.AddPage()
			startY = t.pdf.GetY()
		}

		x := startX
		for j := range row {
			if i == 0 {
				t.pdf.SetFillColor(230, 230, 230)
				t.pdf.Rect(x, startY, widths[j], rowHeight, "FD")
			} else {
				t.pdf.Rect(x, startY, widths[j], rowHeight, "D")
			}
			t.pdf.SetXY(x+1, startY+1)
			for k := 0; k < len(lines[j]) && k < maxLines; k++ {
				t.pdf.CellFormat(widths[j]-2, reportLineHeight, lines[j][k], "", 2, "L", false, 0, "")
			}
			x += widths[j]
		}
		t.pdf.SetXY(startX, startY+rowHeight)
	}
}

// columnWidths sizes columns by their widest cell, clamped and scaled to the page
func (t *reportTable) columnWidths(rows [][]string) []float64 {
	widths := make([]float64, len(rows[0]))
	for i, row := range rows {
		style := ""
		if i == 0 {
			style = "B"
		}
		t.pdf.SetFont(reportFont, style, reportFontSize)
		for j, cell := range row {
			if w := t.pdf.GetStringWidth(latin1(cell)) + 4; w > widths[j] {
				widths[j] = w
			}
		}
	}

	minWidth, maxWidth := 14.0, reportPageWidth/3
	total := 0.0
	for j := range widths {
		if widths[j] < minWidth {
			widths[j] = minWidth
		}
		if widths[j] > maxWidth {
			widths[j] = maxWidth
		}
		total += widths[j]
	}

	scale := reportPageWidth / total
	for j := range widths {
		widths[j] *= scale
	}
	return widths
}

func (t *reportTable) wrap(text string, width float64) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	current := ""
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if current != "" && t.pdf.GetStringWidth(candidate) > width {
			lines = append(lines, current)
			current = word
			continue
		}
		current = candidate
	}
	return append(lines, current)
}
