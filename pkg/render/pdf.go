package render

import (
	gofpdf "github.com/go-pdf/fpdf"

	"github.com/secreport/secreport/pkg/report"
)

const (
	pdfMargin     = 15.0
	pdfHeaderH    = 8.0
	pdfRowH       = 7.0
	pdfMaxCellLen = 60
)

// writePDF emits one document with a table per section.
func (r *Renderer) writePDF(b *report.Bundle) (string, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(30, 41, 59)
	pdf.CellFormat(0, 10, b.Title, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(100, 116, 139)
	meta := b.StartDate + " to " + b.EndDate + "  |  " +
		b.GeneratedAt.Format("2006-01-02 15:04") + "  |  run " + b.RunID
	pdf.CellFormat(0, 6, meta, "", 1, "L", false, 0, "")
	pdf.Ln(4)

	secs := sections(b)
	for _, s := range secs {
		if len(secs) > 1 {
			pdf.SetFont("Helvetica", "B", 12)
			pdf.SetTextColor(30, 41, 59)
			pdf.CellFormat(0, 8, columnTitle(s.Name), "", 1, "L", false, 0, "")
		}
		addTable(pdf, s)
		pdf.Ln(6)
	}

	path := r.path(b, "", "pdf")
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", err
	}
	return path, nil
}

func addTable(pdf *gofpdf.Fpdf, s report.Section) {
	cols := s.Data.Columns
	if len(cols) == 0 {
		return
	}
	pageW, _ := pdf.GetPageSize()
	cellW := (pageW - 2*pdfMargin) / float64(len(cols))

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(30, 41, 59)
	pdf.SetTextColor(255, 255, 255)
	for _, col := range cols {
		pdf.CellFormat(cellW, pdfHeaderH, truncate(columnTitle(col), pdfMaxCellLen), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(30, 41, 59)
	for _, row := range s.Data.Rows {
		for _, col := range cols {
			pdf.CellFormat(cellW, pdfRowH, truncate(cell(row, col), pdfMaxCellLen), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
