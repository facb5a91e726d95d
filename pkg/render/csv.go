package render

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/secreport/secreport/pkg/report"
)

// UTF-8 BOM so Excel opens the file with the right encoding.
const utf8BOM = "\xEF\xBB\xBF"

// writeCSVs emits one CSV file per section.
func (r *Renderer) writeCSVs(b *report.Bundle) ([]string, error) {
	var paths []string
	for _, s := range sections(b) {
		p := r.path(b, s.Name, "csv")
		if err := writeCSV(p, s); err != nil {
			return nil, fmt.Errorf("section %q: %w", s.Name, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func writeCSV(path string, s report.Section) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(utf8BOM); err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(s.Data.Columns); err != nil {
		return err
	}
	record := make([]string, len(s.Data.Columns))
	for _, row := range s.Data.Rows {
		for i, col := range s.Data.Columns {
			record[i] = sanitizeFormula(cell(row, col))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// sanitizeFormula neutralizes spreadsheet formula injection by
// prefixing values that Excel would otherwise evaluate. Negative
// numbers are exempt so DATEDIFF columns stay numeric.
func sanitizeFormula(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '@', '\t', '\r':
		return "'" + v
	case '-':
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return v
		}
		return "'" + v
	}
	return v
}
