package render

import (
	"os"
	"time"

	"github.com/secreport/secreport/internal/jsonutil"
	"github.com/secreport/secreport/pkg/cache"
	"github.com/secreport/secreport/pkg/report"
)

// jsonDocument is the machine-readable bundle shape.
type jsonDocument struct {
	RunID       string                      `json:"run_id"`
	Recipe      string                      `json:"recipe"`
	Title       string                      `json:"title"`
	GeneratedAt time.Time                   `json:"generated_at"`
	StartDate   string                      `json:"start_date"`
	EndDate     string                      `json:"end_date"`
	RawCount    int                         `json:"raw_count"`
	CacheStats  cache.Stats                 `json:"cache_stats"`
	Sections    map[string][]map[string]any `json:"sections"`
}

func (r *Renderer) writeJSON(b *report.Bundle) (string, error) {
	doc := jsonDocument{
		RunID:       b.RunID,
		Recipe:      b.RecipeName,
		Title:       b.Title,
		GeneratedAt: b.GeneratedAt,
		StartDate:   b.StartDate,
		EndDate:     b.EndDate,
		RawCount:    b.RawCount,
		CacheStats:  b.CacheStats,
		Sections:    map[string][]map[string]any{},
	}
	for _, s := range sections(b) {
		rows := s.Data.Rows
		if rows == nil {
			rows = []map[string]any{}
		}
		doc.Sections[s.Name] = rows
	}

	path := r.path(b, "", "json")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := jsonutil.MarshalWrite(f, doc); err != nil {
		return "", err
	}
	return path, f.Close()
}
