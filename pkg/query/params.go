// Package query models the parameters sent to the findings API and
// the RSQL-style filter expressions they carry. Filters are parsed
// into predicate trees so they can be compared structurally and
// evaluated against records locally.
package query

import "github.com/secreport/secreport/internal/jsonutil"

// Params are the querystring parameters of a single page request.
// Offset is excluded from cache identity so every page of one logical
// query shares a key.
type Params struct {
	Filter   string `json:"filter,omitempty" yaml:"filter,omitempty"`
	Sort     string `json:"sort,omitempty" yaml:"sort,omitempty"`
	Limit    int    `json:"limit,omitempty" yaml:"limit,omitempty"`
	Offset   int    `json:"-" yaml:"-"`
	Archived *bool  `json:"archived,omitempty" yaml:"archived,omitempty"`
}

// Config names an endpoint and the parameters to query it with.
type Config struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Params   Params `json:"params" yaml:"params"`
}

// WithOffset returns a copy of p positioned at offset.
func (p Params) WithOffset(offset int) Params {
	p.Offset = offset
	return p
}

// Identity returns the canonical JSON of the parameters that define
// the query, offset excluded. Two configs with equal Identity fetch
// the same logical result set.
func (c Config) Identity() ([]byte, error) {
	return jsonutil.Canonical(map[string]any{
		"endpoint": c.Endpoint,
		"params":   c.Params,
	})
}
