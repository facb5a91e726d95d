// Package recipe loads the declarative report definitions that drive
// the pipeline. A recipe names a primary query, optional auxiliary
// queries with their own sub-pipelines, the transform steps (or a
// registered custom function), and the output formats to render.
package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/secreport/secreport/pkg/query"
	"github.com/secreport/secreport/pkg/transform"
)

// KnownFormats are the renderers available for output.formats.
var KnownFormats = []string{"csv", "html", "pdf", "json"}

// NamedQuery is one auxiliary query. Order of declaration is
// preserved because later queries may join against earlier results.
type NamedQuery struct {
	Name  string
	Query query.Config
}

// NamedQueries unmarshals a YAML mapping while keeping key order.
type NamedQueries []NamedQuery

func (n *NamedQueries) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("additional_queries must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var nq NamedQuery
		nq.Name = node.Content[i].Value
		if err := node.Content[i+1].Decode(&nq.Query); err != nil {
			return fmt.Errorf("additional query %q: %w", nq.Name, err)
		}
		*n = append(*n, nq)
	}
	return nil
}

// Output controls rendering of the finished tables.
type Output struct {
	Title      string   `yaml:"title,omitempty"`
	SlideTitle string   `yaml:"slide_title,omitempty"`
	Table      bool     `yaml:"table,omitempty"`
	Formats    []string `yaml:"formats,omitempty"`
}

// Recipe is one report definition.
type Recipe struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Template    string `yaml:"template,omitempty"`

	Query             query.Config `yaml:"query"`
	AdditionalQueries NamedQueries `yaml:"additional_queries,omitempty"`

	// AdditionalTransforms are sub-pipelines applied to the named
	// auxiliary query's raw records before joins see them.
	AdditionalTransforms map[string][]transform.Step `yaml:"additional_transforms,omitempty"`

	// Transform is the main pipeline; TransformFunction names a
	// registered custom function used instead when set.
	Transform         []transform.Step `yaml:"transform,omitempty"`
	TransformFunction string           `yaml:"transform_function,omitempty"`

	// PortfolioTransform runs against the raw records independently
	// of the main pipeline, feeding the portfolio chart.
	PortfolioTransform []transform.Step `yaml:"portfolio_transform,omitempty"`

	Output Output `yaml:"output"`
}

// Validate checks structural soundness before any fetching happens.
func (r *Recipe) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("recipe has no name")
	}
	if r.Query.Endpoint == "" {
		return fmt.Errorf("recipe %q: query.endpoint is required", r.Name)
	}
	if len(r.Transform) == 0 && r.TransformFunction == "" {
		return fmt.Errorf("recipe %q: needs transform steps or a transform_function", r.Name)
	}
	for i, step := range r.Transform {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("recipe %q: transform step %d: %w", r.Name, i, err)
		}
	}
	for name, steps := range r.AdditionalTransforms {
		if !r.hasAdditionalQuery(name) {
			return fmt.Errorf("recipe %q: additional_transforms references unknown query %q", r.Name, name)
		}
		for i, step := range steps {
			if err := step.Validate(); err != nil {
				return fmt.Errorf("recipe %q: %s transform step %d: %w", r.Name, name, i, err)
			}
		}
	}
	for i, step := range r.PortfolioTransform {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("recipe %q: portfolio transform step %d: %w", r.Name, i, err)
		}
	}
	for _, f := range r.Output.Formats {
		if !knownFormat(f) {
			return fmt.Errorf("recipe %q: unknown output format %q", r.Name, f)
		}
	}
	return nil
}

func (r *Recipe) hasAdditionalQuery(name string) bool {
	for _, nq := range r.AdditionalQueries {
		if nq.Name == name {
			return true
		}
	}
	return false
}

func knownFormat(f string) bool {
	for _, k := range KnownFormats {
		if strings.EqualFold(f, k) {
			return true
		}
	}
	return false
}

// Parse decodes and validates a single recipe document.
func Parse(data []byte) (*Recipe, error) {
	var r Recipe
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("parsing recipe: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// ParseFile reads one recipe from disk.
func ParseFile(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return r, nil
}

// LoadDir loads every *.yaml and *.yml file under dir, sorted by file
// name so runs are deterministic. Recipe names must be unique.
func LoadDir(dir string) ([]*Recipe, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading recipes dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no recipes found in %s", dir)
	}

	seen := make(map[string]string)
	recipes := make([]*Recipe, 0, len(paths))
	for _, path := range paths {
		r, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("recipe name %q used by both %s and %s", r.Name, prev, filepath.Base(path))
		}
		seen[r.Name] = filepath.Base(path)
		recipes = append(recipes, r)
	}
	return recipes, nil
}
