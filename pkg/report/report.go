// Package report orchestrates recipe runs: fetch the primary and
// auxiliary queries, enrich and transform the records, and hand the
// finished bundle to a sink for rendering. One recipe failing never
// stops the others.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/secreport/secreport/pkg/cache"
	"github.com/secreport/secreport/pkg/dataset"
	"github.com/secreport/secreport/pkg/metrics"
	"github.com/secreport/secreport/pkg/query"
	"github.com/secreport/secreport/pkg/recipe"
	"github.com/secreport/secreport/pkg/transform"
)

const projectsEndpoint = "/public/v0/projects"

// Fetcher pulls all records for a query. *fetch.Client satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context, cfg query.Config) ([]map[string]any, error)
}

// Sink receives a finished bundle and returns the paths it wrote.
type Sink interface {
	Emit(r *recipe.Recipe, b *Bundle) ([]string, error)
}

// Section is one output table of a bundle. The main pipeline result
// is named "default"; multi-output custom functions add more.
type Section struct {
	Name string
	Data *dataset.Dataset
}

// Bundle is everything the renderers need for one recipe.
type Bundle struct {
	RunID       string
	RecipeName  string
	Title       string
	GeneratedAt time.Time
	StartDate   string
	EndDate     string

	RawCount  int
	Sections  []Section
	Portfolio *dataset.Dataset

	CacheStats cache.Stats
}

// Main returns the primary section's dataset, or nil when the bundle
// only carries named sections.
func (b *Bundle) Main() *dataset.Dataset {
	for _, s := range b.Sections {
		if s.Name == "default" {
			return s.Data
		}
	}
	if len(b.Sections) > 0 {
		return b.Sections[0].Data
	}
	return nil
}

// Summary is the outcome of a full run.
type Summary struct {
	Succeeded []string
	Failed    []string
	Files     []string
	Cache     cache.Stats
}

// AllOK reports whether every recipe produced a report.
func (s *Summary) AllOK() bool {
	return len(s.Failed) == 0
}

// Options configures an Engine. Cache, Metrics, Sink and Logger may
// be nil.
type Options struct {
	Fetcher     Fetcher
	Transformer *transform.Engine
	Cache       *cache.Cache
	Metrics     *metrics.Set
	Sink        Sink
	Logger      *slog.Logger

	Dates         query.DateRange
	ProjectFilter string
	VersionFilter string
	RecipeFilter  string
}

// Engine runs recipes end to end.
type Engine struct {
	fetcher     Fetcher
	transformer *transform.Engine
	cache       *cache.Cache
	metrics     *metrics.Set
	sink        Sink
	logger      *slog.Logger

	dates         query.DateRange
	projectFilter string
	versionFilter string
	recipeFilter  string
}

// NewEngine returns an engine ready to Run.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	transformer := opts.Transformer
	if transformer == nil {
		transformer = transform.NewEngine(nil, logger)
	}
	return &Engine{
		fetcher:       opts.Fetcher,
		transformer:   transformer,
		cache:         opts.Cache,
		metrics:       opts.Metrics,
		sink:          opts.Sink,
		logger:        logger,
		dates:         opts.Dates,
		projectFilter: opts.ProjectFilter,
		versionFilter: opts.VersionFilter,
		recipeFilter:  opts.RecipeFilter,
	}
}

// Run processes every recipe in order. A recipe that fails or yields
// no data is recorded in the summary and the run continues. The error
// return covers only conditions that make the whole run impossible.
func (e *Engine) Run(ctx context.Context, recipes []*recipe.Recipe) (*Summary, error) {
	if len(recipes) == 0 {
		return nil, errors.New("no recipes to run")
	}
	if e.recipeFilter != "" {
		filtered := filterRecipes(recipes, e.recipeFilter)
		if len(filtered) == 0 {
			return nil, fmt.Errorf("recipe %q not found, available: %s",
				e.recipeFilter, strings.Join(recipeNames(recipes), ", "))
		}
		recipes = filtered
	}
	e.logger.Info("starting report run", "recipes", len(recipes),
		"start", e.dates.Start, "end", e.dates.End)

	summary := &Summary{}
	for i, r := range recipes {
		e.logger.Info("generating report", "recipe", r.Name,
			"n", i+1, "total", len(recipes))
		bundle, err := e.Process(ctx, r)
		switch {
		case err != nil:
			e.logger.Error("recipe failed", "recipe", r.Name, "error", err)
			e.recordFailure(summary, r.Name)
		case bundle == nil:
			e.logger.Error("no report generated", "recipe", r.Name)
			e.recordFailure(summary, r.Name)
		default:
			files, err := e.emit(r, bundle)
			if err != nil {
				e.logger.Error("rendering failed", "recipe", r.Name, "error", err)
				e.recordFailure(summary, r.Name)
				continue
			}
			summary.Succeeded = append(summary.Succeeded, r.Name)
			summary.Files = append(summary.Files, files...)
			if e.metrics != nil {
				e.metrics.RecipesSucceeded.Inc()
			}
		}
	}
	if e.cache != nil {
		summary.Cache = e.cache.Stats()
	}
	return summary, nil
}

func (e *Engine) recordFailure(s *Summary, name string) {
	s.Failed = append(s.Failed, name)
	if e.metrics != nil {
		e.metrics.RecipesFailed.Inc()
	}
}

func (e *Engine) emit(r *recipe.Recipe, b *Bundle) ([]string, error) {
	if e.sink == nil {
		return nil, nil
	}
	return e.sink.Emit(r, b)
}

// Process runs one recipe. It returns (nil, nil) when the primary
// query yields no records: not an error, but nothing to report on.
func (e *Engine) Process(ctx context.Context, r *recipe.Recipe) (*Bundle, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	cfg := r.Query
	cfg.Params.Filter = e.augmentFilter(cfg.Params.Filter)
	raw, err := e.fetcher.FetchAll(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("primary query: %w", err)
	}
	if len(raw) == 0 {
		e.logger.Warn("no data returned", "recipe", r.Name, "endpoint", cfg.Endpoint)
		return nil, nil
	}
	main := dataset.FromRecords(raw)

	var projects map[string]string
	if usesProjectName(r) {
		projects, err = e.fetchProjectNames(ctx)
		if err != nil {
			return nil, fmt.Errorf("project lookup: %w", err)
		}
		injectProjectNames(main, projects)
	}

	rctx := transform.RunContext{StartDate: e.dates.Start, EndDate: e.dates.End}

	aux := make(map[string]*dataset.Dataset, len(r.AdditionalQueries))
	for _, nq := range r.AdditionalQueries {
		records, err := e.fetcher.FetchAll(ctx, nq.Query)
		if err != nil {
			return nil, fmt.Errorf("additional query %q: %w", nq.Name, err)
		}
		e.logger.Debug("additional data fetched", "query", nq.Name, "records", len(records))
		ds := dataset.FromRecords(records)
		if projects != nil {
			injectProjectNames(ds, projects)
		}
		if steps := r.AdditionalTransforms[nq.Name]; len(steps) > 0 {
			ds, err = e.transformer.Apply(rctx, ds, steps, aux)
			if err != nil {
				return nil, fmt.Errorf("additional transform %q: %w", nq.Name, err)
			}
		}
		aux[nq.Name] = ds
	}

	var sections []Section
	if r.TransformFunction != "" {
		result, err := e.transformer.ApplyFunction(rctx, r.TransformFunction, main, aux)
		if err != nil {
			e.countTransformFailure()
			return nil, fmt.Errorf("transform function %q: %w", r.TransformFunction, err)
		}
		sections = orderSections(result)
	} else {
		out, err := e.transformer.Apply(rctx, main, r.Transform, aux)
		if err != nil {
			e.countTransformFailure()
			return nil, fmt.Errorf("transform: %w", err)
		}
		sections = []Section{{Name: "default", Data: out}}
	}

	var portfolio *dataset.Dataset
	if len(r.PortfolioTransform) > 0 {
		portfolio, err = e.transformer.Apply(rctx, main, r.PortfolioTransform, aux)
		if err != nil {
			e.countTransformFailure()
			return nil, fmt.Errorf("portfolio transform: %w", err)
		}
	}

	b := &Bundle{
		RunID:       uuid.NewString(),
		RecipeName:  r.Name,
		Title:       title(r),
		GeneratedAt: time.Now(),
		StartDate:   e.dates.Start,
		EndDate:     e.dates.End,
		RawCount:    len(raw),
		Sections:    sections,
		Portfolio:   portfolio,
	}
	if e.cache != nil {
		b.CacheStats = e.cache.Stats()
	}
	return b, nil
}

func (e *Engine) countTransformFailure() {
	if e.metrics != nil {
		e.metrics.TransformFailures.Inc()
	}
}

// augmentFilter narrows the primary query to the configured project
// and version. The values are appended as equality clauses whether
// they are numeric ids or names; the API accepts both forms.
func (e *Engine) augmentFilter(filter string) string {
	var clauses []string
	if filter != "" {
		clauses = append(clauses, filter)
	}
	if e.projectFilter != "" {
		clauses = append(clauses, "project=="+e.projectFilter)
	}
	if e.versionFilter != "" {
		clauses = append(clauses, "projectVersion=="+e.versionFilter)
	}
	return strings.Join(clauses, ";")
}

// usesProjectName reports whether any pipeline of the recipe groups
// or computes on project_name, which only exists after enrichment.
func usesProjectName(r *recipe.Recipe) bool {
	pipelines := [][]transform.Step{r.Transform, r.PortfolioTransform}
	for _, steps := range r.AdditionalTransforms {
		pipelines = append(pipelines, steps)
	}
	for _, steps := range pipelines {
		for _, s := range steps {
			if s.GroupBy != nil {
				for _, k := range s.GroupBy.Keys {
					if k == "project_name" {
						return true
					}
				}
			}
			if s.Calc != nil && s.Calc.Name == "project_name" {
				return true
			}
		}
	}
	return false
}

// fetchProjectNames pulls the project list once and maps stringified
// ids to display names.
func (e *Engine) fetchProjectNames(ctx context.Context) (map[string]string, error) {
	records, err := e.fetcher.FetchAll(ctx, query.Config{
		Endpoint: projectsEndpoint,
		Params:   query.Params{Limit: 1000},
	})
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(records))
	for _, p := range records {
		id := p["id"]
		if id == nil {
			id = p["projectId"]
		}
		name, _ := p["name"].(string)
		if id == nil || name == "" {
			continue
		}
		names[dataset.CanonicalString(id)] = name
	}
	e.logger.Debug("project names resolved", "projects", len(names))
	return names, nil
}

// injectProjectNames adds a project_name column resolved from the
// row's project field. A nested project object carrying its own name
// wins over the id lookup; an unknown id falls back to the id itself.
func injectProjectNames(d *dataset.Dataset, names map[string]string) {
	d.AddColumn("project_name")
	for _, row := range d.Rows {
		field := row["project"]
		if field == nil {
			field = row["projectId"]
		}
		if field == nil {
			continue
		}
		if obj, ok := field.(map[string]any); ok {
			if name, ok := obj["name"].(string); ok && name != "" {
				row["project_name"] = name
				continue
			}
			field = obj["id"]
			if field == nil {
				continue
			}
		}
		id := dataset.CanonicalString(field)
		if name, ok := names[id]; ok {
			row["project_name"] = name
		} else {
			row["project_name"] = id
		}
	}
}

// orderSections flattens a multi-output result, default first and the
// rest in name order so output paths are stable across runs.
func orderSections(result transform.Result) []Section {
	var sections []Section
	if d, ok := result["default"]; ok {
		sections = append(sections, Section{Name: "default", Data: d})
	}
	names := make([]string, 0, len(result))
	for name := range result {
		if name != "default" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sections = append(sections, Section{Name: name, Data: result[name]})
	}
	return sections
}

func title(r *recipe.Recipe) string {
	if r.Output.Title != "" {
		return r.Output.Title
	}
	return r.Name
}

func filterRecipes(recipes []*recipe.Recipe, needle string) []*recipe.Recipe {
	needle = strings.ToLower(needle)
	var out []*recipe.Recipe
	for _, r := range recipes {
		if strings.Contains(strings.ToLower(r.Name), needle) {
			out = append(out, r)
		}
	}
	return out
}

func recipeNames(recipes []*recipe.Recipe) []string {
	names := make([]string, len(recipes))
	for i, r := range recipes {
		names[i] = r.Name
	}
	return names
}
