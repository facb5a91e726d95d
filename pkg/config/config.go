// Package config holds run configuration: API credentials, the report
// window, directories, and the optional project/version scoping.
// Values come from a YAML file with environment fallbacks for the
// secret bits.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/secreport/secreport/pkg/period"
)

// TokenEnv is consulted when the config file carries no auth token,
// so credentials can stay out of files entirely.
const TokenEnv = "SECREPORT_TOKEN"

// Config is the validated run configuration.
type Config struct {
	Domain    string `yaml:"domain"`
	AuthToken string `yaml:"auth_token,omitempty"`

	RecipesDir string `yaml:"recipes_dir,omitempty"`
	OutputDir  string `yaml:"output_dir,omitempty"`

	// StartDate/EndDate bound the report window (YYYY-MM-DD,
	// inclusive). Period is a shorthand like "30d" or "Q2-2024" that
	// fills both when they are empty.
	StartDate string `yaml:"start_date,omitempty"`
	EndDate   string `yaml:"end_date,omitempty"`
	Period    string `yaml:"period,omitempty"`

	// RecipeFilter limits the run to recipes whose name contains it.
	RecipeFilter string `yaml:"recipe_filter,omitempty"`

	// ProjectFilter and VersionFilter narrow every findings query to
	// one project (by numeric id or name) and optionally one version.
	ProjectFilter string `yaml:"project_filter,omitempty"`
	VersionFilter string `yaml:"version_filter,omitempty"`

	Verbose bool `yaml:"verbose,omitempty"`
}

const dateLayout = "2006-01-02"

// Load reads a YAML config file and normalizes it. The auth token
// falls back to $SECREPORT_TOKEN.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var c Config
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := c.Normalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Normalize fills defaults, resolves the period shorthand and
// validates what remains.
func (c *Config) Normalize() error {
	if c.AuthToken == "" {
		c.AuthToken = os.Getenv(TokenEnv)
	}
	if c.AuthToken == "" {
		return fmt.Errorf("config: auth token not set (file or $%s)", TokenEnv)
	}

	domain, err := normalizeDomain(c.Domain)
	if err != nil {
		return err
	}
	c.Domain = domain

	if c.RecipesDir == "" {
		c.RecipesDir = "./recipes"
	}
	if c.OutputDir == "" {
		c.OutputDir = "./output"
	}

	if c.Period != "" {
		if c.StartDate != "" || c.EndDate != "" {
			return fmt.Errorf("config: period and explicit dates are mutually exclusive")
		}
		start, end, err := period.Parse(c.Period)
		if err != nil {
			return err
		}
		c.StartDate, c.EndDate = start, end
		// Cleared so Normalize can run again after flag overrides.
		c.Period = ""
	}
	if c.StartDate == "" || c.EndDate == "" {
		return fmt.Errorf("config: start_date and end_date (or period) are required")
	}
	for _, d := range []string{c.StartDate, c.EndDate} {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return fmt.Errorf("config: invalid date %q, want YYYY-MM-DD", d)
		}
	}
	if c.StartDate > c.EndDate {
		return fmt.Errorf("config: start_date %s is after end_date %s", c.StartDate, c.EndDate)
	}

	if c.VersionFilter != "" && c.ProjectFilter == "" {
		return fmt.Errorf("config: version_filter requires project_filter")
	}
	return nil
}

// BaseURL returns the https URL of the API host.
func (c *Config) BaseURL() string {
	return "https://" + c.Domain
}

// normalizeDomain accepts "host", "host/", or "https://host/" and
// returns the bare host.
func normalizeDomain(domain string) (string, error) {
	d := strings.TrimSpace(domain)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimRight(d, "/")
	if d == "" {
		return "", fmt.Errorf("config: domain is required")
	}
	if strings.ContainsAny(d, " /") {
		return "", fmt.Errorf("config: invalid domain %q", domain)
	}
	return d, nil
}
