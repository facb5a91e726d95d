package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadNormalizesDomain(t *testing.T) {
	path := writeConfig(t, `
domain: https://platform.example.com/
auth_token: tok
start_date: "2025-01-01"
end_date: "2025-01-31"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Domain != "platform.example.com" {
		t.Errorf("Domain = %q", c.Domain)
	}
	if c.BaseURL() != "https://platform.example.com" {
		t.Errorf("BaseURL = %q", c.BaseURL())
	}
	if c.RecipesDir != "./recipes" || c.OutputDir != "./output" {
		t.Errorf("defaults: %q, %q", c.RecipesDir, c.OutputDir)
	}
}

func TestLoadTokenFromEnv(t *testing.T) {
	t.Setenv(TokenEnv, "env-token")
	path := writeConfig(t, `
domain: example.com
start_date: "2025-01-01"
end_date: "2025-01-31"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.AuthToken != "env-token" {
		t.Errorf("AuthToken = %q", c.AuthToken)
	}
}

func TestLoadMissingTokenFails(t *testing.T) {
	t.Setenv(TokenEnv, "")
	path := writeConfig(t, `
domain: example.com
start_date: "2025-01-01"
end_date: "2025-01-31"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestLoadPeriodFillsDates(t *testing.T) {
	path := writeConfig(t, `
domain: example.com
auth_token: tok
period: "2024"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.StartDate != "2024-01-01" || c.EndDate != "2024-12-31" {
		t.Errorf("window = %s..%s", c.StartDate, c.EndDate)
	}
}

func TestNormalizeAgainAfterPeriodResolution(t *testing.T) {
	path := writeConfig(t, `
domain: example.com
auth_token: tok
period: "2024"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	// Flag overrides re-run Normalize on an already resolved config.
	if err := c.Normalize(); err != nil {
		t.Fatalf("second Normalize: %v", err)
	}
}

func TestLoadPeriodConflictsWithDates(t *testing.T) {
	path := writeConfig(t, `
domain: example.com
auth_token: tok
period: 7d
start_date: "2025-01-01"
end_date: "2025-01-31"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for period + explicit dates")
	}
}

func TestLoadRejectsBadDates(t *testing.T) {
	for _, body := range []string{
		"start_date: \"01/01/2025\"\nend_date: \"2025-01-31\"",
		"start_date: \"2025-02-01\"\nend_date: \"2025-01-31\"",
	} {
		path := writeConfig(t, "domain: example.com\nauth_token: tok\n"+body+"\n")
		if _, err := Load(path); err == nil {
			t.Errorf("expected error for %q", body)
		}
	}
}

func TestVersionFilterRequiresProjectFilter(t *testing.T) {
	path := writeConfig(t, `
domain: example.com
auth_token: tok
start_date: "2025-01-01"
end_date: "2025-01-31"
version_filter: "1.2.3"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for version_filter without project_filter")
	}
}
