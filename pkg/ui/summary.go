package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/secreport/secreport/pkg/report"
)

var (
	uiMu        sync.RWMutex
	noColorMode bool
)

// SetNoColor disables colored output for pipes and CI logs.
func SetNoColor(noColor bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	noColorMode = noColor
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsNoColor reports whether color is disabled.
func IsNoColor() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return noColorMode
}

// Banner prints the tool name and the report window being run.
func Banner(w io.Writer, version, start, end string) {
	fmt.Fprintln(w, TitleStyle.Render("secreport "+version))
	fmt.Fprintln(w, MutedStyle.Render("reporting window "+start+" to "+end))
	fmt.Fprintln(w)
}

// PrintSummary renders the run outcome: which recipes produced
// reports, which failed, the files written, and cache efficiency.
func PrintSummary(w io.Writer, s *report.Summary) {
	fmt.Fprintln(w, SectionStyle.Render("Run summary"))

	for _, name := range s.Succeeded {
		fmt.Fprintf(w, "  %s %s\n", OKStyle.Render("ok"), ValueStyle.Render(name))
	}
	for _, name := range s.Failed {
		fmt.Fprintf(w, "  %s %s\n", FailStyle.Render("fail"), ValueStyle.Render(name))
	}

	if len(s.Files) > 0 {
		fmt.Fprintln(w, SectionStyle.Render("Reports written"))
		for _, f := range s.Files {
			fmt.Fprintf(w, "  %s\n", FileStyle.Render(f))
		}
	}

	fmt.Fprintln(w, SectionStyle.Render("Cache"))
	printStat(w, "entries", fmt.Sprintf("%d (%d records)", s.Cache.Entries, s.Cache.Records))
	printStat(w, "hits", fmt.Sprintf("%d exact, %d subset, %d misses",
		s.Cache.Hits, s.Cache.SubsetHits, s.Cache.Misses))
	printStat(w, "hit rate", hitRate(s))
}

func printStat(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", LabelStyle.Render(label), ValueStyle.Render(value))
}

func hitRate(s *report.Summary) string {
	total := s.Cache.Hits + s.Cache.SubsetHits + s.Cache.Misses
	if total == 0 {
		return "n/a"
	}
	rate := float64(s.Cache.Hits+s.Cache.SubsetHits) / float64(total) * 100
	return strings.TrimSuffix(fmt.Sprintf("%.1f", rate), ".0") + "%"
}
