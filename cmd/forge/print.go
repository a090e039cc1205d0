package main

import (
	"fmt"
	"io"
	"time"

	"personaforge/internal/build"
	"personaforge/internal/config"
	"personaforge/internal/persona"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// printReport renders the aggregated build report. Results arrive
// already sorted by persona name.
func printReport(w io.Writer, report *build.Report, showValidation bool) {
	for i := range report.Results {
		res := &report.Results[i]
		switch {
		case !res.OK():
			fmt.Fprintf(w, "%s %s: [%s] %v\n",
				failStyle.Render("✗"), res.Persona, res.ErrKind, res.Err)
		case res.Cached:
			fmt.Fprintf(w, "%s %s %s\n",
				successStyle.Render("✓"), res.Persona, dimStyle.Render("(cached)"))
		default:
			fmt.Fprintf(w, "%s %s %s\n",
				successStyle.Render("✓"), res.Persona, dimStyle.Render(res.Duration.Round(time.Millisecond).String()))
		}

		if showValidation {
			for _, issue := range res.Validation.Warnings {
				fmt.Fprintf(w, "    %s %s\n", warnStyle.Render("warning:"), issue)
			}
			for _, issue := range res.Validation.Suggestions {
				fmt.Fprintf(w, "    %s %s\n", dimStyle.Render("suggestion:"), issue)
			}
		}
	}

	for _, b := range report.Boundary {
		fmt.Fprintf(w, "%s %s\n", warnStyle.Render("boundary:"), b)
	}
	for _, cw := range report.CacheWarnings {
		fmt.Fprintf(w, "%s %s\n", warnStyle.Render("cache:"), cw)
	}

	summary := fmt.Sprintf("%d succeeded, %d failed", report.Succeeded(), report.Failed())
	if len(report.CacheTiers) > 0 {
		hits := uint64(0)
		for _, h := range report.CacheStats.Hits {
			hits += h
		}
		summary += fmt.Sprintf(" | cache: %d hits, %d misses", hits, report.CacheStats.Misses)
	}
	fmt.Fprintln(w, headerStyle.Render(summary))
}

// printAgentList prints every persona with its role and description.
func printAgentList(w io.Writer, cfg *config.Config) error {
	loader := persona.NewLoader()
	docs, err := loader.LoadPersonaDir(cfg.Sources.PersonaDir)
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no personas found"))
		return nil
	}

	for _, doc := range docs {
		line := headerStyle.Render(doc.Name)
		if role, ok := doc.Fields.Get("role"); ok && role.Kind() == persona.KindString {
			line += dimStyle.Render(" (" + role.AsString() + ")")
		}
		fmt.Fprintln(w, line)
		if desc, ok := doc.Fields.Get("description"); ok && desc.Kind() == persona.KindString {
			fmt.Fprintf(w, "    %s\n", desc.AsString())
		}
	}
	return nil
}
