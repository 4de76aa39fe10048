// Package cli provides output helpers for the suggest command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hyperjump/suggest/internal/models"
	"github.com/hyperjump/suggest/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one suggestion per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteSuggestions writes a suggest response to w in the given format.
func WriteSuggestions(w io.Writer, response *models.SuggestResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, s := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\n", s.ID, s.Similarity, s.Title)
		}
		return nil
	default:
		writeSuggestionsText(w, response)
		return nil
	}
}

func writeSuggestionsText(w io.Writer, response *models.SuggestResponse) {
	fmt.Fprintf(w, "\nFound %d suggestions for %q in %dms\n", len(response.Results), response.Query, response.QueryTime)
	if response.Partial {
		fmt.Fprintln(w, "(index is still loading; results may be incomplete)")
	}
	fmt.Fprintln(w)
	for i, s := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Similarity: %.4f | ID: %d\n", i+1, s.Similarity, s.ID)
		fmt.Fprintf(w, "Title: %s\n", s.Title)
		if s.Description != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(s.Description, 200))
		}
		fmt.Fprintln(w)
	}
}

// WriteScenario writes a single scenario to w.
func WriteScenario(w io.Writer, sc *models.Scenario, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, sc)
	}
	fmt.Fprintf(w, "id:          %d\n", sc.ID)
	fmt.Fprintf(w, "title:       %s\n", sc.Title)
	if sc.Description != "" {
		fmt.Fprintf(w, "description: %s\n", sc.Description)
	}
	if !sc.CreatedAt.IsZero() {
		fmt.Fprintf(w, "created_at:  %s\n", sc.CreatedAt.Format(time.RFC3339))
	}
	if !sc.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "updated_at:  %s\n", sc.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

// WriteStatus writes the server status document to w. Text output lists keys in sorted order.
func WriteStatus(w io.Writer, status map[string]interface{}, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := status[k]
		if nested, ok := v.(map[string]interface{}); ok {
			b, _ := json.Marshal(nested)
			v = string(b)
		}
		fmt.Fprintf(w, "%-20s %v\n", k+":", v)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
