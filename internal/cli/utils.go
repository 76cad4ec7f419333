// Package cli provides output formatting and the HTTP client used by the vincentbot CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/vincentbot/internal/indexer"
	"github.com/hyperjump/vincentbot/internal/keyword"
	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/internal/storage"
	"github.com/hyperjump/vincentbot/internal/vector"
	"github.com/hyperjump/vincentbot/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat returns the format named s; anything unknown is text.
func ParseOutputFormat(s string) OutputFormat {
	if strings.EqualFold(s, string(OutputJSON)) {
		return OutputJSON
	}
	return OutputText
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes a generated answer and its sources.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, answer)
	}
	fmt.Fprintf(w, "\n%s\n", answer.Text)
	if len(answer.Sources) > 0 {
		names := make([]string, len(answer.Sources))
		for i, s := range answer.Sources {
			names[i] = filepath.Base(s)
		}
		fmt.Fprintf(w, "\nSources: %s\n", strings.Join(names, ", "))
	}
	if answer.DroppedChunks > 0 {
		fmt.Fprintf(w, "(%d context chunks dropped to fit the model input)\n", answer.DroppedChunks)
	}
	return nil
}

// WritePassages writes keyword lookup hits.
func WritePassages(w io.Writer, query string, passages []keyword.Passage, format OutputFormat) error {
	if format == OutputJSON {
		if passages == nil {
			passages = []keyword.Passage{}
		}
		return writeJSON(w, map[string]interface{}{"query": query, "passages": passages})
	}
	fmt.Fprintf(w, "\nFound %d passages for %q\n\n", len(passages), query)
	for i, p := range passages {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | %s #%d\n", i+1, p.Score, filepath.Base(p.Source), p.Index)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(p.Text, 200))
	}
	return nil
}

// WriteReport writes the result of an ingestion.
func WriteReport(w io.Writer, report *indexer.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Indexed %d documents into %d chunks (%d dimensions, model %s) in %s\n",
		report.Documents, report.Chunks, report.Dimensions, report.ModelID, report.Took.Round(time.Millisecond))
	fmt.Fprintf(w, "Build: %s\n", report.BuildID)
	for _, warn := range report.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	return nil
}

// Status is the summary printed by the status command.
type Status struct {
	Embedder       string     `json:"embedder"`
	IndexLoaded    bool       `json:"index_loaded"`
	IndexModel     string     `json:"index_model,omitempty"`
	IndexBuildID   string     `json:"index_build_id,omitempty"`
	IndexEntries   int        `json:"index_entries"`
	Dimensions     int        `json:"dimensions,omitempty"`
	BuiltAt        *time.Time `json:"built_at,omitempty"`
	IndexError     string     `json:"index_error,omitempty"`
	Documents      int64      `json:"documents"`
	Chunks         int64      `json:"chunks"`
	Passages       uint64     `json:"passages"`
	LatestBuild    string     `json:"latest_build,omitempty"`
	DiskUsageBytes int64      `json:"disk_usage_bytes"`
}

// SetIndex records the loaded index manifest.
func (s *Status) SetIndex(m vector.Manifest) {
	built := m.BuiltAt
	s.IndexLoaded = true
	s.IndexModel = m.ModelID
	s.IndexBuildID = m.BuildID
	s.IndexEntries = m.Count
	s.Dimensions = m.Dimensions
	s.BuiltAt = &built
}

// SetLatestBuild summarises b as one line; nil leaves it empty.
func (s *Status) SetLatestBuild(b *storage.Build) {
	if b == nil {
		return
	}
	line := fmt.Sprintf("%s %s, %d documents, %d chunks", b.ID, b.Status, b.Documents, b.Chunks)
	if !b.StartedAt.IsZero() {
		line += ", started " + b.StartedAt.Local().Format(time.RFC3339)
	}
	if b.Error != "" {
		line += ": " + b.Error
	}
	s.LatestBuild = line
}

// WriteStatus writes s.
func WriteStatus(w io.Writer, s *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Embedder:    %s\n", s.Embedder)
	if s.IndexLoaded {
		fmt.Fprintf(w, "Index:       %d entries, %d dimensions, model %s\n", s.IndexEntries, s.Dimensions, s.IndexModel)
		if s.BuiltAt != nil {
			fmt.Fprintf(w, "Built:       %s (build %s)\n", s.BuiltAt.Local().Format(time.RFC3339), s.IndexBuildID)
		}
	} else {
		fmt.Fprintln(w, "Index:       not loaded")
	}
	if s.IndexError != "" {
		fmt.Fprintf(w, "Problem:     %s\n", s.IndexError)
	}
	fmt.Fprintf(w, "Catalog:     %d documents, %d chunks\n", s.Documents, s.Chunks)
	fmt.Fprintf(w, "Passages:    %d\n", s.Passages)
	if s.LatestBuild != "" {
		fmt.Fprintf(w, "Last build:  %s\n", s.LatestBuild)
	}
	fmt.Fprintf(w, "Disk usage:  %s\n", FormatBytes(s.DiskUsageBytes))
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
