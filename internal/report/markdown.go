package report

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// MarkdownReport writes a Summary as Markdown.
type MarkdownReport struct {
	w io.Writer
}

// NewMarkdownReport creates a new Markdown report writer.
func NewMarkdownReport(w io.Writer) *MarkdownReport {
	return &MarkdownReport{w: w}
}

// Write writes every section of the report.
func (r *MarkdownReport) Write(title string, s Summary) {
	r.WriteHeader(title, s.GeneratedAt)
	r.WriteDecisions(s)
	r.WriteUsage("Sources", s.BySource, s.Decisions)
	r.WriteUsage("Position types", s.ByPositionType, s.Decisions)
	r.WriteDistributions(s)
	r.WriteLearning(s)
}

// WriteHeader writes the report header.
func (r *MarkdownReport) WriteHeader(title string, at time.Time) {
	fmt.Fprintf(r.w, "# %s\n\n", title)
	if !at.IsZero() {
		fmt.Fprintf(r.w, "Generated: %s\n\n", at.Format(time.RFC3339))
	}
}

// WriteDecisions writes the decision totals.
func (r *MarkdownReport) WriteDecisions(s Summary) {
	fmt.Fprintln(r.w, "## Decisions")
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "- **Total:** %d\n", s.Decisions)
	fmt.Fprintf(r.w, "- **Explored:** %d\n", s.Explored)
	fmt.Fprintf(r.w, "- **Filtered by ledger:** %d\n", s.Filtered)
	fmt.Fprintf(r.w, "- **Analysis cache hits:** %d\n", s.CacheHits)
	fmt.Fprintln(r.w)
}

// WriteUsage writes a count table sorted by descending count.
func (r *MarkdownReport) WriteUsage(title string, counts map[string]int, total int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(r.w, "## %s\n\n", title)
	fmt.Fprintln(r.w, "| Name | Count | Share |")
	fmt.Fprintln(r.w, "|------|-------|-------|")
	for _, name := range sortedKeys(counts) {
		share := 0.0
		if total > 0 {
			share = 100 * float64(counts[name]) / float64(total)
		}
		fmt.Fprintf(r.w, "| %s | %d | %.1f%% |\n", name, counts[name], share)
	}
	fmt.Fprintln(r.w)
}

// WriteDistributions writes confidence, allocation and latency statistics.
func (r *MarkdownReport) WriteDistributions(s Summary) {
	if s.Decisions == 0 {
		return
	}
	fmt.Fprintln(r.w, "## Distributions")
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, "| Metric | Mean | StdDev | Min | P50 | P90 | Max |")
	fmt.Fprintln(r.w, "|--------|------|--------|-----|-----|-----|-----|")
	row := func(name string, d Distribution) {
		fmt.Fprintf(r.w, "| %s | %.3f | %.3f | %.3f | %.3f | %.3f | %.3f |\n",
			name, d.Mean, d.StdDev, d.Min, d.P50, d.P90, d.Max)
	}
	row("Confidence", s.Confidence)
	row("Time allocation (s)", s.TimeAllocation)
	row("Decision latency (ms)", s.Elapsed)
	fmt.Fprintln(r.w)
}

// WriteLearning writes game results and mistake counts.
func (r *MarkdownReport) WriteLearning(s Summary) {
	fmt.Fprintln(r.w, "## Learning")
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "- **Games:** %d (%d wins, %d draws, %d losses)\n",
		s.Games.Total, s.Games.Wins, s.Games.Draws, s.Games.Losses)
	if s.Games.Total > 0 {
		fmt.Fprintf(r.w, "- **Average length:** %.1f plies\n", s.Games.AvgPlies)
	}
	fmt.Fprintf(r.w, "- **Mistakes recorded:** %d across %d positions\n", s.Mistakes, s.MistakePositions)
	fmt.Fprintf(r.w, "- **Cached analyses:** %d\n", s.CachedPositions)
	fmt.Fprintln(r.w)

	if len(s.BySeverity) > 0 {
		r.WriteUsage("Mistakes by severity", s.BySeverity, s.Mistakes)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
