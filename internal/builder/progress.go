package builder

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"
)

// Build phases reported through Progress.Phase.
const (
	PhaseDownload = "download"
	PhaseRead     = "read"
	PhaseShard    = "shard"
	PhaseVerify   = "verify"
	PhaseUpload   = "upload"
	PhaseDone     = "done"
	PhaseError    = "error"
)

// Progress is a snapshot of a running build, verify or upload. Which
// fields are set depends on the phase.
type Progress struct {
	Phase           string
	Table           string
	BytesDownloaded int64
	BytesTotal      int64
	BytesRead       int64
	RecordsRead     int64
	RecordsWritten  int64
	ShardsCreated   int
	ShardsTotal     int
	StartTime       time.Time
	Error           error
}

// ProgressFunc receives progress snapshots. Shard writers call it
// concurrently, serialized by the builder.
type ProgressFunc func(Progress)

// Elapsed is the time since the phase started, or 0 when StartTime is unset.
func (p Progress) Elapsed() time.Duration {
	if p.StartTime.IsZero() {
		return 0
	}
	return time.Since(p.StartTime)
}

// RecordRate is records read per second so far.
func (p Progress) RecordRate() float64 {
	secs := p.Elapsed().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(p.RecordsRead) / secs
}

// Percent is done/total as a percentage, 0 while the total is unknown.
func Percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

// counting forwards reads or writes and adds their byte counts to n.
type counting struct {
	r io.Reader
	w io.Writer
	n *atomic.Int64
}

func countReads(r io.Reader, n *atomic.Int64) io.Reader  { return &counting{r: r, n: n} }
func countWrites(w io.Writer, n *atomic.Int64) io.Writer { return &counting{w: w, n: n} }

func (c *counting) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func (c *counting) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}

// FormatBytes renders a size with binary units, e.g. "1.5 MiB".
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

// FormatDuration renders a duration at a precision that suits a status
// line: seconds below a minute, then minutes, then hours.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// NewProgressPrinter returns a ProgressFunc that keeps one status line
// up to date on w, typically stderr.
func NewProgressPrinter(w io.Writer) ProgressFunc {
	width := 0
	status := func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		pad := ""
		if len(line) < width {
			pad = strings.Repeat(" ", width-len(line))
		}
		width = len(line)
		fmt.Fprint(w, "\r"+line+pad)
	}

	return func(p Progress) {
		switch p.Phase {
		case PhaseDownload:
			status("[download] %s / %s (%.1f%%)",
				FormatBytes(p.BytesDownloaded), FormatBytes(p.BytesTotal), Percent(p.BytesDownloaded, p.BytesTotal))
		case PhaseRead:
			status("[read %s] %s, %d records (%.0f/s)",
				p.Table, FormatBytes(p.BytesRead), p.RecordsRead, p.RecordRate())
		case PhaseShard:
			status("[shard %s] %d / %d shards written, %d records",
				p.Table, p.ShardsCreated, p.ShardsTotal, p.RecordsWritten)
		case PhaseVerify:
			status("[verify %s] %d shards, %d records", p.Table, p.ShardsCreated, p.RecordsRead)
		case PhaseUpload:
			status("[upload] %s", FormatBytes(p.BytesRead))
		case PhaseDone:
			fmt.Fprintf(w, "\n[done %s] %d records in %d shards (%s)\n",
				p.Table, p.RecordsWritten, p.ShardsCreated, FormatDuration(p.Elapsed()))
			width = 0
		case PhaseError:
			fmt.Fprintf(w, "\n[error] %v\n", p.Error)
			width = 0
		}
	}
}
