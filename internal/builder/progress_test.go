package builder

import (
	"bytes"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KiB"},
		{48 << 20, "48.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{95 * time.Second, "1m 35s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(25, 200); got != 12.5 {
		t.Errorf("Percent(25, 200) = %v, want 12.5", got)
	}
	if got := Percent(25, 0); got != 0 {
		t.Errorf("Percent(25, 0) = %v, want 0", got)
	}
}

func TestProgress_RecordRate(t *testing.T) {
	if r := (Progress{RecordsRead: 100}).RecordRate(); r != 0 {
		t.Errorf("RecordRate() without start = %v, want 0", r)
	}
	p := Progress{RecordsRead: 100, StartTime: time.Now().Add(-10 * time.Second)}
	if r := p.RecordRate(); r < 5 || r > 10 {
		t.Errorf("RecordRate() = %v, want about 10", r)
	}
}

func TestCounting(t *testing.T) {
	var buf bytes.Buffer
	var written atomic.Int64
	if _, err := io.WriteString(countWrites(&buf, &written), "1. e4 e5"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if written.Load() != 8 || buf.String() != "1. e4 e5" {
		t.Errorf("written = %d, buf = %q", written.Load(), buf.String())
	}

	var read atomic.Int64
	data, err := io.ReadAll(countReads(strings.NewReader("2. Nf3 Nc6"), &read))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if read.Load() != int64(len(data)) || read.Load() != 10 {
		t.Errorf("read = %d, want 10", read.Load())
	}
}

func TestNewProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	printer := NewProgressPrinter(&buf)

	printer(Progress{Phase: PhaseShard, Table: "repertoire", ShardsCreated: 12, ShardsTotal: 64, RecordsWritten: 4000})
	printer(Progress{Phase: PhaseShard, Table: "repertoire", ShardsCreated: 2, ShardsTotal: 8, RecordsWritten: 40})
	printer(Progress{Phase: PhaseDone, Table: "repertoire", ShardsCreated: 2, RecordsWritten: 40, StartTime: time.Now()})

	out := buf.String()
	for _, want := range []string{
		"[shard repertoire] 12 / 64 shards written, 4000 records",
		"[done repertoire] 40 records in 2 shards",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}

	// The shorter second status line is padded over the first.
	lines := strings.Split(out, "\r")
	if len(lines) < 3 || len(strings.SplitN(lines[2], "\n", 2)[0]) != len(lines[1]) {
		t.Errorf("status lines %q not padded to the same width", lines)
	}
}
