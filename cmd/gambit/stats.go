package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/discochess/gambit/internal/builder"
	"github.com/discochess/gambit/internal/ledger"
	"github.com/discochess/gambit/internal/report"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics about the tables and the journal",
	Long: `Display statistics about the built tables and the decisions, games
and mistakes recorded in the journal:
- Records, shards and size on disk per table
- Decisions per source and position type
- Confidence, time allocation and latency distributions
- Game results and mistakes per severity`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if err := writeTables(out, cfg.Data.Dir); err != nil {
		return err
	}
	if cfg.Journal.Dir == "" {
		fmt.Fprintln(out, "No journal configured; set --journal to include decisions and mistakes.")
		return nil
	}

	j, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer j.Close()

	decisions, err := j.Decisions(ctx)
	if err != nil {
		return err
	}
	results, err := j.Results(ctx)
	if err != nil {
		return err
	}
	counts, err := j.Counts(ctx)
	if err != nil {
		return err
	}
	l, err := ledger.Open(ctx, j, ledger.WithLogger(log.Named("ledger")))
	if err != nil {
		return err
	}

	s := report.Build(decisions, results)
	s.GeneratedAt = time.Now()
	s.AddLedger(l.Summary())
	s.CachedPositions = counts.Analyses

	report.NewMarkdownReport(out).Write("Gambit statistics", s)
	return nil
}

// writeTables lists the tables of a data directory.
func writeTables(w io.Writer, dir string) error {
	m, err := builder.ReadManifest(dir)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(w, "No tables in %s; run 'gambit build' first.\n\n", dir)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Data directory: %s\n\n", dir)
	fmt.Fprintln(w, "| Table | Records | Shards | Strategy | Compression | Size | Built |")
	fmt.Fprintln(w, "|-------|---------|--------|----------|-------------|------|-------|")
	for _, name := range m.TableNames() {
		info := m.Tables[name]
		size, err := dirSize(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "| %s | %d | %d/%d | %s | %s | %s | %s |\n",
			name, info.RecordCount, info.ShardCount, info.TotalShards, info.Strategy,
			info.Compression, builder.FormatBytes(size), info.BuiltAt.Format(time.DateOnly))
	}
	fmt.Fprintln(w)
	return nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return total, err
}
