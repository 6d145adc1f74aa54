package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/discochess/gambit"
	"github.com/discochess/gambit/internal/fen"
	"github.com/discochess/gambit/internal/journal"
	"github.com/discochess/gambit/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "List the mistakes recorded in the journal",
	Long: `List the moves the engine judged inferior after they were played.

Examples:
  # Every recorded mistake
  gambit ledger --journal ./journal

  # Blunders only
  gambit ledger --severity blunder

  # Mistakes recorded for one position
  gambit ledger --fen "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3"`,
	Args: cobra.NoArgs,
	RunE: runLedger,
}

var (
	ledgerFEN      string
	ledgerHash     string
	ledgerSeverity string
)

func init() {
	ledgerCmd.Flags().StringVar(&ledgerFEN, "fen", "", "only show mistakes for this position")
	ledgerCmd.Flags().StringVar(&ledgerHash, "hash", "", "only show mistakes for this position hash")
	ledgerCmd.Flags().StringVar(&ledgerSeverity, "severity", "minor", "minimum severity: minor, inaccuracy, mistake, blunder")
	rootCmd.AddCommand(ledgerCmd)
}

func runLedger(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	minSeverity, err := ledger.ParseSeverity(ledgerSeverity)
	if err != nil {
		return err
	}
	hash := ledgerHash
	if ledgerFEN != "" {
		if hash, err = fen.Hash(ledgerFEN); err != nil {
			return fmt.Errorf("%w: %v", gambit.ErrInvalidPosition, err)
		}
	}

	j, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer j.Close()

	var mistakes []journal.Mistake
	if hash != "" {
		mistakes, err = j.MistakesByHash(ctx, hash)
	} else {
		mistakes, err = j.Mistakes(ctx)
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POSITION\tPLAYED\tEVAL\tBEST\tEVAL\tSEVERITY\tRECORDED")
	shown := 0
	for _, m := range mistakes {
		sev, err := ledger.ParseSeverity(m.Severity)
		if err != nil || sev < minSeverity {
			continue
		}
		shown++
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.PositionHash, m.MovePlayed, gambit.FormatEval(m.MoveEval),
			m.BestMove, gambit.FormatEval(m.BestEval), sev, m.Timestamp.Format("2006-01-02 15:04"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d mistakes shown\n", shown, len(mistakes))
	return nil
}
