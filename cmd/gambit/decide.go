package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/discochess/gambit"
)

var decideCmd = &cobra.Command{
	Use:   "decide [FEN]...",
	Short: "Choose a move for one or more positions",
	Long: `Choose a move for each position given in FEN notation.

Positions are decided in order by one orchestrator, so the mistake ledger
and the analysis cache carry over from one position to the next.

Examples:
  # Starting position
  gambit decide "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

  # King and queen against king, as JSON
  gambit decide --json "7k/8/8/8/8/8/8/K5Q1 w - - 0 1"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecide,
}

var decideJSON bool

func init() {
	decideCmd.Flags().BoolVar(&decideJSON, "json", false, "output decisions as JSON lines")
	rootCmd.AddCommand(decideCmd)
}

func runDecide(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	return withOrchestrator(ctx, func(o *gambit.Orchestrator) error {
		for _, fen := range args {
			d, err := o.Decide(ctx, fen)
			if err != nil {
				return fmt.Errorf("deciding %q: %w", fen, err)
			}
			if decideJSON {
				if err := printDecisionJSON(out, d); err != nil {
					return err
				}
				continue
			}
			printDecisionText(out, d)
		}
		return nil
	})
}

func printDecisionText(w io.Writer, d *gambit.Decision) {
	fmt.Fprintf(w, "FEN:        %s\n", d.FEN)
	fmt.Fprintf(w, "Move:       %s\n", d.Move)
	fmt.Fprintf(w, "Source:     %s\n", d.Source)
	fmt.Fprintf(w, "Type:       %s (confidence %.2f)\n", d.PositionType, d.Confidence)
	fmt.Fprintf(w, "Budget:     %s, depth %d\n", d.Budget.Time, d.Budget.Depth)
	fmt.Fprintf(w, "Score:      %s\n", d.Score())
	if d.CacheHit {
		fmt.Fprintln(w, "Analysis:   cached")
	}
	if d.Filtered {
		fmt.Fprintln(w, "Ledger:     known mistakes filtered")
	}
	if d.Mistake != nil {
		fmt.Fprintf(w, "Mistake:    %s (best %s)\n", d.Mistake.Severity, d.Mistake.BestMove)
	}
	fmt.Fprintf(w, "Time:       %s\n\n", d.Elapsed)
}

type decisionJSON struct {
	FEN          string   `json:"fen"`
	Hash         string   `json:"position_hash"`
	Move         string   `json:"move"`
	Source       string   `json:"source"`
	PositionType string   `json:"position_type"`
	Confidence   float64  `json:"confidence"`
	BudgetMS     int64    `json:"budget_ms"`
	BudgetDepth  int      `json:"budget_depth"`
	Eval         *float64 `json:"eval,omitempty"`
	CacheHit     bool     `json:"cache_hit,omitempty"`
	Filtered     bool     `json:"filtered,omitempty"`
	Explored     bool     `json:"explored,omitempty"`
	ElapsedMS    int64    `json:"elapsed_ms"`
}

func printDecisionJSON(w io.Writer, d *gambit.Decision) error {
	return json.NewEncoder(w).Encode(decisionJSON{
		FEN:          d.FEN,
		Hash:         d.PositionHash,
		Move:         d.Move,
		Source:       d.Source.String(),
		PositionType: d.PositionType.String(),
		Confidence:   d.Confidence,
		BudgetMS:     d.Budget.Time.Milliseconds(),
		BudgetDepth:  d.Budget.Depth,
		Eval:         d.Eval,
		CacheHit:     d.CacheHit,
		Filtered:     d.Filtered,
		Explored:     d.Explored,
		ElapsedMS:    d.Elapsed.Milliseconds(),
	})
}
