package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/notnil/chess"
	"github.com/spf13/cobra"

	"github.com/discochess/gambit"
	"github.com/discochess/gambit/internal/builder"
	"github.com/discochess/gambit/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [PGN file]",
	Short: "Replay games and compare the agent's moves with the moves played",
	Long: `Replay the games of a PGN file through the orchestrator. For every
position of the chosen color the agent decides a move, which is compared
with the move actually played. Compressed files (.zst, .gz) are read
directly.

Examples:
  # Replay the first 10 games for both colors
  gambit analyze games.pgn

  # Play as white, record the game results and print a report
  gambit analyze games.pgn.zst --color white --record --report`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	maxGames      int
	analyzeColor  string
	recordResults bool
	printReport   bool
)

func init() {
	analyzeCmd.Flags().IntVar(&maxGames, "games", 10, "max games to replay (0 for all)")
	analyzeCmd.Flags().StringVar(&analyzeColor, "color", "both", "side the agent plays: white, black, both")
	analyzeCmd.Flags().BoolVar(&recordResults, "record", false, "record game results (requires --color white or black)")
	analyzeCmd.Flags().BoolVar(&printReport, "report", false, "print a markdown report when done")
	rootCmd.AddCommand(analyzeCmd)
}

// gameTally counts decisions that matched the move played.
type gameTally struct {
	decisions int
	agreed    int
	mistakes  int
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	var side chess.Color
	switch analyzeColor {
	case "white":
		side = chess.White
	case "black":
		side = chess.Black
	case "both":
		side = chess.NoColor
	default:
		return fmt.Errorf("invalid --color %q (must be white, black or both)", analyzeColor)
	}
	if recordResults && side == chess.NoColor {
		return errors.New("--record requires --color white or black")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening PGN: %w", err)
	}
	defer f.Close()
	r, err := builder.CodecForPath(args[0]).Reader(f)
	if err != nil {
		return fmt.Errorf("opening PGN: %w", err)
	}
	defer r.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	return withOrchestrator(ctx, func(o *gambit.Orchestrator) error {
		var total gameTally
		games := 0
		scanner := chess.NewScanner(r)
		for scanner.Scan() && (maxGames <= 0 || games < maxGames) {
			game := scanner.Next()
			games++

			fmt.Fprintf(out, "\n=== Game %d: %s vs %s (%s) ===\n", games,
				tagValue(game, "White"), tagValue(game, "Black"), tagValue(game, "Result"))

			t, err := replay(ctx, o, game, side)
			if err != nil {
				return err
			}
			total.decisions += t.decisions
			total.agreed += t.agreed
			total.mistakes += t.mistakes
			fmt.Fprintf(out, "  Decisions: %d, agreed %d (%.1f%%), mistakes %d\n",
				t.decisions, t.agreed, percent(t.agreed, t.decisions), t.mistakes)

			if recordResults {
				if err := o.RecordResult(ctx, gambit.GameResult{
					Color:    analyzeColor,
					Result:   tagValue(game, "Result"),
					Plies:    len(game.Moves()),
					Mistakes: t.mistakes,
				}); err != nil {
					return err
				}
			}
		}
		if err := builder.PGNError(scanner); err != nil {
			return err
		}

		fmt.Fprintf(out, "\n=== Summary ===\n")
		fmt.Fprintf(out, "Games replayed: %d\n", games)
		fmt.Fprintf(out, "Decisions:      %d\n", total.decisions)
		fmt.Fprintf(out, "Agreed:         %d (%.1f%%)\n", total.agreed, percent(total.agreed, total.decisions))
		fmt.Fprintf(out, "Mistakes:       %d\n", total.mistakes)

		if printReport {
			fmt.Fprintln(out)
			report.NewMarkdownReport(out).Write("Gambit analysis", o.Stats())
		}
		return nil
	})
}

// replay decides every position of game where side is to move, or every
// position when side is NoColor.
func replay(ctx context.Context, o *gambit.Orchestrator, game *chess.Game, side chess.Color) (gameTally, error) {
	var t gameTally
	positions := game.Positions()
	for i, mv := range game.Moves() {
		pos := positions[i]
		if side != chess.NoColor && pos.Turn() != side {
			continue
		}

		d, err := o.Decide(ctx, pos.String())
		if errors.Is(err, gambit.ErrNoMove) {
			continue
		}
		if err != nil {
			return t, fmt.Errorf("move %d: %w", i/2+1, err)
		}
		t.decisions++
		if d.Move == mv.String() {
			t.agreed++
		}
		if d.Mistake != nil {
			t.mistakes++
		}
	}
	return t, nil
}

func tagValue(game *chess.Game, key string) string {
	if tp := game.GetTagPair(key); tp != nil {
		return tp.Value
	}
	return "?"
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

