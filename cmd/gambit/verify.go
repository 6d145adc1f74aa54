package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discochess/gambit/internal/builder"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of the built tables",
	Long: `Verify every table listed in the data directory's manifest.

This command checks:
- Each shard can be decompressed
- Each shard holds valid JSON lines sorted by key
- Each key is routed to the shard holding it
- Record and shard counts match the manifest`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	var progress builder.ProgressFunc
	if verbose {
		progress = builder.NewProgressPrinter(cmd.ErrOrStderr())
	}

	reports, err := builder.Verify(cmd.Context(), cfg.Data.Dir, progress)
	if err != nil {
		return err
	}
	for _, r := range reports {
		fmt.Fprintf(out, "%-12s %6d shards %12d records  OK\n", r.Table, r.Shards, r.Records)
	}
	fmt.Fprintln(out, "All tables verified successfully.")
	return nil
}
