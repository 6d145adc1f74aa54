package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/discochess/gambit/internal/builder"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the repertoire or tablebase tables",
	Long: `Build a lookup table into the data directory.

Each build will:
1. Download the source (or read a local file, .zst and .gz included)
2. Turn it into one JSON record per position
3. Distribute the records to shards with the table's strategy
4. Sort each shard by key and compress it
5. Record the table in the directory's manifest.json

Examples:
  # Opening repertoire from the default Lichess game database
  gambit build repertoire --output ./data

  # Repertoire from a local PGN of strong games only
  gambit build repertoire --source ./games.pgn.zst --min-elo 2200

  # Tablebase from a JSONL export, then upload everything to GCS
  gambit build tablebase --source ./tb.jsonl.zst --upload gs://my-bucket/gambit`,
}

var repertoireCmd = &cobra.Command{
	Use:   "repertoire",
	Short: "Build the opening repertoire from PGN games",
	RunE:  runBuildRepertoire,
}

var tablebaseCmd = &cobra.Command{
	Use:   "tablebase",
	Short: "Build the endgame tablebase from JSONL probe results",
	Long: `Build the endgame tablebase from JSON lines of the form

  {"fen":"...","wdl":2,"dtz":5,"moves":[{"uci":"g1a7","wdl":2,"dtz":4}]}

Positions with more pieces than --max-pieces are skipped.`,
	RunE: runBuildTablebase,
}

var (
	sourceURL    string
	outputDir    string
	uploadGCS    string
	tempDir      string
	totalShards  int
	strategyName string
	codecName    string
	workers      int
	maxMemoryMB  int

	minElo    int
	maxElo    int
	bookPlies int
	minGames  int
	maxPieces int
)

func init() {
	f := buildCmd.PersistentFlags()
	f.StringVar(&sourceURL, "source", "", "source URL or local file path")
	f.StringVarP(&outputDir, "output", "o", "", "output directory (default data.dir)")
	f.StringVar(&uploadGCS, "upload", "", "upload the data directory to GCS when done (gs://bucket/prefix)")
	f.StringVar(&tempDir, "temp-dir", "", "directory for downloads and spilled shards")
	f.IntVar(&totalShards, "shards", builder.DefaultTotalShards, "number of shards to create")
	f.StringVar(&strategyName, "strategy", "", "sharding strategy: material, xxhash (default per table)")
	f.StringVar(&codecName, "codec", builder.CodecZstd, "shard compression: zstd, gzip, none")
	f.IntVar(&workers, "workers", runtime.NumCPU(), "number of parallel workers for compression")
	f.IntVar(&maxMemoryMB, "max-memory", 2048, "max memory in MB before spilling to disk")

	repertoireCmd.Flags().IntVar(&minElo, "min-elo", 0, "minimum rating of both players (0 for none)")
	repertoireCmd.Flags().IntVar(&maxElo, "max-elo", 0, "maximum rating of both players (0 for none)")
	repertoireCmd.Flags().IntVar(&bookPlies, "book-plies", builder.DefaultBookPlies, "plies of each game entering the repertoire")
	repertoireCmd.Flags().IntVar(&minGames, "min-games", 1, "drop moves seen in fewer games")

	tablebaseCmd.Flags().IntVar(&maxPieces, "max-pieces", 0, "skip positions with more pieces (default 7)")

	buildCmd.AddCommand(repertoireCmd, tablebaseCmd)
	rootCmd.AddCommand(buildCmd)
}

func runBuildRepertoire(cmd *cobra.Command, args []string) error {
	src := builder.NewRepertoireSource(
		builder.WithEloRange(minElo, maxElo),
		builder.WithBookPlies(bookPlies),
		builder.WithMinGames(minGames),
		builder.WithSourceLogger(log.Named("repertoire")),
	)
	if sourceURL == "" {
		sourceURL = builder.DefaultRepertoireURL
	}
	if err := runBuild(cmd, src); err != nil {
		return err
	}
	read, accepted := src.Games()
	fmt.Fprintf(cmd.OutOrStdout(), "Games: %d read, %d accepted\n", read, accepted)
	return nil
}

func runBuildTablebase(cmd *cobra.Command, args []string) error {
	if sourceURL == "" {
		return errors.New("--source is required for the tablebase")
	}
	src := builder.NewTablebaseSource(maxPieces)
	if err := runBuild(cmd, src); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Positions skipped: %d\n", src.Skipped())
	return nil
}

func runBuild(cmd *cobra.Command, src builder.Source) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	progress := builder.NewProgressPrinter(cmd.ErrOrStderr())

	if outputDir == "" {
		outputDir = cfg.Data.Dir
	}
	c, err := builder.NewCodec(codecName)
	if err != nil {
		return err
	}

	opts := []builder.Option{
		builder.WithSourceURL(sourceURL),
		builder.WithOutputDir(outputDir),
		builder.WithTotalShards(totalShards),
		builder.WithCodec(c),
		builder.WithWorkers(workers),
		builder.WithMaxMemoryMB(maxMemoryMB),
		builder.WithProgress(progress),
		builder.WithLogger(log.Named("builder")),
	}
	if strategyName != "" {
		s, err := builder.NewStrategy(strategyName)
		if err != nil {
			return err
		}
		opts = append(opts, builder.WithStrategy(s))
	}
	if tempDir != "" {
		opts = append(opts, builder.WithTempDir(tempDir))
	}
	b := builder.NewBuilder(src, opts...)

	fmt.Fprintf(out, "Building %s table\n", src.Table())
	fmt.Fprintf(out, "  Source:     %s\n", sourceURL)
	fmt.Fprintf(out, "  Output:     %s\n", outputDir)
	fmt.Fprintf(out, "  Shards:     %d\n", totalShards)
	fmt.Fprintf(out, "  Codec:      %s\n", codecName)
	fmt.Fprintf(out, "  Workers:    %d\n", workers)
	fmt.Fprintf(out, "  Max Memory: %d MB\n\n", maxMemoryMB)

	var info builder.TableInfo
	if _, statErr := os.Stat(sourceURL); statErr == nil {
		info, err = b.BuildFromFile(ctx, sourceURL)
	} else {
		info, err = b.Build(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d records in %d shards (strategy %s)\n", info.RecordCount, info.ShardCount, info.Strategy)

	if uploadGCS == "" {
		return nil
	}

	fmt.Fprintf(out, "[Upload] Uploading %s to %s...\n", outputDir, uploadGCS)
	uploader, err := builder.NewGCSUploader(ctx, uploadGCS, log.Named("upload"), builder.WithUploadWorkers(workers))
	if err != nil {
		return fmt.Errorf("creating GCS uploader: %w", err)
	}
	defer uploader.Close()

	res, err := uploader.Upload(ctx, outputDir, progress)
	if err != nil {
		return fmt.Errorf("uploading to GCS: %w", err)
	}
	fmt.Fprintf(out, "\n[Upload] %d shards uploaded, %d unchanged, %d stale removed (%s)\n",
		res.Uploaded, res.Unchanged, res.Deleted, builder.FormatBytes(res.Bytes))
	return nil
}
