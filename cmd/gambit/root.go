package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/discochess/gambit"
	"github.com/discochess/gambit/fx/gambitfx"
	"github.com/discochess/gambit/internal/config"
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

var (
	// Global flags.
	cfgFile string
	verbose bool

	cfg           *config.Config
	log           = zap.NewNop()
	metricsServer *http.Server
)

// flagKeys binds persistent flags to configuration keys.
var flagKeys = map[string]string{
	"data-dir":     "data.dir",
	"engine":       "engine.path",
	"journal":      "journal.dir",
	"metrics-addr": "metrics.addr",
}

var rootCmd = &cobra.Command{
	Use:   "gambit",
	Short: "Move selection for a chess agent that learns from its mistakes",
	Long: `Gambit chooses moves by blending an endgame database, an opening
repertoire and a UCI engine, picking between them from features of the
position. Moves the engine later judges to be mistakes are kept in a
ledger and avoided when the position comes up again.

Settings are read from .gambit.yaml in the working or home directory,
GAMBIT_* environment variables and flags, in increasing precedence.

Examples:
  # Choose a move for the starting position
  gambit decide "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

  # Build the opening repertoire from a Lichess game database
  gambit build repertoire --output ./data

  # Replay games and report how the agent would have played
  gambit analyze games.pgn --color white --report`,
	SilenceUsage:       true,
	PersistentPreRunE:  loadConfig,
	PersistentPostRunE: shutdown,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default .gambit.yaml in the working or home directory)")
	f.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	f.StringP("data-dir", "d", "", "directory holding the built tables and manifest")
	f.String("engine", "", "path of the UCI engine binary")
	f.String("journal", "", "journal directory; empty keeps the journal in memory")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[skipConfig] != "" {
		return nil
	}

	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}

	c, err := config.Load(v)
	if err != nil {
		return err
	}
	if verbose {
		c.Log.Level = "debug"
		c.Log.Development = true
	}
	if c.Metrics.Addr != "" {
		c.Metrics.Sink = config.MetricsPrometheus
	}

	l, err := c.Log.Logger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	cfg, log = c, l

	if c.Metrics.Addr != "" {
		serveMetrics(c.Metrics.Addr)
	}
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server", zap.String("addr", addr), zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
}

func shutdown(cmd *cobra.Command, args []string) error {
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(ctx)
	}
	_ = log.Sync()
	return nil
}

// withOrchestrator assembles an Orchestrator from the configuration, runs
// fn and closes it again.
func withOrchestrator(ctx context.Context, fn func(o *gambit.Orchestrator) error) (err error) {
	var o *gambit.Orchestrator
	opts := []fx.Option{
		fx.Supply(*cfg, log),
		gambitfx.Module,
		fx.Populate(&o),
	}
	if verbose {
		opts = append(opts, fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}))
	} else {
		opts = append(opts, fx.NopLogger)
	}

	app := fx.New(opts...)
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if stopErr := app.Stop(stopCtx); stopErr != nil && err == nil {
			err = stopErr
		}
	}()

	return fn(o)
}
