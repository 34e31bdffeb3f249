package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/heatsim/internal/api"
	"github.com/talgya/heatsim/internal/config"
	"github.com/talgya/heatsim/internal/engine"
	"github.com/talgya/heatsim/internal/persistence"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation and optionally record and serve its results",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	f := cmd.Flags()
	f.Int("steps", 0, "number of weekly ticks to simulate")
	f.Int64("seed", 0, "root random seed (0 draws one)")
	f.String("db", "", "SQLite results database path")
	f.String("scenario", "", "scenario YAML file (empty runs the baseline)")
	f.Bool("serve", false, "serve the HTTP API while running and after the run ends")
	f.String("addr", "", "HTTP API listen address")
	return cmd
}

// flagKeys binds run flags to their configuration keys. Only flags set on
// the command line override the file and environment.
var flagKeys = map[string]string{
	"steps":    "run.steps",
	"seed":     "run.seed",
	"db":       "db.path",
	"scenario": "scenario.file",
	"addr":     "api.addr",
}

// loadConfig builds the configuration from the --config file, the
// environment and any bound flags.
func loadConfig(cmd *cobra.Command, bind map[string]string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	v, err := config.NewViper(path)
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, cmd, bind); err != nil {
		return nil, err
	}
	return config.NewConfigFromViper(v)
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, bind map[string]string) error {
	for name, key := range bind {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, flagKeys)
	if err != nil {
		return err
	}
	logs, err := setupLogging(cfg.Log, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer logs.Close()

	slog.Info("heatsim starting", "version", Version, "steps", cfg.Run.Steps, "houseowners", cfg.Run.Houseowners)

	sc, err := engine.LoadScenario(cfg.Scenario.File)
	if err != nil {
		return err
	}
	m, err := engine.NewModel(cfg, sc)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}

	// ── Database ──────────────────────────────────────────────────────
	var rec *persistence.Recorder
	var db *persistence.DB
	if cfg.DB.Path != "" {
		if dir := filepath.Dir(cfg.DB.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create db directory: %w", err)
			}
		}
		db, err = persistence.Open(cfg.DB.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.DB.Path)

		rec, err = persistence.NewRecorder(cmd.Context(), db, m)
		if err != nil {
			return err
		}
		m.Collector = rec
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine(m)
	eng.OnReport = m.Report

	serve, _ := cmd.Flags().GetBool("serve")
	var srv *api.Server
	if serve {
		if cfg.API.AdminKey == "" {
			slog.Warn("HEATSIM_API_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		srv = &api.Server{
			Model:             m,
			Eng:               eng,
			DB:                db,
			Addr:              cfg.API.Addr,
			AdminKey:          cfg.API.AdminKey,
			RelayKey:          cfg.API.RelayKey,
			RequestsPerSecond: cfg.API.RateLimit,
			Burst:             cfg.API.Burst,
		}
		if rec != nil {
			srv.RunID = rec.RunID
		}
		eng.OnTick = srv.Publish
	}

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := eng.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("simulation: %w", err)
		}
		if srv == nil {
			cancel()
		} else if m.Done() {
			slog.Info("run complete, API stays up until interrupted")
		}
		return nil
	})
	if srv != nil {
		g.Go(func() error { return srv.Start(gctx) })
	}
	runErr := g.Wait()

	final := m.Snapshot()
	m.Report(final)
	if rec != nil {
		if err := rec.Finish(context.Background(), m); err != nil {
			return errors.Join(runErr, fmt.Errorf("final save: %w", err))
		}
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Simulation finished at %s: %d of %d ticks.\n",
		engine.SimTime(cfg.Run.StartYear, final.Tick), final.Tick, cfg.Run.Steps)
	return nil
}
