package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/maruel/natural"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danieljhkim/assetmirror/internal/clock"
	"github.com/danieljhkim/assetmirror/internal/config"
	"github.com/danieljhkim/assetmirror/internal/engine"
	"github.com/danieljhkim/assetmirror/internal/fsops"
	"github.com/danieljhkim/assetmirror/internal/host"
	"github.com/danieljhkim/assetmirror/internal/logging"
	"github.com/danieljhkim/assetmirror/internal/state"
)

// app holds everything a command needs, built from config and flags.
type app struct {
	cfg      *config.Config
	mode     engine.Mode
	logger   *zap.Logger
	registry *prometheus.Registry
	engine   *engine.Engine
	records  *state.FileRecordStore
}

// newApp loads configuration and creates the engine with real implementations
// of all dependencies.
func newApp(cmd *cobra.Command) (*app, error) {
	paths, err := config.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get config paths: %w", err)
	}

	v := config.NewViper(paths)
	bindings := map[string]string{
		config.KeyDestination: "dest",
		config.KeyMode:        "mode",
		config.KeyExclude:     "exclude",
		config.KeyLogLevel:    "log-level",
		config.KeyLogFile:     "log-file",
		config.KeyMetricsFile: "metrics-file",
	}
	for key, name := range bindings {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}

	file, explicit := paths.Config, false
	if configFile != "" {
		file, explicit = configFile, true
	}
	cfg, err := config.Load(v, file, explicit)
	if err != nil {
		return nil, err
	}

	mode, err := engine.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
		JSON:  jsonOutput,
	})
	if err != nil {
		return nil, err
	}

	// Create real implementations
	fs := fsops.NewRealFS()
	registry := prometheus.NewRegistry()
	metrics := engine.NewMetrics(registry)

	return &app{
		cfg:      cfg,
		mode:     mode,
		logger:   logger,
		registry: registry,
		engine:   engine.New(fs, &clock.RealClock{}, logger, metrics),
		records:  state.NewFileRecordStore(fs, cfg.StateDir),
	}, nil
}

// runner returns a host runner configured from the app's settings.
func (a *app) runner(dryRun bool) *host.Runner {
	return host.NewRunner(a.engine, a.records, a.logger, host.Options{
		DestinationBase: a.cfg.Destination,
		Mode:            a.mode,
		Exclude:         a.cfg.Exclude,
		Concurrency:     a.cfg.Concurrency,
		DryRun:          dryRun,
	})
}

// close flushes logs and writes the metrics file if one is configured.
func (a *app) close() error {
	_ = a.logger.Sync()
	if a.cfg.MetricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.cfg.MetricsFile, a.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

// interruptContext returns a context cancelled on SIGINT or SIGTERM.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// selectUnits returns the configured units named by ids, or all of them,
// sorted by natural order of id.
func selectUnits(cfg *config.Config, ids []string) ([]config.Unit, error) {
	var units []config.Unit
	if len(ids) == 0 {
		units = append(units, cfg.Units...)
	} else {
		for _, id := range ids {
			u, ok := cfg.Unit(id)
			if !ok {
				return nil, fmt.Errorf("unit %q is not configured", id)
			}
			units = append(units, u)
		}
	}

	sort.Slice(units, func(i, j int) bool {
		return natural.Less(units[i].ID, units[j].ID)
	})
	return units, nil
}

func mirrorables(units []config.Unit) []engine.Mirrorable {
	out := make([]engine.Mirrorable, len(units))
	for i, u := range units {
		out[i] = u
	}
	return out
}

// formatJSON formats a value as JSON.
func formatJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// formatError formats an error for display.
func formatError(err error) string {
	initColors()
	return errorColor.Sprintf("Error: %v", err)
}

// outputJSON outputs a value as JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
