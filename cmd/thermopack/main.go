// Package main provides the CLI entrypoint for thermopack.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/thermopack/internal/config"
	"github.com/verte-zerg/thermopack/internal/inspect"
	"github.com/verte-zerg/thermopack/internal/model"
	"github.com/verte-zerg/thermopack/internal/pipeline"
	"github.com/verte-zerg/thermopack/internal/profile"
	"github.com/verte-zerg/thermopack/internal/series"
	"github.com/verte-zerg/thermopack/internal/stats"
	"github.com/verte-zerg/thermopack/internal/store"
	"github.com/verte-zerg/thermopack/internal/weights"
)

const (
	defaultRooms         = 3
	defaultDays          = 365
	defaultInterval      = 30
	defaultSeed          = 42
	defaultDataDir       = "data"
	defaultPackedHeader  = "RoomPredictor/csv_data.h"
	defaultWeightsHeader = "RoomPredictor/neural_weights.h"
	defaultWeightsFile   = "rooms_model.weights.json"
	defaultHistoryLast   = 20
	plotHeight           = 10
	startLayout          = "2006-01-02"
)

var (
	flagRooms         int
	flagProfile       string
	flagDays          int
	flagInterval      int
	flagStart         string
	flagSeed          int64
	flagDataDir       string
	flagPackedHeader  string
	flagWeightsHeader string
	flagWeightsFile   string
	flagStamp         bool
	flagVerbose       bool

	exportPlot    bool
	exportInspect bool

	predictAt       string
	predictExterior float64
	predictHumidity float64

	historyKind    string
	historyLast    int
	historyWindows string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "thermopack",
		Short:         "Room temperature series generator and embedded header packer",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newProfilesCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newWeightsCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newPredictCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func addDataFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagDataDir, "data-dir", defaultDataDir, "directory holding Room<N>_data.csv files")
	cmd.Flags().IntVar(&flagRooms, "rooms", defaultRooms, "room count when no [[rooms]] are configured")
	cmd.Flags().StringVar(&flagProfile, "profile", profile.DefaultKey, "isolation profile for unconfigured rooms")
}

func addGenerateFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&flagDays, "days", defaultDays, "days of samples per room")
	cmd.Flags().IntVar(&flagInterval, "interval", defaultInterval, "sampling interval in minutes")
	cmd.Flags().StringVar(&flagStart, "start", "", "first sample date (YYYY-MM-DD, default: today minus --days)")
	cmd.Flags().Int64Var(&flagSeed, "seed", defaultSeed, "random seed")
}

func addPackedFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagPackedHeader, "packed-header", defaultPackedHeader, "packed series header path")
}

func addWeightsFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagWeightsHeader, "weights-header", defaultWeightsHeader, "network weights header path")
	cmd.Flags().StringVar(&flagWeightsFile, "weights-file", defaultWeightsFile, "trained weights record (JSON)")
}

func addStampFlag(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&flagStamp, "stamp", true, "write a generation timestamp into headers")
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List isolation profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return stats.RenderProfiles(cmd.OutOrStdout(), profile.All())
		},
	}
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate or import room series into the data directory",
		Args:  cobra.NoArgs,
		RunE:  runGenerateCmd,
	}
	addDataFlags(cmd)
	addGenerateFlags(cmd)
	return cmd
}

func runGenerateCmd(cmd *cobra.Command, _ []string) error {
	return withPipeline(cmd, nil, func(ctx context.Context, p *pipeline.Pipeline) error {
		res, err := p.Generate(ctx)
		if err != nil {
			return err
		}
		return printf(cmd.OutOrStdout(), "Wrote %d room files (%d samples) to %s\n", len(res.Files), res.Points, p.Request().DataDir)
	})
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Pack room series and publish the packed header",
		Args:  cobra.NoArgs,
		RunE:  runExportCmd,
	}
	addDataFlags(cmd)
	addPackedFlags(cmd)
	addStampFlag(cmd)
	cmd.Flags().BoolVar(&exportPlot, "plot", false, "plot every window after publishing")
	cmd.Flags().BoolVar(&exportInspect, "inspect", false, "open the interactive preview after publishing")
	return cmd
}

func runExportCmd(cmd *cobra.Command, _ []string) error {
	return withPipeline(cmd, nil, func(ctx context.Context, p *pipeline.Pipeline) error {
		res, err := p.Export(ctx)
		if err != nil {
			return err
		}
		return reportExport(cmd.OutOrStdout(), p.Request(), res)
	})
}

func reportExport(out io.Writer, req pipeline.Request, res pipeline.ExportResult) error {
	if err := printf(out, "Published %s (%s, %d rooms)\n\n", res.Path, stats.FormatBytes(res.Bytes), len(res.Names)); err != nil {
		return err
	}
	if err := stats.RenderWindowSummary(out, res.Windows, res.Names); err != nil {
		return err
	}
	if exportPlot {
		width := stats.PlotWidthFor(stats.TerminalWidth())
		for _, win := range res.Windows {
			title := fmt.Sprintf("%s (%dh)", win.Window.Label, win.Window.LookbackHours)
			if err := stats.PlotSeries(out, title, stats.WindowSeries(win, res.Names), width, plotHeight); err != nil {
				return err
			}
		}
	}
	if exportInspect {
		return runInspector(res, req.DataDir)
	}
	return nil
}

func newWeightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Publish the network weights header from a trained record",
		Args:  cobra.NoArgs,
		RunE:  runWeightsCmd,
	}
	addDataFlags(cmd)
	addWeightsFlags(cmd)
	addStampFlag(cmd)
	return cmd
}

func runWeightsCmd(cmd *cobra.Command, _ []string) error {
	return withPipeline(cmd, trainerFor, func(ctx context.Context, p *pipeline.Pipeline) error {
		res, err := p.Weights(ctx)
		if err != nil {
			return err
		}
		return printf(cmd.OutOrStdout(), "Published %s (%s, %d rooms, %d parameters)\n",
			res.Path, stats.FormatBytes(res.Bytes), res.Weights.Rooms(), res.Weights.ParamCount())
	})
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate, train and export in one pass",
		Args:  cobra.NoArgs,
		RunE:  runRunCmd,
	}
	addDataFlags(cmd)
	addGenerateFlags(cmd)
	addPackedFlags(cmd)
	addWeightsFlags(cmd)
	addStampFlag(cmd)
	return cmd
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	return withPipeline(cmd, optionalTrainer, func(ctx context.Context, p *pipeline.Pipeline) error {
		res, err := p.Run(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := printf(out, "Generated %d room files (%d samples)\n", len(res.Generate.Files), res.Generate.Points); err != nil {
			return err
		}
		if res.Weights != nil {
			if err := printf(out, "Published %s (%s)\n", res.Weights.Path, stats.FormatBytes(res.Weights.Bytes)); err != nil {
				return err
			}
		}
		return reportExport(out, p.Request(), res.Export)
	})
}

func newPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Evaluate the weights record for one timestamp",
		Args:  cobra.NoArgs,
		RunE:  runPredictCmd,
	}
	addDataFlags(cmd)
	addWeightsFlags(cmd)
	cmd.Flags().StringVar(&predictAt, "at", "", "timestamp (default: now)")
	cmd.Flags().Float64Var(&predictExterior, "exterior", 10, "exterior temperature in °C")
	cmd.Flags().Float64Var(&predictHumidity, "humidity", weights.DefaultHumidity, "relative humidity in %")
	return cmd
}

func runPredictCmd(cmd *cobra.Command, _ []string) error {
	req, err := resolveRequest(cmd)
	if err != nil {
		return err
	}

	at := time.Now()
	if predictAt != "" {
		at, err = series.ParseTimestamp(predictAt)
		if err != nil {
			return fmt.Errorf("%w: invalid --at value: %v", model.ErrInvalidParameter, err)
		}
	}
	m, err := weights.Load(flagWeightsFile)
	if err != nil {
		return err
	}
	if err := m.Validate(m.Rooms()); err != nil {
		return err
	}
	out, err := m.Forward(weights.Features(at, predictExterior, predictHumidity))
	if err != nil {
		return err
	}
	logger := newLogger()
	var loadedNames []string
	loaded, err := pipeline.New(req, pipeline.WithLogger(logger)).Load(cmd.Context())
	if err != nil {
		logger.Debug("room names unavailable", "err", err)
	} else {
		loadedNames = loaded.Names
	}
	return stats.RenderPrediction(cmd.OutOrStdout(), at, predictionNames(loadedNames, len(out)), out)
}

// predictionNames labels network outputs with the names of the rooms the
// network was trained on. The outputs follow the loaded room files, so the
// names are only used when their count matches.
func predictionNames(loaded []string, outputs int) []string {
	names := make([]string, outputs)
	for i := range names {
		names[i] = fmt.Sprintf("Room %d", i+1)
		if len(loaded) == outputs {
			names[i] = loaded[i]
		}
	}
	return names
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Preview packed windows interactively",
		Args:  cobra.NoArgs,
		RunE:  runInspectCmd,
	}
	addDataFlags(cmd)
	return cmd
}

func runInspectCmd(cmd *cobra.Command, _ []string) error {
	req, err := resolveRequest(cmd)
	if err != nil {
		return err
	}
	p := pipeline.New(req, pipeline.WithLogger(newLogger()))
	res, err := p.Pack(cmd.Context())
	if err != nil {
		return err
	}
	return runInspector(res, req.DataDir)
}

func runInspector(res pipeline.ExportResult, source string) error {
	m := inspect.NewModel(res.Windows, res.Names, source)
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run inspector: %w", err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyKind, "kind", "", "filter by run kind (generate, export, weights)")
	cmd.Flags().IntVar(&historyLast, "last", defaultHistoryLast, "limit to last N runs")
	cmd.Flags().StringVar(&historyWindows, "windows", "", "show window statistics of a run id")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	switch historyKind {
	case "", store.KindGenerate, store.KindExport, store.KindWeights:
	default:
		return fmt.Errorf("%w: unknown run kind %q", model.ErrInvalidParameter, historyKind)
	}
	if historyLast < 0 {
		return fmt.Errorf("%w: --last must be >= 0", model.ErrInvalidParameter)
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	if historyWindows != "" {
		windowStats, err := st.ListWindowStats(cmd.Context(), historyWindows)
		if err != nil {
			return err
		}
		return stats.RenderStatTable(cmd.OutOrStdout(), windowStats)
	}
	runs, err := st.ListRuns(cmd.Context(), historyKind, historyLast)
	if err != nil {
		return err
	}
	return stats.RenderRuns(cmd.OutOrStdout(), runs)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// withPipeline resolves the request, opens the run store and runs fn. A
// store that cannot be opened only disables run recording.
func withPipeline(cmd *cobra.Command, trainer func() (pipeline.Trainer, error), fn func(context.Context, *pipeline.Pipeline) error) error {
	req, err := resolveRequest(cmd)
	if err != nil {
		return err
	}
	logger := newLogger()
	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if trainer != nil {
		t, err := trainer()
		if err != nil {
			return err
		}
		if t != nil {
			opts = append(opts, pipeline.WithTrainer(t))
		}
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		logger.Warn("run history disabled", "err", err)
	} else {
		defer func() {
			if cerr := st.Close(); cerr != nil {
				logger.Warn("failed to close db", "err", cerr)
			}
		}()
		opts = append(opts, pipeline.WithRecorder(st))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, pipeline.New(req, opts...))
}

func trainerFor() (pipeline.Trainer, error) {
	return weights.FileTrainer{Path: flagWeightsFile}, nil
}

// optionalTrainer skips training when no weights record exists yet.
func optionalTrainer() (pipeline.Trainer, error) {
	if _, err := os.Stat(flagWeightsFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to stat %s: %v", model.ErrIOFailure, flagWeightsFile, err)
	}
	return trainerFor()
}

func resolveRequest(cmd *cobra.Command) (pipeline.Request, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyIntConfig(cmd, "days", &flagDays, fileCfg.Generate.Days)
	applyIntConfig(cmd, "interval", &flagInterval, fileCfg.Generate.Interval)
	applyStringConfig(cmd, "start", &flagStart, fileCfg.Generate.Start)
	applyInt64Config(cmd, "seed", &flagSeed, fileCfg.Generate.Seed)
	applyStringConfig(cmd, "data-dir", &flagDataDir, fileCfg.Generate.DataDir)
	applyStringConfig(cmd, "packed-header", &flagPackedHeader, fileCfg.Export.PackedHeader)
	applyStringConfig(cmd, "weights-header", &flagWeightsHeader, fileCfg.Export.WeightsHeader)
	applyStringConfig(cmd, "weights-file", &flagWeightsFile, fileCfg.Export.WeightsFile)

	rooms, err := fileCfg.ResolveRooms(flagRooms, flagProfile)
	if err != nil {
		return pipeline.Request{}, err
	}
	start, err := resolveStart(flagStart, flagDays)
	if err != nil {
		return pipeline.Request{}, err
	}

	req := pipeline.Request{
		DataDir:         flagDataDir,
		Rooms:           rooms,
		Start:           start,
		Days:            flagDays,
		IntervalMinutes: flagInterval,
		Seed:            flagSeed,
		Columns:         fileCfg.ColumnOverrides(),
		PackedHeader:    flagPackedHeader,
		WeightsHeader:   flagWeightsHeader,
	}
	if flagStamp {
		req.GeneratedAt = time.Now()
	}
	return req, nil
}

func resolveStart(raw string, days int) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		today := time.Now().UTC().Truncate(24 * time.Hour)
		return today.AddDate(0, 0, -days), nil
	}
	start, err := time.ParseInLocation(startLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid --start value: %v", model.ErrInvalidParameter, err)
	}
	return start, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyInt64Config(cmd *cobra.Command, name string, target, value *int64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# thermopack configuration
# Uncomment a value to enable it. CLI flags override config values.

[generate]
# days = %d               # Days of samples per room
# interval = %d            # Sampling interval in minutes
# start = "2024-01-01"     # First sample date (default: today minus days)
# seed = %d                # Random seed
# data-dir = %q        # Directory holding Room<N>_data.csv files

# One table per room. Without any, --rooms rooms use --profile.
# [[rooms]]
# id = 1
# name = "Living room"
# profile = %q          # One of: %s
# source = ""              # Import this CSV instead of generating

[export]
# packed-header = %q
# weights-header = %q
# weights-file = %q

[columns]
# timestamp = ["Timestamp", "Date"]
# temperature = ["Temperature_Celsius(°C)", "Temperature"]
# humidity = ["Relative_Humidity(%%)", "Humidity"]
# exterior = ["External_Temp(°C)"]
`,
		defaultDays,
		defaultInterval,
		defaultSeed,
		defaultDataDir,
		profile.DefaultKey,
		strings.Join(profile.Keys(), ", "),
		defaultPackedHeader,
		defaultWeightsHeader,
		defaultWeightsFile,
	)
}

func printf(w io.Writer, format string, args ...any) error {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
