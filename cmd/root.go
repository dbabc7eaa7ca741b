package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/audiolibrelab/routemix/internal/config"
	"github.com/audiolibrelab/routemix/internal/service"

	"github.com/spf13/cobra"
)

var (
	cfg           *config.Config
	cfgFile       string
	startupPreset string
	verboseLevel  int
)

var rootCmd = &cobra.Command{
	Use:   "routemix",
	Short: "Software audio router and mixer",
	Long: `RouteMix routes a fixed set of input channels (microphone, game, music,
browser) to output buses (speakers, headphones, stream, chat), with per-channel
volume and mute, live level meters and named presets.

Run 'routemix serve' to control the mixer over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		path, err := resolveConfigPath(cfgFile)
		if err != nil {
			return err
		}

		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if startupPreset != "" {
			cfg.Presets.Startup = startupPreset
		}

		slog.Debug("Configuration loaded", "file", path, "backend", cfg.Audio.Backend,
			"inputs", len(cfg.Inputs), "outputs", len(cfg.Outputs))
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/routemix.yaml)")
	rootCmd.PersistentFlags().StringVar(&startupPreset, "preset", "", "preset to recall at startup (overrides presets.startup)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(meterCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(configCmd)
}

// resolveConfigPath returns the config file to read. An explicit --config
// must exist; the default location is optional.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	def := os.ExpandEnv("$HOME/.config/routemix.yaml")
	if _, err := os.Stat(def); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("No config file found, using built-in defaults", "path", def)
			return "", nil
		}
		return "", fmt.Errorf("cannot access config file %s: %w", def, err)
	}
	return def, nil
}

// startService builds and starts the mixer service for a one-shot command.
// The caller must Stop it.
func startService(ctx context.Context) (*service.RouteMixService, error) {
	svc, err := service.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start mixer: %w", err)
	}
	return svc, nil
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	var slogLevel slog.Level
	switch {
	case level <= 0:
		slogLevel = slog.LevelInfo
	default:
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
}
