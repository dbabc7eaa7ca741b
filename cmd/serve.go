package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/routemix/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the RouteMix web server to control routing, volumes, mute and presets
over HTTP. Meter levels are streamed as server-sent events on /api/meters.

The server will display the local network URL for easy access from other devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetString("port")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := startService(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := svc.Stop(); err != nil {
				slog.Error("Failed to stop mixer", "error", err)
			}
		}()

		slog.Info("RouteMix web server starting", "port", cfg.Server.Port, "presets", cfg.Presets.Directory)

		// Start server (this blocks until a signal arrives)
		if err := server.New(svc, cfg.Server.Port).Start(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server (overrides server.port)")
}
