package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/audiolibrelab/routemix/internal/play"

	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview [output]",
	Short: "Render a WAV preview of an output bus",
	Long: `Render a short WAV file of what an output bus would carry: a sine per routed,
unmuted input at its oscillator frequency, scaled by input and output volume.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := args[0]
		duration, _ := cmd.Flags().GetDuration("duration")
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			file = output + ".wav"
		}

		svc, err := startService(context.Background())
		if err != nil {
			return err
		}
		defer svc.Stop()

		f, err := os.Create(file)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", file, err)
		}

		if err := svc.RenderPreview(f, output, duration); err != nil {
			f.Close()
			os.Remove(file)
			return fmt.Errorf("preview failed: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write %s: %w", file, err)
		}

		fmt.Printf("Rendering output: %s\n", output)
		fmt.Printf("Duration: %s\n", duration)
		fmt.Printf("Preview saved to %s\n", file)

		if playIt, _ := cmd.Flags().GetBool("play"); playIt {
			if err := play.New().Play(cmd.Context(), file); err != nil {
				return err
			}
			fmt.Println("Playback completed")
		}
		return nil
	},
}

func init() {
	previewCmd.Flags().DurationP("duration", "d", 2*time.Second, "preview length (max 30s)")
	previewCmd.Flags().StringP("file", "o", "", "output file (default <output>.wav)")
	previewCmd.Flags().BoolP("play", "p", false, "play the preview with an external player (vlc, mpv, ffplay or aplay)")
}
