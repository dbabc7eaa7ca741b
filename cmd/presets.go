package cmd

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/routemix/internal/mixer"
	"github.com/audiolibrelab/routemix/internal/service"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Manage mixer presets",
	Long:  `List, save, show and delete named snapshots of routing, volume and mute state.`,
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg)
		if err != nil {
			return err
		}
		presets, err := svc.ListPresets()
		if err != nil {
			return err
		}

		fmt.Printf("Presets in %s (%d found):\n", cfg.Presets.Directory, len(presets))
		for i, p := range presets {
			fmt.Printf("  %d. %-20s (%s)\n", i+1, p.Name, p.ID)
		}
		return nil
	},
}

var presetsSaveCmd = &cobra.Command{
	Use:   "save [name]",
	Short: "Save the current mixer state as a preset",
	Long: `Save the mixer state as a named preset. The state starts from the
configuration (and startup preset, if any); --volume, --mute, --route and
--unroute adjust it before it is captured.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := startService(context.Background())
		if err != nil {
			return err
		}
		defer svc.Stop()

		if err := applyAdjustments(cmd, svc); err != nil {
			return err
		}

		p, err := svc.SavePreset(args[0], nil)
		if err != nil {
			return fmt.Errorf("failed to save preset: %w", err)
		}
		fmt.Printf("Preset '%s' saved as %s.yaml\n", p.Name, p.ID)
		return nil
	},
}

var presetsShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Load a preset and print it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := startService(context.Background())
		if err != nil {
			return err
		}
		defer svc.Stop()

		p, err := svc.LoadPreset(args[0])
		if err != nil {
			return fmt.Errorf("failed to load preset: %w", err)
		}
		out, err := yaml.Marshal(p)
		if err != nil {
			return fmt.Errorf("error marshaling preset: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

var presetsDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg)
		if err != nil {
			return err
		}
		if err := svc.DeletePreset(args[0]); err != nil {
			return fmt.Errorf("failed to delete preset: %w", err)
		}
		fmt.Printf("Preset '%s' deleted\n", args[0])
		return nil
	},
}

func addAdjustmentFlags(flags *pflag.FlagSet) {
	flags.StringToInt("volume", nil, "channel volumes to set before saving (e.g. microphone=60,music=30)")
	flags.StringSlice("mute", nil, "channels to mute before saving")
	flags.StringSlice("route", nil, "routes to enable before saving (input:output)")
	flags.StringSlice("unroute", nil, "routes to disable before saving (input:output)")
}

// applyAdjustments applies the save command's flags to the running mixer
func applyAdjustments(cmd *cobra.Command, svc service.Service) error {
	volumes, _ := cmd.Flags().GetStringToInt("volume")
	for id, v := range volumes {
		stored, err := svc.SetVolume(id, v)
		if err != nil {
			return err
		}
		if stored != v {
			fmt.Printf("Volume of %s clamped to %d\n", id, stored)
		}
	}

	muted, _ := cmd.Flags().GetStringSlice("mute")
	for _, id := range muted {
		if err := svc.SetMute(id, true); err != nil {
			return err
		}
	}

	// --unroute is applied last so it wins over --route for the same pair.
	for _, step := range []struct {
		flag    string
		enabled bool
	}{{"route", true}, {"unroute", false}} {
		pairs, _ := cmd.Flags().GetStringSlice(step.flag)
		for _, pair := range pairs {
			in, out, err := parseRoute(pair)
			if err != nil {
				return err
			}
			if err := svc.SetRouting(in, out, step.enabled); err != nil {
				return err
			}
		}
	}
	return nil
}

// parseRoute splits "input:output"
func parseRoute(pair string) (string, string, error) {
	in, out, ok := strings.Cut(pair, ":")
	if !ok || in == "" || out == "" {
		return "", "", fmt.Errorf("%w: route %q must be input:output", mixer.ErrInvalidValue, pair)
	}
	return in, out, nil
}

func init() {
	addAdjustmentFlags(presetsSaveCmd.Flags())

	presetsCmd.AddCommand(presetsListCmd)
	presetsCmd.AddCommand(presetsSaveCmd)
	presetsCmd.AddCommand(presetsShowCmd)
	presetsCmd.AddCommand(presetsDeleteCmd)
}
