package cmd

import (
	"fmt"

	"github.com/audiolibrelab/routemix/internal/audio"
	"github.com/audiolibrelab/routemix/internal/service"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List input and output channels",
	Long:  `List the input channels and output buses of the configured catalog, along with the available audio backends.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg)
		if err != nil {
			return err
		}
		printDevices(svc.ListDevices())
		return nil
	},
}

func printDevices(devices service.DeviceList) {
	fmt.Printf("🎚  Audio backend: %s (available: %v)\n", cfg.Audio.Backend, audio.GetAvailableBackends())
	fmt.Printf("═══════════════════════════════════════\n\n")

	fmt.Printf("📥 INPUTS (%d):\n", len(devices.Inputs))
	for i, d := range devices.Inputs {
		fmt.Printf("  %d. %-12s %s\n", i+1, d.ID, d.Name)
	}

	fmt.Printf("\n📤 OUTPUTS (%d):\n", len(devices.Outputs))
	for i, d := range devices.Outputs {
		fmt.Printf("  %d. %-12s %s\n", i+1, d.ID, d.Name)
	}
	fmt.Println()
}
