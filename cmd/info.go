package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/audiolibrelab/routemix/internal/mixer"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show channel levels and the routing matrix",
	Long:  `Display the resolved channel state (volume, mute, effective level) and the routing matrix, after the startup preset if one is configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := startService(context.Background())
		if err != nil {
			return err
		}
		defer svc.Stop()

		printState(svc.State())
		return nil
	},
}

func printState(state mixer.State) {
	fmt.Printf("=== CHANNELS ===\n")
	fmt.Printf("\n[Inputs]\n")
	for _, ch := range state.Inputs {
		fmt.Printf("%-12s volume=%3d effective=%3d %s %.2f Hz\n",
			ch.ID, ch.Volume, ch.Effective, muteIndicator(ch.Muted), ch.Frequency)
	}
	fmt.Printf("\n[Outputs]\n")
	for _, ch := range state.Outputs {
		fmt.Printf("%-12s volume=%3d effective=%3d %s\n",
			ch.ID, ch.Volume, ch.Effective, muteIndicator(ch.Muted))
	}

	fmt.Printf("\n=== ROUTING ===\n")
	var header strings.Builder
	header.WriteString(fmt.Sprintf("%-12s", ""))
	for _, out := range state.Outputs {
		header.WriteString(fmt.Sprintf(" %-11s", out.ID))
	}
	fmt.Println(header.String())

	for _, in := range state.Inputs {
		var row strings.Builder
		row.WriteString(fmt.Sprintf("%-12s", in.ID))
		for _, out := range state.Outputs {
			mark := "·"
			if state.Routing[in.ID][out.ID] {
				mark = "●"
			}
			row.WriteString(fmt.Sprintf(" %-11s", mark))
		}
		fmt.Println(row.String())
	}
}

// muteIndicator returns a formatted indicator for the mute flag
func muteIndicator(muted bool) string {
	if muted {
		return "[muted]"
	}
	return "[live] "
}
