package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var meterCmd = &cobra.Command{
	Use:   "meter",
	Short: "Print live meter levels",
	Long:  `Subscribe to the meter loop and print one line of channel levels per tick.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := startService(ctx)
		if err != nil {
			return err
		}
		defer svc.Stop()

		ids := make([]string, 0, len(cfg.Inputs)+len(cfg.Outputs))
		for _, def := range cfg.Inputs {
			ids = append(ids, def.ID)
		}
		for _, def := range cfg.Outputs {
			ids = append(ids, def.ID)
		}

		sub := svc.SubscribeMeters()
		defer svc.UnsubscribeMeters(sub)

		for printed := 0; count <= 0 || printed < count; printed++ {
			select {
			case <-ctx.Done():
				return nil
			case levels, ok := <-sub.C:
				if !ok {
					return nil
				}
				var line strings.Builder
				for _, id := range ids {
					if level, ok := levels[id]; ok {
						fmt.Fprintf(&line, "%s=%3d ", id, level)
					} else {
						fmt.Fprintf(&line, "%s=  - ", id)
					}
				}
				fmt.Println(strings.TrimSpace(line.String()))
			}
		}
		return nil
	},
}

func init() {
	meterCmd.Flags().IntP("count", "n", 20, "number of ticks to print (0 runs until interrupted)")
}
