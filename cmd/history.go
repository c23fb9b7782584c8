package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxdjohnson/py-hotstart/internal/core"
)

func NewHistoryCommand() *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent supervisor spawn/kill/exit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			hist, err := core.OpenHistory(core.GetHistoryPath())
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer hist.Close()

			events, err := hist.Recent(limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			if len(events) == 0 {
				fmt.Println("no events recorded")
				return nil
			}
			for _, e := range events {
				fmt.Printf("%s  seq=%d pid=%d %-5s %s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), e.Seq, e.PID, e.EventType, e.Detail)
			}
			return nil
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 20, "number of events to show")
	return historyCmd
}
