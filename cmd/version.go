package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/maxdjohnson/py-hotstart/internal/client"
	"github.com/maxdjohnson/py-hotstart/internal/core"
)

func NewVersionCommand() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Long:  `Show version of both client and daemon (if running)`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stderr, "Client version: %s\n", core.FormatVersion(core.Version))

			daemonVersion, err := client.Version()
			if err != nil {
				fmt.Fprintln(os.Stderr, "Daemon: not running")
				return
			}

			fmt.Fprintf(os.Stderr, "Daemon version: %s\n", core.FormatVersion(daemonVersion))
			if daemonVersion != core.Version {
				slog.Warn(fmt.Sprintf("version mismatch! client %s and daemon %s differ, consider --restart",
					core.FormatVersion(core.Version), core.FormatVersion(daemonVersion)))
			}
		},
	}

	return versionCmd
}
