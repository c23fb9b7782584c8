package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/maxdjohnson/py-hotstart/internal/client"
	"github.com/maxdjohnson/py-hotstart/internal/core"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int
	var prelude string
	var code string
	var module string
	var restart bool

	homeDir, _ := os.UserHomeDir()

	rootCmd := &cobra.Command{
		Use:   "py-hotstart [flags] [path] [args...]",
		Short: "Hot-spare interpreter daemon and driver",
		Long:  `py-hotstart keeps a pre-warmed interpreter attached to a background daemon so short scripts start instantly.`,
		Args:  cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := core.InitializeConfig(cmd); err != nil {
				return err
			}

			var level slog.Level
			if err := level.UnmarshalText([]byte(core.Config.GetString("log_level"))); err != nil {
				level = slog.LevelInfo
			}
			if verbose > 0 {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(
				tint.NewHandler(os.Stderr, &tint.Options{
					Level:      level,
					TimeFormat: time.DateTime,
				}),
			))

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if restart {
				if err := client.Shutdown(); err != nil {
					slog.Debug("restart: daemon was not running", "error", err)
				}
			}

			if err := client.EnsureServerRunning(); err != nil {
				return err
			}

			hasInit := cmd.Flags().Changed("init")
			hasCode := cmd.Flags().Changed("code")
			hasModule := cmd.Flags().Changed("module")

			if hasInit {
				if err := client.Initialize(prelude); err != nil {
					return fmt.Errorf("init: %w", err)
				}
				if !hasCode && !hasModule && len(args) == 0 {
					return nil
				}
			}

			req, err := BuildRunRequest(code, module, args, hasCode, hasModule)
			if err != nil {
				return err
			}

			exitCode, err := Dispatch(req)
			if err != nil {
				return err
			}
			os.Exit(exitCode)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config-path", fmt.Sprintf("%s/%s", homeDir, core.BaseDirName),
		"config path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.Flags().StringVarP(&prelude, "init", "i", "", "(re)initialize the hot spare's prelude")
	rootCmd.Flags().StringVarP(&code, "code", "c", "", "run a code snippet")
	rootCmd.Flags().StringVarP(&module, "module", "m", "", "run a module")
	rootCmd.Flags().BoolVar(&restart, "restart", false, "kill and respawn the daemon before running")
	rootCmd.Flags().SetInterspersed(false)

	rootCmd.AddCommand(
		NewDaemonCommand(),
		NewHistoryCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}
