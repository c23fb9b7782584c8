package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/maxdjohnson/py-hotstart/internal/core"
	"github.com/maxdjohnson/py-hotstart/internal/server"
	"github.com/maxdjohnson/py-hotstart/internal/supervisor"
)

func NewDaemonCommand() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:    "daemon",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
	return daemonCmd
}

func runDaemon() error {
	socketPath := core.GetSocketPath()
	pidPath := core.GetPIDFilePath()

	guard := server.NewPIDFileGuard(pidPath)
	if err := guard.Acquire(); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}

	_ = os.Remove(socketPath)
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: socketPath, Net: "unix"})
	if err != nil {
		_ = guard.Release()
		return fmt.Errorf("daemon: listening on socket: %w", err)
	}

	var hist supervisor.History
	h, err := core.OpenHistory(core.GetHistoryPath())
	if err != nil {
		slog.Warn("history log unavailable", "error", err)
	} else {
		hist = h
		defer h.Close()
	}

	super := supervisor.New(
		core.GetPythonExecutable(),
		core.GetScriptPath(),
		core.GetRingCapacity(),
		core.GetGracefulTimeout(),
		core.GetKillPollInterval(),
		hist,
	)

	srv := server.New(listener, super, guard)
	slog.Info("daemon ready", "socket", socketPath, "pid", os.Getpid())
	return srv.Run()
}
