// Package core holds configuration, versioning, and the supervisor audit
// log — the ambient pieces shared by the server and client sides of
// py-hotstart.
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	BaseDirName = ".config/py-hotstart"
	PidFileName = "daemon.pid"
	SocketName  = "daemon.sock"
	LogFileName = "daemon.log"
	ScriptName  = "bootstrap.py"
	HistoryName = "history.db"
)

var Config *viper.Viper

var globalFlagsToConfigKey = map[string]string{
	"config-path": "config_path",
	"verbose":     "verbose",
}

func GetSocketPath() string {
	return filepath.Join(Config.GetString("config_path"), SocketName)
}

func GetPIDFilePath() string {
	return filepath.Join(Config.GetString("config_path"), PidFileName)
}

func GetLogFilePath() string {
	return filepath.Join(Config.GetString("config_path"), LogFileName)
}

func GetScriptPath() string {
	return filepath.Join(Config.GetString("config_path"), ScriptName)
}

func GetHistoryPath() string {
	return filepath.Join(Config.GetString("config_path"), HistoryName)
}

func GetPythonExecutable() string {
	return Config.GetString("python_executable")
}

func GetRingCapacity() int {
	return Config.GetInt("ring_capacity")
}

func GetGracefulTimeout() time.Duration {
	return Config.GetDuration("graceful_timeout")
}

func GetKillPollInterval() time.Duration {
	return Config.GetDuration("kill_poll_interval")
}

func GetDaemonReadyTimeout() time.Duration {
	return Config.GetDuration("daemon_ready_timeout")
}

func GetSocketWaitTimeout() time.Duration {
	return Config.GetDuration("socket_wait_timeout")
}

// InitializeConfig loads config.toml from the config path (creating a
// default one on first run) and binds the root command's global flags to
// it.
func InitializeConfig(cmd *cobra.Command) error {
	Config = viper.New()

	configPath, err := cmd.Flags().GetString("config-path")
	if err != nil {
		panic("unable to determine config path")
	}
	Config.AddConfigPath(configPath)
	Config.SetConfigName("config")
	Config.SetConfigType("toml")

	Config.SetDefault("config_path", configPath)
	Config.SetDefault("verbose", 0)
	Config.SetDefault("python_executable", "python3")
	Config.SetDefault("ring_capacity", 128)
	Config.SetDefault("graceful_timeout", "2s")
	Config.SetDefault("kill_poll_interval", "20ms")
	Config.SetDefault("daemon_ready_timeout", "1s")
	Config.SetDefault("socket_wait_timeout", "60s")
	Config.SetDefault("log_level", "info")

	Config.SetEnvPrefix("pyhotstart")
	Config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Config.AutomaticEnv()

	if err := Config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := os.MkdirAll(configPath, 0o755); err != nil {
				return fmt.Errorf("creating config path %s: %w", configPath, err)
			}
			_ = Config.SafeWriteConfig()
		} else {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			configKey, ok := globalFlagsToConfigKey[f.Name]
			if !ok {
				return
			}
			if !f.Changed && Config.IsSet(configKey) {
				_ = cmd.Flags().Set(f.Name, fmt.Sprintf("%v", Config.Get(configKey)))
			} else {
				Config.Set(configKey, fmt.Sprintf("%v", f.Value))
			}
		})
	}

	return nil
}

// GetDefaultConfig returns a viper instance populated with defaults only,
// for tests that need Config set without touching disk.
func GetDefaultConfig() *viper.Viper {
	v := viper.New()
	v.SetDefault("config_path", "")
	v.SetDefault("python_executable", "python3")
	v.SetDefault("ring_capacity", 128)
	v.SetDefault("graceful_timeout", "2s")
	v.SetDefault("kill_poll_interval", "20ms")
	v.SetDefault("daemon_ready_timeout", "1s")
	v.SetDefault("socket_wait_timeout", "60s")
	return v
}
