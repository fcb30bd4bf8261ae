package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/srediag/appvolume-shm/internal/logger"
	"github.com/srediag/appvolume-shm/pkg/plugin"
)

const (
	// Wrap is the number of characters to wrap the help text at
	Wrap int = 50

	envPrefix = "appvolume"
)

// wrapString wraps a string at Wrap characters
func wrapString(text string) string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > Wrap {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// initConfig loads env files and lets APPVOLUME_* variables override flags.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func setupFlags(cmd *cobra.Command) {
	defaults := plugin.DefaultConfig()
	flags := cmd.PersistentFlags()

	flags.String("path", "", wrapString("backing file of the shared state, the platform default when empty"))
	flags.Bool("strict", false, wrapString("refuse a file initialized with another layout version"))
	flags.String("log-level", "warn", wrapString("log level (trace, debug, info, warn, error, none)"))
	flags.Float32("max-gain", defaults.MaxGain, wrapString("upper bound of a stored gain"))
	flags.Uint64("map-retries", defaults.MapRetries, wrapString("retries of a transient mapping failure"))
	flags.Duration("poll-interval", defaults.PollInterval, wrapString("how often watch and serve look for changes"))
	flags.Int("watch-workers", defaults.WatchWorkers, wrapString("subscribers notified concurrently"))
}

// bindFlags binds a command's flags to viper
func bindFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// driverConfig reads the driver configuration from viper
func driverConfig(registry prometheus.Registerer, out io.Writer) (*plugin.Config, error) {
	level, err := logger.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	plugin.SetLogLevel(level)

	config := plugin.DefaultConfig()
	config.Path = viper.GetString("path")
	config.StrictVersion = viper.GetBool("strict")
	config.MaxGain = float32(viper.GetFloat64("max-gain"))
	config.MapRetries = viper.GetUint64("map-retries")
	config.PollInterval = viper.GetDuration("poll-interval")
	config.WatchWorkers = viper.GetInt("watch-workers")
	config.Registerer = registry
	config.LogOutput = out
	if err := plugin.VerifyConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
