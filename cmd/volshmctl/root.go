package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/srediag/appvolume-shm/pkg/plugin"
)

var (
	driver   *plugin.Driver
	registry *prometheus.Registry

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "volshmctl",
		Short: "inspect and edit the shared application volume state",
		Long: `volshmctl reads and writes the per-application volume and mute
table shared between the audio engine and its control applications.`,
		SilenceUsage:       true,
		PersistentPreRunE:  openDriver,
		PersistentPostRunE: closeDriver,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	setupFlags(RootCmd)

	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(getCmd)
	RootCmd.AddCommand(setCmd)
	RootCmd.AddCommand(muteCmd)
	RootCmd.AddCommand(removeCmd)
	RootCmd.AddCommand(resetCmd)
	RootCmd.AddCommand(statsCmd)
	RootCmd.AddCommand(dumpCmd)
	RootCmd.AddCommand(watchCmd)
	RootCmd.AddCommand(serveCmd)

	resetCmd.Flags().Bool("force", false, wrapString("confirm wiping every application"))
	serveCmd.Flags().String("listen", ":9464", wrapString("address serving /metrics, /live and /ready"))
}

// openDriver builds the driver shared by every subcommand
func openDriver(cmd *cobra.Command, _ []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}
	// a failed command skips the post run
	if err := closeDriver(cmd, nil); err != nil {
		return err
	}
	registry = prometheus.NewRegistry()
	config, err := driverConfig(registry, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	driver, err = plugin.NewDriver(config)
	return err
}

func closeDriver(_ *cobra.Command, _ []string) error {
	if driver == nil {
		return nil
	}
	err := driver.Close()
	driver = nil
	return err
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
