package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/srediag/appvolume-shm/pkg/plugin"
	"github.com/srediag/appvolume-shm/pkg/shm"
)

var (
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists every tracked application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vols, gen, err := driver.Snapshot(commandContext(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "generation %d, %d applications\n", gen, len(vols))
			for _, v := range vols {
				fmt.Fprintf(out, "%s\tgain:%.3f\tmuted:%t\n", v.Identifier, v.Gain, v.Muted)
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [id]",
		Short: "Prints the gain and mute flag of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gain, err := driver.Volume(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tgain:%.3f\tmuted:%t\n", args[0], gain, driver.IsMuted(args[0]))
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [id] [gain]",
		Short: "Sets the gain of an application, keeping its mute flag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gain, err := strconv.ParseFloat(args[1], 32)
			if err != nil {
				return fmt.Errorf("gain must be a number: %w", err)
			}
			if err := driver.SetVolume(args[0], float32(gain)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "set successfully")
			return nil
		},
	}
	muteCmd = &cobra.Command{
		Use:   "mute [id] [true|false]",
		Short: "Mutes or unmutes an application, keeping its gain",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mute := true
			if len(args) == 2 {
				var err error
				if mute, err = strconv.ParseBool(args[1]); err != nil {
					return fmt.Errorf("mute must be true or false: %w", err)
				}
			}
			if err := driver.SetMute(args[0], mute); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "mute set successfully")
			return nil
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [id]",
		Short: "Stops tracking an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := driver.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "removed successfully")
			return nil
		},
	}
	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Wipes the shared state of every process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if force, _ := cmd.Flags().GetBool("force"); !force {
				return errors.New("reset drops every application of every user, pass --force to confirm")
			}
			if err := driver.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reset successfully")
			return nil
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints the header of the shared state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := driver.Stats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path:        %s\n", st.Path)
			fmt.Fprintf(out, "version:     %d (this build %d)\n", st.Version, shm.Version)
			if st.VersionMismatch != 0 {
				fmt.Fprintf(out, "mismatch:    file written by layout version %d\n", st.VersionMismatch)
			}
			fmt.Fprintf(out, "entries:     %d/%d\n", st.EntryCount, shm.MaxEntries)
			fmt.Fprintf(out, "generation:  %d\n", st.Generation)
			fmt.Fprintf(out, "last writer: pid %d uid %d\n", st.LastWriterPID, st.LastWriterUID)
			return nil
		},
	}
	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Prints the header and every occupied slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return driver.Dump(cmd.OutOrStdout())
		},
	}
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Prints changes made by any process until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			out := cmd.OutOrStdout()
			if _, err := driver.Watch(ctx, func(e plugin.Event) {
				fmt.Fprintf(out, "%d\t%s\t%s\tgain:%.3f\tmuted:%t\n",
					e.Generation, e.Kind, e.Volume.Identifier, e.Volume.Gain, e.Volume.Muted)
			}); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
