package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices known to adb",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			devices, err := app.GetDevices(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No devices connected"))
				return nil
			}
			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-22s  %-12s  %-18s  %-8s  %s", "Serial", "State", "Model", "Type", "Last used")))
			for _, d := range devices {
				serial := d.ID
				if d.IsPinned {
					serial += " *"
				}
				last := "-"
				if d.LastActive > 0 {
					last = time.UnixMilli(d.LastActive).Format("2006-01-02 15:04")
				}
				fmt.Fprintf(out, "%-22s  %-12s  %-18s  %-8s  %s\n", serial, d.State, d.Model, d.Type, last)
			}
			return nil
		},
	}
}

func newDeviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Manage device preferences",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "pin <serial>",
		Short: "Pin a device as the default, or unpin it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			pinned, err := app.TogglePinDevice(args[0])
			if err != nil {
				return err
			}
			if pinned {
				fmt.Fprintf(cmd.OutOrStdout(), "Pinned %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Unpinned %s\n", args[0])
			}
			return nil
		},
	})
	return cmd
}
