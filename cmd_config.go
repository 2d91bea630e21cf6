package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"Fleetbench/pkg/config"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fleetbench version %s\n", Version)
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefault(cfgFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			if cfgFile != "" {
				fmt.Fprintln(cmd.OutOrStdout(), cfgFile)
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), config.DefaultPath())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Print(cfg, cmd.OutOrStdout())
		},
	})

	return cmd
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools over stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout so AI clients can
parse device output, run experiments and read stored reports.
Edits to the config file are picked up without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()
			// stdout carries the protocol
			app.out = io.Discard
			return StartMCPServer(app)
		},
	}
}
