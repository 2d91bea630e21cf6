package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			runs, err := app.ListRuns(limit)
			if err != nil {
				return err
			}
			RenderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs (0 = all)")
	return cmd
}

func newReportCmd() *cobra.Command {
	var (
		format string
		query  string
		remove bool
	)
	cmd := &cobra.Command{
		Use:   "report <run-id|last>",
		Short: "Show the report of a stored run",
		Long: `Rebuild the report of a stored run from its samples.

Examples:
  fleetbench report last
  fleetbench report 5f0c6a4e-2d3b-4c1e-9a8f-0b1c2d3e4f50 --format json
  fleetbench report last -q 'cachedCounts'
  fleetbench report 5f0c6a4e-2d3b-4c1e-9a8f-0b1c2d3e4f50 --delete`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			if remove {
				if err := app.DeleteRun(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
				return nil
			}

			rep, err := app.GetReport(args[0])
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), rep, format, query)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", FormatText, "report format: text or json")
	cmd.Flags().StringVarP(&query, "query", "q", "", "print only this gjson path of the JSON report")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the run instead of showing it")
	return cmd
}
