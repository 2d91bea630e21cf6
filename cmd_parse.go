package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"Fleetbench/pkg/parser"
)

// newParseCmd parses saved device output without a device
func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse saved adb output offline",
		Long: `Parse output captured earlier from a device. Input is read from the given
file, or from stdin when the file is "-" or missing.

Examples:
  adb shell am start -W -n com.twitter.android/.StartActivity | fleetbench parse launch
  fleetbench parse cache meminfo.txt
  fleetbench parse frames gfxinfo.txt`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "launch [file|-]",
		Short: "Parse 'am start -W' output",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			res, perr := parser.ParseLaunchResult(input)
			if perr != nil {
				LogWarn("parse").Err(perr).Msg("Malformed field")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "status= %s\n", res.Status)
			fmt.Fprintf(out, "launch_state= %s\n", res.LaunchState)
			fmt.Fprintf(out, "bucket= %s\n", res.LaunchState.Bucket())
			fmt.Fprintf(out, "wait_time= %d\n", res.WaitTimeMs)
			if res.TotalTimeMs > 0 {
				fmt.Fprintf(out, "total_time= %d\n", res.TotalTimeMs)
			}
			return nil
		},
	})

	var trim bool
	var allow []string
	cacheCmd := &cobra.Command{
		Use:   "cache [file|-]",
		Short: "Find tracked apps in 'dumpsys meminfo' output",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if len(allow) == 0 {
				allow = cfg.Cache.AllowList
			}
			if !cmd.Flags().Changed("trim-lines") {
				trim = cfg.Cache.TrimLines
			}
			set := parser.NewCachedAppParser(allow, trim).Parse(input)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cached_app_count= %d\n", set.Len())
			for _, pkg := range set.Sorted() {
				fmt.Fprintln(out, pkg)
			}
			return nil
		},
	}
	cacheCmd.Flags().BoolVar(&trim, "trim-lines", false, "strip each line before splitting (default cache.trim_lines)")
	cacheCmd.Flags().StringSliceVar(&allow, "allow", nil, "packages to look for (default cache.allow_list)")
	cmd.AddCommand(cacheCmd)

	var asJSON bool
	framesCmd := &cobra.Command{
		Use:   "frames [file|-]",
		Short: "Parse the 'dumpsys gfxinfo' profile table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			frames := parser.ParseFrames(input)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(frames)
			}
			for i, f := range frames {
				fmt.Fprintf(out, "idx= %d total= %.2f draw= %.2f prepare= %.2f execute= %.2f\n",
					i+1, f.Total(), f.DrawMs, f.PrepareMs, f.ExecuteMs)
			}
			RenderFrameSummary(out, "", frames)
			return nil
		},
	}
	framesCmd.Flags().BoolVar(&asJSON, "json", false, "print frames as JSON")
	cmd.AddCommand(framesCmd)

	return cmd
}

// readInput reads the file named by args[0], or stdin
func readInput(cmd *cobra.Command, args []string) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(data), nil
}
