package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"lrcforge/internal/api"
	"lrcforge/internal/merge"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	mergeCmd := &cobra.Command{
		Use:   "merge",
		Short: "Concatenate audio files into one WAV",
	}

	var output string
	var deleteSources bool
	var watch bool
	startCmd := &cobra.Command{
		Use:   "start <file> <file>...",
		Short: "Merge files from the merge source directory",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.StartMerge(cmd.Context(), api.MergeStartRequest{
					Files:         args,
					Output:        output,
					DeleteSources: deleteSources,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Merge %s started: %d file(s) into %s\n", status.JobID, status.Files, status.Output)
				if !watch {
					return nil
				}
				return followStream(cmd.Context(), client, api.MergeStreamPath, cmd.OutOrStdout())
			})
		},
	}
	startCmd.Flags().StringVarP(&output, "output", "o", "", "Output file name in the merge output directory")
	startCmd.Flags().BoolVar(&deleteSources, "delete-sources", false, "Delete source files after a successful merge")
	startCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow progress until the merge finishes")

	var asJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current or last merge job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.MergeStatus(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				printMergeStatus(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running merge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				cancelled, err := client.CancelMerge(cmd.Context())
				if err != nil {
					return err
				}
				if cancelled {
					fmt.Fprintln(cmd.OutOrStdout(), "Merge cancelled")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "No merge is running")
				}
				return nil
			})
		},
	}

	var filesJSON bool
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "List audio files in the merge source directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				files, err := client.MergeFiles(cmd.Context())
				if err != nil {
					return err
				}
				if filesJSON {
					return writeJSON(cmd, files)
				}
				printFiles(cmd.OutOrStdout(), files, false)
				return nil
			})
		},
	}
	filesCmd.Flags().BoolVar(&filesJSON, "json", false, "Output as JSON")

	mergeCmd.AddCommand(startCmd, statusCmd, cancelCmd, filesCmd)
	return mergeCmd
}

func printMergeStatus(out io.Writer, status api.MergeStatus) {
	colorize := shouldColorize(out)
	kind := statusInfo
	switch merge.State(status.State) {
	case merge.StateRunning, merge.StateCompleted:
		kind = statusOK
	case merge.StateCancelled:
		kind = statusWarn
	case merge.StateFailed:
		kind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("State", kind, status.State, colorize))
	if status.JobID == "" {
		return
	}
	fmt.Fprintln(out, renderStatusLine("Job", statusInfo, status.JobID, colorize))
	fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, fmt.Sprintf("%s %d%% %s", progressBar(status.Percent, 100), status.Percent, status.Message), colorize))
	fmt.Fprintln(out, renderStatusLine("Output", statusInfo, status.Output, colorize))
	if status.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, status.Error, colorize))
	}
}
