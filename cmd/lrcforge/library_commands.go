package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"lrcforge/internal/api"
	"lrcforge/internal/history"
	"lrcforge/internal/library"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List audio files in the source directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				files, err := client.Files(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, files)
				}
				printFiles(cmd.OutOrStdout(), files, true)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printFiles(out io.Writer, files []library.File, artifacts bool) {
	if len(files) == 0 {
		fmt.Fprintln(out, "No audio files found")
		return
	}
	headers := []string{"File", "Size"}
	aligns := []columnAlignment{alignLeft, alignRight}
	if artifacts {
		headers = append(headers, "Lyric", "Output", "Status")
	}
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		row := []string{f.Name, formatSize(f.Size)}
		if artifacts {
			row = append(row, yesNo(f.HasLyric), yesNo(f.HasOutput), string(f.Status))
		}
		rows = append(rows, row)
	}
	fmt.Fprint(out, renderTable(headers, rows, aligns))
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

func newModelsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List supported whisper models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				models, err := client.Models(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, models)
				}
				current := ""
				if cfg := ctx.configValue(); cfg != nil {
					current = cfg.Transcription.Model
				}
				out := cmd.OutOrStdout()
				for _, model := range models {
					marker := "  "
					if model == current {
						marker = "* "
					}
					fmt.Fprintln(out, marker+model)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished batches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				printHistory(cmd.OutOrStdout(), resp.Batches)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of batches to list")
	return cmd
}

func printHistory(out io.Writer, records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No batches recorded")
		return
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ID,
			string(rec.Phase),
			strconv.Itoa(rec.Total),
			strconv.Itoa(rec.SuccessCount),
			strconv.Itoa(rec.FailCount),
			rec.FinishedAt.Local().Format(time.DateTime),
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Batch", "Phase", "Files", "OK", "Failed", "Finished"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
}
