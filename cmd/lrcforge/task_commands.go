package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"lrcforge/internal/api"
	"lrcforge/internal/eventbus"
	"lrcforge/internal/merge"
)

// recentEventLimit bounds the events printed by status.
const recentEventLimit = 10

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon health and the current batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				health, err := client.Health(cmd.Context())
				if err != nil {
					return err
				}
				status, err := client.TaskStatus(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, struct {
						Health api.HealthResponse `json:"health"`
						Task   api.TaskStatus     `json:"task"`
					}{health, status})
				}
				printStatus(cmd.OutOrStdout(), health, status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printStatus(out io.Writer, health api.HealthResponse, status api.TaskStatus) {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	healthKind, healthText := statusOK, "Healthy"
	if !health.Healthy {
		healthKind, healthText = statusWarn, "Missing dependencies"
	}
	fmt.Fprintln(out, renderStatusLine("Health", healthKind, healthText, colorize))
	fmt.Fprintln(out, renderStatusLine("PID", statusInfo, strconv.Itoa(health.PID), colorize))
	fmt.Fprintln(out, renderStatusLine("Config", statusInfo, health.ConfigPath, colorize))
	if health.HistoryPath != "" {
		fmt.Fprintln(out, renderStatusLine("History", statusInfo, health.HistoryPath, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Merge", statusInfo, yesNo(health.MergeRunning), colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range dependencyLines(health.Dependencies, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Batch", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range batchLines(status, colorize) {
		fmt.Fprintln(out, line)
	}
	if len(status.Items) > 0 {
		rows := make([][]string, 0, len(status.Items))
		for i, item := range status.Items {
			rows = append(rows, []string{strconv.Itoa(i + 1), item.Name, string(item.Status), item.Error})
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable([]string{"#", "File", "Status", "Error"}, rows, []columnAlignment{alignRight}))
	}

	events := status.RecentEvents
	if len(events) > recentEventLimit {
		events = events[len(events)-recentEventLimit:]
	}
	if len(events) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Recent Events", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, ev := range events {
			if line := formatEvent(ev); line != "" {
				fmt.Fprintln(out, line)
			}
		}
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "start <file>...",
		Short: "Transcribe and tag files from the source directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.StartTask(cmd.Context(), args)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Batch %s started with %d file(s)\n", resp.BatchID, resp.FilesCount)
				if !watch {
					return nil
				}
				return followStream(cmd.Context(), client, api.TaskStreamPath, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow progress until the batch finishes")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				cancelled, err := client.CancelTask(cmd.Context())
				if err != nil {
					return err
				}
				if cancelled {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancellation requested")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "No batch is running")
				}
				return nil
			})
		},
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var mergeStream bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow batch events until the batch finishes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := api.TaskStreamPath
			if mergeStream {
				path = api.MergeStreamPath
			}
			return ctx.withClient(func(client *api.Client) error {
				active, err := runActive(cmd.Context(), client, path)
				if err != nil {
					return err
				}
				if !active {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing is running")
					return nil
				}
				return followStream(cmd.Context(), client, path, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVar(&mergeStream, "merge", false, "Follow the merge job instead of the batch")
	return cmd
}

// streamCheckInterval is how often a follower confirms the run is still active,
// covering runs that finish before the stream subscription is registered.
const streamCheckInterval = time.Second

// followStream prints events until a terminal event, the server closes the
// stream, or a status check reports the run is no longer active.
func followStream(ctx context.Context, client *api.Client, path string, out io.Writer) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var finished atomic.Bool
	go func() {
		ticker := time.NewTicker(streamCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-streamCtx.Done():
				return
			case <-ticker.C:
				active, err := runActive(streamCtx, client, path)
				if err == nil && !active {
					finished.Store(true)
					cancel()
					return
				}
			}
		}
	}()

	err := client.Stream(streamCtx, path, func(ev eventbus.Event) error {
		if line := formatEvent(ev); line != "" {
			fmt.Fprintln(out, line)
		}
		if ev.Type.Terminal() {
			return api.ErrStopStream
		}
		return nil
	})
	if finished.Load() && ctx.Err() == nil {
		fmt.Fprintln(out, "finished")
		return nil
	}
	return err
}

func runActive(ctx context.Context, client *api.Client, path string) (bool, error) {
	if path == api.MergeStreamPath {
		status, err := client.MergeStatus(ctx)
		return status.State == string(merge.StateRunning), err
	}
	status, err := client.TaskStatus(ctx)
	return status.Running, err
}
