package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"lrcforge/internal/api"
	"lrcforge/internal/deps"
	"lrcforge/internal/eventbus"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 16
	statusIndent     = "  "
	progressWidth    = 24
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressBar renders current/total as a fixed-width bar.
func progressBar(current, total int) string {
	if total <= 0 {
		return "[" + strings.Repeat(" ", progressWidth) + "]"
	}
	filled := min(progressWidth, current*progressWidth/total)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(" ", progressWidth-filled) + "]"
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses))
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	return lines
}

func batchLines(status api.TaskStatus, colorize bool) []string {
	if status.BatchID == "" {
		return []string{renderStatusLine("Batch", statusInfo, "No batch has run yet", colorize)}
	}
	p := status.Progress
	var lines []string
	switch {
	case status.Running:
		detail := fmt.Sprintf("%s %d/%d %s", progressBar(p.Current, p.Total), p.Current, p.Total, p.Phase)
		lines = append(lines, renderStatusLine("Batch", statusOK, detail, colorize))
		if p.Item != "" {
			lines = append(lines, renderStatusLine("Item", statusInfo, fmt.Sprintf("%s (%.0fs)", p.Item, p.Duration), colorize))
		}
	case status.Cancelled:
		lines = append(lines, renderStatusLine("Batch", statusWarn, "Cancelled", colorize))
	default:
		kind := statusOK
		if status.FailCount > 0 {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine("Batch", kind, "Finished ("+p.Phase+")", colorize))
	}
	lines = append(lines,
		renderStatusLine("Batch ID", statusInfo, status.BatchID, colorize),
		renderStatusLine("Results", statusInfo, fmt.Sprintf("%d succeeded, %d failed", status.SuccessCount, status.FailCount), colorize),
	)
	return lines
}

// formatEvent renders one event as a feed line; empty means skip.
func formatEvent(ev eventbus.Event) string {
	switch p := ev.Payload.(type) {
	case eventbus.Progress:
		return fmt.Sprintf("[%d/%d] %s %s", p.Current, p.Total, p.Phase, p.Item)
	case eventbus.Line:
		return fmt.Sprintf("    %s %s", p.Time, p.Text)
	case eventbus.PhaseOneComplete:
		return fmt.Sprintf("    lyrics written for %s", p.Item)
	case eventbus.Error:
		return fmt.Sprintf("    error: %s: %s", p.Item, p.Message)
	case eventbus.ItemComplete:
		if p.Success {
			return fmt.Sprintf("    done: %s", p.Item)
		}
		return fmt.Sprintf("    failed: %s", p.Item)
	case eventbus.BatchComplete:
		return fmt.Sprintf("batch complete: %d succeeded, %d failed", p.SuccessCount, p.FailCount)
	case eventbus.BatchCancelled:
		return "batch cancelled"
	case eventbus.MergeProgress:
		return fmt.Sprintf("%s %3d%% %s", progressBar(p.Percent, 100), p.Percent, p.Message)
	case eventbus.MergeComplete:
		if p.Success {
			return "merge complete: " + p.Output
		}
		return "merge failed: " + p.Message
	default:
		return ""
	}
}
