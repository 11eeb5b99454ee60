package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/muesli/termenv"

	"github.com/pergolab/pergola/pkg/domain"
)

// ReportMarkdown formats a run report as a markdown document.
func ReportMarkdown(report *domain.Report) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Run %s\n\n", report.RunID)
	fmt.Fprintf(&sb, "**Graph:** %s  \n", report.Graph)
	if !report.FinishedAt.IsZero() {
		fmt.Fprintf(&sb, "**Duration:** %s  \n", report.FinishedAt.Sub(report.StartedAt).Round(1_000_000))
	}
	fmt.Fprintf(&sb, "**Items:** %d total, %d succeeded, %d failed, %d timed out\n\n",
		report.Total, report.Succeeded, report.Failed, report.TimedOut)

	if report.Err != "" {
		fmt.Fprintf(&sb, "> ⚠️ Run degraded: %s\n\n", report.Err)
	}

	if len(report.Items) > 0 {
		sb.WriteString("| # | Status | Attempts | Error |\n")
		sb.WriteString("|---|--------|----------|-------|\n")
		for _, item := range report.Items {
			msg := ""
			if item.Failure != nil {
				msg = item.Failure.Message
			}
			fmt.Fprintf(&sb, "| %d | %s | %d | %s |\n",
				item.Index, statusIcon(item.Status), item.Attempts, escapePipes(msg))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func statusIcon(s domain.ItemStatus) string {
	switch s {
	case domain.StatusSucceeded:
		return "✅ succeeded"
	case domain.StatusTimedOut:
		return "⏱️ timed out"
	case domain.StatusFailed:
		return "❌ failed"
	default:
		return string(s)
	}
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// IsInteractive reports whether stdout is a terminal capable of styled
// output. Piped output should stay plain markdown.
func IsInteractive() bool {
	out := termenv.NewOutput(os.Stdout)
	return !out.EnvNoColor() && termenv.ColorProfile() != termenv.Ascii
}
