package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/feature"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/issue"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	approvedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	pausedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	skippedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	boxStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

const progressWidth = 24

// StageLabel returns the marker and style used for a stage status.
func StageLabel(status feature.StageStatus) (string, lipgloss.Style) {
	switch status {
	case feature.StageApproved:
		return "✓ approved", approvedStyle
	case feature.StageFailed:
		return "✗ failed", failedStyle
	case feature.StageInProgress:
		return "● running", runningStyle
	case feature.StageSkipped:
		return "- skipped", skippedStyle
	default:
		return "○ pending", pendingStyle
	}
}

// FeatureLabel styles a feature status.
func FeatureLabel(status feature.Status) string {
	switch status {
	case feature.StatusCompleted:
		return approvedStyle.Render(string(status))
	case feature.StatusFailed:
		return failedStyle.Render(string(status))
	case feature.StatusPaused:
		return pausedStyle.Render(string(status))
	default:
		return runningStyle.Render(string(status))
	}
}

// Render formats a summary as a boxed multi-line report.
func Render(s Summary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(s.Name))
	b.WriteString(" ")
	b.WriteString(mutedStyle.Render("[" + s.FeatureID + "]"))
	b.WriteString("\n")

	status := FeatureLabel(s.Status)
	if s.StatusReason != "" {
		status += mutedStyle.Render(" (" + s.StatusReason + ")")
	}
	fmt.Fprintf(&b, "Status:   %s\n", status)
	if s.Priority != "" {
		fmt.Fprintf(&b, "Priority: %s\n", s.Priority)
	}
	fmt.Fprintf(&b, "Progress: %s %d/%d\n\n", progressBar(s.Progress(), progressWidth), s.Completed, s.Total)

	for _, row := range s.Stages {
		label, style := StageLabel(row.Status)
		pointer := "  "
		if row.Current {
			pointer = runningStyle.Render("▶ ")
		}
		name := row.Name
		if name == "" {
			name = row.Stage
		}
		line := fmt.Sprintf("%s%-24s %s", pointer, name, style.Render(label))
		var details []string
		if row.Retries > 0 {
			details = append(details, fmt.Sprintf("retries %d", row.Retries))
		}
		if row.Artifacts > 0 {
			details = append(details, fmt.Sprintf("%d artifacts", row.Artifacts))
		}
		if row.Issues > 0 {
			details = append(details, fmt.Sprintf("%d issues", row.Issues))
		}
		if row.Error != "" {
			details = append(details, row.Error)
		}
		if len(details) > 0 {
			line += "  " + detailStyle.Render(strings.Join(details, ", "))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Artifacts: %d   Issues: %s\n", s.ArtifactCount, severityLine(s.IssueCounts))
	if len(s.Blocking) > 0 {
		b.WriteString(failedStyle.Render(fmt.Sprintf("Blocking issues (%d):", len(s.Blocking))))
		b.WriteString("\n")
		for _, is := range s.Blocking {
			fmt.Fprintf(&b, "  %s %s %s\n", failedStyle.Render(string(is.Severity)), is.Title, mutedStyle.Render(is.Stage))
		}
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func severityLine(counts map[issue.Severity]int) string {
	var parts []string
	for _, sev := range issue.Severities() {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func progressBar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(width))
	return approvedStyle.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", width-filled))
}
