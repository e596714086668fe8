package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/status"
)

const logTailLines = 8

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	logHead    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	logBody    = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// View renders the current state to a string.
func (a *App) View() string {
	sections := []string{headerStyle.Render("⬡ CDM · " + a.featureID)}

	switch {
	case a.feature == nil && a.err != nil:
		sections = append(sections, errorStyle.Render("Error: "+a.err.Error()))
	case a.feature == nil:
		sections = append(sections, a.spinner.View()+" Loading feature...")
	default:
		sections = append(sections, a.renderActivity(), status.Render(a.summary))
		if a.err != nil {
			sections = append(sections, errorStyle.Render("Refresh failed: "+a.err.Error()))
		}
		if panel := a.renderLogPanel(); panel != "" {
			sections = append(sections, panel)
		}
	}
	sections = append(sections, mutedStyle.Render("r refresh · q quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (a *App) renderActivity() string {
	var line string
	if a.feature.Status.Terminal() {
		line = status.FeatureLabel(a.feature.Status)
	} else {
		current := a.feature.CurrentStage
		if stage, ok := a.definition.Stage(current); ok {
			current = stage.Name
		}
		line = fmt.Sprintf("%s %s %s", a.spinner.View(), status.FeatureLabel(a.feature.Status), current)
	}
	if !a.updated.IsZero() {
		line += mutedStyle.Render(" · updated " + humanizeDuration(a.now().Sub(a.updated)) + " ago")
	}
	return line
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(logTailLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := logHead.Render(fmt.Sprintf("LOG · %s (%d entries)", fileName, total))
	body := logBody.Render(strings.Join(lines, "\n"))
	return panelStyle.Render(fmt.Sprintf("%s\n%s", head, body))
}

func humanizeDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh", int(d.Hours()))
}
