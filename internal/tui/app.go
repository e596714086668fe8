// internal/tui/app.go
//
// This is the watch screen for cdm. It uses bubbletea, which follows The Elm
// Architecture:
//
// 1. Model: the latest persisted state of one feature
// 2. Update: reload on file events, poll ticks and key presses
// 3. View: render the stage board and the feature's history log
//
// The flow is: File change -> RefreshMsg -> load -> snapshotMsg -> View

package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/feature"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/logbook"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/pipeline"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/status"
)

// pollInterval backs up file notifications on filesystems that drop them.
const pollInterval = 3 * time.Second

// Source loads the latest persisted state of a feature.
type Source interface {
	Load(id string) (*feature.Feature, error)
}

// RefreshMsg asks the model to reload the feature.
type RefreshMsg struct{}

type snapshotMsg struct {
	feature *feature.Feature
	err     error
}

type pollMsg struct{}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogbook shows the tail of the feature's history log under the board.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// WithExitOnDone quits once the feature reaches a terminal status.
func WithExitOnDone() AppOption {
	return func(a *App) {
		a.exitOnDone = true
	}
}

// WithClock replaces time.Now for the "updated" line.
func WithClock(now func() time.Time) AppOption {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

// App is the watch model. In bubbletea, this holds ALL the screen state.
type App struct {
	source     Source
	definition *pipeline.Definition
	featureID  string
	logbook    *logbook.Logbook
	exitOnDone bool
	now        func() time.Time

	spinner spinner.Model
	feature *feature.Feature
	summary status.Summary
	err     error
	updated time.Time

	width  int
	height int
}

// NewApp creates a watch model for featureID.
func NewApp(source Source, def *pipeline.Definition, featureID string, opts ...AppOption) *App {
	spin := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))),
	)
	app := &App{
		source:     source,
		definition: def,
		featureID:  featureID,
		now:        time.Now,
		spinner:    spin,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.load(), a.schedulePoll())
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return a, tea.Quit
		case "r":
			return a, a.load()
		}
		return a, nil

	case RefreshMsg:
		return a, a.load()

	case pollMsg:
		return a, tea.Batch(a.load(), a.schedulePoll())

	case snapshotMsg:
		if msg.err != nil {
			a.err = msg.err
			return a, nil
		}
		a.err = nil
		a.feature = msg.feature
		a.summary = status.Summarize(msg.feature, a.definition, nil, nil)
		a.updated = a.now()
		if a.exitOnDone && msg.feature.Status.Terminal() {
			return a, tea.Quit
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

// Feature returns the last loaded snapshot, or nil before the first load.
func (a *App) Feature() *feature.Feature {
	return a.feature
}

func (a *App) load() tea.Cmd {
	return func() tea.Msg {
		f, err := a.source.Load(a.featureID)
		return snapshotMsg{feature: f, err: err}
	}
}

func (a *App) schedulePoll() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return pollMsg{}
	})
}
