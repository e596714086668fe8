package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

// debounceWindow collapses the burst of events an atomic rename produces.
const debounceWindow = 50 * time.Millisecond

// Watcher reports changes inside one feature directory.
type Watcher struct {
	watcher *fsnotify.Watcher
	dir     string
}

// NewWatcher starts watching dir. The directory must exist.
func NewWatcher(dir string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tui: create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("tui: watch %s: %w", dir, err)
	}
	return &Watcher{watcher: w, dir: dir}, nil
}

// Run calls notify once per burst of write, create or rename events until
// ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, notify func()) error {
	timer := time.NewTimer(debounceWindow)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounceWindow)

		case <-timer.C:
			notify()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				notify()
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run drives the watch screen until the user quits, ctx is cancelled or,
// with WithExitOnDone, the feature finishes. File events under dir trigger
// a reload; polling covers filesystems without notifications.
func Run(ctx context.Context, app *App, dir string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(app, tea.WithContext(ctx), tea.WithAltScreen())
	if w, err := NewWatcher(dir); err == nil {
		defer w.Close()
		go func() {
			_ = w.Run(ctx, func() { program.Send(RefreshMsg{}) })
		}()
	}
	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
