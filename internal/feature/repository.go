package feature

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/fsutil"
)

// ErrNotFound is returned when no persisted state exists for a feature.
var ErrNotFound = errors.New("feature: not found")

const (
	stateFile   = "state.json"
	pauseMarker = "PAUSE"
)

// Store persists feature snapshots.
type Store interface {
	Load(id string) (*Feature, error)
	Save(f *Feature) error
}

// Repository keeps one directory per feature under dir.
type Repository struct {
	fs  afero.Fs
	dir string
}

// NewRepository creates a repository rooted at dir.
func NewRepository(fs afero.Fs, dir string) *Repository {
	return &Repository{fs: fs, dir: filepath.Clean(dir)}
}

// Dir returns the directory holding feature id's files.
func (r *Repository) Dir(id string) string {
	return filepath.Join(r.dir, id)
}

// StatePath returns the state file path for feature id.
func (r *Repository) StatePath(id string) string {
	return filepath.Join(r.Dir(id), stateFile)
}

// Load reads the persisted state of feature id.
func (r *Repository) Load(id string) (*Feature, error) {
	data, err := afero.ReadFile(r.fs, r.StatePath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("feature: %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("feature: read %s: %w", id, err)
	}
	var f Feature
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("feature: decode %s: %w", id, err)
	}
	if f.StageResults == nil {
		f.StageResults = make(map[string]*StageResult)
	}
	return &f, nil
}

// Save writes the feature state atomically.
func (r *Repository) Save(f *Feature) error {
	if f == nil || f.ID == "" {
		return fmt.Errorf("feature: id is required")
	}
	encoded, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("feature: encode %s: %w", f.ID, err)
	}
	if err := fsutil.WriteFileAtomic(r.fs, r.StatePath(f.ID), append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("feature: save %s: %w", f.ID, err)
	}
	return nil
}

// List loads every persisted feature, oldest first. Unreadable entries
// are returned as an error alongside the features that did load.
func (r *Repository) List() ([]*Feature, error) {
	entries, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("feature: list: %w", err)
	}
	var (
		features []*Feature
		errs     []error
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		f, err := r.Load(entry.Name())
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		features = append(features, f)
	}
	sort.Slice(features, func(i, j int) bool {
		if features[i].CreatedAt.Equal(features[j].CreatedAt) {
			return features[i].ID < features[j].ID
		}
		return features[i].CreatedAt.Before(features[j].CreatedAt)
	})
	return features, errors.Join(errs...)
}

// RequestPause drops a marker the orchestrator checks between stages.
func (r *Repository) RequestPause(id string) error {
	if _, err := r.Load(id); err != nil {
		return err
	}
	if err := afero.WriteFile(r.fs, filepath.Join(r.Dir(id), pauseMarker), []byte{}, 0o644); err != nil {
		return fmt.Errorf("feature: request pause %s: %w", id, err)
	}
	return nil
}

// PauseRequested reports whether a pause marker exists for id.
func (r *Repository) PauseRequested(id string) bool {
	ok, err := afero.Exists(r.fs, filepath.Join(r.Dir(id), pauseMarker))
	return err == nil && ok
}

// ClearPause removes the pause marker if present.
func (r *Repository) ClearPause(id string) error {
	err := r.fs.Remove(filepath.Join(r.Dir(id), pauseMarker))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("feature: clear pause %s: %w", id, err)
	}
	return nil
}
