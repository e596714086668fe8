package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/fsutil"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/logging"
)

// ErrNotFound reports a lookup for an id the store does not hold.
var ErrNotFound = errors.New("artifact: not found")

const (
	recordExt  = ".md"
	historyDir = "history"
)

// Store is the durable, versioned artifact repository. Records live in
// memory for queries and on disk as one frontmatter document per id.
// Saves to the same (feature, type, name) identity are serialized.
type Store struct {
	fs     afero.Fs
	dir    string
	now    func() time.Time
	newID  func() string
	logger *logging.Logger

	mu         sync.RWMutex
	records    map[string]Artifact
	byIdentity map[Identity]string

	locksMu sync.Mutex
	locks   map[Identity]*sync.Mutex
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for record timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithLogger routes load warnings and write diagnostics.
func WithLogger(logger *logging.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator overrides how fresh artifact ids are minted.
func WithIDGenerator(gen func() string) StoreOption {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewStore opens the store rooted at dir and reloads every durable record
// found there. Malformed records are logged and skipped.
func NewStore(fs afero.Fs, dir string, opts ...StoreOption) (*Store, error) {
	if fs == nil {
		return nil, fmt.Errorf("artifact: filesystem is required")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("artifact: store directory is required")
	}
	s := &Store{
		fs:         fs,
		dir:        filepath.Clean(dir),
		now:        time.Now,
		newID:      uuid.NewString,
		logger:     logging.NopLogger(),
		records:    make(map[string]Artifact),
		byIdentity: make(map[Identity]string),
		locks:      make(map[Identity]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the directory holding the durable records.
func (s *Store) Dir() string {
	return s.dir
}

// Save stores a. A new (feature, type, name) identity gets version 1 and a fresh id
// unless a.ID is supplied. An existing identity keeps its original id,
// increments its version, and archives the superseded record. The record
// is written to disk before it becomes visible to readers.
func (s *Store) Save(a Artifact) (Artifact, error) {
	if strings.TrimSpace(string(a.Type)) == "" {
		return Artifact{}, fmt.Errorf("artifact: type is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return Artifact{}, fmt.Errorf("artifact: name is required for %s", a.Type)
	}
	ident := a.Identity()
	unlock := s.lockIdentity(ident)
	defer unlock()

	s.mu.RLock()
	existingID, exists := s.byIdentity[ident]
	existing := s.records[existingID]
	_, idTaken := s.records[a.ID]
	s.mu.RUnlock()

	now := s.now().UTC()
	record := a
	if exists {
		record.ID = existing.ID
		record.Version = existing.Version + 1
		record.CreatedAt = existing.CreatedAt
		if !now.After(existing.UpdatedAt) {
			now = existing.UpdatedAt.Add(time.Nanosecond)
		}
		record.UpdatedAt = now
		if err := s.archive(existing); err != nil {
			return Artifact{}, err
		}
	} else {
		if record.ID == "" {
			record.ID = s.newID()
		} else if idTaken {
			return Artifact{}, fmt.Errorf("artifact: id %s already belongs to another artifact", record.ID)
		}
		record.Version = 1
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		record.CreatedAt = record.CreatedAt.UTC()
		record.UpdatedAt = now
	}
	if record.Status == "" {
		record.Status = StatusDraft
	}
	if record.ReviewStatus == "" {
		record.ReviewStatus = ReviewPending
	}
	if record.FilePath == "" {
		record.FilePath = filepath.ToSlash(filepath.Join(filepath.Base(s.dir), record.ID+recordExt))
	}

	data, err := WriteDocument(record)
	if err != nil {
		return Artifact{}, err
	}
	if err := fsutil.WriteFileAtomic(s.fs, s.recordPath(record.ID), data, 0o644); err != nil {
		s.logger.Error("artifact write failed", "id", record.ID, "identity", ident.String(), "error", err)
		return Artifact{}, fmt.Errorf("artifact: persist %s: %w", record.ID, err)
	}

	s.mu.Lock()
	s.records[record.ID] = record
	s.byIdentity[ident] = record.ID
	s.mu.Unlock()
	s.logger.Debug("artifact stored", "id", record.ID, "identity", ident.String(), "version", record.Version)
	return record, nil
}

// Get returns the current version of the artifact with id.
func (s *Store) Get(id string) (Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.records[id]
	return a, ok
}

// Len reports the number of artifacts held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// History returns the superseded versions of id, oldest first.
func (s *Store) History(id string) ([]Artifact, error) {
	if _, ok := s.Get(id); !ok {
		return nil, fmt.Errorf("artifact: history for %s: %w", id, ErrNotFound)
	}
	dir := filepath.Join(s.dir, historyDir, id)
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("artifact: read history for %s: %w", id, err)
	}
	versions := make([]Artifact, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != recordExt {
			continue
		}
		data, err := afero.ReadFile(s.fs, filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("artifact: read history for %s: %w", id, err)
		}
		a, err := ParseDocument(data)
		if err != nil {
			s.logger.Warn("skipping malformed history record", "id", id, "file", entry.Name(), "error", err)
			continue
		}
		versions = append(versions, a)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	return versions, nil
}

// Remove deletes the record and its durable files. It reports false when
// the id is unknown.
func (s *Store) Remove(id string) (bool, error) {
	current, ok := s.Get(id)
	if !ok {
		return false, nil
	}
	unlock := s.lockIdentity(current.Identity())
	defer unlock()

	// The record may have been removed while waiting for the lock.
	if _, ok := s.Get(id); !ok {
		return false, nil
	}
	if err := s.fs.Remove(s.recordPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("artifact: remove %s: %w", id, err)
	}
	if err := s.fs.RemoveAll(filepath.Join(s.dir, historyDir, id)); err != nil {
		return false, fmt.Errorf("artifact: remove history for %s: %w", id, err)
	}
	s.mu.Lock()
	delete(s.records, id)
	if s.byIdentity[current.Identity()] == id {
		delete(s.byIdentity, current.Identity())
	}
	s.mu.Unlock()
	return true, nil
}

// Clear removes every record and durable file. It must not run alongside
// Save; it exists for resets and tests.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("artifact: clear %s: %w", s.dir, err)
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("artifact: recreate %s: %w", s.dir, err)
	}
	s.records = make(map[string]Artifact)
	s.byIdentity = make(map[Identity]string)
	return nil
}

func (s *Store) lockIdentity(ident Identity) func() {
	s.locksMu.Lock()
	lock, ok := s.locks[ident]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[ident] = lock
	}
	s.locksMu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (s *Store) archive(previous Artifact) error {
	data, err := WriteDocument(previous)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, historyDir, previous.ID, "v"+strconv.Itoa(previous.Version)+recordExt)
	if err := fsutil.WriteFileAtomic(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("artifact: archive %s v%d: %w", previous.ID, previous.Version, err)
	}
	return nil
}

func (s *Store) recordPath(id string) string {
	return filepath.Join(s.dir, id+recordExt)
}

func (s *Store) load() error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("artifact: ensure store dir: %w", err)
	}
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return fmt.Errorf("artifact: scan store dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != recordExt {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := afero.ReadFile(s.fs, path)
		if err != nil {
			s.logger.Warn("skipping unreadable artifact", "file", path, "error", err)
			continue
		}
		a, err := ParseDocument(data)
		if err != nil {
			s.logger.Warn("skipping malformed artifact", "file", path, "error", err)
			continue
		}
		if strings.TrimSuffix(entry.Name(), recordExt) != a.ID {
			s.logger.Warn("skipping artifact with mismatched id", "file", path, "id", a.ID)
			continue
		}
		ident := a.Identity()
		if prevID, dup := s.byIdentity[ident]; dup {
			prev := s.records[prevID]
			if prev.Version >= a.Version {
				s.logger.Warn("skipping duplicate artifact identity", "identity", ident.String(), "id", a.ID)
				continue
			}
			delete(s.records, prevID)
		}
		s.records[a.ID] = a
		s.byIdentity[ident] = a.ID
	}
	return nil
}
