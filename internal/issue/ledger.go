package issue

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound reports an unknown issue id.
var ErrNotFound = errors.New("issue: not found")

// Ledger accumulates the issues of one feature. Recording is idempotent
// by issue id. It is safe for concurrent use.
type Ledger struct {
	featureID string

	mu    sync.RWMutex
	order []string
	byID  map[string]Issue
}

// NewLedger builds a ledger, seeding it with previously persisted issues.
func NewLedger(featureID string, existing ...Issue) *Ledger {
	l := &Ledger{featureID: featureID, byID: make(map[string]Issue)}
	l.Record(existing...)
	return l
}

// FeatureID returns the feature the ledger belongs to.
func (l *Ledger) FeatureID() string {
	return l.featureID
}

// Record appends issues not already present and returns how many were new.
func (l *Ledger) Record(issues ...Issue) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	added := 0
	for _, is := range issues {
		if is.ID == "" {
			continue
		}
		if _, ok := l.byID[is.ID]; ok {
			continue
		}
		if is.Status == "" {
			is.Status = StatusOpen
		}
		l.byID[is.ID] = is
		l.order = append(l.order, is.ID)
		added++
	}
	return added
}

// Get returns the issue with id.
func (l *Ledger) Get(id string) (Issue, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	is, ok := l.byID[id]
	return is, ok
}

// All returns every issue in recording order.
func (l *Ledger) All() []Issue {
	return l.filter(func(Issue) bool { return true })
}

// Len returns the number of recorded issues.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// ByStage returns the issues raised by stage across all attempts.
func (l *Ledger) ByStage(stage string) []Issue {
	return l.filter(func(is Issue) bool { return is.Stage == stage })
}

// ByAttempt returns the issues raised by one attempt of stage.
func (l *Ledger) ByAttempt(stage string, attempt int) []Issue {
	return l.filter(func(is Issue) bool { return is.Stage == stage && is.Attempt == attempt })
}

// BySeverity returns the issues with severity s.
func (l *Ledger) BySeverity(s Severity) []Issue {
	return l.filter(func(is Issue) bool { return is.Severity == s })
}

// Blocking returns open issues of high or critical severity.
func (l *Ledger) Blocking() []Issue {
	return l.filter(Issue.Blocking)
}

// Counts groups issues by severity.
func (l *Ledger) Counts() map[Severity]int {
	counts := make(map[Severity]int, len(severityRank))
	for _, is := range l.All() {
		counts[is.Severity]++
	}
	return counts
}

// Resolve marks an issue resolved without touching its content.
func (l *Ledger) Resolve(id string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	is, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("issue: resolve %s: %w", id, ErrNotFound)
	}
	if is.Status == StatusResolved {
		return nil
	}
	resolved := at.UTC()
	is.Status = StatusResolved
	is.ResolvedAt = &resolved
	l.byID[id] = is
	return nil
}

func (l *Ledger) filter(keep func(Issue) bool) []Issue {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var results []Issue
	for _, id := range l.order {
		if is := l.byID[id]; keep(is) {
			results = append(results, is)
		}
	}
	return results
}
