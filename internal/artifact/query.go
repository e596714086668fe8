package artifact

import (
	"sort"
	"strings"
)

// All returns every current artifact, most recently updated first.
func (s *Store) All() []Artifact {
	return s.filter(func(Artifact) bool { return true })
}

// ByType returns every artifact of type t, most recently updated first.
func (s *Store) ByType(t Type) []Artifact {
	return s.filter(func(a Artifact) bool { return a.Type == t })
}

// LatestByType returns the most recently updated artifact of type t.
func (s *Store) LatestByType(t Type) (Artifact, bool) {
	return first(s.ByType(t))
}

// ByCreator returns the artifacts created by role.
func (s *Store) ByCreator(role string) []Artifact {
	return s.filter(func(a Artifact) bool { return a.CreatedBy == role })
}

// ByStatus returns the artifacts currently in status.
func (s *Store) ByStatus(status Status) []Artifact {
	return s.filter(func(a Artifact) bool { return a.Status == status })
}

// ByFeature returns the artifacts attributed to a feature.
func (s *Store) ByFeature(featureID string) []Artifact {
	return s.filter(func(a Artifact) bool { return a.FeatureID == featureID })
}

// LatestForFeature returns the newest artifact of type t attributed to featureID.
func (s *Store) LatestForFeature(featureID string, t Type) (Artifact, bool) {
	return first(s.filter(func(a Artifact) bool {
		return a.FeatureID == featureID && a.Type == t
	}))
}

// ByName returns exact name matches followed by case-insensitive substring
// matches. Substring hits are a convenience and never define identity.
func (s *Store) ByName(name string) []Artifact {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	exact := s.filter(func(a Artifact) bool { return a.Name == name })
	partial := s.filter(func(a Artifact) bool {
		return a.Name != name && strings.Contains(strings.ToLower(a.Name), needle)
	})
	return append(exact, partial...)
}

// ForStage aggregates ByType over the artifact types the catalog declares
// for stage.
func (s *Store) ForStage(catalog StageCatalog, stage string) ([]Artifact, error) {
	types, err := catalog.ArtifactTypesForStage(stage)
	if err != nil {
		return nil, err
	}
	var results []Artifact
	for _, t := range types {
		results = append(results, s.ByType(t)...)
	}
	return results, nil
}

// Summary counts the stored artifacts by type and status.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary := Summary{
		Total:    len(s.records),
		ByType:   make(map[Type]int),
		ByStatus: make(map[Status]int),
	}
	for _, a := range s.records {
		summary.ByType[a.Type]++
		summary.ByStatus[a.Status]++
	}
	return summary
}

func (s *Store) filter(keep func(Artifact) bool) []Artifact {
	s.mu.RLock()
	var results []Artifact
	for _, a := range s.records {
		if keep(a) {
			results = append(results, a)
		}
	}
	s.mu.RUnlock()
	SortByRecency(results)
	return results
}

// SortByRecency orders artifacts by UpdatedAt descending, breaking ties by
// version and then id so results are stable.
func SortByRecency(items []Artifact) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if a.Version != b.Version {
			return a.Version > b.Version
		}
		return a.ID < b.ID
	})
}

func first(items []Artifact) (Artifact, bool) {
	if len(items) == 0 {
		return Artifact{}, false
	}
	return items[0], true
}
