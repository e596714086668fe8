// Package role holds the static catalog of pipeline roles: what each role
// needs as input, what it produces, and where it sits in the reporting
// hierarchy.
package role

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
)

// ErrUnknownRole reports a lookup or reference to a role not in the catalog.
var ErrUnknownRole = errors.New("role: unknown role")

// Role is an immutable ownership label with declared artifact contracts.
type Role struct {
	ID             string          `yaml:"id"`
	Title          string          `yaml:"title"`
	RequiredInputs []artifact.Type `yaml:"required_inputs"`
	Outputs        []artifact.Type `yaml:"outputs"`
	ReportsTo      string          `yaml:"reports_to"`
	DirectReports  []string        `yaml:"direct_reports"`
}

func (r Role) clone() Role {
	r.RequiredInputs = append([]artifact.Type(nil), r.RequiredInputs...)
	r.Outputs = append([]artifact.Type(nil), r.Outputs...)
	r.DirectReports = append([]string(nil), r.DirectReports...)
	return r
}

// Registry is a validated, read-only role catalog.
type Registry struct {
	roles map[string]Role
	ids   []string
}

// NewRegistry validates roles and builds the catalog. Every problem found
// is reported in the returned error.
func NewRegistry(roles ...Role) (*Registry, error) {
	r := &Registry{roles: make(map[string]Role, len(roles))}
	var errs []error
	for _, role := range roles {
		id := strings.TrimSpace(role.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("role: id is required"))
			continue
		}
		if _, dup := r.roles[id]; dup {
			errs = append(errs, fmt.Errorf("role: duplicate id %s", id))
			continue
		}
		role.ID = id
		r.roles[id] = role.clone()
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)
	errs = append(errs, r.check()...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

func (r *Registry) check() []error {
	var errs []error
	roots := 0
	for _, id := range r.ids {
		role := r.roles[id]
		for _, t := range append(append([]artifact.Type{}, role.RequiredInputs...), role.Outputs...) {
			if !t.Known() {
				errs = append(errs, fmt.Errorf("role: %s references unknown artifact type %q", id, t))
			}
		}
		if role.ReportsTo == "" {
			roots++
		} else if _, ok := r.roles[role.ReportsTo]; !ok {
			errs = append(errs, fmt.Errorf("role: %s reports to %s: %w", id, role.ReportsTo, ErrUnknownRole))
		} else if role.ReportsTo == id {
			errs = append(errs, fmt.Errorf("role: %s reports to itself", id))
		}
		for _, report := range role.DirectReports {
			sub, ok := r.roles[report]
			if !ok {
				errs = append(errs, fmt.Errorf("role: %s lists direct report %s: %w", id, report, ErrUnknownRole))
				continue
			}
			if sub.ReportsTo != id {
				errs = append(errs, fmt.Errorf("role: %s lists %s as a direct report but %s reports to %q", id, report, report, sub.ReportsTo))
			}
		}
	}
	if len(r.ids) > 0 && roots == 0 {
		errs = append(errs, fmt.Errorf("role: hierarchy has no root role"))
	}
	for _, id := range r.ids {
		if r.cyclic(id) {
			errs = append(errs, fmt.Errorf("role: reporting chain from %s is cyclic", id))
		}
	}
	return errs
}

func (r *Registry) cyclic(start string) bool {
	seen := map[string]bool{}
	for cur := start; cur != ""; cur = r.roles[cur].ReportsTo {
		if seen[cur] {
			return true
		}
		seen[cur] = true
		if _, ok := r.roles[cur]; !ok {
			return false
		}
	}
	return false
}

// Get returns a copy of the role with id.
func (r *Registry) Get(id string) (Role, bool) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, false
	}
	return role.clone(), true
}

// Lookup is Get with an error naming the missing role.
func (r *Registry) Lookup(id string) (Role, error) {
	role, ok := r.Get(id)
	if !ok {
		return Role{}, fmt.Errorf("role: %s: %w", id, ErrUnknownRole)
	}
	return role, nil
}

// Has reports whether id is in the catalog.
func (r *Registry) Has(id string) bool {
	_, ok := r.roles[id]
	return ok
}

// IDs returns the sorted role identifiers.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Root returns the first role, by id, that reports to nobody.
func (r *Registry) Root() string {
	for _, id := range r.ids {
		if r.roles[id].ReportsTo == "" {
			return id
		}
	}
	return ""
}

// Manager returns the role id reports to, or "" at the root.
func (r *Registry) Manager(id string) string {
	return r.roles[id].ReportsTo
}

// RequiredInputsFor returns the sorted union of required input types.
func (r *Registry) RequiredInputsFor(ids ...string) []artifact.Type {
	return r.union(ids, func(role Role) []artifact.Type { return role.RequiredInputs })
}

// OutputsFor returns the sorted union of output types.
func (r *Registry) OutputsFor(ids ...string) []artifact.Type {
	return r.union(ids, func(role Role) []artifact.Type { return role.Outputs })
}

func (r *Registry) union(ids []string, pick func(Role) []artifact.Type) []artifact.Type {
	set := map[artifact.Type]struct{}{}
	for _, id := range ids {
		role, ok := r.roles[id]
		if !ok {
			continue
		}
		for _, t := range pick(role) {
			set[t] = struct{}{}
		}
	}
	types := make([]artifact.Type, 0, len(set))
	for t := range set {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
