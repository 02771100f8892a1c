// Package pipeline runs a fixed set of language-model roles in a
// domain-dictated speaking order until the task is finished.
package pipeline

import (
	"fmt"

	"github.com/capitalize-ai/essay-pipeline/internal/llm"
	"github.com/capitalize-ai/essay-pipeline/internal/model"
)

const (
	// DefaultInitiator is the source recorded on the seed message.
	DefaultInitiator = "User"

	// DefaultSentinel is the token a role emits to declare the task finished.
	DefaultSentinel = "TERMINATE"

	// DefaultMaxRounds bounds a run when a definition sets no ceiling.
	DefaultMaxRounds = 15
)

// Role is one participant of a pipeline.
type Role struct {
	ID           string
	Instructions string
	Provider     llm.Provider
}

// Definition describes one pipeline. A compiled Definition is read-only and
// shared by every run of that pipeline.
type Definition struct {
	Name string

	// Initiator is the source of the seed message; it hands over to the first role.
	Initiator string

	// Roles lists the participants in speaking order.
	Roles []Role

	// Terminal is the role whose output is the result. Defaults to the last role.
	Terminal string

	// MaxRounds caps the number of role turns in one run.
	MaxRounds int

	// Sentinel ends the run when it appears in the latest message. Empty disables it.
	Sentinel string

	// Cyclic makes the last role hand back to the first instead of stopping.
	Cyclic bool

	// AllowRepeat permits a role to speak twice in a row.
	AllowRepeat bool

	// Fallback picks the speaker when the fixed successor would repeat the
	// last speaker. Nil means NextInOrder.
	Fallback FallbackFunc

	successors map[string]string
	roles      map[string]int
}

// Compile validates d and returns a ready-to-share copy.
func Compile(d Definition) (*Definition, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if len(d.Roles) == 0 {
		return nil, fmt.Errorf("%w: %s: at least one role is required", ErrInvalidDefinition, d.Name)
	}
	if d.Initiator == "" {
		d.Initiator = DefaultInitiator
	}
	if d.MaxRounds <= 0 {
		d.MaxRounds = DefaultMaxRounds
	}

	roles := make([]Role, len(d.Roles))
	copy(roles, d.Roles)
	d.Roles = roles

	d.roles = make(map[string]int, len(roles))
	for i, r := range roles {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: %s: role %d has no id", ErrInvalidDefinition, d.Name, i)
		}
		if r.ID == d.Initiator {
			return nil, fmt.Errorf("%w: %s: role %q collides with the initiator", ErrInvalidDefinition, d.Name, r.ID)
		}
		if _, dup := d.roles[r.ID]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate role %q", ErrInvalidDefinition, d.Name, r.ID)
		}
		d.roles[r.ID] = i
	}

	if d.Terminal == "" {
		d.Terminal = roles[len(roles)-1].ID
	}
	if _, ok := d.roles[d.Terminal]; !ok {
		return nil, fmt.Errorf("%w: %s: terminal role %q is not a member", ErrInvalidDefinition, d.Name, d.Terminal)
	}

	d.successors = make(map[string]string, len(roles)+1)
	d.successors[d.Initiator] = roles[0].ID
	for i, r := range roles {
		switch {
		case d.Cyclic:
			d.successors[r.ID] = roles[(i+1)%len(roles)].ID
		case r.ID == d.Terminal || i == len(roles)-1:
			// no successor: the run ends here
		default:
			d.successors[r.ID] = roles[i+1].ID
		}
	}

	return &d, nil
}

// First returns the role that speaks first.
func (d *Definition) First() string {
	return d.Roles[0].ID
}

// Role looks up a member role by id.
func (d *Definition) Role(id string) (Role, bool) {
	i, ok := d.roles[id]
	if !ok {
		return Role{}, false
	}
	return d.Roles[i], true
}

// Successor returns the fixed successor of a speaker.
func (d *Definition) Successor(id string) (string, bool) {
	next, ok := d.successors[id]
	return next, ok
}

// Providers returns the distinct providers referenced by the roles, in order.
func (d *Definition) Providers() []llm.Provider {
	seen := make(map[llm.Provider]struct{})
	var out []llm.Provider
	for _, r := range d.Roles {
		if _, ok := seen[r.Provider]; ok {
			continue
		}
		seen[r.Provider] = struct{}{}
		out = append(out, r.Provider)
	}
	return out
}

// Info summarizes the definition for API listings.
func (d *Definition) Info() model.PipelineInfo {
	ids := make([]string, len(d.Roles))
	for i, r := range d.Roles {
		ids[i] = r.ID
	}
	return model.PipelineInfo{
		Name:      d.Name,
		Roles:     ids,
		Terminal:  d.Terminal,
		MaxRounds: d.MaxRounds,
	}
}

// Registry holds the process-wide set of pipeline definitions.
type Registry struct {
	defs  map[string]*Definition
	order []string
}

// NewRegistry indexes compiled definitions by name.
func NewRegistry(defs ...*Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if _, dup := r.defs[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate pipeline %q", ErrInvalidDefinition, d.Name)
		}
		r.defs[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return r, nil
}

// Get returns the named definition.
func (r *Registry) Get(name string) (*Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipeline, name)
	}
	return d, nil
}

// List returns every definition in registration order.
func (r *Registry) List() []*Definition {
	out := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Providers returns every provider referenced by any registered pipeline.
func (r *Registry) Providers() []llm.Provider {
	seen := make(map[llm.Provider]struct{})
	var out []llm.Provider
	for _, d := range r.List() {
		for _, p := range d.Providers() {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
