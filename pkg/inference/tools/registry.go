package tools

import (
	"github.com/mb0/glob"
	"github.com/pkg/errors"
)

// Registry is the fixed set of tools available to a session. It is built once
// and never mutated, so it can be shared across concurrent sessions.
type Registry struct {
	tools map[string]ToolDescriptor
	order []string
}

// NewRegistry builds a registry. Names must be non-empty and unique.
func NewRegistry(descs ...ToolDescriptor) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]ToolDescriptor, len(descs)),
		order: make([]string, 0, len(descs)),
	}
	for _, d := range descs {
		if d.Name == "" {
			return nil, errors.New("tool name cannot be empty")
		}
		if d.Func == nil {
			return nil, errors.Errorf("tool %s has no function", d.Name)
		}
		if _, exists := r.tools[d.Name]; exists {
			return nil, errors.Errorf("duplicate tool name: %s", d.Name)
		}
		r.tools[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return r, nil
}

// Resolve looks a tool up by exact, case-sensitive name.
func (r *Registry) Resolve(name string) (ToolDescriptor, bool) {
	if r == nil {
		return ToolDescriptor{}, false
	}
	d, ok := r.tools[name]
	return d, ok
}

// List returns the descriptors in registration order.
func (r *Registry) List() []ToolDescriptor {
	if r == nil {
		return nil
	}
	out := make([]ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Restrict returns a new registry holding only the tools whose name matches
// one of the glob patterns. No patterns means no restriction.
func (r *Registry) Restrict(patterns []string) (*Registry, error) {
	if len(patterns) == 0 {
		return r, nil
	}
	var kept []ToolDescriptor
	for _, d := range r.List() {
		ok, err := matchAny(patterns, d.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, d)
		}
	}
	return NewRegistry(kept...)
}

func matchAny(patterns []string, name string) (bool, error) {
	for _, p := range patterns {
		ok, err := glob.Match(p, name)
		if err != nil {
			return false, errors.Wrapf(err, "invalid tool pattern %q", p)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
