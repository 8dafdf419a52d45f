package providers

import (
	"fmt"
	"sort"
	"strings"
)

// Registry holds the providers enabled at startup in registration order.
// It is populated before serving and read-only afterwards.
type Registry struct {
	order    []string
	byName   map[string]Provider
	disabled map[string]string
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Provider{}, disabled: map[string]string{}}
}

func (r *Registry) Register(p Provider) error {
	name := strings.ToLower(p.Name())
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.byName[name] = p
	r.order = append(r.order, name)
	delete(r.disabled, name)
	return nil
}

// Disable records a known provider that could not be enabled.
func (r *Registry) Disable(name, reason string) {
	name = strings.ToLower(name)
	if _, ok := r.byName[name]; ok {
		return
	}
	r.disabled[name] = reason
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

func (r *Registry) List() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Disabled returns disabled provider names sorted, with their reasons.
func (r *Registry) Disabled() []DisabledProvider {
	out := make([]DisabledProvider, 0, len(r.disabled))
	for n, reason := range r.disabled {
		out = append(out, DisabledProvider{Name: n, Reason: reason})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Default returns preferred when registered, else the first provider.
func (r *Registry) Default(preferred string) (Provider, bool) {
	if p, ok := r.Get(preferred); ok {
		return p, true
	}
	if len(r.order) == 0 {
		return nil, false
	}
	return r.byName[r.order[0]], true
}

func (r *Registry) Len() int { return len(r.order) }

type DisabledProvider struct {
	Name   string
	Reason string
}
