// Package provider implements the pluggable save targets offered by the
// wizard: the local draft, the remote service and a JSON export.
package provider

import (
	"context"
	"fmt"

	"github.com/starford/charforge/internal/models"
)

// Provider identifiers.
const (
	IDDraft  = "draft"
	IDCloud  = "cloud"
	IDExport = "export"
)

// Capability names reported by Descriptors.
const (
	CapSave   = "save"
	CapList   = "list"
	CapLoad   = "load"
	CapRemove = "remove"
)

// Status is the outcome class of a save.
type Status string

const (
	StatusOK       Status = "ok"
	StatusConflict Status = "conflict"
	StatusFailed   Status = "failed"
)

// Result is returned by every Save. Conflict is set only for StatusConflict,
// Problems only for validation failures.
type Result struct {
	Status   Status
	Message  string
	Conflict *models.CharacterSheet
	Problems []string
	// Path is set by providers that write a file.
	Path string
}

// OK reports whether the save succeeded.
func (r Result) OK() bool { return r.Status == StatusOK }

func ok(msg string) Result { return Result{Status: StatusOK, Message: msg} }

func failed(msg string) Result { return Result{Status: StatusFailed, Message: msg} }

// Provider is a save target.
type Provider interface {
	ID() string
	Label() string
	Save(ctx context.Context, sheet *models.CharacterSheet) Result
}

// Lister is implemented by providers that can enumerate stored records.
type Lister interface {
	List(ctx context.Context) ([]models.Summary, error)
}

// Loader is implemented by providers that can fetch a stored record.
type Loader interface {
	Load(ctx context.Context, id string) (*models.CharacterSheet, error)
}

// Remover is implemented by providers that can delete a stored record.
type Remover interface {
	Remove(ctx context.Context, id string) error
}

// Forcer is implemented by providers that can skip their write precondition.
type Forcer interface {
	ForceSave(ctx context.Context, sheet *models.CharacterSheet) Result
}

// Adopter is implemented by providers that track a write precondition per
// record. Adopt makes sheet, as stored by the provider, the reference for
// the next save of that record.
type Adopter interface {
	Adopt(sheet *models.CharacterSheet)
}

// Descriptor is the capability view of a provider.
type Descriptor struct {
	ID           string   `json:"id"`
	Label        string   `json:"label"`
	Capabilities []string `json:"capabilities"`
}

// Describe builds the descriptor of p.
func Describe(p Provider) Descriptor {
	caps := []string{CapSave}
	if _, ok := p.(Lister); ok {
		caps = append(caps, CapList)
	}
	if _, ok := p.(Loader); ok {
		caps = append(caps, CapLoad)
	}
	if _, ok := p.(Remover); ok {
		caps = append(caps, CapRemove)
	}
	return Descriptor{ID: p.ID(), Label: p.Label(), Capabilities: caps}
}

// Registry is the ordered set of providers. The first one is the default.
type Registry struct {
	order []Provider
	byID  map[string]Provider
}

// NewRegistry creates a registry. Duplicate identifiers are rejected.
func NewRegistry(providers ...Provider) (*Registry, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("provider: registry needs at least one provider")
	}
	r := &Registry{byID: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if _, dup := r.byID[p.ID()]; dup {
			return nil, fmt.Errorf("provider: duplicate id %q", p.ID())
		}
		r.byID[p.ID()] = p
		r.order = append(r.order, p)
	}
	return r, nil
}

// Providers returns the providers in registration order.
func (r *Registry) Providers() []Provider {
	return append([]Provider(nil), r.order...)
}

// Get returns the provider with the given id.
func (r *Registry) Get(id string) (Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Default returns the first registered provider.
func (r *Registry) Default() Provider { return r.order[0] }

// Resolve returns the provider with the given id, or the default one.
func (r *Registry) Resolve(id string) Provider {
	if p, ok := r.byID[id]; ok {
		return p
	}
	return r.Default()
}

// Descriptors returns the capability view of every provider.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, Describe(p))
	}
	return out
}
