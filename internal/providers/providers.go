// Package providers defines the adapter contract every place-search
// provider implements and the registry the gateway selects them from.
package providers

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/errs"
	"github.com/mohammed-shakir/places-cache-gateway/internal/core/model"
)

// Adapter shapes provider requests and normalizes provider payloads into
// canonical places. Fetch methods return the raw body; failures are
// errs.KindUpstream.
type Adapter interface {
	Name() string
	Search(ctx context.Context, q model.QuantizedQuery, placeType, apiKey string, keywords []string) ([]byte, error)
	Details(ctx context.Context, placeID, apiKey string) ([]byte, error)
	// NormalizeSearchResults never fails; unusable payloads yield an empty list.
	NormalizeSearchResults(raw []byte) []model.Place
	// NormalizeDetails returns nil when the payload holds no place.
	NormalizeDetails(raw []byte) *model.Place
}

// TypeMap translates the generic place-type vocabulary into one provider's
// categories. Unmapped types resolve to Default.
type TypeMap struct {
	m       map[string]string
	Default string
}

func NewTypeMap(def string, m map[string]string) TypeMap {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[strings.ToLower(k)] = v
	}
	return TypeMap{m: cp, Default: def}
}

func (t TypeMap) Resolve(placeType string) string {
	pt := strings.ToLower(strings.TrimSpace(placeType))
	if v, ok := t.m[pt]; ok {
		return v
	}
	return t.Default
}

// Registry is an immutable set of adapters built once at start-up.
type Registry struct {
	adapters map[string]Adapter
	primary  string
}

func NewRegistry(primary string, adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters)), primary: strings.ToLower(primary)}
	for _, a := range adapters {
		name := strings.ToLower(a.Name())
		if _, dup := r.adapters[name]; dup {
			return nil, fmt.Errorf("duplicate provider %q", name)
		}
		r.adapters[name] = a
	}
	if _, ok := r.adapters[r.primary]; !ok {
		return nil, fmt.Errorf("primary provider %q is not registered", primary)
	}
	return r, nil
}

func (r *Registry) Primary() string { return r.primary }

// Lookup resolves a provider name; empty selects the primary.
func (r *Registry) Lookup(name string) (Adapter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = r.primary
	}
	a, ok := r.adapters[name]
	if !ok {
		if len(name) > 32 {
			name = name[:32] + "..."
		}
		return nil, errs.Invalid("providers.lookup", "unknown provider %q", name)
	}
	return a, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
