package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kursadbilgin/notification-center/internal/domain"
)

// Registry maps an upper-cased notification type to exactly one provider.
// It is populated once and only read afterwards.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry registers every enabled provider. Disabled providers are left
// out so lookups for their type fail closed.
func NewRegistry(providers ...Provider) (*Registry, error) {
	registered := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p == nil || !p.Enabled() {
			continue
		}

		key := normalizeType(p.Type())
		if key == "" {
			return nil, fmt.Errorf("provider type is required")
		}
		if _, exists := registered[key]; exists {
			return nil, fmt.Errorf("duplicate provider for type %s", key)
		}
		registered[key] = p
	}

	return &Registry{providers: registered}, nil
}

func (r *Registry) Resolve(notificationType string) (Provider, error) {
	if r != nil {
		if p, ok := r.providers[normalizeType(notificationType)]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: no provider configured for type: %s", domain.ErrProviderNotFound, notificationType)
}

func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	types := make([]string, 0, len(r.providers))
	for key := range r.providers {
		types = append(types, key)
	}
	sort.Strings(types)
	return types
}

func normalizeType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}
