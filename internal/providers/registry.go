package providers

import (
	"context"
	"errors"
	"fmt"

	"aiengine/internal/config"
	"aiengine/internal/models"
)

// ErrProviderNotFound is returned when a provider id is not registered.
var ErrProviderNotFound = errors.New("provider not found")

// Registry is the static catalog of providers: which capabilities each
// serves and which option keys it needs before it may be routed to.
// Populated once at startup; read-only afterwards, so lookups need no
// locking.
type Registry struct {
	opts     config.Options
	infos    map[string]models.ProviderInfo
	adapters map[string]Adapter
	order    []string
}

// NewRegistry creates an empty registry backed by the given options.
func NewRegistry(opts config.Options) *Registry {
	return &Registry{
		opts:     opts,
		infos:    make(map[string]models.ProviderInfo),
		adapters: make(map[string]Adapter),
	}
}

// Register adds a provider and its adapter to the catalog. Call only
// during startup, before the registry is shared.
func (r *Registry) Register(info models.ProviderInfo, adapter Adapter) error {
	if info.ID == "" {
		return fmt.Errorf("provider id is required")
	}
	if info.ID != adapter.ID() {
		return fmt.Errorf("adapter id %q does not match provider id %q", adapter.ID(), info.ID)
	}
	if _, exists := r.infos[info.ID]; exists {
		return fmt.Errorf("provider %q already registered", info.ID)
	}

	r.infos[info.ID] = info
	r.adapters[info.ID] = adapter
	r.order = append(r.order, info.ID)
	return nil
}

// Adapter returns the adapter for a provider id.
func (r *Registry) Adapter(id string) (Adapter, error) {
	adapter, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return adapter, nil
}

// Info returns the catalog entry for a provider id.
func (r *Registry) Info(id string) (models.ProviderInfo, bool) {
	info, ok := r.infos[id]
	return info, ok
}

// Supports reports whether a registered provider serves the capability.
func (r *Registry) Supports(id string, c models.Capability) bool {
	info, ok := r.infos[id]
	return ok && info.Supports(c)
}

// Configured reports whether every required option key for the provider
// has a value. A provider that fails this check is skipped by the
// router, not treated as a failed attempt.
func (r *Registry) Configured(ctx context.Context, id string) (bool, error) {
	info, ok := r.infos[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}

	for _, key := range info.RequiredKeys {
		_, err := r.opts.GetOption(ctx, key)
		if errors.Is(err, config.ErrOptionNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to read option %q: %w", key, err)
		}
	}
	return true, nil
}

// List returns all catalog entries in registration order.
func (r *Registry) List() []models.ProviderInfo {
	infos := make([]models.ProviderInfo, 0, len(r.order))
	for _, id := range r.order {
		infos = append(infos, r.infos[id])
	}
	return infos
}

// IDs returns all registered provider ids in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}
