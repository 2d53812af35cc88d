package models

// ProviderInfo describes one vendor integration in the static catalog:
// its identity, the capabilities it can serve, and the option keys that
// must be present before it is eligible for routing. Immutable after
// registry load.
type ProviderInfo struct {
	ID           string
	DisplayName  string
	Capabilities []Capability
	RequiredKeys []string
}

// Supports reports whether the provider serves the given capability.
func (p ProviderInfo) Supports(c Capability) bool {
	for _, cap := range p.Capabilities {
		if cap == c {
			return true
		}
	}
	return false
}

// RoutingPolicy holds the preferred provider and ordered fallback chain
// for a single capability. Supplied by the hosting application; read-only
// to the router.
type RoutingPolicy struct {
	Preferred string   `json:"preferred,omitempty"`
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// RoutingTable maps capabilities to their routing policies.
type RoutingTable map[Capability]RoutingPolicy
