package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"aiengine/internal/models"
)

// ErrOptionNotFound is returned when an option key has no value.
var ErrOptionNotFound = errors.New("option not found")

// Options supplies domain configuration from the hosting application:
// credentials, endpoints, routing policy, retention caps. Read-only from
// the engine's perspective.
type Options interface {
	// GetOption returns the value for a key, or ErrOptionNotFound.
	GetOption(ctx context.Context, key string) (string, error)
}

// StaticOptions is an in-memory Options implementation, used by tests
// and embedded deployments.
type StaticOptions map[string]string

func (o StaticOptions) GetOption(_ context.Context, key string) (string, error) {
	val, ok := o[key]
	if !ok {
		return "", ErrOptionNotFound
	}
	return val, nil
}

// EnvOptions resolves option keys from environment variables. The key
// "openai_api_key" becomes AIENGINE_OPENAI_API_KEY.
type EnvOptions struct {
	Prefix string
}

func (o EnvOptions) GetOption(_ context.Context, key string) (string, error) {
	prefix := o.Prefix
	if prefix == "" {
		prefix = "AIENGINE_"
	}
	name := prefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	val := os.Getenv(name)
	if val == "" {
		return "", ErrOptionNotFound
	}
	return val, nil
}

// RoutingPolicyOption is the option key holding the JSON routing table.
const RoutingPolicyOption = "routing_policy"

// LoadRoutingTable reads and decodes the routing table option. A missing
// option yields an empty table; capabilities without a policy entry have
// no candidates and dispatch fails fast for them. Unknown capability
// keys are rejected so that a typo in the hosting application's settings
// surfaces at startup.
func LoadRoutingTable(ctx context.Context, opts Options) (models.RoutingTable, error) {
	raw, err := opts.GetOption(ctx, RoutingPolicyOption)
	if errors.Is(err, ErrOptionNotFound) {
		return models.RoutingTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read routing policy: %w", err)
	}

	var table models.RoutingTable
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return nil, fmt.Errorf("failed to decode routing policy: %w", err)
	}

	for cap := range table {
		if !cap.Valid() {
			return nil, fmt.Errorf("routing policy references unknown capability %q", cap)
		}
	}

	return table, nil
}
