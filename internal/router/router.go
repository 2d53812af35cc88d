// Package router resolves capability requests to providers and executes
// strictly sequential fallback: providers are tried one at a time in
// policy order, every attempt is logged to the usage ledger, and the
// first success short-circuits.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aiengine/internal/models"
	"aiengine/internal/providers"
	"aiengine/internal/utils"
)

var (
	// ErrInvalidCapability is returned for capability values outside
	// the registered enum.
	ErrInvalidCapability = errors.New("invalid capability")

	// ErrNoProviders is returned when the policy yields no registered,
	// supporting, configured provider. Distinguishes "nothing to try"
	// from "everything tried and failed".
	ErrNoProviders = errors.New("no configured provider supports this capability")
)

// ExhaustedError reports that every candidate provider was attempted and
// failed. Tried preserves attempt order; Last is the final error.
type ExhaustedError struct {
	Capability models.Capability
	Tried      []string
	Last       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all providers exhausted for %s (tried %v): %v", e.Capability, e.Tried, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// UsageSink receives one record per provider attempt. Recording is
// best-effort: a sink failure never fails the dispatch that produced it.
type UsageSink interface {
	Record(ctx context.Context, rec *models.UsageRecord) error
}

// Payload carries the capability-specific request content.
type Payload struct {
	Prompt      string
	Messages    []providers.Message
	Input       []string
	Audio       []byte
	AudioFormat string
	Image       []byte
	ImageMIME   string
	Voice       string
}

// Options tune a single dispatch.
type Options struct {
	Model       string        // model override, adapter default otherwise
	APIKey      string        // credential override for this call only
	Timeout     time.Duration // per-provider-call timeout
	Feature     string        // usage logging tag, capability name otherwise
	Temperature float64
	MaxTokens   int
}

// Result is the structured outcome of a dispatch. On failure, Tried
// holds the ordered attempted providers and Err the reason.
type Result struct {
	Success  bool
	Content  string
	Data     []byte
	Provider string
	Model    string
	Usage    providers.Usage
	Tried    []string
	Err      error
}

// Router executes capability dispatch with provider fallback.
type Router struct {
	registry       *providers.Registry
	policies       models.RoutingTable
	sink           UsageSink
	defaultTimeout time.Duration
	log            *utils.Logger
}

// New creates a router. policies and sink come from the hosting
// application; defaultTimeout bounds provider calls that carry no
// per-call override.
func New(registry *providers.Registry, policies models.RoutingTable, sink UsageSink, defaultTimeout time.Duration) *Router {
	return &Router{
		registry:       registry,
		policies:       policies,
		sink:           sink,
		defaultTimeout: defaultTimeout,
		log:            utils.NewLogger("router"),
	}
}

// Dispatch tries providers in policy order until one succeeds. Fallback
// is strictly sequential; no fan-out. One usage record is written per
// attempted provider regardless of outcome.
func (r *Router) Dispatch(ctx context.Context, capability models.Capability, payload Payload, opts Options) *Result {
	if !capability.Valid() {
		return &Result{Err: fmt.Errorf("%w: %q", ErrInvalidCapability, capability)}
	}

	candidates := r.candidates(ctx, capability)
	if len(candidates) == 0 {
		return &Result{Err: ErrNoProviders}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	feature := opts.Feature
	if feature == "" {
		feature = capability.String()
	}
	summary := summarize(capability, payload)

	var tried []string
	var lastErr error

	for _, id := range candidates {
		adapter, err := r.registry.Adapter(id)
		if err != nil {
			r.log.Warn("Adapter missing for registered provider", "provider", id)
			continue
		}

		req := providers.Request{
			Capability:  capability,
			Prompt:      payload.Prompt,
			Messages:    payload.Messages,
			Input:       payload.Input,
			Audio:       payload.Audio,
			AudioFormat: payload.AudioFormat,
			Image:       payload.Image,
			ImageMIME:   payload.ImageMIME,
			Voice:       payload.Voice,
			Model:       opts.Model,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
			Feature:     feature,
			APIKey:      opts.APIKey,
			Timeout:     timeout,
		}

		start := time.Now()
		resp, err := adapter.Invoke(ctx, req)
		if err != nil && providers.IsConfiguration(err) {
			// Configuration gaps surfacing at call time still do not
			// count as attempts, mirroring the pre-flight filter.
			r.log.Warn("Provider skipped: not configured", "provider", id, "error", err)
			continue
		}

		tried = append(tried, id)

		if err != nil {
			lastErr = err
			r.record(ctx, &models.UsageRecord{
				ProviderID:     id,
				Capability:     capability.String(),
				Feature:        feature,
				ModelName:      opts.Model,
				Success:        false,
				ErrorMessage:   err.Error(),
				RequestSummary: summary,
				LatencyMS:      int(time.Since(start).Milliseconds()),
			})
			r.log.Warn("Provider attempt failed", "provider", id, "capability", capability, "kind", providers.KindOf(err), "error", err)
			continue
		}

		r.record(ctx, &models.UsageRecord{
			ProviderID:       id,
			Capability:       capability.String(),
			Feature:          feature,
			ModelName:        resp.Model,
			Success:          true,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			CostUSD:          resp.Usage.CostUSD,
			RequestSummary:   summary,
			LatencyMS:        int(resp.Latency.Milliseconds()),
		})

		return &Result{
			Success:  true,
			Content:  resp.Content,
			Data:     resp.Data,
			Provider: id,
			Model:    resp.Model,
			Usage:    resp.Usage,
			Tried:    tried,
		}
	}

	if len(tried) == 0 {
		// Every candidate fell out at call time; nothing was attempted.
		return &Result{Err: ErrNoProviders}
	}

	return &Result{
		Tried: tried,
		Err:   &ExhaustedError{Capability: capability, Tried: tried, Last: lastErr},
	}
}

// candidates builds the ordered provider list for a capability:
// preferred first, then fallbacks, deduplicated, keeping only providers
// that are registered, support the capability, and have every required
// option set. Missing configuration is logged at WARN and filtered out;
// it never counts as a failed attempt.
func (r *Router) candidates(ctx context.Context, capability models.Capability) []string {
	policy := r.policies[capability]

	ids := make([]string, 0, len(policy.Fallbacks)+1)
	if policy.Preferred != "" {
		ids = append(ids, policy.Preferred)
	}
	ids = append(ids, policy.Fallbacks...)

	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		info, ok := r.registry.Info(id)
		if !ok {
			r.log.Warn("Routing policy references unregistered provider", "provider", id)
			continue
		}
		if !info.Supports(capability) {
			continue
		}

		configured, err := r.registry.Configured(ctx, id)
		if err != nil {
			r.log.Warn("Failed to check provider configuration", "provider", id, "error", err)
			continue
		}
		if !configured {
			r.log.Warn("Provider skipped: missing required configuration", "provider", id, "capability", capability)
			continue
		}

		out = append(out, id)
	}

	return out
}

// record writes one ledger entry, fire-and-forget.
func (r *Router) record(ctx context.Context, rec *models.UsageRecord) {
	if r.sink == nil {
		return
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := r.sink.Record(ctx, rec); err != nil {
		r.log.Warn("Failed to record usage", "provider", rec.ProviderID, "error", err)
	}
}

// summarize produces the short request description stored with each
// usage record.
func summarize(capability models.Capability, payload Payload) string {
	const maxLen = 120

	truncate := func(s string) string {
		if len(s) > maxLen {
			return s[:maxLen] + "..."
		}
		return s
	}

	switch {
	case len(payload.Messages) > 0:
		last := payload.Messages[len(payload.Messages)-1]
		return fmt.Sprintf("%d messages, last: %s", len(payload.Messages), truncate(last.Content))
	case len(payload.Input) > 0:
		return fmt.Sprintf("%d embedding inputs", len(payload.Input))
	case len(payload.Audio) > 0:
		return fmt.Sprintf("audio input (%d bytes)", len(payload.Audio))
	case payload.Prompt != "":
		return truncate(payload.Prompt)
	default:
		return capability.String() + " request"
	}
}
