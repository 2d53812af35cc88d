package providers

import (
	"context"
	"time"

	"aiengine/internal/models"
)

// Message is one turn in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a normalized capability request handed to an adapter. Only
// the payload fields relevant to the capability are set: Prompt for
// text, Messages for chat, Input for embeddings, Audio for
// transcription, Image for image analysis.
type Request struct {
	Capability models.Capability

	Prompt      string
	Messages    []Message
	Input       []string
	Audio       []byte
	AudioFormat string
	Image       []byte
	ImageMIME   string
	Voice       string

	Model       string
	Temperature float64
	MaxTokens   int

	// Feature tags the invocation for usage logging; defaults to the
	// capability name when empty.
	Feature string

	// APIKey overrides the credential resolved from options for this
	// single call.
	APIKey string

	// Timeout bounds the single network call the adapter makes.
	Timeout time.Duration
}

// Usage holds the token and cost metrics extracted from a provider
// response.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
}

// Response is a normalized provider result: textual content (generated
// text, transcript, URL, or JSON-encoded vectors) or binary data
// (synthesized audio), plus the metrics for the ledger.
type Response struct {
	Content string
	Data    []byte
	Model   string
	Usage   Usage
	Latency time.Duration
}

// Adapter is implemented once per vendor. Invoke translates the
// normalized request into the vendor's wire format, performs a single
// network call under the request timeout, and translates the result
// back. Failures must propagate as categorized errors, never be
// swallowed: the router depends on seeing them to log and fall back.
type Adapter interface {
	// ID returns the provider id this adapter serves.
	ID() string

	// Invoke executes one capability request against the vendor.
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// callContext applies the per-request timeout, falling back to the
// parent context when none is set.
func callContext(ctx context.Context, req Request) (context.Context, context.CancelFunc) {
	if req.Timeout > 0 {
		return context.WithTimeout(ctx, req.Timeout)
	}
	return context.WithCancel(ctx)
}
