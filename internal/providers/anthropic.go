package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"aiengine/internal/config"
	"aiengine/internal/models"
)

const (
	anthropicID            = "anthropic"
	anthropicDefaultURL    = "https://api.anthropic.com/v1"
	anthropicKeyOption     = "anthropic_api_key"
	anthropicVersionHeader = "2023-06-01"
	anthropicDefaultModel  = "claude-3-5-haiku-latest"
)

// Anthropic serves text-shaped capabilities through the Messages API.
// Classification and text analysis ride on the same endpoint: the
// caller's prompt carries the instruction, the adapter only normalizes
// the wire format.
type Anthropic struct {
	opts    config.Options
	pricing models.PricingTable
	client  *http.Client
}

func NewAnthropic(opts config.Options, pricing models.PricingTable) *Anthropic {
	return &Anthropic{
		opts:    opts,
		pricing: pricing,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// AnthropicInfo returns the catalog entry for this adapter.
func AnthropicInfo() models.ProviderInfo {
	return models.ProviderInfo{
		ID:          anthropicID,
		DisplayName: "Anthropic",
		Capabilities: []models.Capability{
			models.CapabilityText,
			models.CapabilityChat,
			models.CapabilityClassification,
			models.CapabilityTextAnalysis,
		},
		RequiredKeys: []string{anthropicKeyOption},
	}
}

func (p *Anthropic) ID() string {
	return anthropicID
}

func (p *Anthropic) Invoke(ctx context.Context, req Request) (*Response, error) {
	switch req.Capability {
	case models.CapabilityText, models.CapabilityChat,
		models.CapabilityClassification, models.CapabilityTextAnalysis:
	default:
		return nil, unsupported(anthropicID, req.Capability)
	}

	apiKey := req.APIKey
	if apiKey == "" {
		key, err := p.opts.GetOption(ctx, anthropicKeyOption)
		if errors.Is(err, config.ErrOptionNotFound) || key == "" {
			return nil, NewError(anthropicID, KindConfiguration, "api key not configured", nil)
		}
		if err != nil {
			return nil, NewError(anthropicID, KindConfiguration, "failed to read api key", err)
		}
		apiKey = key
	}

	ctx, cancel := callContext(ctx, req)
	defer cancel()

	model := req.Model
	if model == "" {
		model = anthropicDefaultModel
	}

	// system turns are a top-level field on this API, not messages
	var system string
	messages := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		messages = append(messages, m)
	}
	if len(messages) == 0 {
		messages = []Message{{Role: "user", Content: req.Prompt}}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	payload := map[string]any{
		"model":      model,
		"messages":   messages,
		"max_tokens": maxTokens,
	}
	if system != "" {
		payload["system"] = system
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(anthropicID, KindPermanent, "failed to marshal request", err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicDefaultURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, NewError(anthropicID, KindPermanent, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersionHeader)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportError(anthropicID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, transportError(anthropicID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(anthropicID, resp.StatusCode, respBody)
	}

	var parsed struct {
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, NewError(anthropicID, KindPermanent, "failed to decode response", err)
	}

	var content string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	returnedModel := parsed.Model
	if returnedModel == "" {
		returnedModel = model
	}

	return &Response{
		Content: content,
		Model:   returnedModel,
		Usage: Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
			CostUSD:          p.pricing.Cost(returnedModel, parsed.Usage.InputTokens, parsed.Usage.OutputTokens),
		},
		Latency: latency,
	}, nil
}
