package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"aiengine/internal/config"
	"aiengine/internal/models"
)

const (
	elevenLabsID           = "elevenlabs"
	elevenLabsDefaultURL   = "https://api.elevenlabs.io/v1"
	elevenLabsKeyOption    = "elevenlabs_api_key"
	elevenLabsVoiceOption  = "elevenlabs_voice_id"
	elevenLabsDefaultModel = "eleven_multilingual_v2"
)

// ElevenLabs is a single-capability adapter: speech synthesis only.
type ElevenLabs struct {
	opts    config.Options
	pricing models.PricingTable
	client  *http.Client
}

func NewElevenLabs(opts config.Options, pricing models.PricingTable) *ElevenLabs {
	return &ElevenLabs{
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

// ElevenLabsInfo returns the catalog entry for this adapter.
func ElevenLabsInfo() models.ProviderInfo {
	return models.ProviderInfo{
		ID:           elevenLabsID,
		DisplayName:  "ElevenLabs",
		Capabilities: []models.Capability{models.CapabilityTTS},
		RequiredKeys: []string{elevenLabsKeyOption, elevenLabsVoiceOption},
	}
}

func (p *ElevenLabs) ID() string {
	return elevenLabsID
}

func (p *ElevenLabs) Invoke(ctx context.Context, req Request) (*Response, error) {
	if req.Capability != models.CapabilityTTS {
		return nil, unsupported(elevenLabsID, req.Capability)
	}

	apiKey := req.APIKey
	if apiKey == "" {
		key, err := p.opts.GetOption(ctx, elevenLabsKeyOption)
		if errors.Is(err, config.ErrOptionNotFound) || key == "" {
			return nil, NewError(elevenLabsID, KindConfiguration, "api key not configured", nil)
		}
		if err != nil {
			return nil, NewError(elevenLabsID, KindConfiguration, "failed to read api key", err)
		}
		apiKey = key
	}

	voice := req.Voice
	if voice == "" {
		v, err := p.opts.GetOption(ctx, elevenLabsVoiceOption)
		if errors.Is(err, config.ErrOptionNotFound) || v == "" {
			return nil, NewError(elevenLabsID, KindConfiguration, "voice id not configured", nil)
		}
		if err != nil {
			return nil, NewError(elevenLabsID, KindConfiguration, "failed to read voice id", err)
		}
		voice = v
	}

	ctx, cancel := callContext(ctx, req)
	defer cancel()

	model := req.Model
	if model == "" {
		model = elevenLabsDefaultModel
	}

	payload := map[string]any{
		"text":     req.Prompt,
		"model_id": model,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(elevenLabsID, KindPermanent, "failed to marshal request", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", elevenLabsDefaultURL, voice)

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(elevenLabsID, KindPermanent, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportError(elevenLabsID, err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, transportError(elevenLabsID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(elevenLabsID, resp.StatusCode, audio)
	}

	// Billed per character; the pricing table's input rate is per 1K
	// characters for this vendor.
	return &Response{
		Data:    audio,
		Model:   model,
		Usage:   Usage{CostUSD: p.pricing.Cost(model, len(req.Prompt), 0)},
		Latency: latency,
	}, nil
}
