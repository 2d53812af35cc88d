package providers

import (
	"bytes"
	"context"
	"encoding/base64"
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
	geminiID         = "gemini"
	geminiDefaultURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiKeyOption  = "gemini_api_key"
)

var geminiDefaultModels = map[models.Capability]string{
	models.CapabilityText:          "gemini-2.0-flash",
	models.CapabilityChat:          "gemini-2.0-flash",
	models.CapabilityImageAnalysis: "gemini-2.0-flash",
	models.CapabilityEmbedding:     "text-embedding-004",
}

// Gemini serves text, chat, embedding, and image analysis through the
// Generative Language API.
type Gemini struct {
	opts    config.Options
	pricing models.PricingTable
	client  *http.Client
}

func NewGemini(opts config.Options, pricing models.PricingTable) *Gemini {
	return &Gemini{
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

// GeminiInfo returns the catalog entry for this adapter.
func GeminiInfo() models.ProviderInfo {
	return models.ProviderInfo{
		ID:          geminiID,
		DisplayName: "Google Gemini",
		Capabilities: []models.Capability{
			models.CapabilityText,
			models.CapabilityChat,
			models.CapabilityEmbedding,
			models.CapabilityImageAnalysis,
		},
		RequiredKeys: []string{geminiKeyOption},
	}
}

func (p *Gemini) ID() string {
	return geminiID
}

func (p *Gemini) Invoke(ctx context.Context, req Request) (*Response, error) {
	apiKey := req.APIKey
	if apiKey == "" {
		key, err := p.opts.GetOption(ctx, geminiKeyOption)
		if errors.Is(err, config.ErrOptionNotFound) || key == "" {
			return nil, NewError(geminiID, KindConfiguration, "api key not configured", nil)
		}
		if err != nil {
			return nil, NewError(geminiID, KindConfiguration, "failed to read api key", err)
		}
		apiKey = key
	}

	ctx, cancel := callContext(ctx, req)
	defer cancel()

	model := req.Model
	if model == "" {
		model = geminiDefaultModels[req.Capability]
	}

	switch req.Capability {
	case models.CapabilityText, models.CapabilityChat, models.CapabilityImageAnalysis:
		return p.generate(ctx, req, apiKey, model)
	case models.CapabilityEmbedding:
		return p.embed(ctx, req, apiKey, model)
	default:
		return nil, unsupported(geminiID, req.Capability)
	}
}

func (p *Gemini) generate(ctx context.Context, req Request, apiKey, model string) (*Response, error) {
	type part map[string]any

	var contents []map[string]any
	if len(req.Messages) > 0 {
		for _, m := range req.Messages {
			role := m.Role
			if role == "assistant" {
				role = "model"
			}
			contents = append(contents, map[string]any{
				"role":  role,
				"parts": []part{{"text": m.Content}},
			})
		}
	} else {
		parts := []part{{"text": req.Prompt}}
		if req.Capability == models.CapabilityImageAnalysis && len(req.Image) > 0 {
			mime := req.ImageMIME
			if mime == "" {
				mime = "image/png"
			}
			parts = append(parts, part{"inline_data": map[string]any{
				"mime_type": mime,
				"data":      base64.StdEncoding.EncodeToString(req.Image),
			}})
		}
		contents = append(contents, map[string]any{"role": "user", "parts": parts})
	}

	payload := map[string]any{"contents": contents}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		genCfg := map[string]any{}
		if req.Temperature > 0 {
			genCfg["temperature"] = req.Temperature
		}
		if req.MaxTokens > 0 {
			genCfg["maxOutputTokens"] = req.MaxTokens
		}
		payload["generationConfig"] = genCfg
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", geminiDefaultURL, model)
	body, latency, err := p.post(ctx, url, apiKey, payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
			TotalTokenCount      int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewError(geminiID, KindPermanent, "failed to decode response", err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, NewError(geminiID, KindPermanent, "response contained no candidates", nil)
	}

	var content string
	for _, pt := range parsed.Candidates[0].Content.Parts {
		content += pt.Text
	}

	usage := parsed.UsageMetadata
	return &Response{
		Content: content,
		Model:   model,
		Usage: Usage{
			PromptTokens:     usage.PromptTokenCount,
			CompletionTokens: usage.CandidatesTokenCount,
			TotalTokens:      usage.TotalTokenCount,
			CostUSD:          p.pricing.Cost(model, usage.PromptTokenCount, usage.CandidatesTokenCount),
		},
		Latency: latency,
	}, nil
}

func (p *Gemini) embed(ctx context.Context, req Request, apiKey, model string) (*Response, error) {
	text := req.Prompt
	if text == "" && len(req.Input) > 0 {
		text = req.Input[0]
	}
	if text == "" {
		return nil, NewError(geminiID, KindPermanent, "embedding request has no input", nil)
	}

	payload := map[string]any{
		"content": map[string]any{
			"parts": []map[string]any{{"text": text}},
		},
	}

	url := fmt.Sprintf("%s/models/%s:embedContent", geminiDefaultURL, model)
	body, latency, err := p.post(ctx, url, apiKey, payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Embedding struct {
			Values []float64 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewError(geminiID, KindPermanent, "failed to decode embedding response", err)
	}

	encoded, err := json.Marshal([][]float64{parsed.Embedding.Values})
	if err != nil {
		return nil, NewError(geminiID, KindPermanent, "failed to encode vectors", err)
	}

	return &Response{
		Content: string(encoded),
		Model:   model,
		Usage:   Usage{CostUSD: p.pricing.Cost(model, len(text)/4, 0)},
		Latency: latency,
	}, nil
}

func (p *Gemini) post(ctx context.Context, url, apiKey string, payload any) ([]byte, time.Duration, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, NewError(geminiID, KindPermanent, "failed to marshal request", err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, NewError(geminiID, KindPermanent, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, 0, transportError(geminiID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, latency, transportError(geminiID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, latency, statusError(geminiID, resp.StatusCode, respBody)
	}

	return respBody, latency, nil
}
