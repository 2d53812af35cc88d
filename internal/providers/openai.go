package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"aiengine/internal/config"
	"aiengine/internal/models"
)

const (
	openAIID             = "openai"
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIKeyOption      = "openai_api_key"
	openAIBaseURLOption  = "openai_base_url"
)

// openAIDefaultModels picks the model per capability when the caller
// does not override one.
var openAIDefaultModels = map[models.Capability]string{
	models.CapabilityText:               "gpt-4o-mini",
	models.CapabilityChat:               "gpt-4o-mini",
	models.CapabilityEmbedding:          "text-embedding-3-small",
	models.CapabilityImageGeneration:    "dall-e-3",
	models.CapabilityAudioTranscription: "whisper-1",
	models.CapabilityTTS:                "tts-1",
}

// OpenAI is the reference adapter: it covers the widest capability set
// and shows the normalization contract the other adapters follow.
type OpenAI struct {
	opts    config.Options
	pricing models.PricingTable
	client  *http.Client
}

// NewOpenAI creates the OpenAI adapter. The pricing table is external
// swappable data applied to returned token counts.
func NewOpenAI(opts config.Options, pricing models.PricingTable) *OpenAI {
	return &OpenAI{
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

// OpenAIInfo returns the catalog entry for this adapter.
func OpenAIInfo() models.ProviderInfo {
	return models.ProviderInfo{
		ID:          openAIID,
		DisplayName: "OpenAI",
		Capabilities: []models.Capability{
			models.CapabilityText,
			models.CapabilityChat,
			models.CapabilityEmbedding,
			models.CapabilityImageGeneration,
			models.CapabilityAudioTranscription,
			models.CapabilityTTS,
		},
		RequiredKeys: []string{openAIKeyOption},
	}
}

func (p *OpenAI) ID() string {
	return openAIID
}

// Invoke executes one capability request against the OpenAI API.
func (p *OpenAI) Invoke(ctx context.Context, req Request) (*Response, error) {
	apiKey, err := p.apiKey(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := callContext(ctx, req)
	defer cancel()

	model := req.Model
	if model == "" {
		model = openAIDefaultModels[req.Capability]
	}

	switch req.Capability {
	case models.CapabilityText, models.CapabilityChat:
		return p.chat(ctx, req, apiKey, model)
	case models.CapabilityEmbedding:
		return p.embed(ctx, req, apiKey, model)
	case models.CapabilityImageGeneration:
		return p.generateImage(ctx, req, apiKey, model)
	case models.CapabilityAudioTranscription:
		return p.transcribe(ctx, req, apiKey, model)
	case models.CapabilityTTS:
		return p.speak(ctx, req, apiKey, model)
	default:
		return nil, unsupported(openAIID, req.Capability)
	}
}

func (p *OpenAI) apiKey(ctx context.Context, req Request) (string, error) {
	if req.APIKey != "" {
		return req.APIKey, nil
	}
	key, err := p.opts.GetOption(ctx, openAIKeyOption)
	if errors.Is(err, config.ErrOptionNotFound) || key == "" {
		return "", NewError(openAIID, KindConfiguration, "api key not configured", nil)
	}
	if err != nil {
		return "", NewError(openAIID, KindConfiguration, "failed to read api key", err)
	}
	return key, nil
}

func (p *OpenAI) baseURL(ctx context.Context) string {
	if url, err := p.opts.GetOption(ctx, openAIBaseURLOption); err == nil && url != "" {
		return url
	}
	return openAIDefaultBaseURL
}

// chat handles both the chat capability (message list) and the text
// capability (single prompt wrapped as one user turn).
func (p *OpenAI) chat(ctx context.Context, req Request, apiKey, model string) (*Response, error) {
	messages := req.Messages
	if len(messages) == 0 {
		messages = []Message{{Role: "user", Content: req.Prompt}}
	}

	payload := map[string]any{
		"model":    model,
		"messages": messages,
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}

	body, latency, err := p.postJSON(ctx, p.baseURL(ctx)+"/chat/completions", apiKey, payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewError(openAIID, KindPermanent, "failed to decode chat response", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, NewError(openAIID, KindPermanent, "chat response contained no choices", nil)
	}

	returnedModel := parsed.Model
	if returnedModel == "" {
		returnedModel = model
	}

	return &Response{
		Content: parsed.Choices[0].Message.Content,
		Model:   returnedModel,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
			CostUSD:          p.pricing.Cost(returnedModel, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens),
		},
		Latency: latency,
	}, nil
}

func (p *OpenAI) embed(ctx context.Context, req Request, apiKey, model string) (*Response, error) {
	input := req.Input
	if len(input) == 0 && req.Prompt != "" {
		input = []string{req.Prompt}
	}
	if len(input) == 0 {
		return nil, NewError(openAIID, KindPermanent, "embedding request has no input", nil)
	}

	payload := map[string]any{
		"model": model,
		"input": input,
	}

	body, latency, err := p.postJSON(ctx, p.baseURL(ctx)+"/embeddings", apiKey, payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Model string `json:"model"`
		Usage struct {
			PromptTokens int `json:"prompt_tokens"`
			TotalTokens  int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewError(openAIID, KindPermanent, "failed to decode embedding response", err)
	}

	vectors := make([][]float64, len(parsed.Data))
	for i, d := range parsed.Data {
		vectors[i] = d.Embedding
	}
	encoded, err := json.Marshal(vectors)
	if err != nil {
		return nil, NewError(openAIID, KindPermanent, "failed to encode vectors", err)
	}

	returnedModel := parsed.Model
	if returnedModel == "" {
		returnedModel = model
	}

	return &Response{
		Content: string(encoded),
		Model:   returnedModel,
		Usage: Usage{
			PromptTokens: parsed.Usage.PromptTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
			CostUSD:      p.pricing.Cost(returnedModel, parsed.Usage.PromptTokens, 0),
		},
		Latency: latency,
	}, nil
}

func (p *OpenAI) generateImage(ctx context.Context, req Request, apiKey, model string) (*Response, error) {
	payload := map[string]any{
		"model":  model,
		"prompt": req.Prompt,
		"n":      1,
	}

	body, latency, err := p.postJSON(ctx, p.baseURL(ctx)+"/images/generations", apiKey, payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			URL     string `json:"url"`
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewError(openAIID, KindPermanent, "failed to decode image response", err)
	}
	if len(parsed.Data) == 0 {
		return nil, NewError(openAIID, KindPermanent, "image response contained no data", nil)
	}

	content := parsed.Data[0].URL
	if content == "" {
		content = parsed.Data[0].B64JSON
	}

	return &Response{
		Content: content,
		Model:   model,
		Usage:   Usage{CostUSD: p.pricing.Cost(model, 0, 0)},
		Latency: latency,
	}, nil
}

func (p *OpenAI) transcribe(ctx context.Context, req Request, apiKey, model string) (*Response, error) {
	if len(req.Audio) == 0 {
		return nil, NewError(openAIID, KindPermanent, "transcription request has no audio", nil)
	}

	format := req.AudioFormat
	if format == "" {
		format = "mp3"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "audio."+format)
	if err != nil {
		return nil, NewError(openAIID, KindPermanent, "failed to build multipart body", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, NewError(openAIID, KindPermanent, "failed to build multipart body", err)
	}
	if err := writer.WriteField("model", model); err != nil {
		return nil, NewError(openAIID, KindPermanent, "failed to build multipart body", err)
	}
	if err := writer.Close(); err != nil {
		return nil, NewError(openAIID, KindPermanent, "failed to build multipart body", err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL(ctx)+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, NewError(openAIID, KindPermanent, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportError(openAIID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, transportError(openAIID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(openAIID, resp.StatusCode, body)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewError(openAIID, KindPermanent, "failed to decode transcription response", err)
	}

	return &Response{
		Content: parsed.Text,
		Model:   model,
		Usage:   Usage{CostUSD: p.pricing.Cost(model, 0, 0)},
		Latency: latency,
	}, nil
}

func (p *OpenAI) speak(ctx context.Context, req Request, apiKey, model string) (*Response, error) {
	voice := req.Voice
	if voice == "" {
		voice = "alloy"
	}

	payload := map[string]any{
		"model": model,
		"input": req.Prompt,
		"voice": voice,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(openAIID, KindPermanent, "failed to marshal request", err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL(ctx)+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, NewError(openAIID, KindPermanent, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportError(openAIID, err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, transportError(openAIID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(openAIID, resp.StatusCode, audio)
	}

	return &Response{
		Data:    audio,
		Model:   model,
		Usage:   Usage{CostUSD: p.pricing.Cost(model, len(req.Prompt), 0)},
		Latency: latency,
	}, nil
}

// postJSON performs one authenticated JSON POST and returns the raw
// success body plus the observed latency.
func (p *OpenAI) postJSON(ctx context.Context, url, apiKey string, payload any) ([]byte, time.Duration, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, NewError(openAIID, KindPermanent, "failed to marshal request", err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, NewError(openAIID, KindPermanent, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, 0, transportError(openAIID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, latency, transportError(openAIID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, latency, statusError(openAIID, resp.StatusCode, respBody)
	}

	return respBody, latency, nil
}
