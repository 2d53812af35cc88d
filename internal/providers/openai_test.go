package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"aiengine/internal/config"
	"aiengine/internal/models"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) (*OpenAI, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts := config.StaticOptions{
		"openai_api_key":  "sk-test",
		"openai_base_url": server.URL,
	}
	pricing := models.PricingTable{
		"gpt-4o-mini": {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	}
	return NewOpenAI(opts, pricing), server
}

func TestOpenAIChat(t *testing.T) {
	adapter, _ := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Unexpected authorization header %q", auth)
		}

		var payload struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if payload.Model != "gpt-4o-mini" {
			t.Errorf("Expected default model gpt-4o-mini, got %q", payload.Model)
		}
		if len(payload.Messages) != 1 || payload.Messages[0].Content != "hello" {
			t.Errorf("Expected prompt wrapped as one user message, got %+v", payload.Messages)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o-mini",
			"choices": []map[string]any{
				{"message": map[string]string{"content": "hi there"}},
			},
			"usage": map[string]int{
				"prompt_tokens":     10,
				"completion_tokens": 5,
				"total_tokens":      15,
			},
		})
	})

	resp, err := adapter.Invoke(context.Background(), Request{
		Capability: models.CapabilityText,
		Prompt:     "hello",
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if resp.Content != "hi there" {
		t.Errorf("Expected content %q, got %q", "hi there", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if resp.Usage.CostUSD == 0 {
		t.Error("Expected non-zero cost from pricing table")
	}
}

func TestOpenAIEmbedding(t *testing.T) {
	adapter, _ := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model": "text-embedding-3-small",
			"data": []map[string]any{
				{"embedding": []float64{0.1, 0.2, 0.3}},
			},
			"usage": map[string]int{"prompt_tokens": 4, "total_tokens": 4},
		})
	})

	resp, err := adapter.Invoke(context.Background(), Request{
		Capability: models.CapabilityEmbedding,
		Input:      []string{"hello world"},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	var vectors [][]float64
	if err := json.Unmarshal([]byte(resp.Content), &vectors); err != nil {
		t.Fatalf("Failed to decode vectors: %v", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != 3 {
		t.Errorf("Unexpected vectors %v", vectors)
	}
}

func TestOpenAIRateLimited(t *testing.T) {
	adapter, _ := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	})

	_, err := adapter.Invoke(context.Background(), Request{
		Capability: models.CapabilityChat,
		Messages:   []Message{{Role: "user", Content: "hello"}},
	})
	if err == nil {
		t.Fatal("Expected error for 429 response")
	}
	if !IsTransient(err) {
		t.Errorf("Expected transient error, got kind %s", KindOf(err))
	}
}

func TestOpenAIMissingKey(t *testing.T) {
	adapter := NewOpenAI(config.StaticOptions{}, nil)

	_, err := adapter.Invoke(context.Background(), Request{
		Capability: models.CapabilityChat,
		Prompt:     "hello",
	})
	if err == nil {
		t.Fatal("Expected error for missing api key")
	}
	if !IsConfiguration(err) {
		t.Errorf("Expected configuration error, got kind %s", KindOf(err))
	}
}

func TestOpenAIKeyOverride(t *testing.T) {
	var gotAuth string
	adapter, _ := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "ok"}},
			},
		})
	})

	_, err := adapter.Invoke(context.Background(), Request{
		Capability: models.CapabilityChat,
		Prompt:     "hello",
		APIKey:     "sk-override",
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if gotAuth != "Bearer sk-override" {
		t.Errorf("Expected override key in authorization header, got %q", gotAuth)
	}
}

func TestOpenAIUnsupportedCapability(t *testing.T) {
	adapter := NewOpenAI(config.StaticOptions{"openai_api_key": "sk-test"}, nil)

	_, err := adapter.Invoke(context.Background(), Request{
		Capability: models.CapabilityImageAnalysis,
	})
	if err == nil {
		t.Fatal("Expected error for unsupported capability")
	}

	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindUnsupported {
		t.Errorf("Expected unsupported error, got %v", err)
	}
}
