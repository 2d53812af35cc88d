package config

import (
	"context"
	"errors"
	"testing"

	"aiengine/internal/models"
)

func TestStaticOptions(t *testing.T) {
	opts := StaticOptions{"openai_api_key": "sk-test"}
	ctx := context.Background()

	val, err := opts.GetOption(ctx, "openai_api_key")
	if err != nil {
		t.Fatalf("GetOption failed: %v", err)
	}
	if val != "sk-test" {
		t.Errorf("Expected sk-test, got %q", val)
	}

	if _, err := opts.GetOption(ctx, "missing"); !errors.Is(err, ErrOptionNotFound) {
		t.Errorf("Expected ErrOptionNotFound, got %v", err)
	}
}

func TestEnvOptions(t *testing.T) {
	t.Setenv("AIENGINE_OPENAI_API_KEY", "sk-env")

	opts := EnvOptions{}
	ctx := context.Background()

	val, err := opts.GetOption(ctx, "openai_api_key")
	if err != nil {
		t.Fatalf("GetOption failed: %v", err)
	}
	if val != "sk-env" {
		t.Errorf("Expected sk-env, got %q", val)
	}

	if _, err := opts.GetOption(ctx, "unset_key"); !errors.Is(err, ErrOptionNotFound) {
		t.Errorf("Expected ErrOptionNotFound, got %v", err)
	}
}

func TestEnvOptionsCustomPrefix(t *testing.T) {
	t.Setenv("MYAPP_SOME_OPTION", "value")

	opts := EnvOptions{Prefix: "MYAPP_"}
	val, err := opts.GetOption(context.Background(), "some.option")
	if err != nil {
		t.Fatalf("GetOption failed: %v", err)
	}
	if val != "value" {
		t.Errorf("Expected value, got %q", val)
	}
}

func TestLoadRoutingTable(t *testing.T) {
	opts := StaticOptions{
		RoutingPolicyOption: `{
			"chat": {"preferred": "openai", "fallbacks": ["anthropic", "gemini"]},
			"tts": {"preferred": "elevenlabs"}
		}`,
	}

	table, err := LoadRoutingTable(context.Background(), opts)
	if err != nil {
		t.Fatalf("LoadRoutingTable failed: %v", err)
	}

	chat, ok := table[models.CapabilityChat]
	if !ok {
		t.Fatal("Expected chat policy")
	}
	if chat.Preferred != "openai" {
		t.Errorf("Expected openai preferred, got %q", chat.Preferred)
	}
	if len(chat.Fallbacks) != 2 || chat.Fallbacks[0] != "anthropic" {
		t.Errorf("Unexpected fallbacks %v", chat.Fallbacks)
	}

	if table[models.CapabilityTTS].Preferred != "elevenlabs" {
		t.Error("Expected elevenlabs for tts")
	}
}

func TestLoadRoutingTableMissingOption(t *testing.T) {
	table, err := LoadRoutingTable(context.Background(), StaticOptions{})
	if err != nil {
		t.Fatalf("LoadRoutingTable failed: %v", err)
	}
	if len(table) != 0 {
		t.Errorf("Expected empty table, got %d entries", len(table))
	}
}

func TestLoadRoutingTableRejectsUnknownCapability(t *testing.T) {
	opts := StaticOptions{
		RoutingPolicyOption: `{"video": {"preferred": "openai"}}`,
	}

	if _, err := LoadRoutingTable(context.Background(), opts); err == nil {
		t.Error("Expected error for unknown capability key")
	}
}

func TestLoadRoutingTableInvalidJSON(t *testing.T) {
	opts := StaticOptions{RoutingPolicyOption: "not json"}

	if _, err := LoadRoutingTable(context.Background(), opts); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}
