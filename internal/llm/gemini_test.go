package llm

import (
	"context"
	"testing"
)

func TestGeminiClientConfigRequiresCredentials(t *testing.T) {
	if _, err := geminiClientConfig(Config{}); err == nil {
		t.Fatal("expected api key error")
	}
	if _, err := geminiClientConfig(Config{Vertex: true, Location: "us-central1"}); err == nil {
		t.Fatal("expected vertex project error")
	}
	if _, err := geminiClientConfig(Config{Vertex: true, Project: "p"}); err == nil {
		t.Fatal("expected vertex location error")
	}
}

func TestGeminiClientConfigSelectsBackend(t *testing.T) {
	cfg, err := geminiClientConfig(Config{APIKey: " key "})
	if err != nil {
		t.Fatalf("geminiClientConfig() error = %v", err)
	}
	if cfg.APIKey != "key" {
		t.Fatalf("APIKey = %q", cfg.APIKey)
	}

	cfg, err = geminiClientConfig(Config{Vertex: true, Project: "proj", Location: "us-central1"})
	if err != nil {
		t.Fatalf("geminiClientConfig() error = %v", err)
	}
	if cfg.Project != "proj" || cfg.Location != "us-central1" {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestToGenaiContentsKeepsRolesAndParts(t *testing.T) {
	got := toGenaiContents([]Content{
		{Parts: []Part{{Text: "instruction"}, {Text: "Hello"}}},
		{Role: RoleModel, Parts: []Part{{Text: "ok"}}},
	})
	if len(got) != 2 {
		t.Fatalf("contents = %d", len(got))
	}
	if got[0].Role != RoleUser || len(got[0].Parts) != 2 || got[0].Parts[1].Text != "Hello" {
		t.Fatalf("first content = %+v", got[0])
	}
	if got[1].Role != RoleModel {
		t.Fatalf("second role = %q", got[1].Role)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), Config{Provider: "llama"}); err == nil {
		t.Fatal("expected unsupported provider error")
	}
}
