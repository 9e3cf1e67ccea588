package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleModel = "model"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Part struct {
	Text string
}

type Content struct {
	Role  string
	Parts []Part
}

// UserContent builds a single user turn with one part per text.
func UserContent(texts ...string) []Content {
	parts := make([]Part, 0, len(texts))
	for _, text := range texts {
		parts = append(parts, Part{Text: text})
	}
	return []Content{{Role: RoleUser, Parts: parts}}
}

// Model generates text for role-tagged content. An empty string with a nil
// error means the model produced no text.
type Model interface {
	Generate(ctx context.Context, contents []Content) (string, error)
}

type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	Vertex      bool
	Project     string
	Location    string
}

func New(ctx context.Context, cfg Config) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderGemini:
		model, err := NewGeminiModel(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return model, nil
	case ProviderOpenAI:
		model, err := NewOpenAIModel(cfg)
		if err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}
