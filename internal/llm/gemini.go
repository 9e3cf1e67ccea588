package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

type GeminiModel struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

func NewGeminiModel(ctx context.Context, cfg Config) (*GeminiModel, error) {
	clientConfig, err := geminiClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeminiModel{
		client:      client,
		model:       model,
		temperature: float32(cfg.Temperature),
		timeout:     timeout,
	}, nil
}

func geminiClientConfig(cfg Config) (*genai.ClientConfig, error) {
	if cfg.Vertex {
		if strings.TrimSpace(cfg.Project) == "" {
			return nil, fmt.Errorf("vertex project is required")
		}
		if strings.TrimSpace(cfg.Location) == "" {
			return nil, fmt.Errorf("vertex location is required")
		}
		return &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  strings.TrimSpace(cfg.Project),
			Location: strings.TrimSpace(cfg.Location),
		}, nil
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	return &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}, nil
}

func (m *GeminiModel) Generate(ctx context.Context, contents []Content) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.client.Models.GenerateContent(ctx, m.model, toGenaiContents(contents), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(m.temperature),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text(), nil
}

func toGenaiContents(contents []Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(contents))
	for _, content := range contents {
		parts := make([]*genai.Part, 0, len(content.Parts))
		for _, part := range content.Parts {
			parts = append(parts, &genai.Part{Text: part.Text})
		}
		role := content.Role
		if role == "" {
			role = RoleUser
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out
}
