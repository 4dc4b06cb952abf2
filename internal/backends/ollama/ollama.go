// Package ollama implements the vision and text boundaries against a local
// Ollama server, for use without a cloud provider.
package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/samarth-ai/samarth/internal/backends/restutil"
	"github.com/samarth-ai/samarth/internal/engine"
	"github.com/samarth-ai/samarth/internal/registry"
)

func init() {
	registry.Vision.Register("ollama", func(cfg map[string]string) (engine.VisionEngine, error) {
		return &Vision{
			baseURL:       strings.TrimRight(restutil.First(cfg, "http://localhost:11434", "ollama_base_url", "base_url"), "/"),
			speedModel:    restutil.First(cfg, "llava:7b", "speed_model"),
			accuracyModel: restutil.First(cfg, "llava:13b", "accuracy_model"),
		}, nil
	})
	registry.Text.Register("ollama", func(cfg map[string]string) (engine.TextEngine, error) {
		return &Text{
			baseURL: strings.TrimRight(restutil.First(cfg, "http://localhost:11434", "ollama_base_url", "base_url"), "/"),
			model:   restutil.First(cfg, "llama3.2", "model"),
		}, nil
	})
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

func chat(ctx context.Context, baseURL string, req chatRequest) (string, error) {
	var resp chatResponse
	if err := restutil.DoJSON(ctx, http.MethodPost, baseURL+"/api/chat", nil, req, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// Vision implements engine.VisionEngine with Ollama's chat API.
type Vision struct {
	baseURL       string
	speedModel    string
	accuracyModel string
}

func (v *Vision) Analyze(ctx context.Context, req engine.VisionRequest) (string, error) {
	model := v.accuracyModel
	if req.Tier == engine.Speed {
		model = v.speedModel
	}
	messages := make([]chatMessage, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemInstruction})
	}
	messages = append(messages, chatMessage{
		Role:    "user",
		Content: req.Prompt,
		Images:  []string{base64.StdEncoding.EncodeToString(req.Image)},
	})

	text, err := chat(ctx, v.baseURL, chatRequest{
		Model:    model,
		Messages: messages,
		Options:  map[string]any{"temperature": 0.4},
	})
	if err != nil {
		return "", fmt.Errorf("ollama vision: %w", err)
	}
	return text, nil
}

func (v *Vision) Models() []engine.ModelInfo {
	return []engine.ModelInfo{
		{ID: v.accuracyModel, DisplayName: "Accuracy", IsDefault: true},
		{ID: v.speedModel, DisplayName: "Speed"},
	}
}

func (v *Vision) Close() error {
	return nil
}

// Text implements engine.TextEngine with Ollama's chat API.
type Text struct {
	baseURL string
	model   string
}

func (t *Text) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := chat(ctx, t.baseURL, chatRequest{
		Model:    t.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("ollama text: %w", err)
	}
	return text, nil
}

func (t *Text) Close() error {
	return nil
}
