// Package openai implements the vision, text and speech boundaries on top of
// any OpenAI-compatible endpoint. The "gemini" backend name points the same
// client at Google's OpenAI-compatible endpoint with Gemini models.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/samarth-ai/samarth/internal/backends/restutil"
	"github.com/samarth-ai/samarth/internal/engine"
	"github.com/samarth-ai/samarth/internal/registry"
)

// DefaultSystemInstruction is used when a request carries none.
const DefaultSystemInstruction = "You are a helpful assistant."

const defaultTemperature = 0.4

type profile struct {
	baseURL       string
	speedModel    string
	accuracyModel string
	textModel     string
	ttsModel      string
	voice         string
}

var profiles = map[string]profile{
	"openai": {
		baseURL:       "https://api.openai.com/v1",
		speedModel:    "gpt-4o-mini",
		accuracyModel: "gpt-4o",
		textModel:     "gpt-4o-mini",
		ttsModel:      string(openai.TTSModel1),
		voice:         string(openai.VoiceAlloy),
	},
	"gemini": {
		baseURL:       "https://generativelanguage.googleapis.com/v1beta/openai",
		speedModel:    "gemini-2.5-flash",
		accuracyModel: "gemini-3-pro-preview",
		textModel:     "gemini-2.5-flash",
	},
}

func init() {
	for name, p := range profiles {
		name, p := name, p
		registry.Vision.Register(name, func(cfg map[string]string) (engine.VisionEngine, error) {
			client, err := newClient(name, p, cfg)
			if err != nil {
				return nil, err
			}
			temp, err := temperature(cfg)
			if err != nil {
				return nil, err
			}
			return &Vision{
				client:        client,
				speedModel:    restutil.First(cfg, p.speedModel, "speed_model"),
				accuracyModel: restutil.First(cfg, p.accuracyModel, "accuracy_model"),
				temperature:   temp,
			}, nil
		})
		registry.Text.Register(name, func(cfg map[string]string) (engine.TextEngine, error) {
			client, err := newClient(name, p, cfg)
			if err != nil {
				return nil, err
			}
			return &Text{client: client, model: restutil.First(cfg, p.textModel, "model")}, nil
		})
		if p.ttsModel == "" {
			continue
		}
		registry.TTS.Register(name, func(cfg map[string]string) (engine.TTSEngine, error) {
			client, err := newClient(name, p, cfg)
			if err != nil {
				return nil, err
			}
			return &TTS{
				client: client,
				model:  restutil.First(cfg, p.ttsModel, "model"),
				voice:  restutil.First(cfg, p.voice, "voice"),
			}, nil
		})
	}
}

func newClient(name string, p profile, cfg map[string]string) (*openai.Client, error) {
	apiKey := restutil.First(cfg, "", name+"_api_key", "api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key required (set %s_api_key in config)", name, name)
	}
	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = restutil.First(cfg, p.baseURL, name+"_base_url", "base_url")
	return openai.NewClientWithConfig(clientConfig), nil
}

func temperature(cfg map[string]string) (float32, error) {
	raw := cfg["temperature"]
	if raw == "" {
		return defaultTemperature, nil
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid temperature %q: %w", raw, err)
	}
	return float32(v), nil
}

// --- Vision ---

// Vision implements engine.VisionEngine with multimodal chat completions.
type Vision struct {
	client        *openai.Client
	speedModel    string
	accuracyModel string
	temperature   float32
}

func (v *Vision) model(tier engine.QualityTier) string {
	if tier == engine.Speed {
		return v.speedModel
	}
	return v.accuracyModel
}

func (v *Vision) Analyze(ctx context.Context, req engine.VisionRequest) (string, error) {
	system := req.SystemInstruction
	if system == "" {
		system = DefaultSystemInstruction
	}
	mime := req.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	dataURI := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.Image))

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       v.model(req.Tier),
		Temperature: v.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURI, Detail: openai.ImageURLDetailAuto},
					},
					{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
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

// --- Text ---

// Text implements engine.TextEngine with a single-turn chat completion.
type Text struct {
	client *openai.Client
	model  string
}

func (t *Text) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("text completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (t *Text) Close() error {
	return nil
}

// --- TTS ---

// TTS implements engine.TTSEngine using the speech endpoint. Output is MP3.
type TTS struct {
	client *openai.Client
	model  string
	voice  string
}

func (o *TTS) Synthesize(ctx context.Context, text string, voice string) (engine.Audio, error) {
	if voice == "" {
		voice = o.voice
	}
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return engine.Audio{}, fmt.Errorf("openai TTS: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return engine.Audio{}, fmt.Errorf("openai TTS read: %w", err)
	}
	return engine.Audio{Data: data, Encoding: engine.EncodingMP3}, nil
}

func (o *TTS) Voices() []engine.Voice {
	return []engine.Voice{
		{ID: "alloy", Name: "Alloy", Language: "en"},
		{ID: "echo", Name: "Echo", Language: "en"},
		{ID: "nova", Name: "Nova", Language: "en"},
		{ID: "shimmer", Name: "Shimmer", Language: "en"},
	}
}

func (o *TTS) Models() []engine.ModelInfo {
	return []engine.ModelInfo{
		{ID: "tts-1", DisplayName: "TTS 1", IsDefault: true},
		{ID: "tts-1-hd", DisplayName: "TTS 1 HD"},
	}
}

func (o *TTS) Close() error {
	return nil
}
