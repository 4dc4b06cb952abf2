package elevenlabs

import (
	"context"
	"fmt"
	"net/http"

	"github.com/samarth-ai/samarth/internal/backends/restutil"
	"github.com/samarth-ai/samarth/internal/engine"
	"github.com/samarth-ai/samarth/internal/registry"
)

const defaultBaseURL = "https://api.elevenlabs.io/v1"

func init() {
	registry.TTS.Register("elevenlabs", func(cfg map[string]string) (engine.TTSEngine, error) {
		apiKey := restutil.First(cfg, "", "elevenlabs_api_key", "api_key")
		if apiKey == "" {
			return nil, fmt.Errorf("elevenlabs API key required (set elevenlabs_api_key in config)")
		}
		return &ElevenLabsTTS{
			apiKey:  apiKey,
			baseURL: restutil.First(cfg, defaultBaseURL, "elevenlabs_base_url", "base_url"),
			model:   restutil.First(cfg, "eleven_multilingual_v2", "model"),
			voice:   restutil.First(cfg, "21m00Tcm4TlvDq8ikWAM", "voice"),
		}, nil
	})
}

type elevenLabsRequest struct {
	Text          string                `json:"text"`
	ModelID       string                `json:"model_id"`
	VoiceSettings elevenLabsVoiceConfig `json:"voice_settings"`
}

type elevenLabsVoiceConfig struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// ElevenLabsTTS implements TTSEngine using the ElevenLabs REST API.
type ElevenLabsTTS struct {
	apiKey  string
	baseURL string
	model   string
	voice   string
}

func (e *ElevenLabsTTS) Synthesize(ctx context.Context, text string, voice string) (engine.Audio, error) {
	if voice == "" {
		voice = e.voice
	}

	apiURL := fmt.Sprintf("%s/text-to-speech/%s?output_format=mp3_44100_128", e.baseURL, voice)

	headers := map[string]string{
		"xi-api-key":   e.apiKey,
		"Content-Type": "application/json",
		"Accept":       "audio/mpeg",
	}

	body, err := restutil.MarshalJSON(elevenLabsRequest{
		Text:    text,
		ModelID: e.model,
		VoiceSettings: elevenLabsVoiceConfig{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return engine.Audio{}, err
	}

	data, err := restutil.DoRaw(ctx, http.MethodPost, apiURL, headers, body)
	if err != nil {
		return engine.Audio{}, fmt.Errorf("elevenlabs TTS: %w", err)
	}
	return engine.Audio{Data: data, Encoding: engine.EncodingMP3}, nil
}

func (e *ElevenLabsTTS) Voices() []engine.Voice {
	return []engine.Voice{
		{ID: "21m00Tcm4TlvDq8ikWAM", Name: "Rachel", Language: "en"},
		{ID: "AZnzlk1XvdvUeBnXmlld", Name: "Domi", Language: "en"},
		{ID: "EXAVITQu4vr4xnSDxMaL", Name: "Bella", Language: "en"},
	}
}

func (e *ElevenLabsTTS) Models() []engine.ModelInfo {
	return []engine.ModelInfo{
		{ID: "eleven_multilingual_v2", DisplayName: "Multilingual v2", IsDefault: true},
		{ID: "eleven_turbo_v2", DisplayName: "Turbo v2"},
	}
}

func (e *ElevenLabsTTS) Close() error {
	return nil
}
