package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/http"

	"github.com/samarth-ai/samarth/internal/backends/restutil"
	"github.com/samarth-ai/samarth/internal/engine"
	"github.com/samarth-ai/samarth/internal/registry"
)

const (
	defaultBaseURL    = "https://texttospeech.googleapis.com/v1"
	defaultVoice      = "en-US-Chirp3-HD-Kore"
	defaultSampleRate = 24000
)

func init() {
	registry.TTS.Register("google", func(cfg map[string]string) (engine.TTSEngine, error) {
		apiKey := restutil.First(cfg, "", "google_api_key", "api_key")
		if apiKey == "" {
			return nil, fmt.Errorf("google API key required (set google_api_key in config)")
		}
		return &GoogleTTS{
			apiKey:   apiKey,
			baseURL:  restutil.First(cfg, defaultBaseURL, "google_base_url", "base_url"),
			voice:    restutil.First(cfg, defaultVoice, "voice"),
			language: restutil.First(cfg, "en-US", "language"),
		}, nil
	})
}

type googleSynthRequest struct {
	Input       googleSynthInput       `json:"input"`
	Voice       googleSynthVoice       `json:"voice"`
	AudioConfig googleSynthAudioConfig `json:"audioConfig"`
}

type googleSynthInput struct {
	Text string `json:"text"`
}

type googleSynthVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type googleSynthAudioConfig struct {
	AudioEncoding   string `json:"audioEncoding"`
	SampleRateHertz int    `json:"sampleRateHertz"`
}

type googleSynthResponse struct {
	AudioContent string `json:"audioContent"` // base64-encoded
}

// GoogleTTS implements TTSEngine using the Google Cloud Text-to-Speech REST API.
type GoogleTTS struct {
	apiKey   string
	baseURL  string
	voice    string
	language string
}

func (g *GoogleTTS) Synthesize(ctx context.Context, text string, voice string) (engine.Audio, error) {
	if voice == "" {
		voice = g.voice
	}

	req := googleSynthRequest{
		Input: googleSynthInput{Text: text},
		Voice: googleSynthVoice{
			LanguageCode: g.language,
			Name:         voice,
		},
		AudioConfig: googleSynthAudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: defaultSampleRate,
		},
	}

	var resp googleSynthResponse
	apiURL := g.baseURL + "/text:synthesize?key=" + g.apiKey
	if err := restutil.DoJSON(ctx, http.MethodPost, apiURL, nil, req, &resp); err != nil {
		return engine.Audio{}, fmt.Errorf("google TTS: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return engine.Audio{}, fmt.Errorf("google TTS decode audio: %w", err)
	}

	return engine.Audio{
		Data:       stripWAVHeader(raw),
		Encoding:   engine.EncodingPCM,
		SampleRate: defaultSampleRate,
		Channels:   1,
	}, nil
}

// stripWAVHeader returns the data chunk of a RIFF/WAVE buffer, or the input
// unchanged when it carries no header. LINEAR16 responses include one.
func stripWAVHeader(b []byte) []byte {
	if len(b) < 12 || !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return b
	}
	off := 12
	for off+8 <= len(b) {
		id := b[off : off+4]
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		off += 8
		if bytes.Equal(id, []byte("data")) {
			end := off + size
			if end > len(b) || size == 0 {
				end = len(b)
			}
			return b[off:end]
		}
		off += size + size%2
	}
	return b
}

func (g *GoogleTTS) Voices() []engine.Voice {
	return []engine.Voice{
		{ID: "en-US-Chirp3-HD-Kore", Name: "Kore (Female)", Language: "en-US"},
		{ID: "en-US-Chirp3-HD-Puck", Name: "Puck (Male)", Language: "en-US"},
		{ID: "en-US-Neural2-C", Name: "Neural2 C (Female)", Language: "en-US"},
	}
}

func (g *GoogleTTS) Models() []engine.ModelInfo {
	return []engine.ModelInfo{
		{ID: "chirp3-hd", DisplayName: "Chirp 3 HD", IsDefault: true},
		{ID: "neural2", DisplayName: "Neural2"},
	}
}

func (g *GoogleTTS) Close() error {
	return nil
}
