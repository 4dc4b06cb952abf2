package piper

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/samarth-ai/samarth/internal/backends/restutil"
	"github.com/samarth-ai/samarth/internal/engine"
	"github.com/samarth-ai/samarth/internal/registry"
)

func init() {
	registry.TTS.Register("piper", func(cfg map[string]string) (engine.TTSEngine, error) {
		rate, err := strconv.Atoi(restutil.First(cfg, "22050", "sample_rate"))
		if err != nil {
			return nil, fmt.Errorf("invalid piper sample_rate: %w", err)
		}
		return NewPiperTTS(
			restutil.First(cfg, "piper", "piper_binary_path", "binary_path"),
			restutil.First(cfg, "./models/en_US-amy-medium.onnx", "piper_model_path", "model_path"),
			rate,
		), nil
	})
}

// PiperTTS implements TTSEngine using the Piper TTS binary. It needs no
// network, which keeps the assistant speaking while offline.
type PiperTTS struct {
	binaryPath string
	modelPath  string
	sampleRate int
}

// NewPiperTTS creates a new Piper TTS engine.
func NewPiperTTS(binaryPath, modelPath string, sampleRate int) *PiperTTS {
	return &PiperTTS{
		binaryPath: binaryPath,
		modelPath:  modelPath,
		sampleRate: sampleRate,
	}
}

// Synthesize generates raw 16-bit mono PCM at the model's sample rate.
func (p *PiperTTS) Synthesize(ctx context.Context, text string, _ string) (engine.Audio, error) {
	cmd := exec.CommandContext(ctx, p.binaryPath,
		"--model", p.modelPath,
		"--output-raw",
	)

	cmd.Stdin = bytes.NewBufferString(text)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return engine.Audio{}, fmt.Errorf("piper TTS: %w: %s", err, stderr.String())
	}

	return engine.Audio{
		Data:       stdout.Bytes(),
		Encoding:   engine.EncodingPCM,
		SampleRate: p.sampleRate,
		Channels:   1,
	}, nil
}

// Voices returns available TTS voices.
func (p *PiperTTS) Voices() []engine.Voice {
	return []engine.Voice{
		{ID: "default", Name: "Default", Language: "en-US"},
	}
}

// Models returns available Piper models.
func (p *PiperTTS) Models() []engine.ModelInfo {
	return []engine.ModelInfo{
		{ID: "en_US-amy-medium", DisplayName: "Amy (Medium)", IsDefault: true},
	}
}

// Close releases TTS resources.
func (p *PiperTTS) Close() error {
	return nil
}
