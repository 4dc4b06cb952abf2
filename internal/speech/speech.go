// Package speech adapts a TTS backend to the assistant's speech boundary:
// text in, an audio payload or nothing out.
package speech

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samarth-ai/samarth/internal/engine"
)

// Service synthesizes speech with a single fixed voice profile.
type Service struct {
	tts     engine.TTSEngine
	voice   string
	timeout time.Duration
}

// New creates a speech service. A nil engine disables synthesis.
func New(tts engine.TTSEngine, voice string, timeout time.Duration) *Service {
	return &Service{tts: tts, voice: voice, timeout: timeout}
}

// Synthesize returns the audio for text. A nil payload with a nil error
// means there is nothing to play; callers skip playback in both the nil
// payload and the error case.
func (s *Service) Synthesize(ctx context.Context, text string) (*engine.Audio, error) {
	if s == nil || s.tts == nil || strings.TrimSpace(text) == "" {
		return nil, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	audio, err := s.tts.Synthesize(ctx, text, s.voice)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	if audio.Empty() {
		return nil, nil
	}
	return &audio, nil
}

// Close releases the underlying engine.
func (s *Service) Close() error {
	if s == nil || s.tts == nil {
		return nil
	}
	return s.tts.Close()
}
