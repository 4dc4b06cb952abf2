package engine

import (
	"context"
)

// Encoding tags the format of an Audio payload.
type Encoding string

const (
	EncodingMP3 Encoding = "mp3"
	// EncodingPCM is signed 16-bit little-endian PCM.
	EncodingPCM Encoding = "pcm_s16le"
)

// Audio is a synthesized speech payload.
type Audio struct {
	Data       []byte
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Empty reports whether the payload carries no audio.
func (a Audio) Empty() bool {
	return len(a.Data) == 0
}

// Voice describes an available TTS voice.
type Voice struct {
	ID       string
	Name     string
	Language string
}

// TTSEngine synthesizes speech from text.
type TTSEngine interface {
	Synthesize(ctx context.Context, text string, voice string) (Audio, error)
	Voices() []Voice
	Models() []ModelInfo
	Close() error
}
