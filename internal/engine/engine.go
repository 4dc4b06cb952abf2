// Package engine defines the external AI boundaries used by the assistant:
// image description, text generation and speech synthesis.
package engine

import (
	"context"
	"fmt"
)

// QualityTier selects between a fast analysis profile and a slower,
// higher-fidelity one.
type QualityTier string

const (
	Speed    QualityTier = "speed"
	Accuracy QualityTier = "accuracy"
)

// ParseTier maps a user supplied tier name to a QualityTier. Empty input
// selects Accuracy.
func ParseTier(s string) (QualityTier, error) {
	switch QualityTier(s) {
	case "", Accuracy:
		return Accuracy, nil
	case Speed:
		return Speed, nil
	default:
		return "", fmt.Errorf("unknown quality tier %q", s)
	}
}

// ModelInfo describes a model offered by a backend.
type ModelInfo struct {
	ID          string
	DisplayName string
	IsDefault   bool
}

// VisionRequest is one image description call.
type VisionRequest struct {
	Image             []byte
	MIMEType          string
	Prompt            string
	SystemInstruction string
	Tier              QualityTier
}

// VisionEngine turns an image and a prompt into descriptive text.
type VisionEngine interface {
	Analyze(ctx context.Context, req VisionRequest) (string, error)
	Models() []ModelInfo
	Close() error
}

// TextEngine generates short free-form text.
type TextEngine interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Close() error
}
