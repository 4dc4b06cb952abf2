// Package prompts holds the analysis prompt catalog: what to ask the vision
// backend for each kind of request and which answers are not worth speaking.
package prompts

import (
	"fmt"

	"github.com/samarth-ai/samarth/internal/engine"
)

// Kind names an analysis request.
type Kind string

const (
	Front    Kind = "front"
	Location Kind = "location"
	Objects  Kind = "objects"
	Sign     Kind = "sign"
)

// Prompt is a YAML-mappable catalog entry.
type Prompt struct {
	Kind              Kind               `yaml:"kind"               json:"kind"`
	Prompt            string             `yaml:"prompt"             json:"prompt"`
	SystemInstruction string             `yaml:"system_instruction" json:"system_instruction"`
	Tier              engine.QualityTier `yaml:"tier"               json:"tier"`
	// SilentOn lists phrases that mark an answer as non-informative; such
	// answers are shown but not spoken.
	SilentOn    []string `yaml:"silent_on"    json:"silent_on,omitempty"`
	InitialText string   `yaml:"initial_text" json:"initial_text,omitempty"`
}

// Validate checks the entry is usable.
func (p *Prompt) Validate() error {
	if p.Kind == "" {
		return fmt.Errorf("prompt kind is required")
	}
	if p.Prompt == "" {
		return fmt.Errorf("prompt %q has no prompt text", p.Kind)
	}
	if _, err := engine.ParseTier(string(p.Tier)); err != nil {
		return fmt.Errorf("prompt %q: %w", p.Kind, err)
	}
	return nil
}

// File is the on-disk layout of a catalog file.
type File struct {
	Prompts []Prompt `yaml:"prompts"`
}

const (
	visualInstruction = "You are a visual assistant for a blind person. Provide short, safe, and actionable descriptions. Prioritize safety hazards. Use a calm, clear tone."
	signInstruction   = "You are an expert sign language interpreter. Your goal is to translate visual signs into clear, spoken-style text. Be encouraging."

	// SignUnclear is the exact answer the sign prompt asks for when no sign
	// can be read.
	SignUnclear = "Please show the sign more clearly."
)

// Defaults returns the built-in catalog.
func Defaults() map[Kind]Prompt {
	return map[Kind]Prompt{
		Front: {
			Kind:              Front,
			Prompt:            "What is directly in front of me? Are there immediate obstacles? Be brief and directive. E.g., 'A chair is 2 feet ahead. Move right.'",
			SystemInstruction: visualInstruction,
			Tier:              engine.Speed,
			InitialText:       "Ask me about your surroundings.",
		},
		Location: {
			Kind:              Location,
			Prompt:            "Describe where I am (room type, indoor/outdoor) and the general layout. Keep it short.",
			SystemInstruction: visualInstruction,
			Tier:              engine.Speed,
			InitialText:       "Ask me about your surroundings.",
		},
		Objects: {
			Kind:              Objects,
			Prompt:            "List the main objects visible in the scene and their approximate position relative to the camera.",
			SystemInstruction: visualInstruction,
			Tier:              engine.Speed,
			InitialText:       "Ask me about your surroundings.",
		},
		Sign: {
			Kind:              Sign,
			Prompt:            "Analyze this image for hand gestures or sign language. Return ONLY the translated text message of what the person is saying. If the sign is unclear or not present, reply exactly with: '" + SignUnclear + "' Do not include markdown or explanations, just the spoken text.",
			SystemInstruction: signInstruction,
			Tier:              engine.Accuracy,
			SilentOn:          []string{"Please show the sign more clearly"},
			InitialText:       "Ready to listen...",
		},
	}
}
