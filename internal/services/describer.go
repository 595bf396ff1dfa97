package services

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/documentnarrator/internal/gcp"
)

// ImageDescriber produces a narration-oriented description of an image or
// single document sent inline.
type ImageDescriber interface {
	Describe(ctx context.Context, data []byte, mimeType string) (string, error)
}

// contentGenerator is the part of *genai.GenerativeModel the describer uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexDescriber describes images with a Gemini model on Vertex AI.
type VertexDescriber struct {
	model  contentGenerator
	prompt string
}

// NewVertexDescriber uses the client's narration model and the fixed image prompt.
func NewVertexDescriber(client *gcp.VertexClient) *VertexDescriber {
	return &VertexDescriber{model: client.NarratorModel, prompt: gcp.ImageNarrationPrompt}
}

// Describe sends the bytes inline with the prompt and returns the model's text.
func (d *VertexDescriber) Describe(ctx context.Context, data []byte, mimeType string) (string, error) {
	resp, err := d.model.GenerateContent(ctx, genai.Text(d.prompt), genai.Blob{MIMEType: mimeType, Data: data})
	if err != nil {
		return "", fmt.Errorf("failed to generate description from gemini: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini returned no text for the image")
	}
	return text, nil
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}
