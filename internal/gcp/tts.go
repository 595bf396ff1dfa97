package gcp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

// The synthesis API rejects inputs above 5000 bytes; keep some headroom.
const maxSynthesisBytes = 4800

// VoiceConfig selects the narration voice.
type VoiceConfig struct {
	LanguageCode string
	Name         string
	Gender       texttospeechpb.SsmlVoiceGender
}

// DefaultVoice is the standard Indonesian narration voice.
var DefaultVoice = VoiceConfig{
	LanguageCode: "id-ID",
	Name:         "id-ID-Standard-C",
	Gender:       texttospeechpb.SsmlVoiceGender_NEUTRAL,
}

// GoogleSpeech synthesizes MP3 narration with Cloud Text-to-Speech.
type GoogleSpeech struct {
	client *texttospeech.Client
	voice  VoiceConfig
}

// NewGoogleSpeech creates a Text-to-Speech client using application default credentials.
func NewGoogleSpeech(ctx context.Context, voice VoiceConfig) (*GoogleSpeech, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Text-to-Speech client: %w", err)
	}
	return &GoogleSpeech{client: client, voice: voice}, nil
}

// SynthesizeSpeech returns MP3 bytes for text. Long inputs are synthesized in
// segments and the MP3 streams concatenated.
func (s *GoogleSpeech) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	segments := splitForSynthesis(text, maxSynthesisBytes)
	if len(segments) == 0 {
		return nil, fmt.Errorf("no text to synthesize")
	}
	if len(segments) > 1 {
		slog.Info("Narration exceeds a single synthesis request; splitting.", "segments", len(segments), "bytes", len(text))
	}

	var audio bytes.Buffer
	for i, segment := range segments {
		resp, err := s.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
			Input: &texttospeechpb.SynthesisInput{
				InputSource: &texttospeechpb.SynthesisInput_Text{Text: segment},
			},
			Voice: &texttospeechpb.VoiceSelectionParams{
				LanguageCode: s.voice.LanguageCode,
				Name:         s.voice.Name,
				SsmlGender:   s.voice.Gender,
			},
			AudioConfig: &texttospeechpb.AudioConfig{
				AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("segment %d/%d: %w", i+1, len(segments), err)
		}
		audio.Write(resp.GetAudioContent())
	}
	return audio.Bytes(), nil
}

func (s *GoogleSpeech) Close() error {
	return s.client.Close()
}

// splitForSynthesis cuts text into pieces of at most limit bytes, preferring
// sentence, then clause, then word boundaries.
func splitForSynthesis(text string, limit int) []string {
	text = strings.TrimSpace(text)
	var segments []string
	for len(text) > limit {
		cut := cutPoint(text, limit)
		if head := strings.TrimSpace(text[:cut]); head != "" {
			segments = append(segments, head)
		}
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		segments = append(segments, text)
	}
	return segments
}

func cutPoint(text string, limit int) int {
	window := text[:limit]
	for _, sep := range []string{". ", ", ", " "} {
		if i := strings.LastIndex(window, sep); i > 0 {
			return i + len(sep)
		}
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}
