package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// AudioSynthesizer converts narration text into MP3 bytes.
type AudioSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}

// Speaker writes synthesized narration into the artifact directory, named by
// the request's canonical ID.
type Speaker struct {
	synth       AudioSynthesizer
	artifactDir string
	publicPath  string
}

// NewSpeaker writes into artifactDir, which is served under publicPath.
func NewSpeaker(synth AudioSynthesizer, artifactDir, publicPath string) *Speaker {
	return &Speaker{synth: synth, artifactDir: artifactDir, publicPath: publicPath}
}

// Speak synthesizes text into {canonicalID}.mp3 and returns the local file and
// its public path.
func (s *Speaker) Speak(ctx context.Context, canonicalID, text string) (localPath, publicPath string, err error) {
	if canonicalID == "" {
		return "", "", SynthesisError("sourceId is not available", nil)
	}

	audio, err := s.synth.SynthesizeSpeech(ctx, text)
	if err != nil {
		return "", "", SynthesisError("Failed to convert text to MP3.", err)
	}

	name := canonicalID + ".mp3"
	localPath = filepath.Join(s.artifactDir, name)
	if err := writeFileAtomic(s.artifactDir, localPath, audio); err != nil {
		return "", "", SynthesisError("Failed to convert text to MP3.", fmt.Errorf("writing audio: %w", err))
	}
	return localPath, s.publicPath + "/" + name, nil
}

// writeFileAtomic writes data through a private temp file in dir, so concurrent
// writers of the same path never share a partial file.
func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), 0o644)
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
	}
	return err
}
