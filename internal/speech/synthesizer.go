package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

// Synthesizer renders assistant text as playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// GoogleSynthesizer implements Synthesizer with the Cloud Text-to-Speech
// REST API, producing LINEAR16 WAV at the same sample rate the recognizer
// consumes.
type GoogleSynthesizer struct {
	svc             *texttospeech.Service
	voiceName       string
	sampleRateHertz int
	languageCode    string
}

// NewGoogleSynthesizer creates a synthesizer. An empty credentials file
// falls back to application default credentials. A zero sample rate or
// empty language code falls back to 16kHz en-US, matching the recognizer.
func NewGoogleSynthesizer(ctx context.Context, credentialsFile, voiceName string, sampleRateHertz int, languageCode string) (*GoogleSynthesizer, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	if sampleRateHertz <= 0 {
		sampleRateHertz = defaultSampleRateHertz
	}
	if strings.TrimSpace(languageCode) == "" {
		languageCode = defaultLanguageCode
	}

	svc, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech: failed to create tts service: %w", err)
	}
	if strings.TrimSpace(voiceName) == "" {
		voiceName = "en-US-Neural2-F"
	}
	return &GoogleSynthesizer{
		svc:             svc,
		voiceName:       voiceName,
		sampleRateHertz: sampleRateHertz,
		languageCode:    languageCode,
	}, nil
}

// Synthesize renders text as audio bytes.
func (s *GoogleSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	resp, err := s.svc.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: s.languageCode,
			Name:         s.voiceName,
			SsmlGender:   "FEMALE",
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: int64(s.sampleRateHertz),
		},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("speech: synthesis failed: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("speech: decode synthesized audio: %w", err)
	}
	return audio, nil
}
