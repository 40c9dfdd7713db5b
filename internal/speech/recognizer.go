package speech

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
)

const (
	defaultSampleRateHertz = 16000
	defaultLanguageCode    = "en-US"
)

// Recognizer turns captured audio into a transcript.
type Recognizer interface {
	Recognize(ctx context.Context, audio []byte) (string, error)
}

// GoogleRecognizer implements Recognizer with Google Cloud Speech-to-Text.
// Audio is expected as mono LINEAR16 PCM at the configured sample rate,
// which is what the browser capture pipeline sends.
type GoogleRecognizer struct {
	client          *speech.Client
	sampleRateHertz int
	languageCode    string
}

// NewGoogleRecognizer creates a recognizer. An empty credentials file falls
// back to application default credentials. A zero sample rate or empty
// language code falls back to 16kHz en-US.
func NewGoogleRecognizer(ctx context.Context, credentialsFile string, sampleRateHertz int, languageCode string) (*GoogleRecognizer, error) {
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

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech: failed to create stt client: %w", err)
	}
	return &GoogleRecognizer{
		client:          client,
		sampleRateHertz: sampleRateHertz,
		languageCode:    languageCode,
	}, nil
}

// Recognize transcribes one finalized utterance.
func (r *GoogleRecognizer) Recognize(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	resp, err := r.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(r.sampleRateHertz),
			LanguageCode:               r.languageCode,
			AudioChannelCount:          1,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", fmt.Errorf("speech: recognition failed: %w", err)
	}

	var transcript strings.Builder
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		if transcript.Len() > 0 {
			transcript.WriteString(" ")
		}
		transcript.WriteString(result.Alternatives[0].Transcript)
	}
	return strings.TrimSpace(transcript.String()), nil
}

// Close releases the underlying gRPC connection.
func (r *GoogleRecognizer) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
