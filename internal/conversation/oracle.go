package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ErrOracleFailure is the single failure the oracle surfaces. Transport
// errors, empty candidates, fence-wrapped garbage and schema violations all
// collapse into it; the caller's only recovery is a retry prompt.
var ErrOracleFailure = errors.New("conversation: oracle failure")

// Oracle extracts a structured intent record from a raw utterance given the
// session's accumulated slots and the current time.
type Oracle interface {
	Extract(ctx context.Context, utterance string, slots SlotSet, now time.Time) (IntentRecord, error)
}

const oracleSystemPrompt = `You are FlossyAI, the virtual assistant of a dental clinic.
For every user message you must reply with a single JSON object and nothing else:
{"intent": "book_appointment"|"cancel_appointment"|"symptom"|"smalltalk",
 "name": string?, "date": string?, "time": string?, "phone": string?,
 "symptom_message": string?, "message": string,
 "ready_for_booking": bool, "ready_for_cancellation": bool}
Fill only the fields the user actually provided this turn. "message" is your
conversational reply. Use "date" as YYYY-MM-DD and "time" as HH:MM (24h).
Set "ready_for_booking" true only once name, date, time and phone are all
known across the conversation state. Set "ready_for_cancellation" true once
the user wants to cancel and their phone number is known.`

// GeminiOracle implements Oracle against Google's Gemini API.
type GeminiOracle struct {
	client  *genai.Client
	modelID string
}

// NewGeminiOracle creates an oracle backed by Gemini.
func NewGeminiOracle(ctx context.Context, apiKey, modelID string) (*GeminiOracle, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}

	return &GeminiOracle{client: client, modelID: modelID}, nil
}

// Extract asks Gemini for the intent record. Any failure along the way,
// from transport to parsing, is reported as ErrOracleFailure.
func (o *GeminiOracle) Extract(ctx context.Context, utterance string, slots SlotSet, now time.Time) (IntentRecord, error) {
	model := o.client.GenerativeModel(o.modelID)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = genai.NewUserContent(genai.Text(oracleSystemPrompt))

	prompt := fmt.Sprintf("USER: %q\nSTATE: %s\nNOW: %s",
		utterance, slots.String(), now.UTC().Format(time.RFC3339))

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return IntentRecord{}, fmt.Errorf("%w: %v", ErrOracleFailure, err)
	}

	raw, err := responseText(resp)
	if err != nil {
		return IntentRecord{}, err
	}
	return ParseIntentRecord(raw)
}

// Close releases resources held by the Gemini client.
func (o *GeminiOracle) Close() error {
	if o.client != nil {
		return o.client.Close()
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrOracleFailure)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty content", ErrOracleFailure)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

// ParseIntentRecord parses a raw model response into an IntentRecord,
// first stripping the wrapper artifacts models are known to emit.
func ParseIntentRecord(raw string) (IntentRecord, error) {
	text := extractJSONObject(stripCodeFence(raw))

	var rec IntentRecord
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		return IntentRecord{}, fmt.Errorf("%w: %v", ErrOracleFailure, err)
	}
	if !rec.Intent.Valid() {
		return IntentRecord{}, fmt.Errorf("%w: unknown intent %q", ErrOracleFailure, rec.Intent)
	}
	return rec, nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func extractJSONObject(text string) string {
	if strings.HasPrefix(text, "{") {
		return text
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
