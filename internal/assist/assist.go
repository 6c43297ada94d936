// Package assist is the bridge to the AI collaborator: it requests
// suggestions for a draft and merges them back without violating the
// workflow invariants. The workflow is fully usable without it — every
// field can always be completed manually.
package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Context tags name what the assistant is being asked to help with.
const (
	ContextPartyVerification = "party_verification"
	ContextMandatoryClauses  = "mandatory_clauses"
	ContextOptionalClauses   = "optional_clauses"
	ContextFinalReview       = "final_review"
)

// ErrAssistanceUnavailable wraps any transport, timeout or malformed
// response failure. Callers surface it as a recoverable condition.
var ErrAssistanceUnavailable = errors.New("assistance unavailable")

// Suggestions is the structured response of the AI collaborator. Every
// block is optional; absent blocks are simply skipped during merge.
type Suggestions struct {
	FormFields         map[string]string `json:"form_fields,omitempty"`
	RecommendedClauses []string          `json:"recommended_clauses,omitempty"`
	RiskAssessment     map[string]string `json:"risk_assessment,omitempty"`
}

// Assistant produces suggestions for a serialized draft snapshot and a
// context tag. Implementations may take seconds and must honour ctx
// cancellation.
type Assistant interface {
	Suggest(ctx context.Context, contextTag string, snapshot []byte) (*Suggestions, error)
}

// GeminiAssistant backs the Assistant interface with the Gemini API.
type GeminiAssistant struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiAssistant initializes the Gemini client. If the API key is
// empty, the caller receives a nil assistant and no error so that commands
// can decide how to handle missing configuration.
func NewGeminiAssistant(ctx context.Context, apiKey string) (*GeminiAssistant, error) {
	if apiKey == "" {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := client.GenerativeModel("gemini-2.5-flash-preview-09-2025")
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	}

	return &GeminiAssistant{client: client, model: model}, nil
}

// Close releases underlying resources.
func (a *GeminiAssistant) Close() {
	if a == nil || a.client == nil {
		return
	}
	if err := a.client.Close(); err != nil {
		log.Printf("warning: failed to close Gemini client: %v", err)
	}
}

const systemPrompt = `You are an expert contract lawyer assisting with a confidentiality agreement wizard.
You receive the current draft state as JSON and a context tag describing what help is needed.

RULES:
1. Suggest values only for fields that are empty in the draft. Never restate values already present.
2. Field names use dotted paths exactly as they appear in the draft, e.g. "terms.governing_law".
3. Recommended clauses must be keys from the draft's "clauses" map; never recommend deactivating a clause.
4. Risk assessment maps clause keys to one of "low", "medium", "high".
5. Respond ONLY with a single, minified JSON object. No markdown ticks, no "json" prefix, no conversational text.
6. The JSON format MUST be: {"form_fields":{"path":"value"},"recommended_clauses":["key"],"risk_assessment":{"key":"level"}}
   Any of the three blocks may be omitted when you have nothing to suggest.`

// Suggest sends the draft snapshot to Gemini and parses the structured
// response. All failures are wrapped in ErrAssistanceUnavailable; the
// caller's state is never touched by this method.
func (a *GeminiAssistant) Suggest(ctx context.Context, contextTag string, snapshot []byte) (*Suggestions, error) {
	if a == nil || a.model == nil {
		return nil, fmt.Errorf("%w: assistant is not initialized", ErrAssistanceUnavailable)
	}

	a.model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	userPrompt := fmt.Sprintf("Context: %q\nDraft state:\n%s", contextTag, snapshot)
	resp, err := a.model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssistanceUnavailable, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrAssistanceUnavailable)
	}

	part := resp.Candidates[0].Content.Parts[0]
	textPart, ok := part.(genai.Text)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected response type %T", ErrAssistanceUnavailable, part)
	}

	raw := strings.TrimSpace(string(textPart))
	var suggestions Suggestions
	if uErr := json.Unmarshal([]byte(raw), &suggestions); uErr != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v (response was: %s)", ErrAssistanceUnavailable, uErr, raw)
	}

	return &suggestions, nil
}
