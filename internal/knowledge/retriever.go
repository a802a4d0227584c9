package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"pharmalens.org/internal/roles"
)

// Retriever answers a natural-language query against the corpus. The role
// is context only (query phrasing, corpus routing); implementations must
// return the full candidate source set and never pre-filter for access.
type Retriever interface {
	Query(ctx context.Context, text string, role roles.Role) (RawAnswer, error)
}

const answerSystemPrompt = `You answer questions about a pharmaceutical quality system.
Respond with a JSON object:
{"segments":[{"text":"...","source_ids":["..."]}],
 "candidate_sources":[{"id":"...","title":"...","type":"SOP|Deviation|CAPA|BMR|Audit|Submission|Report|Correspondence","status":"approved|draft|archived|superseded","department":"...","traceability_id":"..."}],
 "facts":[{"statement":"...","category":"..."}],
 "evidence_strength":0-100}
List every source consulted, including ones the asker may not be cleared for.`

// OpenAIRetriever implements Retriever over the Chat Completions API.
type OpenAIRetriever struct {
	client *openai.Client
	model  string
}

// NewOpenAIRetriever builds a retriever for the given API key and model.
func NewOpenAIRetriever(apiKey, model string) *OpenAIRetriever {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIRetriever{client: openai.NewClient(apiKey), model: model}
}

func (r *OpenAIRetriever) Query(ctx context.Context, text string, role roles.Role) (RawAnswer, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: answerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("role context: %s\nquestion: %s", role, text)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return RawAnswer{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return RawAnswer{}, fmt.Errorf("%w: empty completion", ErrBackendUnavailable)
	}

	var answer RawAnswer
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		return RawAnswer{}, fmt.Errorf("%w: malformed answer: %v", ErrBackendUnavailable, err)
	}
	if answer.EvidenceStrength < 0 {
		answer.EvidenceStrength = 0
	}
	if answer.EvidenceStrength > 100 {
		answer.EvidenceStrength = 100
	}
	return answer, nil
}
