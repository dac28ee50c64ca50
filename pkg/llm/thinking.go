package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Refinement is the result of the thinking pre-process: the raw user
// input rewritten into a sharper instruction.
type Refinement struct {
	RefinedQuery string `json:"refinedQuery"`
	Summary      string `json:"summary"`
}

// Polished is the result of the thinking post-process over a full draft.
type Polished struct {
	ImprovedReply string `json:"improvedReply"`
	Summary       string `json:"summary"`
}

const refinePrompt = `Rewrite the user's request into a single precise instruction for an assistant.
Respond with JSON only: {"refinedQuery": "...", "summary": "..."}`

const polishPrompt = `Improve the draft reply below for clarity and flow without changing its meaning.
Respond with JSON only: {"improvedReply": "...", "summary": "..."}`

// Refine runs the thinking pre-process call. Malformed model output is
// a hard failure; the caller falls back to the original input.
func Refine(ctx context.Context, p Provider, model, input string) (*Refinement, error) {
	content, err := thinkingCall(ctx, p, model, refinePrompt, input)
	if err != nil {
		return nil, err
	}

	var out Refinement
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedThinking, err)
	}
	if out.RefinedQuery == "" {
		return nil, fmt.Errorf("%w: empty refinedQuery", ErrMalformedThinking)
	}
	return &out, nil
}

// PolishReply runs the thinking post-process call. Malformed model
// output is a hard failure; the caller keeps the draft verbatim.
func PolishReply(ctx context.Context, p Provider, model, draft string) (*Polished, error) {
	content, err := thinkingCall(ctx, p, model, polishPrompt, draft)
	if err != nil {
		return nil, err
	}

	var out Polished
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedThinking, err)
	}
	if out.ImprovedReply == "" {
		return nil, fmt.Errorf("%w: empty improvedReply", ErrMalformedThinking)
	}
	return &out, nil
}

func thinkingCall(ctx context.Context, p Provider, model, system, user string) (string, error) {
	resp, err := p.Chat(ctx, &ChatRequest{
		Model: model,
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	return stripFences(resp.Content), nil
}

// stripFences removes a markdown code fence wrapper if the model added
// one around the JSON body.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
