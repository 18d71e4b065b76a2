package llm

import (
	"context"
	"strings"
)

// Turn is a single conversation turn in the shape the chat transport and
// the stores exchange. Role is "user" or "assistant".
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Request struct {
	Model           string
	SystemPrompt    string
	History         []Turn
	UserPrompt      string
	MaxOutputTokens int
}

type Response struct {
	Answer string
	Model  string
	Usage  Usage
}

type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// MockClient answers without any network call. Used in tests and for
// keyless local runs.
type MockClient struct {
	Model string
}

func (m MockClient) Generate(_ context.Context, req Request) (Response, error) {
	question := strings.TrimSpace(req.UserPrompt)
	if question == "" {
		question = "No question provided."
	}
	lowered := strings.ToLower(question)

	answer := "Mock response: " + question
	switch {
	case strings.Contains(lowered, "პროტეინ") || strings.Contains(lowered, "protein"):
		answer = "Mock response: პროტეინი ბუნებრივი ცილაა. დამწყებისთვის საკმარისია დღეში 1.6-2გ/კგ."
	case strings.Contains(lowered, "კრეატინ") || strings.Contains(lowered, "creatine"):
		answer = "Mock response: კრეატინ მონოჰიდრატი 5გ დღეში, loading ფაზა საჭირო არ არის."
	case strings.Contains(lowered, "გამარჯობა") || strings.Contains(lowered, "hello"):
		answer = "Mock response: გამარჯობა! რით შემიძლია დაგეხმარო?"
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = strings.TrimSpace(m.Model)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return Response{
		Answer: answer,
		Model:  model,
		Usage: Usage{
			PromptTokens:     120,
			CompletionTokens: 80,
			TotalTokens:      200,
		},
	}, nil
}
