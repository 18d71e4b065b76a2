package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scoopai/backend/internal/config"
)

// GeminiClient talks to the Generative Language API over plain HTTP.
type GeminiClient struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	httpClient      *http.Client
}

func NewGeminiClient(cfg config.Config) *GeminiClient {
	timeoutSeconds := cfg.AITimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 20
	}
	return &GeminiClient{
		apiKey:          strings.TrimSpace(cfg.GeminiAPIKey),
		baseURL:         strings.TrimRight(strings.TrimSpace(cfg.GeminiBaseURL), "/"),
		model:           strings.TrimSpace(cfg.GeminiModel),
		maxOutputTokens: cfg.AIMaxOutputTokens,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *GeminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, errors.New("GEMINI_API_KEY is not configured")
	}
	if c.baseURL == "" {
		return Response{}, errors.New("GEMINI_BASE_URL is not configured")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	if model == "" {
		return Response{}, errors.New("GEMINI_MODEL is not configured")
	}

	contents := make([]geminiContent, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := strings.ToLower(strings.TrimSpace(turn.Role))
		text := strings.TrimSpace(turn.Content)
		if text == "" {
			continue
		}
		switch role {
		case "user":
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: text}}})
		case "assistant", "model":
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: text}}})
		}
	}
	userPrompt := strings.TrimSpace(req.UserPrompt)
	if userPrompt != "" {
		contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: userPrompt}}})
	}
	if len(contents) == 0 {
		return Response{}, errors.New("gemini request has no content")
	}

	payload := geminiRequest{Contents: contents}
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = c.maxOutputTokens
	}
	if maxTokens > 0 {
		payload.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: maxTokens}
	}

	bodyRaw, err := json.Marshal(payload)
	if err != nil {
		return Response{}, err
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)

	statusCode, responseBody, err := c.post(ctx, endpoint, bodyRaw)
	if err == nil && statusCode >= 500 {
		// One retry on upstream 5xx; the API is occasionally flaky under load.
		statusCode, responseBody, err = c.post(ctx, endpoint, bodyRaw)
	}
	if err != nil {
		return Response{}, err
	}

	var parsed geminiResponse
	if decodeErr := json.Unmarshal(responseBody, &parsed); decodeErr != nil {
		return Response{}, fmt.Errorf("gemini response decode failed (%d): %w", statusCode, decodeErr)
	}
	if statusCode < 200 || statusCode >= 300 {
		if parsed.Error != nil {
			return Response{}, fmt.Errorf("gemini error (%d %s): %s", parsed.Error.Code, parsed.Error.Status, parsed.Error.Message)
		}
		return Response{}, fmt.Errorf("gemini error (%d): %s", statusCode, strings.TrimSpace(string(responseBody)))
	}

	answer := extractAnswer(parsed)
	if answer == "" {
		return Response{}, errors.New("gemini response answer is empty")
	}

	return Response{
		Answer: answer,
		Model:  model,
		Usage: Usage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

func (c *GeminiClient) post(ctx context.Context, endpoint string, body []byte) (int, []byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("x-goog-api-key", c.apiKey)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return 0, nil, err
	}
	return response.StatusCode, responseBody, nil
}

func extractAnswer(parsed geminiResponse) string {
	parts := make([]string, 0)
	for _, candidate := range parsed.Candidates {
		for _, part := range candidate.Content.Parts {
			if text := strings.TrimSpace(part.Text); text != "" {
				parts = append(parts, text)
			}
		}
		// Only the first candidate is requested; further ones are ignored.
		break
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
