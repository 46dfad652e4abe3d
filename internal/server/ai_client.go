package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/option"

	"petpulse/server/internal/config"
)

type ChatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type AIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AIModelRequest is a single generation request. Prompt is appended as the
// final user turn after any prior Conversation turns. JSONResponse asks the
// model to emit syntactically valid JSON instead of free text.
type AIModelRequest struct {
	Prompt       string
	Conversation []ChatTurn
	JSONResponse bool
}

type AIModelResponse struct {
	Text  string
	Model string
	Usage AIUsage
}

type AIClient interface {
	Query(ctx context.Context, req AIModelRequest) (AIModelResponse, error)
}

type GeminiClient struct {
	svc             *generativelanguage.Service
	model           string
	maxOutputTokens int
	timeout         time.Duration
}

type MockAIClient struct {
	Model string
	Text  string
	Err   error
}

func (m MockAIClient) Query(_ context.Context, _ AIModelRequest) (AIModelResponse, error) {
	if m.Err != nil {
		return AIModelResponse{}, m.Err
	}
	model := strings.TrimSpace(m.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return AIModelResponse{
		Text:  m.Text,
		Model: model,
		Usage: AIUsage{
			PromptTokens:     120,
			CompletionTokens: 80,
			TotalTokens:      200,
		},
	}, nil
}

func NewGeminiClient(ctx context.Context, cfg config.Config) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(cfg.GeminiAPIKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not configured")
	}
	model := strings.TrimSpace(cfg.GeminiModel)
	if model == "" {
		return nil, errors.New("GEMINI_MODEL is not configured")
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint := strings.TrimSpace(cfg.GeminiAPIEndpoint); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := generativelanguage.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}

	timeoutSeconds := cfg.AITimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &GeminiClient{
		svc:             svc,
		model:           model,
		maxOutputTokens: cfg.AIMaxOutputTokens,
		timeout:         time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

func (c *GeminiClient) Query(ctx context.Context, req AIModelRequest) (AIModelResponse, error) {
	contents := make([]*generativelanguage.Content, 0, len(req.Conversation)+1)
	for _, turn := range req.Conversation {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		contents = append(contents, &generativelanguage.Content{
			Role:  normalizeGeminiRole(turn.Role),
			Parts: []*generativelanguage.Part{{Text: text}},
		})
	}
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		contents = append(contents, &generativelanguage.Content{
			Role:  "user",
			Parts: []*generativelanguage.Part{{Text: prompt}},
		})
	}
	if len(contents) == 0 {
		return AIModelResponse{}, errors.New("AI request input is empty")
	}

	request := &generativelanguage.GenerateContentRequest{Contents: contents}
	if req.JSONResponse || c.maxOutputTokens > 0 {
		generation := &generativelanguage.GenerationConfig{}
		if req.JSONResponse {
			generation.ResponseMimeType = "application/json"
		}
		if c.maxOutputTokens > 0 {
			generation.MaxOutputTokens = int64(c.maxOutputTokens)
		}
		request.GenerationConfig = generation
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.svc.Models.GenerateContent(geminiModelPath(c.model), request).Context(ctx).Do()
	if err != nil {
		return AIModelResponse{}, err
	}

	usage := AIUsage{}
	if resp.UsageMetadata != nil {
		usage = AIUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return AIModelResponse{
		Text:  extractCandidateText(resp),
		Model: c.model,
		Usage: usage,
	}, nil
}

func geminiModelPath(model string) string {
	trimmed := strings.TrimSpace(model)
	if strings.HasPrefix(trimmed, "models/") {
		return trimmed
	}
	return "models/" + trimmed
}

// Gemini only accepts "user" and "model" roles; clients sometimes send the
// OpenAI-style "assistant".
func normalizeGeminiRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "model", "assistant":
		return "model"
	default:
		return "user"
	}
}

func extractCandidateText(resp *generativelanguage.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	parts := make([]string, 0)
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if text := strings.TrimSpace(part.Text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
