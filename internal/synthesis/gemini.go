package synthesis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const providerGemini = "gemini"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
}

type GeminiCapability struct {
	models      contentGenerator
	model       string
	temperature float32
}

func NewGeminiCapability(ctx context.Context, cfg GeminiConfig) (*GeminiCapability, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiCapability(client.Models, cfg), nil
}

func newGeminiCapability(models contentGenerator, cfg GeminiConfig) *GeminiCapability {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiCapability{
		models:      models,
		model:       model,
		temperature: float32(cfg.Temperature),
	}
}

func (g *GeminiCapability) Complete(ctx context.Context, prompt Prompt) (Completion, error) {
	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt.User, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
			Temperature:       genai.Ptr(g.temperature),
			ResponseMIMEType:  "application/json",
		},
	)
	if err != nil {
		return Completion{}, classifyGeminiError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return Completion{}, &Error{Kind: KindMalformed, Err: fmt.Errorf("empty generate content response")}
	}
	if reason := resp.Candidates[0].FinishReason; reason == genai.FinishReasonMaxTokens || reason == genai.FinishReasonSafety {
		return Completion{}, &Error{Kind: KindMalformed, Err: fmt.Errorf("generation stopped: %s", reason)}
	}
	return Completion{
		Text:     resp.Text(),
		Provider: providerGemini,
		Model:    g.model,
	}, nil
}

// classifyGeminiError maps API status codes the same way as the chat
// completions capability; errors without a status are left to the client.
func classifyGeminiError(err error) error {
	wrapped := fmt.Errorf("generate content: %w", err)
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return wrapped
	}
	if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
		return &Error{Kind: KindTransport, Err: wrapped}
	}
	return &Error{Kind: KindMalformed, Err: wrapped}
}
