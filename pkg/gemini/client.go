// Package gemini wraps the Google Gen AI SDK for single-turn JSON
// completions against the Gemini API.
package gemini

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// Client generates content with a Gemini model.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is one single-turn completion.
type GenerateRequest struct {
	Model           string
	System          string
	Prompt          string
	JSON            bool
	MaxOutputTokens int32
	Temperature     *float32
}

// GenerateResponse carries the generated text and token counts.
type GenerateResponse struct {
	Text  string
	Usage Usage
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens int64
	OutputTokens int64
	CachedTokens int64
}

// Option configures the client.
type Option func(*genai.ClientConfig)

// WithBaseURL points the client at a different API root (for testing).
func WithBaseURL(u string) Option {
	return func(c *genai.ClientConfig) {
		c.HTTPOptions.BaseURL = u
	}
}

type sdkClient struct {
	cfg genai.ClientConfig

	mu     sync.Mutex
	client *genai.Client
}

// NewClient creates a Gemini API client. The SDK client is built lazily on
// the first call.
func NewClient(apiKey string, opts ...Option) Client {
	cfg := genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &sdkClient{cfg: cfg}
}

func (c *sdkClient) connect(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.cfg.APIKey == "" {
		return nil, eris.New("gemini: api key is required")
	}
	cfg := c.cfg
	client, err := genai.NewClient(ctx, &cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	c.client = client
	return client, nil
}

func (c *sdkClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		Temperature: req.Temperature,
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = req.MaxOutputTokens
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, eris.Wrapf(err, "gemini: generate content with %s", req.Model)
	}

	out := &GenerateResponse{Text: resp.Text()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens: int64(u.PromptTokenCount),
			OutputTokens: int64(u.CandidatesTokenCount),
			CachedTokens: int64(u.CachedContentTokenCount),
		}
	}
	return out, nil
}
