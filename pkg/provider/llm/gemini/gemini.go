// Package gemini provides an LLM provider backed by the Google Gemini API via
// google.golang.org/genai.
//
// Requests are single-shot generateContent calls restricted to text output;
// the reply is the text of the first part of the first candidate.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/MrWong99/mockprep/pkg/provider/llm"
)

// DefaultModel is used when New is given an empty model name.
const DefaultModel = "gemini-2.5-flash"

var _ llm.Provider = (*Provider)(nil)

// ErrNoCandidates is returned when the response carries no usable text part.
var ErrNoCandidates = errors.New("gemini: no candidates in response")

// Provider implements llm.Provider using the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

type config struct {
	baseURL    string
	apiVersion string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the Gemini API endpoint (used by tests and proxies).
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithAPIVersion pins the API version segment (default "v1beta").
func WithAPIVersion(v string) Option {
	return func(c *config) { c.apiVersion = v }
}

// New constructs a Gemini provider. model defaults to DefaultModel.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.baseURL,
			APIVersion: cfg.apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Model implements llm.Provider.
func (p *Provider) Model() string { return p.model }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, buildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	text, err := firstText(resp)
	if err != nil {
		return nil, err
	}

	out := &llm.CompletionResponse{Content: text}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func buildConfig(req llm.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityText)},
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg
}

// convertMessages maps chat roles onto Gemini's user/model turns. System
// messages inside the history are sent as user turns.
func convertMessages(msgs []llm.Message) ([]*genai.Content, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("gemini: no messages")
	}
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role genai.Role
		switch m.Role {
		case llm.RoleUser, llm.RoleSystem:
			role = genai.RoleUser
		case llm.RoleAssistant:
			role = genai.RoleModel
		default:
			return nil, fmt.Errorf("gemini: unknown message role %q", m.Role)
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents, nil
}

func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrNoCandidates
	}
	c := resp.Candidates[0].Content
	if c == nil || len(c.Parts) == 0 || c.Parts[0] == nil {
		return "", ErrNoCandidates
	}
	return c.Parts[0].Text, nil
}
