package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/cost"
	"github.com/sells-group/datafixer/internal/metrics"
	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/pkg/anthropic"
	"github.com/sells-group/datafixer/pkg/gemini"
)

// Model completes a single prompt against a language model.
type Model interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ModelConfig holds the generation settings shared by model backends.
type ModelConfig struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	// CacheTTL is the Anthropic prompt cache lifetime ("5m" or "1h").
	CacheTTL string
}

// AnthropicModel completes prompts with Claude. The system prompt is sent
// with a cache breakpoint and the reply is prefilled with "{".
type AnthropicModel struct {
	client  anthropic.Client
	cfg     ModelConfig
	costs   *cost.Calculator
	metrics *metrics.Metrics
}

// NewAnthropicModel returns a Claude-backed model.
func NewAnthropicModel(client anthropic.Client, cfg ModelConfig, costs *cost.Calculator, m *metrics.Metrics) *AnthropicModel {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &AnthropicModel{client: client, cfg: cfg, costs: costs, metrics: m}
}

func (m *AnthropicModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	temp := m.cfg.Temperature
	resp, err := m.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       m.cfg.Model,
		MaxTokens:   m.cfg.MaxTokens,
		System:      system,
		CacheTTL:    m.cfg.CacheTTL,
		Prompt:      prompt,
		Prefill:     "{",
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	if resp.Truncated() {
		zap.L().Warn("llm: anthropic reply hit max_tokens", zap.Int64("max_tokens", m.cfg.MaxTokens))
	}

	u := resp.Usage
	var usd float64
	if m.costs != nil {
		usd = m.costs.Claude(m.cfg.Model, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens)
	}
	zap.L().Debug("llm: anthropic completion",
		zap.String("model", m.cfg.Model),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Float64("cost_usd", usd),
	)
	m.metrics.LLMUsage("anthropic", m.cfg.Model, u.InputTokens+u.CacheCreationInputTokens+u.CacheReadInputTokens, u.OutputTokens, usd)

	return resp.Text, nil
}

// GeminiModel completes prompts with Gemini in JSON mode.
type GeminiModel struct {
	client  gemini.Client
	cfg     ModelConfig
	costs   *cost.Calculator
	metrics *metrics.Metrics
}

// NewGeminiModel returns a Gemini-backed model.
func NewGeminiModel(client gemini.Client, cfg ModelConfig, costs *cost.Calculator, m *metrics.Metrics) *GeminiModel {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &GeminiModel{client: client, cfg: cfg, costs: costs, metrics: m}
}

func (m *GeminiModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	temp := float32(m.cfg.Temperature)
	resp, err := m.client.Generate(ctx, gemini.GenerateRequest{
		Model:           m.cfg.Model,
		System:          system,
		Prompt:          prompt,
		JSON:            true,
		MaxOutputTokens: int32(m.cfg.MaxTokens),
		Temperature:     &temp,
	})
	if err != nil {
		return "", err
	}

	u := resp.Usage
	var usd float64
	if m.costs != nil {
		usd = m.costs.Gemini(m.cfg.Model, u.PromptTokens, u.OutputTokens, u.CachedTokens)
	}
	zap.L().Debug("llm: gemini completion",
		zap.String("model", m.cfg.Model),
		zap.Int64("prompt_tokens", u.PromptTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Float64("cost_usd", usd),
	)
	m.metrics.LLMUsage("gemini", m.cfg.Model, u.PromptTokens, u.OutputTokens, usd)

	return resp.Text, nil
}

// SystemPrompt holds the fixed instructions for record correction.
const SystemPrompt = `You clean business-entity records (company name, address, VAT id, contact data).

Rules:
1. Only propose values for fields in the provided list of enabled fields. Never invent other fields.
2. Correct a country code only when it is geographically inconsistent with the stated city. Use ISO 3166-1 alpha-2 codes.
3. When the company name is missing and a VAT or tax id is present, resolve the name using the country prefix of the id and the registry data provided.
4. Prefer evidence from the registry data and search snippets over prior knowledge. Cite the snippet URL you relied on in source_url.
5. Use action "ADDED" for empty fields, "CORRECTED" for replacing a wrong value, "VERIFIED" when you confirm a value is correct.
6. Confidence is between 0 and 1. Use values below 0.7 when unsure.
7. Set needs_review to true when the record looks contradictory and you cannot resolve it.

Respond with strict JSON only, no prose, in this shape:
{"changes":[{"field":"","proposed_value":"","confidence":0.0,"reasoning":"","action":"ADDED","source_url":""}],
 "issues":[{"field":"","issue_type":"SUSPICIOUS","severity":"WARNING","message":"","suggested_value":""}],
 "needs_review":false,
 "review_reason":"",
 "name_candidates":[{"name":"","confidence":0.0}]}`

const (
	defaultMaxSnippets = 8
	llmCandidateSource = "llm"
)

// LLMAdapter asks a language model for corrections, given the record and the
// evidence collected by the other sources.
type LLMAdapter struct {
	model        Model
	snippetChars int
	maxSnippets  int
	now          func() time.Time
}

// NewLLMAdapter returns an adapter over model.
func NewLLMAdapter(model Model, snippetChars int) *LLMAdapter {
	if snippetChars <= 0 {
		snippetChars = defaultSnippetChars
	}
	return &LLMAdapter{model: model, snippetChars: snippetChars, maxSnippets: defaultMaxSnippets, now: time.Now}
}

func (a *LLMAdapter) Name() Source { return SourceLLM }

func (a *LLMAdapter) Enrich(ctx context.Context, in Input) (Result, error) {
	if len(in.Schema.Fields) == 0 {
		return Result{}, nil
	}
	prompt := BuildPrompt(in, a.snippetChars, a.maxSnippets)

	text, err := a.model.Complete(ctx, SystemPrompt, prompt)
	if err != nil {
		return Result{}, eris.Wrap(err, "enrich: llm completion")
	}

	resp, err := parseLLMResponse(text)
	if err != nil {
		zap.L().Warn("enrich: failed to parse llm response",
			zap.String("row_id", in.RowID),
			zap.String("response", truncate(text, 500)),
			zap.Error(err),
		)
		return Result{}, err
	}
	return resp.toResult(in, a.now().UTC()), nil
}

// BuildPrompt renders the user prompt for one row.
func BuildPrompt(in Input, snippetChars, maxSnippets int) string {
	var b strings.Builder

	fields := in.Schema.EnabledFields()
	names := make([]string, len(fields))
	values := make(map[string]*string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
		values[string(f)] = in.Record.Ptr(f)
	}
	recJSON, _ := json.MarshalIndent(values, "", "  ")

	fmt.Fprintf(&b, "Enabled fields: %s\n\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "Record:\n%s\n", recJSON)

	if len(in.Issues) > 0 {
		b.WriteString("\nOpen issues:\n")
		for _, is := range in.Issues {
			fmt.Fprintf(&b, "- %s [%s/%s]: %s", is.Field, is.Type, is.Severity, is.Message)
			if is.SuggestedValue != nil {
				fmt.Fprintf(&b, " (suggested: %s)", *is.SuggestedValue)
			}
			b.WriteString("\n")
		}
	}

	if v := in.VAT; v != nil {
		b.WriteString("\nVAT registry check:\n")
		fmt.Fprintf(&b, "- id: %s%s\n- valid: %t\n", v.CountryCode, v.Number, v.Valid)
		if v.Name != "" {
			fmt.Fprintf(&b, "- registered name: %s\n", v.Name)
		}
		if v.Address != "" {
			fmt.Fprintf(&b, "- registered address: %s\n", strings.ReplaceAll(v.Address, "\n", ", "))
		}
	}

	if len(in.Snippets) > 0 {
		b.WriteString("\nEvidence:\n")
		for i, s := range in.Snippets {
			if maxSnippets > 0 && i == maxSnippets {
				break
			}
			fmt.Fprintf(&b, "[%d] %s (%s) %s\n%s\n\n", i+1, s.Title, s.Type, s.URL, truncate(s.Text, snippetChars))
		}
	}

	return b.String()
}

type llmChange struct {
	Field         string  `json:"field"`
	ProposedValue *string `json:"proposed_value"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning"`
	Action        string  `json:"action"`
	SourceURL     string  `json:"source_url"`
}

type llmIssue struct {
	Field          string  `json:"field"`
	IssueType      string  `json:"issue_type"`
	Severity       string  `json:"severity"`
	Message        string  `json:"message"`
	SuggestedValue *string `json:"suggested_value"`
}

type llmCandidate struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type llmResponse struct {
	Changes        []llmChange    `json:"changes"`
	Issues         []llmIssue     `json:"issues"`
	NeedsReview    bool           `json:"needs_review"`
	ReviewReason   string         `json:"review_reason"`
	NameCandidates []llmCandidate `json:"name_candidates"`
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Prefer the content of a fenced block anywhere in the text.
	if i := strings.Index(text, "```"); i >= 0 {
		inner := text[i+3:]
		inner = strings.TrimPrefix(inner, "json")
		if j := strings.Index(inner, "```"); j >= 0 {
			inner = inner[:j]
		}
		text = inner
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func parseLLMResponse(text string) (*llmResponse, error) {
	cleaned := cleanJSON(text)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, eris.New("enrich: llm response has no json object")
	}
	var resp llmResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, eris.Wrap(err, "enrich: decode llm response")
	}
	return &resp, nil
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

func (r *llmResponse) toResult(in Input, now time.Time) Result {
	cited := make(map[string]Snippet, len(in.Snippets))
	for _, s := range in.Snippets {
		cited[s.URL] = s
	}

	var res Result
	for _, c := range r.Changes {
		f, err := model.ParseField(c.Field)
		if err != nil || !in.Schema.Enabled(f) {
			zap.L().Debug("enrich: dropping llm change for field outside schema",
				zap.String("row_id", in.RowID), zap.String("field", c.Field))
			continue
		}
		if c.ProposedValue == nil || strings.TrimSpace(*c.ProposedValue) == "" {
			continue
		}

		action := model.ChangeAction(strings.ToUpper(strings.TrimSpace(c.Action)))
		switch action {
		case model.ActionAdded, model.ActionCorrected, model.ActionVerified:
		default:
			action = model.ActionAdded
			if in.Record.Has(f) {
				action = model.ActionCorrected
			}
		}

		src := model.SourceRef{Type: model.SourceLLMKnowledge, RetrievedAt: now}
		if s, ok := cited[c.SourceURL]; ok && c.SourceURL != "" {
			src.URL = s.URL
			src.Type = s.Type
			src.Snippet = truncate(s.Text, 280)
		}
		res.Changes = append(res.Changes, newChange(f, in.Record.Ptr(f), *c.ProposedValue,
			clamp01(c.Confidence), action, c.Reasoning, src))
	}

	for _, is := range r.Issues {
		f, err := model.ParseField(is.Field)
		if err != nil || !in.Schema.Enabled(f) {
			continue
		}
		typ := model.IssueType(strings.ToUpper(is.IssueType))
		switch typ {
		case model.IssueMissing, model.IssueInvalid, model.IssueSuspicious, model.IssueFormatError:
		default:
			typ = model.IssueSuspicious
		}
		sev := model.Severity(strings.ToUpper(is.Severity))
		switch sev {
		case model.SeverityError, model.SeverityWarning, model.SeverityInfo:
		default:
			sev = model.SeverityWarning
		}
		res.Issues = append(res.Issues, model.Issue{
			Field:          f,
			OriginalValue:  in.Record.Ptr(f),
			Type:           typ,
			Severity:       sev,
			Message:        is.Message,
			SuggestedValue: model.StringPtr(model.Deref(is.SuggestedValue)),
		})
	}

	if r.NeedsReview {
		reason := strings.TrimSpace(r.ReviewReason)
		if reason == "" {
			reason = "model requested review"
		}
		res.Review = &ReviewRequest{Reason: reason}
	}

	for _, c := range r.NameCandidates {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		res.Candidates = append(res.Candidates, model.NameCandidate{
			Name: strings.TrimSpace(c.Name), Confidence: clamp01(c.Confidence), Source: llmCandidateSource,
		})
	}
	return res
}
