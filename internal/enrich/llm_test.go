package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datafixer/internal/cost"
	"github.com/sells-group/datafixer/internal/metrics"
	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/pkg/anthropic"
	anthropicmocks "github.com/sells-group/datafixer/pkg/anthropic/mocks"
	"github.com/sells-group/datafixer/pkg/gemini"
	geminimocks "github.com/sells-group/datafixer/pkg/gemini/mocks"
)

type fakeModel struct {
	text   string
	err    error
	prompt string
}

func (f *fakeModel) Complete(_ context.Context, _, prompt string) (string, error) {
	f.prompt = prompt
	return f.text, f.err
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced after prose", "Here you go:\n```json\n{\"a\":1}\n```\nDone.", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"wrapped in prose", `Result: {"a":{"b":2}} thanks`, `{"a":{"b":2}}`},
		{"no object", "sorry", "sorry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}

func TestBuildPrompt_EnabledFieldsOnly(t *testing.T) {
	t.Parallel()

	in := Input{
		Record: testRecord("company_name", "Acme", "city", "Zurich", "country", "SZ", "vat_id", "CHE-123.456.789"),
		Schema: model.NewSchema(model.FieldCompanyName, model.FieldCity, model.FieldCountry),
		Issues: []model.Issue{{
			Field: model.FieldCountry, Type: model.IssueSuspicious, Severity: model.SeverityWarning,
			Message: "country does not match city", SuggestedValue: model.StringPtr("CH"),
		}},
		VAT:      &VATContext{Valid: true, Name: "Acme AG", CountryCode: "DE", Number: "123456789"},
		Snippets: []Snippet{{URL: "https://acme.ch", Title: "Acme", Text: "Acme AG, Zurich", Type: model.SourceOfficialWebsite}},
	}
	p := BuildPrompt(in, 100, 5)

	assert.Contains(t, p, "Enabled fields: company_name, city, country")
	assert.Contains(t, p, `"country": "SZ"`)
	assert.NotContains(t, p, "CHE-123")
	assert.Contains(t, p, "(suggested: CH)")
	assert.Contains(t, p, "registered name: Acme AG")
	assert.Contains(t, p, "https://acme.ch")
}

func TestLLMAdapter_ParsesChanges(t *testing.T) {
	t.Parallel()

	m := &fakeModel{text: "```json\n" + `{
		"changes": [
			{"field": "country", "proposed_value": "CH", "confidence": 1.4, "reasoning": "Zurich is in Switzerland", "action": "CORRECTED", "source_url": "https://acme.ch"},
			{"field": "industry", "proposed_value": "Manufacturing", "confidence": 0.9, "action": "ADDED"},
			{"field": "revenue", "proposed_value": "1M", "confidence": 0.9},
			{"field": "company_name", "proposed_value": "Acme AG", "confidence": -0.2, "action": "bogus"},
			{"field": "city", "proposed_value": "  ", "confidence": 0.9}
		],
		"issues": [{"field": "city", "issue_type": "suspicious", "severity": "info", "message": "spelling"}],
		"needs_review": true,
		"review_reason": "",
		"name_candidates": [{"name": "Acme AG", "confidence": 0.8}, {"name": " ", "confidence": 0.5}]
	}` + "\n```"}

	a := NewLLMAdapter(m, 0)
	a.now = func() time.Time { return fixedNow }
	res, err := a.Enrich(context.Background(), Input{
		RowID:    "r1",
		Record:   testRecord("company_name", "Acme", "city", "Zurich", "country", "SZ"),
		Schema:   model.NewSchema(model.FieldCompanyName, model.FieldCity, model.FieldCountry),
		Snippets: []Snippet{{URL: "https://acme.ch", Text: "Acme AG Zurich", Type: model.SourceSearchResult}},
	})
	require.NoError(t, err)
	require.Len(t, res.Changes, 2)

	country := changeFor(res.Changes, model.FieldCountry)
	require.NotNil(t, country)
	assert.Equal(t, "CH", country.Proposed())
	assert.Equal(t, 1.0, country.Confidence)
	assert.Equal(t, model.ActionCorrected, country.Action)
	assert.Equal(t, "SZ", model.Deref(country.OriginalValue))
	assert.Equal(t, model.SourceSearchResult, country.Sources[0].Type)
	assert.Equal(t, "https://acme.ch", country.Sources[0].URL)

	name := changeFor(res.Changes, model.FieldCompanyName)
	require.NotNil(t, name)
	assert.Equal(t, 0.0, name.Confidence)
	assert.Equal(t, model.ActionCorrected, name.Action)
	assert.Equal(t, model.SourceLLMKnowledge, name.Sources[0].Type)

	require.Len(t, res.Issues, 1)
	assert.Equal(t, model.IssueSuspicious, res.Issues[0].Type)
	assert.Equal(t, model.SeverityInfo, res.Issues[0].Severity)

	require.NotNil(t, res.Review)
	assert.Equal(t, "model requested review", res.Review.Reason)

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "llm", res.Candidates[0].Source)
}

func TestLLMAdapter_ParseFailure(t *testing.T) {
	t.Parallel()

	_, err := NewLLMAdapter(&fakeModel{text: "I cannot help with that."}, 0).Enrich(context.Background(), Input{
		Record: testRecord("company_name", "Acme"),
		Schema: model.NewSchema(model.FieldCompanyName),
	})
	require.Error(t, err)
}

func TestLLMAdapter_ModelError(t *testing.T) {
	t.Parallel()

	_, err := NewLLMAdapter(&fakeModel{err: errors.New("overloaded")}, 0).Enrich(context.Background(), Input{
		Record: testRecord("company_name", "Acme"),
		Schema: model.NewSchema(model.FieldCompanyName),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm completion")
}

func TestAnthropicModel_Complete(t *testing.T) {
	t.Parallel()

	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.System == SystemPrompt && req.Prompt == "prompt" && req.Prefill == "{"
	})).Return(&anthropic.MessageResponse{
		Text:  `{"changes":[]}`,
		Usage: anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 100, CacheReadInputTokens: 2000},
	}, nil)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	lm := NewAnthropicModel(client, ModelConfig{Model: "claude-haiku-4-5-20251001"}, cost.NewCalculator(cost.Rates{}), m)

	text, err := lm.Complete(context.Background(), SystemPrompt, "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"changes":[]}`, text)
	assert.Equal(t, 3000.0, testutil.ToFloat64(m.LLMTokens.WithLabelValues("anthropic", "input")))
	assert.Greater(t, testutil.ToFloat64(m.LLMCostUSD.WithLabelValues("anthropic", "claude-haiku-4-5-20251001")), 0.0)
}

func TestGeminiModel_Complete(t *testing.T) {
	t.Parallel()

	client := geminimocks.NewMockClient(t)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req gemini.GenerateRequest) bool {
		return req.JSON && req.System == SystemPrompt && req.MaxOutputTokens == 2048
	})).Return(&gemini.GenerateResponse{
		Text:  `{"changes":[]}`,
		Usage: gemini.Usage{PromptTokens: 500, OutputTokens: 20},
	}, nil)

	lm := NewGeminiModel(client, ModelConfig{Model: "gemini-2.5-flash"}, nil, nil)
	text, err := lm.Complete(context.Background(), SystemPrompt, "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"changes":[]}`, text)
}

func TestGeminiModel_Error(t *testing.T) {
	t.Parallel()

	client := geminimocks.NewMockClient(t)
	client.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("quota"))

	_, err := NewGeminiModel(client, ModelConfig{Model: "gemini-2.5-flash"}, nil, nil).
		Complete(context.Background(), "s", "p")
	require.Error(t, err)
}
