package extract

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/vLannaAi/i3speedex-sub004/internal/config"
	"github.com/vLannaAi/i3speedex-sub004/internal/identity"
	"github.com/vLannaAi/i3speedex-sub004/pkg/anthropic"
)

// mockClient returns canned responses in order and records the models
// it was called with.
type mockClient struct {
	responses []*anthropic.MessageResponse
	errs      []error
	models    []string
}

func (m *mockClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	i := len(m.models)
	m.models = append(m.models, req.Model)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.responses) {
		return nil, eris.Errorf("mockClient: unexpected call %d", i)
	}
	return m.responses[i], nil
}

func textResponse(body string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: body}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

func testRequest() Request {
	pre := identity.Preprocess(`"Sig. Marco Rossi" <m.rossi@acme.it>`)
	return Request{
		Input: pre,
		Hint:  identity.DetectPattern(pre.LocalPart),
	}
}

func engineWith(client anthropic.Client) *Engine {
	return NewEngine(client, config.AnthropicConfig{
		FastModel:           "fast-model",
		ReasoningModel:      "reasoning-model",
		ConfidenceThreshold: 0.70,
	})
}

func TestEscalate(t *testing.T) {
	assert.True(t, Escalate(identity.ExtractionResult{Confidence: 0.69}, 0.70))
	assert.False(t, Escalate(identity.ExtractionResult{Confidence: 0.70}, 0.70))
	assert.False(t, Escalate(identity.ExtractionResult{Confidence: 0.95}, 0.70))
}

func TestExtract_ConfidentFastResultSkipsReasoning(t *testing.T) {
	client := &mockClient{responses: []*anthropic.MessageResponse{
		textResponse(`{"name1": "Marco", "name2": "Rossi", "genre": "Mr.", "is_personal": true, "confidence": 0.95, "reasoning": "display name"}`),
	}}

	res := engineWith(client).Extract(context.Background(), testRequest())

	assert.Equal(t, []string{"fast-model"}, client.models)
	assert.Equal(t, "Marco", res.Name1)
	assert.Equal(t, "Rossi", res.Name2)
	assert.Equal(t, identity.GenreMr, res.Genre)
	assert.Equal(t, 0.95, res.Confidence)
	assert.Equal(t, "m.rossi@acme.it", res.Email)
}

func TestExtract_LowConfidenceEscalatesAndKeepsBetterResult(t *testing.T) {
	client := &mockClient{responses: []*anthropic.MessageResponse{
		textResponse(`{"name1": "M", "confidence": 0.30, "is_personal": true, "reasoning": "unsure"}`),
		textResponse(`{"chain_of_thought": "local part m.rossi suggests initial + surname", "name1": "Marco", "name2": "Rossi", "confidence": 0.85, "is_personal": true, "reasoning": "pattern"}`),
	}}

	res := engineWith(client).Extract(context.Background(), testRequest())

	assert.Equal(t, []string{"fast-model", "reasoning-model"}, client.models)
	assert.Equal(t, "Marco", res.Name1)
	assert.Equal(t, 0.85, res.Confidence)
	assert.NotEmpty(t, res.ChainOfThought)
}

func TestExtract_EscalationKeepsHigherOfTwo(t *testing.T) {
	client := &mockClient{responses: []*anthropic.MessageResponse{
		textResponse(`{"name1": "Marco", "confidence": 0.60, "is_personal": true}`),
		textResponse(`{"name1": "Mario", "confidence": 0.40, "is_personal": true}`),
	}}

	res := engineWith(client).Extract(context.Background(), testRequest())

	assert.Equal(t, "Marco", res.Name1)
	assert.Equal(t, 0.60, res.Confidence)
}

func TestExtract_FastFailureReturnsDegradedResult(t *testing.T) {
	client := &mockClient{errs: []error{eris.New("connection refused")}}

	res := engineWith(client).Extract(context.Background(), testRequest())

	assert.Zero(t, res.Confidence)
	assert.Equal(t, identity.StatusLow, res.Status)
	assert.True(t, res.IsPersonal)
	assert.Contains(t, res.Reasoning, "connection refused")
	assert.Equal(t, "m.rossi@acme.it", res.Email)
}

func TestExtract_ReasoningFailureKeepsFastResult(t *testing.T) {
	client := &mockClient{
		responses: []*anthropic.MessageResponse{
			textResponse(`{"name1": "Marco", "confidence": 0.50, "is_personal": true}`),
			nil,
		},
		errs: []error{nil, eris.New("rate limited")},
	}

	res := engineWith(client).Extract(context.Background(), testRequest())

	assert.Equal(t, "Marco", res.Name1)
	assert.Equal(t, 0.50, res.Confidence)
}

func TestExtract_AccumulatesUsage(t *testing.T) {
	client := &mockClient{responses: []*anthropic.MessageResponse{
		textResponse(`{"name1": "Marco", "confidence": 0.95, "is_personal": true}`),
	}}
	e := engineWith(client)

	e.Extract(context.Background(), testRequest())

	assert.Equal(t, int64(100), e.Usage().InputTokens)
	assert.Equal(t, int64(50), e.Usage().OutputTokens)
}
