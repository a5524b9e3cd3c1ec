// Package extract drives the external extraction capability: one fast
// call per record, escalated to a slower chain-of-thought mode when the
// first answer's confidence falls below the threshold.
package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/vLannaAi/i3speedex-sub004/internal/config"
	"github.com/vLannaAi/i3speedex-sub004/internal/identity"
	"github.com/vLannaAi/i3speedex-sub004/pkg/anthropic"
)

// Mode selects how deliberately the capability is invoked.
type Mode string

const (
	ModeFast      Mode = "fast"
	ModeReasoning Mode = "reasoning"
)

// DefaultConfidenceThreshold gates the escalation to reasoning mode.
const DefaultConfidenceThreshold = 0.70

// Request carries the preprocessed identity and the deterministic
// priors into the extraction call.
type Request struct {
	Input            identity.Preprocessed
	Hint             identity.PatternHint
	IsServiceAddress bool
}

// Escalate is the two-stage retry strategy: it reports whether a fast
// result warrants the slower reasoning call. Kept as a pure function so
// the escalation policy is testable without a live client.
func Escalate(fast identity.ExtractionResult, threshold float64) bool {
	return fast.Confidence < threshold
}

// Engine invokes the extraction capability.
type Engine struct {
	client    anthropic.Client
	cfg       config.AnthropicConfig
	sysBlocks []anthropic.SystemBlock
	usageFast anthropic.TokenUsage
	usageSlow anthropic.TokenUsage
}

// NewEngine creates an extraction engine. A zero ConfidenceThreshold in
// cfg falls back to the default.
func NewEngine(client anthropic.Client, cfg config.AnthropicConfig) *Engine {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Engine{
		client:    client,
		cfg:       cfg,
		sysBlocks: anthropic.BuildCachedSystemBlocks(systemText),
	}
}

// Usage returns the accumulated token usage of all calls so far.
func (e *Engine) Usage() anthropic.TokenUsage {
	total := e.usageFast
	total.Add(e.usageSlow)
	return total
}

// LogCost logs per-model token usage and estimated cost.
func (e *Engine) LogCost() {
	e.usageFast.LogCost(e.cfg.FastModel, string(ModeFast))
	e.usageSlow.LogCost(e.cfg.ReasoningModel, string(ModeReasoning))
}

// Extract resolves one preprocessed identity. It never returns an
// error: a transport or model failure yields a degraded zero-confidence
// result carrying the error text, which the caller persists like any
// other outcome.
func (e *Engine) Extract(ctx context.Context, req Request) identity.ExtractionResult {
	fast, err := e.invoke(ctx, req, ModeFast)
	if err != nil {
		zap.L().Warn("extract: fast call failed",
			zap.String("email", req.Input.Email),
			zap.Error(err),
		)
		return degraded(req, err)
	}

	if !Escalate(fast, e.cfg.ConfidenceThreshold) {
		return fast
	}

	slow, err := e.invoke(ctx, req, ModeReasoning)
	if err != nil {
		// The fast result stands; escalation failure is not fatal.
		zap.L().Warn("extract: reasoning call failed, keeping fast result",
			zap.String("email", req.Input.Email),
			zap.Error(err),
		)
		return fast
	}

	if slow.Confidence >= fast.Confidence {
		return slow
	}
	return fast
}

func (e *Engine) invoke(ctx context.Context, req Request, mode Mode) (identity.ExtractionResult, error) {
	model := e.cfg.FastModel
	if mode == ModeReasoning {
		model = e.cfg.ReasoningModel
	}

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     model,
		MaxTokens: e.cfg.MaxTokens,
		System:    e.sysBlocks,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildPrompt(req, mode)},
		},
	})
	if err != nil {
		return identity.ExtractionResult{}, err
	}
	if mode == ModeReasoning {
		e.usageSlow.Add(resp.Usage)
	} else {
		e.usageFast.Add(resp.Usage)
	}

	res := parseAnswer(resp.Text())
	res.Email = req.Input.Email
	res.Domain = req.Input.Domain
	return res, nil
}

// degraded builds the persisted result for a failed extraction call.
func degraded(req Request, err error) identity.ExtractionResult {
	return identity.ExtractionResult{
		Email:      req.Input.Email,
		Domain:     req.Input.Domain,
		IsPersonal: true,
		Confidence: 0,
		Status:     identity.StatusLow,
		Reasoning:  err.Error(),
	}
}
