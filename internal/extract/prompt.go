package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vLannaAi/i3speedex-sub004/internal/identity"
)

const systemText = "You are an expert at resolving email sender identities. Given a preprocessed sender address you decide whether it belongs to a person or an organization and extract the name parts. Always return a single valid JSON object and nothing else."

const fastPrompt = `Resolve this email sender identity.

Email: %s
Display name: %s
Domain: %s
Local part: %s
Local-part layout: %s (given hint: %q, surname hint: %q)
Generic role mailbox: %t

Return a valid JSON object:
{"name1": "<given name or null>", "name2": "<surname or null>", "genre": "<Mr.|Ms.|null>", "is_personal": <bool>, "confidence": <0.0-1.0>, "reasoning": "<brief explanation>"}`

const reasoningPrompt = `Resolve this email sender identity. Think through the evidence step by step before answering: the display name, the local-part layout, the domain, and whether the mailbox is a generic role address.

Email: %s
Display name: %s
Domain: %s
Local part: %s
Local-part layout: %s (given hint: %q, surname hint: %q)
Generic role mailbox: %t

Return a valid JSON object with your full reasoning chain first:
{"chain_of_thought": "<step-by-step analysis>", "name1": "<given name or null>", "name2": "<surname or null>", "genre": "<Mr.|Ms.|null>", "is_personal": <bool>, "confidence": <0.0-1.0>, "reasoning": "<brief conclusion>"}`

// buildPrompt renders the prompt for the given mode.
func buildPrompt(req Request, mode Mode) string {
	tmpl := fastPrompt
	if mode == ModeReasoning {
		tmpl = reasoningPrompt
	}
	return fmt.Sprintf(tmpl,
		req.Input.Email,
		req.Input.Display,
		req.Input.Domain,
		req.Input.LocalPart,
		req.Hint.Pattern,
		req.Hint.GivenHint,
		req.Hint.SurnameHint,
		req.IsServiceAddress,
	)
}

// rawAnswer mirrors the JSON contract of the extraction capability.
type rawAnswer struct {
	ChainOfThought string   `json:"chain_of_thought"`
	Name1          *string  `json:"name1"`
	Name2          *string  `json:"name2"`
	Genre          *string  `json:"genre"`
	IsPersonal     *bool    `json:"is_personal"`
	Confidence     *float64 `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
}

// parseAnswer parses the model response text into an ExtractionResult.
// Unparseable answers yield a zero-confidence result rather than an
// error; the caller persists it as a degraded record.
func parseAnswer(text string) identity.ExtractionResult {
	cleaned := cleanJSON(text)

	var raw rawAnswer
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		zap.L().Warn("extract: failed to parse answer JSON", zap.Error(err))
		return identity.ExtractionResult{
			IsPersonal: true,
			Reasoning:  "unparseable model answer",
		}
	}

	res := identity.ExtractionResult{
		IsPersonal:     true,
		Reasoning:      raw.Reasoning,
		ChainOfThought: raw.ChainOfThought,
	}
	if raw.Name1 != nil {
		res.Name1 = strings.TrimSpace(*raw.Name1)
	}
	if raw.Name2 != nil {
		res.Name2 = strings.TrimSpace(*raw.Name2)
	}
	if raw.IsPersonal != nil {
		res.IsPersonal = *raw.IsPersonal
	}
	if raw.Confidence != nil {
		res.Confidence = clamp01(*raw.Confidence)
	}
	if raw.Genre != nil {
		switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(*raw.Genre)), ".") {
		case "mr":
			res.Genre = identity.GenreMr
		case "ms", "mrs":
			res.Genre = identity.GenreMs
		}
	}
	return res
}

// cleanJSON strips markdown fences and any prose around the outermost
// JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
