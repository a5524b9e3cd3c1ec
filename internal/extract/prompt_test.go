package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vLannaAi/i3speedex-sub004/internal/identity"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain object",
			input:    `{"name1": "Marco"}`,
			expected: `{"name1": "Marco"}`,
		},
		{
			name:     "json fence",
			input:    "```json\n{\"name1\": \"Marco\"}\n```",
			expected: `{"name1": "Marco"}`,
		},
		{
			name:     "bare fence",
			input:    "```\n{\"name1\": \"Marco\"}\n```",
			expected: `{"name1": "Marco"}`,
		},
		{
			name:     "surrounding prose",
			input:    "Here is the result:\n{\"name1\": \"Marco\"}\nLet me know.",
			expected: `{"name1": "Marco"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanJSON(tt.input))
		})
	}
}

func TestParseAnswer(t *testing.T) {
	res := parseAnswer(`{"name1": " Marco ", "name2": "Rossi", "genre": "mr", "is_personal": true, "confidence": 0.9, "reasoning": "display name"}`)

	assert.Equal(t, "Marco", res.Name1)
	assert.Equal(t, "Rossi", res.Name2)
	assert.Equal(t, identity.GenreMr, res.Genre)
	assert.True(t, res.IsPersonal)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Equal(t, "display name", res.Reasoning)
}

func TestParseAnswer_GenreVariants(t *testing.T) {
	tests := []struct {
		raw      string
		expected identity.Genre
	}{
		{`"Mr."`, identity.GenreMr},
		{`"mr"`, identity.GenreMr},
		{`"Ms."`, identity.GenreMs},
		{`"Mrs."`, identity.GenreMs},
		{`"unknown"`, ""},
		{`null`, ""},
	}

	for _, tt := range tests {
		res := parseAnswer(`{"genre": ` + tt.raw + `, "confidence": 0.8}`)
		assert.Equal(t, tt.expected, res.Genre, "genre %s", tt.raw)
	}
}

func TestParseAnswer_NullNames(t *testing.T) {
	res := parseAnswer(`{"name1": null, "name2": null, "is_personal": false, "confidence": 0.95, "reasoning": "role mailbox"}`)

	assert.Empty(t, res.Name1)
	assert.Empty(t, res.Name2)
	assert.False(t, res.IsPersonal)
}

func TestParseAnswer_ConfidenceClamped(t *testing.T) {
	assert.Equal(t, 1.0, parseAnswer(`{"confidence": 1.4}`).Confidence)
	assert.Equal(t, 0.0, parseAnswer(`{"confidence": -0.2}`).Confidence)
}

func TestParseAnswer_Unparseable(t *testing.T) {
	res := parseAnswer("I could not determine the sender.")

	assert.Zero(t, res.Confidence)
	assert.True(t, res.IsPersonal)
	assert.Equal(t, "unparseable model answer", res.Reasoning)
}

func TestParseAnswer_ChainOfThought(t *testing.T) {
	res := parseAnswer(`{"chain_of_thought": "the local part splits as m.rossi", "name2": "Rossi", "confidence": 0.8}`)

	assert.Equal(t, "the local part splits as m.rossi", res.ChainOfThought)
	assert.Equal(t, "Rossi", res.Name2)
}

func TestBuildPrompt_ModeSelectsTemplate(t *testing.T) {
	req := Request{
		Input: identity.Preprocessed{
			Email:     "m.rossi@acme.it",
			Display:   "Marco Rossi",
			Domain:    "acme.it",
			LocalPart: "m.rossi",
		},
		Hint: identity.PatternHint{
			Pattern:     identity.PatternInitialLast,
			GivenHint:   "m",
			SurnameHint: "rossi",
		},
	}

	fast := buildPrompt(req, ModeFast)
	assert.Contains(t, fast, "m.rossi@acme.it")
	assert.Contains(t, fast, "Marco Rossi")
	assert.NotContains(t, fast, "chain_of_thought")

	slow := buildPrompt(req, ModeReasoning)
	assert.Contains(t, slow, "chain_of_thought")
	assert.Contains(t, slow, "step by step")
}
