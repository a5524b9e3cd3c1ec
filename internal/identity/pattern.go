package identity

import (
	"strings"
	"unicode"
)

// Pattern classifies the layout of an email local part.
type Pattern string

const (
	PatternFirstLast   Pattern = "firstname.lastname"
	PatternInitialLast Pattern = "f.lastname"
	PatternLastInitial Pattern = "lastname.f"
	PatternNone        Pattern = "none"
)

// PatternHint carries the given/surname hints inferred from the local
// part. Hints are raw local-part segments, lowercased, not proper names.
type PatternHint struct {
	Pattern     Pattern
	GivenHint   string
	SurnameHint string
}

// DetectPattern infers name hints from the segment structure of a local
// part. Segments are split on '.', '_', '-' and camelCase boundaries.
// Local parts with fewer than two segments (jsmith, info) yield
// PatternNone with empty hints.
//
// A two-segment layout with both segments longer than one rune is
// reported as firstname.lastname; the reversed lastname.firstname
// layout is indistinguishable without external evidence, so the hints
// are passed downstream as a prior, not a fact.
func DetectPattern(localPart string) PatternHint {
	segments := splitSegments(localPart)
	if len(segments) < 2 {
		return PatternHint{Pattern: PatternNone}
	}

	first := segments[0]
	last := segments[len(segments)-1]

	switch {
	case len(first) == 1 && len(last) > 1:
		return PatternHint{Pattern: PatternInitialLast, GivenHint: first, SurnameHint: last}
	case len(first) > 1 && len(last) == 1:
		return PatternHint{Pattern: PatternLastInitial, GivenHint: last, SurnameHint: first}
	case len(first) > 1 && len(last) > 1:
		return PatternHint{Pattern: PatternFirstLast, GivenHint: first, SurnameHint: last}
	default:
		return PatternHint{Pattern: PatternNone}
	}
}

// splitSegments splits a local part on separators and camelCase
// boundaries, lowercasing the result. Numeric-only segments are
// dropped (m.rossi2 → [m rossi]).
func splitSegments(localPart string) []string {
	var segments []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimFunc(current.String(), unicode.IsDigit)
		if s != "" {
			segments = append(segments, strings.ToLower(s))
		}
		current.Reset()
	}

	var prev rune
	for _, r := range localPart {
		switch {
		case r == '.' || r == '_' || r == '-' || r == '+':
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
		prev = r
	}
	flush()

	return segments
}
