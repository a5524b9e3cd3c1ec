package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// maxNameLen bounds a plausible single name field. Longer values are
// almost always a sentence the model failed to split.
const maxNameLen = 60

// rejectedConfidence caps the confidence of a result that failed
// structural validation.
const rejectedConfidence = 0.4

var orgCaser = cases.Title(language.Und)

// Sanitize validates and repairs a raw extraction result in place:
// structurally wrong name fields are cleared and the confidence is
// downgraded to at most 0.4, with a warning appended to Reasoning. The
// record is never discarded. It also fills Email/Domain from the
// preprocessed input, derives the local-part initials and computes the
// organization label for non-personal addresses.
//
// The returned warnings mirror what was appended to Reasoning.
func Sanitize(res *ExtractionResult, pre Preprocessed, hint PatternHint) []string {
	if res.Email == "" {
		res.Email = pre.Email
	}
	if res.Domain == "" {
		res.Domain = pre.Domain
	}

	var warnings []string
	reject := func(field *string, warning string) {
		*field = ""
		warnings = append(warnings, warning)
	}

	for _, nf := range []struct {
		field *string
		label string
	}{{&res.Name1, "name1"}, {&res.Name2, "name2"}} {
		name := strings.TrimSpace(*nf.field)
		*nf.field = name
		switch {
		case name == "":
		case strings.EqualFold(name, pre.Email) || strings.EqualFold(name, pre.LocalPart):
			reject(nf.field, nf.label+" equals the email address")
		case len(name) > maxNameLen:
			reject(nf.field, nf.label+" exceeds length bound")
		case serviceTokens[strings.ToLower(name)]:
			reject(nf.field, nf.label+" is a generic mailbox token")
		}
	}

	if len(warnings) > 0 {
		if res.Confidence > rejectedConfidence {
			res.Confidence = rejectedConfidence
		}
		for _, w := range warnings {
			if res.Reasoning != "" {
				res.Reasoning += "; "
			}
			res.Reasoning += "warning: " + w
		}
	}

	res.Name1Pre = initialFor(res.Name1, hint.GivenHint)
	res.Name2Pre = initialFor(res.Name2, hint.SurnameHint)

	if !res.IsPersonal {
		res.Name3 = orgLabel(pre)
	} else {
		res.Name3 = ""
	}

	return warnings
}

// initialFor returns the first letter of the local-part segment backing
// a name, but only when the segment and the name disagree. A full match
// means the name already encodes the segment.
func initialFor(name, segment string) string {
	if name == "" || segment == "" {
		return ""
	}
	if strings.EqualFold(name, segment) {
		return ""
	}
	if !strings.EqualFold(segment[:1], name[:1]) {
		return ""
	}
	return strings.ToLower(segment[:1])
}

// orgLabel derives a normalized organization label for a non-personal
// address. Service local parts (info, vendite) carry no organization
// signal, so the first domain label is used instead.
func orgLabel(pre Preprocessed) string {
	source := pre.LocalPart
	if source == "" || serviceTokens[source] {
		source = firstDomainLabel(pre.Domain)
	}
	if source == "" {
		return ""
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r):
			return r
		case r == '.' || r == '_' || r == '-':
			return ' '
		default:
			return -1
		}
	}, source)

	return orgCaser.String(strings.Join(strings.Fields(cleaned), " "))
}

func firstDomainLabel(domain string) string {
	if i := strings.Index(domain, "."); i > 0 {
		return domain[:i]
	}
	return domain
}
