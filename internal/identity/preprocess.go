package identity

import (
	"io"
	"mime"
	"net/mail"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// Preprocessed is the normalized form of a raw "From" identity string.
// All fields may be empty; Preprocess never fails.
type Preprocessed struct {
	Email     string
	Display   string
	Domain    string
	LocalPart string
}

// emailRe matches well-formed addresses embedded anywhere in the raw
// string, including inside a malformed display segment.
var emailRe = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9._%+\-']*@[A-Za-z0-9][A-Za-z0-9.\-]*\.[A-Za-z]{2,}`)

// mimeDecoder decodes RFC 2047 encoded words in display names. The
// charset reader covers the legacy encodings (iso-8859-*, windows-125x)
// still common in Italian and German mail clients.
var mimeDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, err
		}
		return enc.NewDecoder().Reader(input), nil
	},
}

// Preprocess normalizes a raw identity string such as
// `"Sig. Marco Rossi" <m.rossi@acme.it>` into its address parts. When
// several well-formed addresses appear (a second address smuggled into
// the display segment), the last one wins. Worst case it returns
// all-empty fields; it never fails.
func Preprocess(raw string) Preprocessed {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Preprocessed{}
	}

	var display, email string
	if addr, err := mail.ParseAddress(raw); err == nil {
		display = addr.Name
		email = addr.Address
	}

	// Malformed input, or extra addresses inside the display segment:
	// scan the whole raw string and let the last well-formed address win.
	if matches := emailRe.FindAllString(raw, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		if email == "" || len(matches) > 1 {
			email = last
		}
	}

	if display == "" {
		display = stripAddressSyntax(raw, email)
	}
	display = decodeDisplay(display)
	if strings.EqualFold(display, email) {
		display = ""
	}

	email = strings.ToLower(strings.TrimSpace(email))
	local, domain := splitAddress(email)

	return Preprocessed{
		Email:     email,
		Display:   strings.TrimSpace(display),
		Domain:    domain,
		LocalPart: local,
	}
}

// stripAddressSyntax removes the address, angle brackets and quoting
// from a raw string that net/mail could not parse, leaving whatever
// display text remains.
func stripAddressSyntax(raw, email string) string {
	s := raw
	if email != "" {
		s = strings.ReplaceAll(s, email, "")
	}
	s = strings.NewReplacer("<", " ", ">", " ", "\"", " ", "'", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// decodeDisplay decodes MIME encoded words and trims residual quoting.
func decodeDisplay(display string) string {
	display = strings.TrimSpace(display)
	if display == "" {
		return ""
	}
	if decoded, err := mimeDecoder.DecodeHeader(display); err == nil {
		display = decoded
	}
	return strings.Trim(display, `"' `)
}

// splitAddress returns (localPart, domain) for a cleaned address, or
// empty strings when the address is empty or has no @.
func splitAddress(email string) (string, string) {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", ""
	}
	return email[:at], email[at+1:]
}
