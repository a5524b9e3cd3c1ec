package identity

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed honorifics.yaml
var honorificsYAML []byte

var honorifics = mustLoadHonorifics()

func mustLoadHonorifics() map[string]Genre {
	var doc struct {
		Mr []string `yaml:"mr"`
		Ms []string `yaml:"ms"`
	}
	if err := yaml.Unmarshal(honorificsYAML, &doc); err != nil {
		panic("identity: parse honorifics.yaml: " + err.Error())
	}
	m := make(map[string]Genre, len(doc.Mr)+len(doc.Ms))
	// Ms entries load last so female forms win over any shared stem.
	for _, t := range doc.Mr {
		m[normalizeTitle(t)] = GenreMr
	}
	for _, t := range doc.Ms {
		m[normalizeTitle(t)] = GenreMs
	}
	return m
}

func normalizeTitle(token string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(token)), ".")
}

// MapTitle maps a single honorific token (Mr., Sig.ra, Herr, Dott.ssa,
// ...) to a salutation. Case-insensitive, locale union; unknown tokens
// map to "".
func MapTitle(token string) Genre {
	return honorifics[normalizeTitle(token)]
}

// GenreFromDisplay scans the leading tokens of a display name for an
// honorific. At most the first two tokens are considered so stacked
// titles resolve (Prof. Dott.ssa Bianchi → Ms.): the later, more
// specific token wins.
func GenreFromDisplay(display string) Genre {
	fields := strings.Fields(display)
	if len(fields) > 2 {
		fields = fields[:2]
	}
	var g Genre
	for _, f := range fields {
		if mapped := MapTitle(f); mapped != "" {
			g = mapped
		}
	}
	return g
}
