package identity

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed service_tokens.yaml
var serviceTokensYAML []byte

// serviceTokens is the closed set of generic role mailbox names.
var serviceTokens = mustLoadServiceTokens()

func mustLoadServiceTokens() map[string]bool {
	var doc struct {
		Tokens []string `yaml:"tokens"`
	}
	if err := yaml.Unmarshal(serviceTokensYAML, &doc); err != nil {
		panic("identity: parse service_tokens.yaml: " + err.Error())
	}
	set := make(map[string]bool, len(doc.Tokens))
	for _, t := range doc.Tokens {
		set[strings.ToLower(t)] = true
	}
	return set
}

// IsServiceAddress reports whether the address's local part names a
// role or department rather than a person (info, sales, vendite,
// kontakt, ...). Trailing digits are ignored (info2@ is still a
// service address); anything else must match the closed set exactly.
func IsServiceAddress(email string) bool {
	local, _ := splitAddress(strings.ToLower(strings.TrimSpace(email)))
	if local == "" {
		return false
	}
	if serviceTokens[local] {
		return true
	}
	trimmed := strings.TrimRight(local, "0123456789")
	return trimmed != local && serviceTokens[trimmed]
}
