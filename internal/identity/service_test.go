package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsServiceAddress(t *testing.T) {
	service := []string{
		"info@azienda.it",
		"SALES@acme.com",
		"noreply@example.org",
		"no-reply@example.org",
		"vendite@speedex.it",
		"kontakt@firma.de",
		"amministrazione@azienda.it",
		"info2@azienda.it",
	}
	for _, email := range service {
		assert.True(t, IsServiceAddress(email), email)
	}

	personal := []string{
		"m.rossi@acme.it",
		"marco.rossi@acme.it",
		"jsmith@example.com",
		"informatica@acme.it", // not an exact token match
		"",
		"@",
	}
	for _, email := range personal {
		assert.False(t, IsServiceAddress(email), email)
	}
}
