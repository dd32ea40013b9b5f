package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// PIIMode selects how personal data is masked in hybrid memory.
type PIIMode string

const (
	PIIPlaceholder  PIIMode = "placeholder"
	PIIPseudonymize PIIMode = "pseudonymize"
	PIIOff          PIIMode = "off"
)

func ParsePIIMode(v string) PIIMode {
	switch PIIMode(strings.ToLower(strings.TrimSpace(v))) {
	case PIIPseudonymize:
		return PIIPseudonymize
	case PIIOff:
		return PIIOff
	default:
		return PIIPlaceholder
	}
}

var piiPatterns = []struct {
	placeholder string
	re          *regexp.Regexp
}{
	{"[EMAIL]", regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)},
	{"[PHONE]", regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`)},
}

// FilterPII masks e-mail addresses and phone numbers.
// Pseudonyms are stable: the same value always maps to the same [ID_xxxxxxxx].
func FilterPII(text string, mode PIIMode) string {
	if mode == PIIOff {
		return text
	}
	for _, p := range piiPatterns {
		if mode == PIIPseudonymize {
			text = p.re.ReplaceAllStringFunc(text, pseudonym)
		} else {
			text = p.re.ReplaceAllString(text, p.placeholder)
		}
	}
	return text
}

func pseudonym(value string) string {
	sum := sha256.Sum256([]byte(value))
	return "[ID_" + hex.EncodeToString(sum[:])[:8] + "]"
}
