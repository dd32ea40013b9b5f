package chat

import (
	"regexp"
	"slices"
	"strings"

	"github.com/gasdesk/agent-server/internal/agent/model"
)

const namePreference = "name"

var (
	englishPhrases   = []string{"answer in english", "válaszolj angolul", "use english"}
	hungarianPhrases = []string{"answer in hungarian", "válaszolj magyarul", "use hungarian"}
	cityMarkers      = []string{"default city", "alapértelmezett város"}

	knownCities = []struct{ match, name string }{
		{"budapest", "Budapest"},
		{"szeged", "Szeged"},
		{"debrecen", "Debrecen"},
		{"pécs", "Pécs"},
		{"győr", "Győr"},
	}

	// The name itself must be capitalised so "I am interested" is not a name.
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i:\b(?:my name is|call me|i am|i'm))\s+(` + nameRE + `)`),
		regexp.MustCompile(`(?i:\b(?:a nevem|hívnak|én vagyok))\s+(` + nameRE + `)`),
		regexp.MustCompile(`(` + nameRE + `)\s+(?i:vagyok)`),
		regexp.MustCompile(`(?i:\b(?:szia|hello|hi|helló))\s+(` + nameRE + `)`),
		regexp.MustCompile(`^(` + nameRE + `)\s+(?i:here|itt|speaking)`),
	}

	notNames = []string{"szia", "hello", "helló", "hi", "hey", "hola", "budapest", "hogyan", "segíthetek"}
)

const nameRE = `[A-ZÁÉÍÓÖŐÚÜŰ][a-záéíóöőúüű]+`

// DetectProfilePatch derives preference changes from phrases in msg. Only
// values that differ from p end up in the patch.
func DetectProfilePatch(msg string, p model.UserProfile) model.ProfilePatch {
	var patch model.ProfilePatch
	lower := strings.ToLower(msg)

	lang := ""
	switch {
	case containsAny(lower, englishPhrases):
		lang = "en"
	case containsAny(lower, hungarianPhrases):
		lang = "hu"
	}
	if lang != "" && lang != p.Language {
		patch.Language = &lang
	}

	if containsAny(lower, cityMarkers) {
		for _, c := range knownCities {
			if strings.Contains(lower, c.match) {
				if c.name != p.DefaultCity {
					city := c.name
					patch.DefaultCity = &city
				}
				break
			}
		}
	}

	if name := detectName(msg); name != "" {
		if cur, _ := p.Preferences[namePreference].(string); cur != name {
			patch.Preferences = map[string]any{namePreference: name}
		}
	}
	return patch
}

func detectName(msg string) string {
	for _, re := range namePatterns {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		name := strings.Trim(m[1], ".,!?")
		if len([]rune(name)) > 1 && !slices.Contains(notNames, strings.ToLower(name)) {
			return name
		}
	}
	return ""
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func describePatch(p model.ProfilePatch) []string {
	var out []string
	if p.Language != nil {
		out = append(out, "language="+*p.Language)
	}
	if p.DefaultCity != nil {
		out = append(out, "default_city="+*p.DefaultCity)
	}
	if name, ok := p.Preferences[namePreference].(string); ok {
		out = append(out, "name="+name)
	}
	return out
}
