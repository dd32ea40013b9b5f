package nodes

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/gasdesk/agent-server/internal/agent/graph/conversations"
	"github.com/gasdesk/agent-server/internal/agent/model"
	"github.com/gasdesk/agent-server/internal/agent/tools"
)

const maxAggregateRunes = 8000

var (
	hungarianWords = regexp.MustCompile(`(?i)\b(ki|kicsoda|mi|milyen|hol|mikor|miért|hogy|hogyan|van|vannak|volt|lesz|lennék|jogszabály|rendelet|törvény|szabályozás|szabályozási)\b`)
	englishWords   = regexp.MustCompile(`(?i)\b(who|what|where|when|why|how|is|are|was|were|the|regulation|law|act|can|could|would|should)\b`)
)

// DetectLanguage counts Hungarian and English marker words; a tie keeps fallback.
func DetectLanguage(text, fallback string) string {
	hu := len(hungarianWords.FindAllStringIndex(text, -1))
	en := len(englishWords.FindAllStringIndex(text, -1))
	switch {
	case hu > en:
		return "hu"
	case en > hu:
		return "en"
	case fallback == "en":
		return "en"
	default:
		return model.DefaultLanguage
	}
}

func LanguageInstruction(lang string) string {
	if lang == "en" {
		return "You MUST respond in English. Translate any Hungarian content to English."
	}
	return "Válaszolj magyarul. A válasznak magyar nyelvűnek kell lennie."
}

// ToolCatalog renders tool descriptors for the decision prompt.
func ToolCatalog(descs []tools.Descriptor) string {
	if len(descs) == 0 {
		return "(no tools registered)"
	}
	var b strings.Builder
	for _, d := range descs {
		fmt.Fprintf(&b, "- %s: %s\n  arguments schema: %s\n", d.Name, d.Description, compactJSON(d.Schema))
	}
	return strings.TrimRight(b.String(), "\n")
}

// PreferenceLines renders the profile as the preference block of a prompt.
func PreferenceLines(p model.UserProfile) string {
	lines := []string{
		"- Language: " + p.Language,
		"- Default city: " + p.DefaultCity,
	}
	if name, ok := p.Preferences["name"].(string); ok && name != "" {
		lines = append(lines, "- Name: "+name)
	}
	keys := make([]string, 0, len(p.Preferences))
	for k := range p.Preferences {
		if k != "name" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %v", k, p.Preferences[k]))
	}
	return strings.Join(lines, "\n")
}

func executedLines(calls []model.ToolCall) string {
	if len(calls) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		lines = append(lines, "- "+c.String())
	}
	return strings.Join(lines, "\n")
}

func observationBlock(in model.FinalizeInput) string {
	var b strings.Builder
	b.WriteString(conversations.Observations(in.Turns))
	if in.Aggregated.Empty() {
		return b.String()
	}
	merged := map[string]any{}
	if len(in.Aggregated.Items) > 0 {
		merged["items"] = in.Aggregated.Items
	}
	if len(in.Aggregated.Fields) > 0 {
		merged["fields"] = in.Aggregated.Fields
	}
	if len(merged) > 0 {
		raw, err := json.Marshal(merged)
		if err == nil {
			b.WriteString("\nMerged results of this request: ")
			b.WriteString(clip(string(raw), maxAggregateRunes))
		}
	}
	for _, f := range in.Aggregated.Failures {
		msg := ""
		if f.Error != nil {
			msg = f.Error.Error()
		}
		b.WriteString("\nFailed: " + f.Call.String() + ": " + msg)
	}
	return b.String()
}

func compactJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
