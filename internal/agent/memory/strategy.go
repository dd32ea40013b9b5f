package memory

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gasdesk/agent-server/internal/agent/model"
)

// Window is the slice of history handed to the control loop.
type Window struct {
	Turns   []model.Turn
	Summary string
}

// Strategy condenses a session into a Window.
type Strategy interface {
	Mode() model.MemoryMode
	Build(sess model.Session) Window
}

// Simple keeps the trailing turns verbatim.
type Simple struct {
	Turns int
}

func (Simple) Mode() model.MemoryMode { return model.MemorySimple }

func (s Simple) Build(sess model.Session) Window {
	return Window{Turns: sess.Tail(s.Turns)}
}

// Hybrid keeps a short trailing window with personal data masked and folds
// older turns into a deterministic digest.
type Hybrid struct {
	Turns int
	PII   PIIMode
}

func (Hybrid) Mode() model.MemoryMode { return model.MemoryHybrid }

func (h Hybrid) Build(sess model.Session) Window {
	recent := sess.Tail(h.Turns)
	for i := range recent {
		recent[i].Content = FilterPII(recent[i].Content, h.PII)
	}
	older := sess.Turns[:len(sess.Turns)-len(recent)]
	return Window{Turns: recent, Summary: FilterPII(digest(older), h.PII)}
}

const digestTopics = 3

// digest summarises turns without a model call: counts per role, tools used
// and the opening words of the last few user messages.
func digest(turns []model.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	counts := map[model.Role]int{}
	var tools []string
	var topics []string
	for _, t := range turns {
		counts[t.Role]++
		if name, ok := t.Metadata[model.MetaTool].(string); ok && !slices.Contains(tools, name) {
			tools = append(tools, name)
		}
		if t.Role == model.RoleUser {
			topics = append(topics, headline(t.Content))
		}
	}
	if len(topics) > digestTopics {
		topics = topics[len(topics)-digestTopics:]
	}
	slices.Sort(tools)

	var b strings.Builder
	fmt.Fprintf(&b, "Earlier in this session: %d user messages, %d assistant answers, %d tool observations.",
		counts[model.RoleUser], counts[model.RoleAssistant], counts[model.RoleTool])
	if len(tools) > 0 {
		fmt.Fprintf(&b, " Tools used: %s.", strings.Join(tools, ", "))
	}
	if len(topics) > 0 {
		fmt.Fprintf(&b, " Recent topics: %s.", strings.Join(topics, "; "))
	}
	return b.String()
}

func headline(s string) string {
	words := strings.Fields(s)
	if len(words) > 8 {
		words = append(words[:8], "...")
	}
	return strings.Join(words, " ")
}

// NewStrategies builds the strategy table from config values.
func NewStrategies(simpleTurns, hybridTurns int, pii PIIMode) map[model.MemoryMode]Strategy {
	return map[model.MemoryMode]Strategy{
		model.MemorySimple: Simple{Turns: simpleTurns},
		model.MemoryHybrid: Hybrid{Turns: hybridTurns, PII: pii},
	}
}
