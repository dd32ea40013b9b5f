// Package regulation answers questions about a regulatory text through a
// retriever and a chat model.
package regulation

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

const defaultTopK = 5

// sectionHeading matches "12. §" style section markers.
var sectionHeading = regexp.MustCompile(`(?m)^\s*(\d+)\.\s*§`)

// CorpusRetriever scores sections of a plain-text regulation by term overlap.
type CorpusRetriever struct {
	sections []section
}

type section struct {
	id     string
	label  string
	text   string
	terms  map[string]int
	length int
}

// LoadCorpus reads a regulation text file.
func LoadCorpus(path string) (*CorpusRetriever, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read regulation corpus: %w", err)
	}
	return NewCorpusRetriever(string(b)), nil
}

// NewCorpusRetriever splits text into sections at "N. §" markers, or at blank
// lines when the text has none.
func NewCorpusRetriever(text string) *CorpusRetriever {
	var chunks []string
	var labels []string
	if locs := sectionHeading.FindAllStringSubmatchIndex(text, -1); len(locs) > 0 {
		for i, loc := range locs {
			end := len(text)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			chunks = append(chunks, text[loc[0]:end])
			labels = append(labels, text[loc[2]:loc[3]]+". §")
		}
	} else {
		for i, para := range strings.Split(text, "\n\n") {
			chunks = append(chunks, para)
			labels = append(labels, "paragraph "+strconv.Itoa(i+1))
		}
	}

	r := &CorpusRetriever{}
	for i, c := range chunks {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		terms := tokenize(c)
		n := 0
		for _, v := range terms {
			n += v
		}
		r.sections = append(r.sections, section{
			id:     strconv.Itoa(i + 1),
			label:  labels[i],
			text:   c,
			terms:  terms,
			length: n,
		})
	}
	return r
}

func (r *CorpusRetriever) Len() int { return len(r.sections) }

// Retrieve returns the top-k sections sharing the most query terms.
func (r *CorpusRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topK := defaultTopK
	o := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if o.TopK != nil && *o.TopK > 0 {
		topK = *o.TopK
	}

	q := tokenize(query)
	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	for i, s := range r.sections {
		var overlap float64
		for term := range q {
			overlap += float64(s.terms[term])
		}
		if overlap == 0 {
			continue
		}
		// dampen long sections so a short precise match can win
		hits = append(hits, scored{idx: i, score: overlap / (1 + float64(s.length)/200)})
	}
	slices.SortStableFunc(hits, func(a, b scored) int { return cmp.Compare(b.score, a.score) })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	docs := make([]*schema.Document, 0, len(hits))
	for _, h := range hits {
		s := r.sections[h.idx]
		docs = append(docs, &schema.Document{
			ID:      s.id,
			Content: s.text,
			MetaData: map[string]any{
				"page":  s.label,
				"score": h.score,
			},
		})
	}
	return docs, nil
}

func tokenize(s string) map[string]int {
	out := map[string]int{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) < 3 {
			continue
		}
		out[w]++
	}
	return out
}

var _ retriever.Retriever = (*CorpusRetriever)(nil)
