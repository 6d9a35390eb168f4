package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ExpandedQuery is a query's structured expansion (§4.10): short keyword
// variants for lexical search, natural-language rephrasings for vector
// search, and a hypothetical answer passage (HyDE) usable as a vector query
// in its own right.
type ExpandedQuery struct {
	LexicalQueries []string `json:"lexical_queries"`
	VectorQueries  []string `json:"vector_queries"`
	HydePassage    string   `json:"hyde_passage"`
}

// Generator is the model-runtime collaborator that turns a prompt into raw
// text. A real implementation calls a local or remote chat-completion
// endpoint; it is never asked to guarantee valid JSON, only to try.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Expander produces an ExpandedQuery from a natural-language query.
type Expander struct {
	generator Generator
}

// NewExpander builds an Expander. generator may be nil, in which case
// Expand always returns the identity fallback.
func NewExpander(generator Generator) *Expander {
	return &Expander{generator: generator}
}

// Identity returns the expansion used whenever the generator is absent,
// fails, times out, or returns output that fails schema validation: the
// query alone, as both the lexical and vector query, with no HyDE passage.
func Identity(query string) ExpandedQuery {
	return ExpandedQuery{LexicalQueries: []string{query}, VectorQueries: []string{query}}
}

// Expand calls the generator with a schema-constrained prompt and validates
// its response; any failure at any step degrades to Identity rather than
// propagating an error, since query expansion is an optimization, not a
// required step of query (§4.10, §7).
func (e *Expander) Expand(ctx context.Context, query string) ExpandedQuery {
	if e == nil || e.generator == nil || strings.TrimSpace(query) == "" {
		return Identity(query)
	}

	raw, err := e.generator.Generate(ctx, expansionPrompt(query))
	if err != nil {
		return Identity(query)
	}

	expanded, ok := parseExpansion(raw)
	if !ok {
		return Identity(query)
	}
	return expanded
}

func expansionPrompt(query string) string {
	return fmt.Sprintf(`Expand the following search query into a JSON object with exactly these fields:
- "lexical_queries": an array of 1 to 5 short keyword phrases (1-3 words each) suitable for full-text search
- "vector_queries": an array of 1 to 3 natural-language rephrasings that preserve the original intent
- "hyde_passage": a short hypothetical passage that would answer the query, used as a semantic search seed

Respond with only the JSON object, no surrounding text.

Query: %s`, query)
}

// parseExpansion decodes and validates a generator response against the
// §4.10 schema: lexical_queries and vector_queries must each be non-empty
// arrays of non-blank strings; hyde_passage may be absent or empty.
func parseExpansion(raw string) (ExpandedQuery, bool) {
	raw = extractJSONObject(raw)

	var out ExpandedQuery
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return ExpandedQuery{}, false
	}

	out.LexicalQueries = cleanStrings(out.LexicalQueries)
	out.VectorQueries = cleanStrings(out.VectorQueries)
	out.HydePassage = strings.TrimSpace(out.HydePassage)

	if len(out.LexicalQueries) == 0 || len(out.VectorQueries) == 0 {
		return ExpandedQuery{}, false
	}
	return out, true
}

// extractJSONObject trims a generator response down to its outermost {...}
// span, tolerating chat models that wrap JSON in prose or code fences.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
