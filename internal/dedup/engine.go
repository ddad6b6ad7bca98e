// Package dedup classifies findings as novel or duplicate against the
// existing knowledge corpus using TF-IDF cosine similarity.
//
// The engine is an explicit accumulator: the orchestrator seeds it with the
// authoritative records, then adds each finding accepted as novel so later
// findings in the same run are compared against it too. All iteration is
// order-fixed, so identical corpus and finding text reproduce the same
// score bit for bit across runs.
package dedup

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

type document struct {
	id       string
	scenario string
	scope    string
	terms    map[string]float64
	norm     float64
}

// Engine scores findings against the corpus. Not safe for concurrent use;
// the pipeline deduplicates sequentially by design.
type Engine struct {
	threshold float64
	docs      []document
	df        map[string]int
	dirty     bool
}

// NewEngine builds an empty engine with the given duplicate threshold.
func NewEngine(threshold float64) *Engine {
	return &Engine{
		threshold: threshold,
		df:        map[string]int{},
	}
}

// Threshold returns the configured duplicate cutoff.
func (e *Engine) Threshold() float64 { return e.threshold }

// Len returns the number of corpus documents.
func (e *Engine) Len() int { return len(e.docs) }

// Add appends a globally visible document to the corpus. scenario is kept
// for audit logging of duplicate decisions.
func (e *Engine) Add(id, scenario, text string) {
	e.AddScoped(id, scenario, text, "")
}

// AddScoped appends a document visible only to checks carrying the same
// scope. An empty scope means visible everywhere; the pipeline scopes
// in-run additions by source id when cross-source suppression is off.
func (e *Engine) AddScoped(id, scenario, text, scope string) {
	terms := termCounts(text)
	for term := range terms {
		e.df[term]++
	}
	e.docs = append(e.docs, document{id: id, scenario: scenario, scope: scope, terms: terms})
	e.dirty = true
}

// Check scores title+body against every globally visible corpus document.
func (e *Engine) Check(title, body string) (score float64, matchedID, matchedScenario string) {
	return e.CheckFrom("", title, body)
}

// CheckFrom scores title+body against every globally visible document plus
// those scoped to the given source, and returns the maximum cosine
// similarity with the best-matching document's identity. Scores are always
// in [0,1]; an empty corpus scores 0.
func (e *Engine) CheckFrom(scope, title, body string) (score float64, matchedID, matchedScenario string) {
	if len(e.docs) == 0 {
		return 0, "", ""
	}
	e.reweight()

	query := termCounts(title + " " + body)
	weights := make(map[string]float64, len(query))
	idfs := make(map[string]float64, len(query))
	var qnorm float64
	for _, term := range sortedTerms(query) {
		df, known := e.df[term]
		if !known {
			// Terms outside the corpus vocabulary cannot contribute to any
			// match and are excluded, mirroring a fitted vectorizer.
			continue
		}
		tidf := idf(df, len(e.docs))
		idfs[term] = tidf
		w := query[term] * tidf
		weights[term] = w
		qnorm += w * w
	}
	if qnorm == 0 {
		return 0, "", ""
	}
	qnorm = math.Sqrt(qnorm)

	best := -1
	var bestScore float64
	queryTerms := sortedTerms(weights)
	for i := range e.docs {
		doc := &e.docs[i]
		if doc.scope != "" && doc.scope != scope {
			continue
		}
		if doc.norm == 0 {
			continue
		}
		var dot float64
		for _, term := range queryTerms {
			if count, ok := doc.terms[term]; ok {
				dot += weights[term] * count * idfs[term]
			}
		}
		if dot == 0 {
			continue
		}
		sim := dot / (qnorm * doc.norm)
		if sim > bestScore {
			bestScore = sim
			best = i
		}
	}

	if best < 0 {
		return 0, "", ""
	}
	if bestScore > 1 {
		bestScore = 1 // guard against float drift
	}
	return bestScore, e.docs[best].id, e.docs[best].scenario
}

// reweight recomputes idf-weighted document vectors after corpus growth.
func (e *Engine) reweight() {
	if !e.dirty {
		return
	}
	n := len(e.docs)
	for i := range e.docs {
		doc := &e.docs[i]
		var norm float64
		for _, term := range sortedTerms(doc.terms) {
			w := doc.terms[term] * idf(e.df[term], n)
			norm += w * w
		}
		doc.norm = math.Sqrt(norm)
	}
	e.dirty = false
}

// idf uses the smoothed formula ln((1+n)/(1+df))+1 so no term weight is
// ever zero or negative.
func idf(df, n int) float64 {
	return math.Log(float64(1+n)/float64(1+df)) + 1
}

var wordRe = regexp.MustCompile(`[a-z0-9]{2,}`)

// termCounts tokenizes into lowercase words of length >= 2, drops english
// stop words, and counts unigrams plus adjacent bigrams.
func termCounts(text string) map[string]float64 {
	words := wordRe.FindAllString(strings.ToLower(text), -1)

	filtered := words[:0]
	for _, w := range words {
		if _, stop := stopWords[w]; !stop {
			filtered = append(filtered, w)
		}
	}

	counts := make(map[string]float64, len(filtered)*2)
	for i, w := range filtered {
		counts[w]++
		if i+1 < len(filtered) {
			counts[w+" "+filtered[i+1]]++
		}
	}
	return counts
}

func sortedTerms[V any](m map[string]V) []string {
	terms := make([]string, 0, len(m))
	for t := range m {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}
