// Package parse normalizes raw items into plain-text findings suitable for
// similarity scoring and conversion prompts. One parser per source type.
package parse

import (
	"fmt"
	"regexp"
	"strings"

	"kbingest/internal/domain"
)

// Parsers are pure: one malformed item never aborts its siblings, the
// orchestrator calls Parse per item and records failures individually.
type Parser interface {
	Type() domain.SourceType
	Parse(src domain.SourceConfig, item domain.RawItem) ([]domain.Finding, error)
}

// Registry maps source types to parser implementations.
type Registry struct {
	parsers map[domain.SourceType]Parser
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: map[domain.SourceType]Parser{}}
}

// Register adds or replaces a parser implementation.
func (r *Registry) Register(p Parser) {
	if r.parsers == nil {
		r.parsers = map[domain.SourceType]Parser{}
	}
	r.parsers[p.Type()] = p
}

// Resolve returns the parser for a source type or an error if absent.
func (r *Registry) Resolve(t domain.SourceType) (Parser, error) {
	if p, ok := r.parsers[t]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: no parser for %q", domain.ErrUnsupportedSourceType, t)
}

const (
	// minBodyLen drops boilerplate-only items with no usable content.
	minBodyLen = 50
	// maxBodyLen caps finding bodies; longer text adds prompt cost without
	// improving similarity scoring.
	maxBodyLen = 4000
)

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// capBody cuts on rune boundaries so a multi-byte character is never split.
func capBody(s string) string {
	if len(s) <= maxBodyLen {
		return s
	}
	r := []rune(s)
	if len(r) <= maxBodyLen {
		return s
	}
	return string(r[:maxBodyLen])
}

func newFinding(src domain.SourceConfig, item domain.RawItem, title, body string) domain.Finding {
	return domain.Finding{
		SourceID:   src.ID,
		SourceName: src.Name,
		Title:      title,
		Body:       capBody(body),
		URL:        item.URL,
		Categories: append([]string(nil), src.Categories...),
		Published:  item.Published,
	}
}
