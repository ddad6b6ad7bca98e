package parse

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"kbingest/internal/domain"
)

const defaultTitleSelector = "h2, h3"

var headerTagRe = regexp.MustCompile(`^h[2-4]$`)

// PageParser extracts findings from documentation pages: CSS-selector
// extraction when configured, header-section splitting otherwise, with a
// readability pass as the last resort for selector-less article pages.
type PageParser struct{}

// NewPageParser builds the document-page parser.
func NewPageParser() *PageParser { return &PageParser{} }

func (p *PageParser) Type() domain.SourceType { return domain.TypePage }

// Parse turns one fetched page into zero or more findings.
func (p *PageParser) Parse(src domain.SourceConfig, item domain.RawItem) ([]domain.Finding, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(item.Payload))
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", item.URL, err)
	}

	if src.Parse.ItemSelector != "" {
		return p.parseStructured(src, item, doc), nil
	}

	findings := p.parseSections(src, item, doc)
	if len(findings) > 0 {
		return findings, nil
	}
	return p.parseArticle(src, item)
}

// parseStructured extracts repeated elements via configured CSS selectors.
func (p *PageParser) parseStructured(src domain.SourceConfig, item domain.RawItem, doc *goquery.Document) []domain.Finding {
	titleSelector := src.Parse.TitleSelector
	if titleSelector == "" {
		titleSelector = defaultTitleSelector
	}

	var findings []domain.Finding
	doc.Find(src.Parse.ItemSelector).Each(func(_ int, elem *goquery.Selection) {
		title := collapseWhitespace(elem.Find(titleSelector).First().Text())

		body := ""
		if src.Parse.BodySelector != "" {
			body = collapseWhitespace(elem.Find(src.Parse.BodySelector).First().Text())
		}
		if body == "" {
			body = collapseWhitespace(elem.Text())
		}

		if title != "" && len(body) >= 20 {
			findings = append(findings, newFinding(src, item, title, body))
		}
	})
	return findings
}

// parseSections splits the page into h2-h4 sections, collecting sibling
// text until the next header.
func (p *PageParser) parseSections(src domain.SourceConfig, item domain.RawItem, doc *goquery.Document) []domain.Finding {
	var findings []domain.Finding

	doc.Find("h2, h3, h4").Each(func(_ int, header *goquery.Selection) {
		title := collapseWhitespace(header.Text())
		if len(title) < 5 {
			return
		}

		var parts []string
		for sibling := header.Next(); sibling.Length() > 0; sibling = sibling.Next() {
			if node := sibling.Get(0); node != nil && headerTagRe.MatchString(node.Data) {
				break
			}
			if text := collapseWhitespace(sibling.Text()); text != "" {
				parts = append(parts, text)
			}
		}

		body := strings.Join(parts, " ")
		if len(body) >= minBodyLen {
			findings = append(findings, newFinding(src, item, title, body))
		}
	})
	return findings
}

// parseArticle treats the whole page as one article, letting readability
// strip navigation and boilerplate.
func (p *PageParser) parseArticle(src domain.SourceConfig, item domain.RawItem) ([]domain.Finding, error) {
	pageURL, err := url.Parse(item.URL)
	if err != nil {
		return nil, fmt.Errorf("page url %s: %w", item.URL, err)
	}

	article, err := readability.FromReader(bytes.NewReader(item.Payload), pageURL)
	if err != nil {
		return nil, fmt.Errorf("extract article %s: %w", item.URL, err)
	}

	body := collapseWhitespace(article.TextContent)
	if len(body) < minBodyLen {
		return nil, nil
	}

	title := collapseWhitespace(article.Title)
	if title == "" {
		title = item.URL
	}
	return []domain.Finding{newFinding(src, item, title, body)}, nil
}
