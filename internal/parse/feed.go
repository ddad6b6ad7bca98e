package parse

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"kbingest/internal/domain"
)

// FeedParser strips the HTML markup of feed entry bodies down to plain text.
type FeedParser struct{}

// NewFeedParser builds the feed entry parser.
func NewFeedParser() *FeedParser { return &FeedParser{} }

func (p *FeedParser) Type() domain.SourceType { return domain.TypeFeed }

// Parse yields at most one finding per entry; entries with no usable body
// are silently dropped, not errors.
func (p *FeedParser) Parse(src domain.SourceConfig, item domain.RawItem) ([]domain.Finding, error) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil, fmt.Errorf("feed entry %s has no title", item.ItemID)
	}

	body, err := htmlToText(string(item.Payload))
	if err != nil {
		return nil, fmt.Errorf("strip entry markup: %w", err)
	}
	if len(body) < minBodyLen {
		return nil, nil
	}

	return []domain.Finding{newFinding(src, item, title, body)}, nil
}

func htmlToText(fragment string) (string, error) {
	if strings.TrimSpace(fragment) == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}
	doc.Find("script, style").Remove()
	return collapseWhitespace(doc.Text()), nil
}
