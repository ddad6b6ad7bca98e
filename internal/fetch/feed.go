package fetch

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"kbingest/internal/domain"
)

const defaultMaxItems = 50

// FeedFetcher retrieves RSS/Atom feeds with conditional requests.
type FeedFetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewFeedFetcher wires an HTTP client; a nil client gets a 30s timeout default.
func NewFeedFetcher(client *http.Client, logger *slog.Logger) *FeedFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &FeedFetcher{client: client, logger: logger}
}

func (f *FeedFetcher) Type() domain.SourceType { return domain.TypeFeed }

// Fetch retrieves the feed and emits one RawItem per entry, chronological
// feed order. A malformed entry is skipped and counted, never fatal.
func (f *FeedFetcher) Fetch(ctx context.Context, src domain.SourceConfig, mark domain.Watermark) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, &domain.FetchError{SourceID: src.ID, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	if mark.ETag != "" {
		req.Header.Set("If-None-Match", mark.ETag)
	}
	if mark.LastModified != "" {
		req.Header.Set("If-Modified-Since", mark.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{SourceID: src.ID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{ETag: mark.ETag, LastModified: mark.LastModified, NotModified: true}, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &domain.FetchError{
			SourceID:   src.ID,
			StatusCode: resp.StatusCode,
			Err:        errStatus(resp.Status),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.FetchError{SourceID: src.ID, Err: err}
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &domain.FetchError{SourceID: src.ID, Err: err}
	}

	maxItems := src.Fetch.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}

	result := &Result{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	now := time.Now().UTC()

	for _, entry := range feed.Items {
		if len(result.Items) >= maxItems {
			break
		}
		if entry == nil || entry.Title == "" {
			result.ItemErrors++
			continue
		}

		payload := entry.Content
		if payload == "" {
			payload = entry.Description
		}

		itemID := entry.GUID
		if itemID == "" {
			itemID = entry.Link
		}

		published := ""
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC().Format(time.RFC3339)
		}

		result.Items = append(result.Items, domain.RawItem{
			SourceID:   src.ID,
			SourceName: src.Name,
			ItemID:     itemID,
			Title:      entry.Title,
			URL:        entry.Link,
			Payload:    []byte(payload),
			Published:  published,
			Metadata:   feedMetadata(entry),
			FetchedAt:  now,
		})
	}

	f.logger.Debug("feed fetched", "source", src.ID, "entries", len(feed.Items), "items", len(result.Items))
	return result, nil
}

func feedMetadata(entry *gofeed.Item) map[string]string {
	md := map[string]string{}
	if len(entry.Categories) > 0 {
		md["tags"] = entry.Categories[0]
	}
	if entry.Author != nil {
		md["author"] = entry.Author.Name
	}
	return md
}

type errStatus string

func (e errStatus) Error() string { return "unexpected status " + string(e) }
