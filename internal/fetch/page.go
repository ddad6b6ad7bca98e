package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gocolly/colly"

	"kbingest/internal/domain"
)

const defaultMaxPages = 20

// PageFetcher crawls documentation pages, optionally following links that
// match a configured pattern up to a depth and page cap.
type PageFetcher struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewPageFetcher builds a crawler-backed fetcher with the given per-request timeout.
func NewPageFetcher(timeout time.Duration, logger *slog.Logger) *PageFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PageFetcher{timeout: timeout, logger: logger}
}

func (p *PageFetcher) Type() domain.SourceType { return domain.TypePage }

// Fetch retrieves the root page and followed pages in traversal order.
// Each page becomes one RawItem carrying its raw HTML.
func (p *PageFetcher) Fetch(ctx context.Context, src domain.SourceConfig, mark domain.Watermark) (*Result, error) {
	var linkPattern *regexp.Regexp
	if src.Fetch.FollowLinks && src.Fetch.LinkPattern != "" {
		var err error
		linkPattern, err = regexp.Compile(src.Fetch.LinkPattern)
		if err != nil {
			return nil, &domain.FetchError{SourceID: src.ID, Err: err}
		}
	}

	maxPages := src.Fetch.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	// Root is depth 1 in colly; each configured level of link-following
	// adds one.
	crawlDepth := 1
	if linkPattern != nil {
		if src.Fetch.MaxDepth > 0 {
			crawlDepth = 1 + src.Fetch.MaxDepth
		} else {
			crawlDepth = 2
		}
	}

	collector := colly.NewCollector(
		colly.MaxDepth(crawlDepth),
		colly.UserAgent(userAgent),
	)
	collector.SetRequestTimeout(p.timeout)

	result := &Result{}
	notModified := false
	var rootErr error
	now := time.Now().UTC()

	collector.OnRequest(func(r *colly.Request) {
		select {
		case <-ctx.Done():
			r.Abort()
			return
		default:
		}
		if r.Depth == 1 {
			if mark.ETag != "" {
				r.Headers.Set("If-None-Match", mark.ETag)
			}
			if mark.LastModified != "" {
				r.Headers.Set("If-Modified-Since", mark.LastModified)
			}
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		if r.Request.Depth == 1 {
			result.ETag = r.Headers.Get("ETag")
			result.LastModified = r.Headers.Get("Last-Modified")
		}
		if len(result.Items) >= maxPages {
			return
		}
		pageURL := r.Request.URL.String()
		result.Items = append(result.Items, domain.RawItem{
			SourceID:   src.ID,
			SourceName: src.Name,
			ItemID:     pageURL,
			URL:        pageURL,
			Payload:    r.Body,
			Metadata:   map[string]string{"depth": strconv.Itoa(r.Request.Depth)},
			FetchedAt:  now,
		})
	})

	if linkPattern != nil {
		collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
			if len(result.Items) >= maxPages {
				return
			}
			href := e.Request.AbsoluteURL(e.Attr("href"))
			if href == "" || !linkPattern.MatchString(href) {
				return
			}
			// Visit errors here are per-link, not fatal to the source.
			if err := e.Request.Visit(href); err == nil {
				p.logger.Debug("followed link", "source", src.ID, "url", href)
			}
		})
	}

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode == http.StatusNotModified {
			notModified = true
			return
		}
		if r != nil && r.Request != nil && r.Request.Depth == 1 {
			rootErr = err
			return
		}
		result.ItemErrors++
	})

	if err := collector.Visit(src.URL); err != nil && !notModified {
		return nil, &domain.FetchError{SourceID: src.ID, Err: err}
	}
	collector.Wait()

	if notModified {
		return &Result{ETag: mark.ETag, LastModified: mark.LastModified, NotModified: true}, nil
	}
	if rootErr != nil {
		return nil, &domain.FetchError{SourceID: src.ID, Err: rootErr}
	}

	p.logger.Debug("pages fetched", "source", src.ID, "pages", len(result.Items), "errors", result.ItemErrors)
	return result, nil
}
