package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbingest/internal/domain"
)

func pageSource(url string) domain.SourceConfig {
	return domain.SourceConfig{
		ID:         "docs",
		Name:       "AWS Docs",
		Type:       domain.TypePage,
		URL:        url,
		Categories: []string{"operations"},
		Enabled:    true,
	}
}

func TestPageFetcherSinglePage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"page-v1"`)
		fmt.Fprint(w, `<html><body><h2>Tag everything</h2><p>Resources without tags cannot be attributed.</p></body></html>`)
	}))
	defer server.Close()

	f := NewPageFetcher(5*time.Second, testLogger())
	result, err := f.Fetch(context.Background(), pageSource(server.URL), domain.Watermark{})
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, `"page-v1"`, result.ETag)
	assert.Contains(t, string(result.Items[0].Payload), "Tag everything")
	assert.Equal(t, "1", result.Items[0].Metadata["depth"])
}

func TestPageFetcherFollowsMatchingLinks(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/guide/ec2">EC2 guide</a>
			<a href="/pricing">Pricing</a>
		</body></html>`)
	})
	mux.HandleFunc("/guide/ec2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h2>Stop idle instances</h2></body></html>`)
	})
	mux.HandleFunc("/pricing", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>prices</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	src := pageSource(server.URL)
	src.Fetch.FollowLinks = true
	src.Fetch.LinkPattern = `/guide/`

	f := NewPageFetcher(5*time.Second, testLogger())
	result, err := f.Fetch(context.Background(), src, domain.Watermark{})
	require.NoError(t, err)

	require.Len(t, result.Items, 2)
	urls := []string{result.Items[0].URL, result.Items[1].URL}
	assert.Contains(t, urls, server.URL)
	assert.Contains(t, urls, server.URL+"/guide/ec2")
}

func TestPageFetcherNotModified(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"page-v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		fmt.Fprint(w, "<html><body>fresh</body></html>")
	}))
	defer server.Close()

	f := NewPageFetcher(5*time.Second, testLogger())
	result, err := f.Fetch(context.Background(), pageSource(server.URL), domain.Watermark{ETag: `"page-v1"`})
	require.NoError(t, err)

	assert.True(t, result.NotModified)
	assert.Empty(t, result.Items)
}

func TestPageFetcherRootError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	f := NewPageFetcher(5*time.Second, testLogger())
	_, err := f.Fetch(context.Background(), pageSource(server.URL), domain.Watermark{})

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "docs", fetchErr.SourceID)
}
