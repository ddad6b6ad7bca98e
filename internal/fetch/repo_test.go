package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbingest/internal/domain"
)

func repoSource(url string) domain.SourceConfig {
	return domain.SourceConfig{
		ID:         "prowler-checks",
		Name:       "Prowler EC2 checks",
		Type:       domain.TypeRuleFile,
		URL:        url,
		Categories: []string{"security"},
		Enabled:    true,
		Fetch: domain.FetchConfig{
			Path:        "checks/ec2",
			FilePattern: "*.py",
		},
	}
}

const treeJSON = `{
  "sha": "tree-sha-1",
  "tree": [
    {"path": "README.md", "type": "blob"},
    {"path": "checks/ec2", "type": "tree"},
    {"path": "checks/ec2/ebs_encryption.py", "type": "blob"},
    {"path": "checks/ec2/ebs_encryption.yaml", "type": "blob"},
    {"path": "checks/s3/public_access.py", "type": "blob"}
  ]
}`

func repoTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/checks/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, treeJSON)
	})
	mux.HandleFunc("/acme/checks/main/checks/ec2/ebs_encryption.py", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `Description = "Ensure EBS encryption is on"`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRepoFetcherFiltersTree(t *testing.T) {
	t.Parallel()

	server := repoTestServer(t)
	f, err := NewRepoFetcher(server.Client(), server.URL, server.URL, testLogger())
	require.NoError(t, err)

	src := repoSource("https://github.com/acme/checks")
	result, err := f.Fetch(context.Background(), src, domain.Watermark{})
	require.NoError(t, err)

	// Only the .py blob under checks/ec2 survives path and pattern filters.
	require.Len(t, result.Items, 1)
	item := result.Items[0]
	assert.Equal(t, "checks/ec2/ebs_encryption.py", item.ItemID)
	assert.Equal(t, "ebs_encryption.py", item.Title)
	assert.Contains(t, string(item.Payload), "EBS encryption")
	assert.Equal(t, "checks/ec2/ebs_encryption.py", item.Metadata["path"])
	assert.Equal(t, "tree-sha-1", result.ETag)
}

func TestRepoFetcherTreeShaWatermark(t *testing.T) {
	t.Parallel()

	server := repoTestServer(t)
	f, err := NewRepoFetcher(server.Client(), server.URL, server.URL, testLogger())
	require.NoError(t, err)

	src := repoSource("https://github.com/acme/checks")
	result, err := f.Fetch(context.Background(), src, domain.Watermark{ETag: "tree-sha-1"})
	require.NoError(t, err)

	assert.True(t, result.NotModified)
	assert.Empty(t, result.Items)
}

func TestRepoFetcherDownloadFailureSkipsFile(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/checks/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, treeJSON)
	})
	// No raw file handler registered: download 404s.
	server := httptest.NewServer(mux)
	defer server.Close()

	f, err := NewRepoFetcher(server.Client(), server.URL, server.URL, testLogger())
	require.NoError(t, err)

	result, err := f.Fetch(context.Background(), repoSource("https://github.com/acme/checks"), domain.Watermark{})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, 1, result.ItemErrors)
}

func TestSplitRepoURL(t *testing.T) {
	t.Parallel()

	owner, repo, err := splitRepoURL("https://github.com/prowler-cloud/prowler")
	require.NoError(t, err)
	assert.Equal(t, "prowler-cloud", owner)
	assert.Equal(t, "prowler", repo)

	_, _, err = splitRepoURL("https://github.com/justowner")
	assert.Error(t, err)
}
