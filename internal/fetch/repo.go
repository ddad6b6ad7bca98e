package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/go-github/v80/github"

	"kbingest/internal/domain"
)

const (
	defaultMaxFiles    = 50
	defaultBranch      = "main"
	defaultFilePattern = "*.py"
	defaultRawBase     = "https://raw.githubusercontent.com"
)

// RepoFetcher lists rule files in a GitHub repository tree and downloads
// each matching file as one item.
type RepoFetcher struct {
	gh      *github.Client
	client  *http.Client
	rawBase string
	logger  *slog.Logger
}

// NewRepoFetcher wires a GitHub API client. apiBase and rawBase override
// the public endpoints, for tests.
func NewRepoFetcher(client *http.Client, apiBase, rawBase string, logger *slog.Logger) (*RepoFetcher, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	gh := github.NewClient(client)
	if apiBase != "" {
		base, err := url.Parse(strings.TrimSuffix(apiBase, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid api base %s: %w", apiBase, err)
		}
		gh.BaseURL = base
	}
	if rawBase == "" {
		rawBase = defaultRawBase
	}
	return &RepoFetcher{gh: gh, client: client, rawBase: rawBase, logger: logger}, nil
}

func (r *RepoFetcher) Type() domain.SourceType { return domain.TypeRuleFile }

// Fetch lists the repository tree, filters blobs under the configured path
// matching the file pattern, and downloads up to max_files of them in
// listing order. A failed file download is skipped, not fatal.
func (r *RepoFetcher) Fetch(ctx context.Context, src domain.SourceConfig, mark domain.Watermark) (*Result, error) {
	owner, repo, err := splitRepoURL(src.URL)
	if err != nil {
		return nil, &domain.FetchError{SourceID: src.ID, Err: err}
	}

	branch := src.Fetch.Branch
	if branch == "" {
		branch = defaultBranch
	}
	pattern := src.Fetch.FilePattern
	if pattern == "" {
		pattern = defaultFilePattern
	}
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return nil, &domain.FetchError{SourceID: src.ID, Err: fmt.Errorf("file pattern %q: %w", pattern, err)}
	}

	tree, resp, err := r.gh.Git.GetTree(ctx, owner, repo, branch, true)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, &domain.FetchError{SourceID: src.ID, StatusCode: status, Err: err}
	}

	// The tree SHA acts as the watermark: an unchanged tree means an
	// unchanged rule set.
	if mark.ETag != "" && mark.ETag == tree.GetSHA() {
		return &Result{ETag: mark.ETag, LastModified: mark.LastModified, NotModified: true}, nil
	}

	maxFiles := src.Fetch.MaxFiles
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}

	result := &Result{ETag: tree.GetSHA()}
	now := time.Now().UTC()

	for _, entry := range tree.Entries {
		if len(result.Items) >= maxFiles {
			break
		}
		if entry.GetType() != "blob" {
			continue
		}
		filePath := entry.GetPath()
		if src.Fetch.Path != "" && !strings.HasPrefix(filePath, src.Fetch.Path) {
			continue
		}
		if !matcher.Match(path.Base(filePath)) {
			continue
		}

		content, err := r.downloadRaw(ctx, owner, repo, branch, filePath)
		if err != nil {
			r.logger.Warn("skipping file", "source", src.ID, "path", filePath, "error", err)
			result.ItemErrors++
			continue
		}

		result.Items = append(result.Items, domain.RawItem{
			SourceID:   src.ID,
			SourceName: src.Name,
			ItemID:     filePath,
			Title:      path.Base(filePath),
			URL:        fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", owner, repo, branch, filePath),
			Payload:    content,
			Metadata:   map[string]string{"path": filePath},
			FetchedAt:  now,
		})
	}

	r.logger.Debug("repo files fetched", "source", src.ID, "files", len(result.Items), "errors", result.ItemErrors)
	return result, nil
}

func (r *RepoFetcher) downloadRaw(ctx context.Context, owner, repo, branch, filePath string) ([]byte, error) {
	rawURL := fmt.Sprintf("%s/%s/%s/%s/%s", r.rawBase, owner, repo, branch, filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("raw content returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func splitRepoURL(repoURL string) (owner, repo string, err error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid repository url %s: %w", repoURL, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository url %s must be host/owner/repo", repoURL)
	}
	return parts[0], parts[1], nil
}
