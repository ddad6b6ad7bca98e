package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// SourceType discriminates fetcher/parser implementations.
type SourceType string

const (
	TypeFeed     SourceType = "feed"
	TypePage     SourceType = "document-page"
	TypeRuleFile SourceType = "repository-rule-file"
)

// ValidSourceType reports whether t is one of the known source types.
func ValidSourceType(t SourceType) bool {
	switch t {
	case TypeFeed, TypePage, TypeRuleFile:
		return true
	}
	return false
}

// FetchConfig carries type-specific fetch options from the source registry.
type FetchConfig struct {
	MaxItems    int    `json:"max_items,omitempty"`
	FollowLinks bool   `json:"follow_links,omitempty"`
	LinkPattern string `json:"link_pattern,omitempty"`
	MaxPages    int    `json:"max_pages,omitempty"`
	MaxDepth    int    `json:"max_depth,omitempty"`
	Branch      string `json:"branch,omitempty"`
	Path        string `json:"path,omitempty"`
	FilePattern string `json:"file_pattern,omitempty"`
	MaxFiles    int    `json:"max_files,omitempty"`
}

// ParseConfig carries optional CSS selectors for structured page extraction.
type ParseConfig struct {
	ItemSelector  string `json:"item_selector,omitempty"`
	TitleSelector string `json:"title_selector,omitempty"`
	BodySelector  string `json:"body_selector,omitempty"`
}

// SourceConfig describes one configured source. Owned by the external
// registry; never mutated by the pipeline.
type SourceConfig struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Type       SourceType  `json:"type"`
	URL        string      `json:"url"`
	Categories []string    `json:"categories"`
	Enabled    bool        `json:"enabled"`
	Fetch      FetchConfig `json:"fetch"`
	Parse      ParseConfig `json:"parse"`
}

// Watermark marks how far ingestion progressed for a source.
type Watermark struct {
	ETag         string
	LastModified string
}

// RawItem is one fetched item before normalization. Consumed once by the
// matching parser; referenced in the run report only on error.
type RawItem struct {
	SourceID   string
	SourceName string
	ItemID     string
	Title      string
	URL        string
	Payload    []byte
	Published  string
	Metadata   map[string]string
	FetchedAt  time.Time
}

// Finding is the normalized unit deduplication and conversion operate on.
type Finding struct {
	SourceID   string
	SourceName string
	Title      string
	Body       string
	URL        string
	Categories []string
	Published  string
}

// ContentHash returns the sha256 of the normalized title|body pair.
func (f Finding) ContentHash() string {
	normalized := strings.ToLower(strings.TrimSpace(f.Title)) + "|" + strings.ToLower(strings.TrimSpace(f.Body))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Decision classifies a finding relative to existing knowledge.
type Decision string

const (
	DecisionNovel     Decision = "novel"
	DecisionDuplicate Decision = "duplicate"
)

// DedupResult is the novelty classification of one finding.
type DedupResult struct {
	Finding         Finding
	Decision        Decision
	Score           float64
	MatchedID       string
	MatchedScenario string
}

// StagingStatus tracks a candidate through human review. Transitions only
// pending -> promoted or pending -> rejected.
type StagingStatus string

const (
	StatusPending  StagingStatus = "pending"
	StatusPromoted StagingStatus = "promoted"
	StatusRejected StagingStatus = "rejected"
)

// Candidate is a schema-shaped recommendation plus staging provenance.
// The recommendation payload shape is owned by the external schema.
type Candidate struct {
	StagedAt        string         `json:"staged_at"`
	StagedBy        string         `json:"staged_by"`
	SourceID        string         `json:"source_id"`
	SourceURL       string         `json:"source_url"`
	DedupScore      float64        `json:"dedup_score"`
	MatchedID       string         `json:"matched_id,omitempty"`
	MatchedScenario string         `json:"matched_scenario,omitempty"`
	Status          StagingStatus  `json:"status"`
	Recommendation  map[string]any `json:"recommendation"`
}

// ID returns the recommendation identifier, or "" if absent.
func (c Candidate) ID() string {
	id, _ := c.Recommendation["id"].(string)
	return id
}

// Service returns the lowercase AWS service the recommendation targets.
func (c Candidate) Service() string {
	s, _ := c.Recommendation["service_name"].(string)
	return strings.ToLower(s)
}

// SourceState is the durable per-source watermark and failure counters.
type SourceState struct {
	LastFetchedAt     string            `json:"last_fetched_at,omitempty"`
	ETag              string            `json:"etag,omitempty"`
	LastModified      string            `json:"last_modified,omitempty"`
	ContentHashes     map[string]string `json:"content_hashes"`
	ConsecutiveEmpty  int               `json:"consecutive_empty"`
	ConsecutiveErrors int               `json:"consecutive_errors"`
}

// SourceOutcome holds per-source counts for one run.
type SourceOutcome struct {
	SourceID         string `json:"source_id"`
	Fetched          int    `json:"fetched"`
	ItemErrors       int    `json:"item_errors,omitempty"`
	FilteredSeen     int    `json:"filtered_seen"`
	FilteredDup      int    `json:"filtered_dedup"`
	Novel            int    `json:"novel"`
	Converted        int    `json:"converted"`
	ConvertFailed    int    `json:"convert_failed"`
	ConvertSkipped   int    `json:"convert_skipped"`
	Validated        int    `json:"validated"`
	ValidationFailed int    `json:"validation_failed"`
	Staged           int    `json:"staged"`
	NotModified      bool   `json:"not_modified,omitempty"`
	Error            string `json:"error,omitempty"`
}

// RunRecord is one pipeline invocation's report. Append-only history.
type RunRecord struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Mode       string          `json:"mode"`
	Sources    []SourceOutcome `json:"sources"`
	Errors     []string        `json:"errors,omitempty"`
}

// Totals aggregates the per-source outcomes.
type Totals struct {
	SourcesProcessed int
	SourcesErrored   int
	Fetched          int
	Novel            int
	Staged           int
}

// Totals computes the global summary for the run.
func (r RunRecord) Totals() Totals {
	var t Totals
	for _, s := range r.Sources {
		if s.Error != "" {
			t.SourcesErrored++
		} else {
			t.SourcesProcessed++
		}
		t.Fetched += s.Fetched
		t.Novel += s.Novel
		t.Staged += s.Staged
	}
	return t
}
