package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"kbingest/internal/domain"
)

const (
	stateVersion       = "1.0.0"
	maxHashesPerSource = 10000
)

// pipelineState is the state.json document.
type pipelineState struct {
	Version string                         `json:"version"`
	Sources map[string]*domain.SourceState `json:"sources"`
}

// StateStore persists per-source watermarks and seen-content hashes. All
// mutation happens in memory; Save writes the whole document atomically.
type StateStore struct {
	path  string
	state pipelineState
}

// LoadState reads state.json. An absent file yields empty state; a file
// that exists but cannot be parsed returns domain.ErrStateCorrupt so the
// caller aborts instead of re-ingesting the world.
func LoadState(path string) (*StateStore, error) {
	s := &StateStore{
		path: path,
		state: pipelineState{
			Version: stateVersion,
			Sources: map[string]*domain.SourceState{},
		},
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", path, err)
	}

	var loaded pipelineState
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrStateCorrupt, path, err)
	}
	if loaded.Sources == nil {
		return nil, fmt.Errorf("%w: %s: missing sources", domain.ErrStateCorrupt, path)
	}

	for id, src := range loaded.Sources {
		if src.ContentHashes == nil {
			loaded.Sources[id].ContentHashes = map[string]string{}
		}
	}
	if loaded.Version == "" {
		loaded.Version = stateVersion
	}
	s.state = loaded
	return s, nil
}

// Save writes the state document atomically.
func (s *StateStore) Save() error {
	return writeFileAtomic(s.path, s.state)
}

// Source returns the state for one source, creating empty state on first use.
func (s *StateStore) Source(id string) *domain.SourceState {
	if src, ok := s.state.Sources[id]; ok {
		return src
	}
	src := &domain.SourceState{ContentHashes: map[string]string{}}
	s.state.Sources[id] = src
	return src
}

// Sources returns the full per-source state map for health inspection.
func (s *StateStore) Sources() map[string]*domain.SourceState {
	return s.state.Sources
}

// Watermark returns the stored conditional-request watermark for a source.
func (s *StateStore) Watermark(id string) domain.Watermark {
	src := s.Source(id)
	return domain.Watermark{ETag: src.ETag, LastModified: src.LastModified}
}

// IsSeen reports whether the content hash was already ingested for the source.
func (s *StateStore) IsSeen(sourceID, hash string) bool {
	_, seen := s.Source(sourceID).ContentHashes[hash]
	return seen
}

// MarkSeen records a content hash, pruning the oldest entries past the
// per-source cap.
func (s *StateStore) MarkSeen(sourceID, hash string) {
	hashes := s.Source(sourceID).ContentHashes
	hashes[hash] = time.Now().UTC().Format(time.RFC3339)

	if len(hashes) <= maxHashesPerSource {
		return
	}

	type entry struct{ hash, seenAt string }
	entries := make([]entry, 0, len(hashes))
	for h, at := range hashes {
		entries = append(entries, entry{h, at})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].seenAt != entries[j].seenAt {
			return entries[i].seenAt < entries[j].seenAt
		}
		return entries[i].hash < entries[j].hash
	})
	for _, e := range entries[:len(hashes)-maxHashesPerSource] {
		delete(hashes, e.hash)
	}
}

// UpdateAfterFetch records the outcome of one fetch attempt: watermark
// advance on success, and the consecutive empty/error counters the health
// checks read.
func (s *StateStore) UpdateAfterFetch(sourceID, etag, lastModified string, itemCount int, fetchErr error) {
	src := s.Source(sourceID)
	src.LastFetchedAt = time.Now().UTC().Format(time.RFC3339)

	if etag != "" {
		src.ETag = etag
	}
	if lastModified != "" {
		src.LastModified = lastModified
	}

	if fetchErr != nil {
		src.ConsecutiveErrors++
	} else {
		src.ConsecutiveErrors = 0
	}

	if itemCount == 0 && fetchErr == nil {
		src.ConsecutiveEmpty++
	} else {
		src.ConsecutiveEmpty = 0
	}
}
