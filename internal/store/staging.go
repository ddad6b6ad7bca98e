package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kbingest/internal/domain"
)

// Staging holds candidate recommendations awaiting human review, one JSON
// file per candidate named by recommendation id.
type Staging struct {
	dir     string
	records *RecordStore
	logger  *slog.Logger
}

// NewStaging points the staging area at dir. records is the authoritative
// store consulted for id conflicts and promotion targets.
func NewStaging(dir string, records *RecordStore, logger *slog.Logger) *Staging {
	return &Staging{dir: dir, records: records, logger: logger}
}

func (s *Staging) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Stage writes a pending candidate. An id already present in staging or in
// the authoritative store is a conflict.
func (s *Staging) Stage(c domain.Candidate) error {
	id := c.ID()
	if id == "" {
		return fmt.Errorf("candidate has no recommendation id")
	}
	if _, err := os.Stat(s.path(id)); err == nil {
		return fmt.Errorf("stage %s: %w", id, domain.ErrStagingConflict)
	}
	exists, err := s.records.ContainsID(id)
	if err != nil {
		return fmt.Errorf("stage %s: %w", id, err)
	}
	if exists {
		return fmt.Errorf("stage %s: id already in knowledge base: %w", id, domain.ErrStagingConflict)
	}
	c.Status = domain.StatusPending
	return writeFileAtomic(s.path(id), c)
}

// Get loads one staged candidate by id.
func (s *Staging) Get(id string) (domain.Candidate, error) {
	raw, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Candidate{}, fmt.Errorf("staged %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("read staged %s: %w", id, err)
	}
	var c domain.Candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Candidate{}, fmt.Errorf("parse staged %s: %w", id, err)
	}
	return c, nil
}

// List returns all staged candidates in sorted file order. Unreadable files
// are logged and skipped so one broken file cannot hide the rest.
func (s *Staging) List() ([]domain.Candidate, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob staging: %w", err)
	}
	sort.Strings(paths)

	candidates := make([]domain.Candidate, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("cannot read staged file", "path", path, "error", err)
			continue
		}
		var c domain.Candidate
		if err := json.Unmarshal(raw, &c); err != nil {
			s.logger.Warn("cannot parse staged file", "path", path, "error", err)
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// Count returns the number of staged candidates.
func (s *Staging) Count() (int, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("glob staging: %w", err)
	}
	return len(paths), nil
}

// Promote moves a staged candidate into the authoritative store: the bare
// recommendation (envelope stripped) is appended to its service file, then
// the staged file is removed. Returns the target service.
func (s *Staging) Promote(id string) (string, error) {
	c, err := s.Get(id)
	if err != nil {
		return "", err
	}
	service := c.Service()
	if service == "" {
		return "", fmt.Errorf("promote %s: recommendation has no service_name", id)
	}

	if err := s.records.Append(c.Recommendation); err != nil {
		return "", fmt.Errorf("promote %s: %w", id, err)
	}
	if err := os.Remove(s.path(id)); err != nil {
		return "", fmt.Errorf("promote %s: remove staged file: %w", id, err)
	}

	s.logger.Info("promoted candidate", "id", id, "service", service)
	return service, nil
}

// Reject removes a staged candidate. A reason is mandatory so the rejection
// audit is never empty; the removed candidate is returned for recording.
func (s *Staging) Reject(id, reason string) (domain.Candidate, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.Candidate{}, domain.ErrRejectReasonRequired
	}
	c, err := s.Get(id)
	if err != nil {
		return domain.Candidate{}, err
	}
	if err := os.Remove(s.path(id)); err != nil {
		return domain.Candidate{}, fmt.Errorf("reject %s: remove staged file: %w", id, err)
	}

	s.logger.Info("rejected candidate", "id", id, "reason", reason)
	return c, nil
}
