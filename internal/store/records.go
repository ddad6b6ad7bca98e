// Package store owns the durable data layout: the authoritative by-service
// record files, the staging area, the pipeline state file, and the run
// history database.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// serviceFile is the per-service collection document. The count field is
// kept equal to len(Misconfigurations) on every write.
type serviceFile struct {
	Service           string           `json:"service"`
	Count             int              `json:"count"`
	Misconfigurations []map[string]any `json:"misconfigurations"`
}

// RecordStore reads and appends the authoritative recommendation files
// under the by-service directory.
type RecordStore struct {
	dir string
}

// NewRecordStore points the store at the by-service directory.
func NewRecordStore(dir string) *RecordStore {
	return &RecordStore{dir: dir}
}

// LoadAll returns every recommendation across all service files, in sorted
// file order. An absent directory is an empty knowledge base, not an error.
func (s *RecordStore) LoadAll() ([]map[string]any, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob service files: %w", err)
	}
	sort.Strings(paths)

	var records []map[string]any
	for _, path := range paths {
		sf, err := readServiceFile(path)
		if err != nil {
			return nil, err
		}
		records = append(records, sf.Misconfigurations...)
	}
	return records, nil
}

// ContainsID reports whether any service file already holds a
// recommendation with the given id.
func (s *RecordStore) ContainsID(id string) (bool, error) {
	records, err := s.LoadAll()
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if recID, _ := rec["id"].(string); recID == id {
			return true, nil
		}
	}
	return false, nil
}

// Append adds one recommendation to its service file, creating the file if
// the service is new. The write is atomic (temp file + rename) and the
// count invariant is re-established before writing. A duplicate id is
// rejected without touching the file.
func (s *RecordStore) Append(record map[string]any) error {
	service, _ := record["service_name"].(string)
	service = strings.ToLower(strings.TrimSpace(service))
	if service == "" {
		return fmt.Errorf("recommendation has no service_name")
	}
	id, _ := record["id"].(string)
	if id == "" {
		return fmt.Errorf("recommendation has no id")
	}

	path := filepath.Join(s.dir, service+".json")
	sf := serviceFile{Service: service}
	if _, err := os.Stat(path); err == nil {
		loaded, err := readServiceFile(path)
		if err != nil {
			return err
		}
		sf = loaded
	}

	for _, existing := range sf.Misconfigurations {
		if existingID, _ := existing["id"].(string); existingID == id {
			return fmt.Errorf("record %s already in %s.json", id, service)
		}
	}

	sf.Misconfigurations = append(sf.Misconfigurations, record)
	sf.Count = len(sf.Misconfigurations)

	return writeFileAtomic(path, sf)
}

// RecordText builds the comparable text a recommendation contributes to the
// dedup corpus.
func RecordText(record map[string]any) string {
	fields := []string{"scenario", "alert_criteria", "recommendation_action", "recommendation_description_detailed"}
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		if v, _ := record[field].(string); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func readServiceFile(path string) (serviceFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return serviceFile{}, fmt.Errorf("read service file %s: %w", path, err)
	}
	var sf serviceFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return serviceFile{}, fmt.Errorf("parse service file %s: %w", path, err)
	}
	return sf, nil
}

// writeFileAtomic marshals v and replaces path via a temp file in the same
// directory, so readers never observe a partial document.
func writeFileAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	raw = append(raw, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
