package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for business-level failures, distinct from transport
// errors which are wrapped per source in the run report.
var (
	// ErrNotFound indicates a staged candidate does not exist or was
	// already resolved.
	ErrNotFound = errors.New("not found")

	// ErrStagingConflict indicates an identifier already exists in staging
	// or in the authoritative store.
	ErrStagingConflict = errors.New("staging conflict")

	// ErrRejectReasonRequired indicates reject was called without a reason.
	ErrRejectReasonRequired = errors.New("rejection reason required")

	// ErrStateCorrupt indicates the state file exists but cannot be parsed.
	// The run aborts rather than silently resetting watermarks.
	ErrStateCorrupt = errors.New("state file corrupt")

	// ErrUnsupportedSourceType indicates no fetcher or parser is registered
	// for a source's type.
	ErrUnsupportedSourceType = errors.New("unsupported source type")

	// ErrConversionSkipped indicates the generation service declined the
	// item as not an AWS recommendation.
	ErrConversionSkipped = errors.New("conversion skipped by service")
)

// FetchError is a whole-source transport or auth failure. The source is
// skipped; the run continues.
type FetchError struct {
	SourceID   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.SourceID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.SourceID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError carries the schema violation list for a dropped candidate.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema validation failed: %d violation(s)", len(e.Violations))
}
