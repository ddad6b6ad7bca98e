// Package ports declares the driven interfaces the orchestrator depends
// on, so adapters can be swapped for fakes in tests.
package ports

import (
	"context"

	"kbingest/internal/domain"
)

// Converter structures a finding into a schema-shaped recommendation.
// Returns domain.ErrConversionSkipped when the service declines the item.
type Converter interface {
	Convert(ctx context.Context, finding domain.Finding) (map[string]any, error)
}

// Validator checks a recommendation against the schema contract, returning
// *domain.ValidationError on violations.
type Validator interface {
	Validate(record map[string]any) error
}

// RecordReader exposes the authoritative knowledge base for corpus seeding.
type RecordReader interface {
	LoadAll() ([]map[string]any, error)
}

// CandidateStager accepts validated candidates for human review.
type CandidateStager interface {
	Stage(c domain.Candidate) error
}

// RunHistory records run reports and answers rejection lookups.
type RunHistory interface {
	RecordRun(ctx context.Context, run domain.RunRecord) error
	WasRejected(ctx context.Context, id string) (bool, error)
}
