// Package health inspects the durable pipeline surfaces (state, staging,
// run history) and reports per-check results for the operator.
package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"kbingest/internal/config"
	"kbingest/internal/domain"
	"kbingest/internal/source"
	"kbingest/internal/store"
)

// Severity orders check outcomes from informational to fatal.
type Severity string

const (
	SeverityOK       Severity = "OK"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// CheckResult is one health finding.
type CheckResult struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// CheckNames lists the selectable checks in report order.
var CheckNames = []string{"sources", "errors", "stale", "staging", "state", "quality"}

// Reporter runs health checks against the configured data layout.
type Reporter struct {
	cfg       config.HealthConfig
	statePath string
	registry  *source.Registry
	staging   *store.Staging
	history   *store.History
	now       func() time.Time
}

// NewReporter wires a reporter over the live stores.
func NewReporter(cfg config.HealthConfig, statePath string, registry *source.Registry, staging *store.Staging, history *store.History) *Reporter {
	return &Reporter{
		cfg:       cfg,
		statePath: statePath,
		registry:  registry,
		staging:   staging,
		history:   history,
		now:       time.Now,
	}
}

// Run executes the named checks (all when names is empty) and returns their
// results. A check that itself fails reports as ERROR rather than aborting
// the report.
func (r *Reporter) Run(ctx context.Context, names []string) []CheckResult {
	state, stateResult := r.loadState()

	checks := map[string]func(context.Context) []CheckResult{
		"sources": func(context.Context) []CheckResult { return r.checkEmptyYields(state) },
		"errors":  func(context.Context) []CheckResult { return r.checkFetchErrors(state) },
		"stale":   func(context.Context) []CheckResult { return r.checkStaleSources(state) },
		"staging": func(context.Context) []CheckResult { return r.checkStagingOverflow() },
		"state":   func(context.Context) []CheckResult { return []CheckResult{stateResult} },
		"quality": r.checkRunQuality,
	}

	if len(names) == 0 {
		names = CheckNames
	}

	var results []CheckResult
	for _, name := range names {
		check, ok := checks[name]
		if !ok {
			results = append(results, CheckResult{
				Check:    name,
				Severity: SeverityError,
				Message:  fmt.Sprintf("unknown health check %q", name),
			})
			continue
		}
		results = append(results, check(ctx)...)
	}
	return results
}

// Failing reports whether any result is worse than OK.
func Failing(results []CheckResult) bool {
	for _, res := range results {
		if res.Severity != SeverityOK {
			return true
		}
	}
	return false
}

// loadState distinguishes a corrupt state file (CRITICAL) from an absent
// one (OK, created on first run).
func (r *Reporter) loadState() (*store.StateStore, CheckResult) {
	state, err := store.LoadState(r.statePath)
	switch {
	case err == nil:
		return state, CheckResult{Check: "state_corruption", Severity: SeverityOK, Message: "state file is valid"}
	case errors.Is(err, domain.ErrStateCorrupt):
		return nil, CheckResult{Check: "state_corruption", Severity: SeverityCritical, Message: err.Error()}
	default:
		return nil, CheckResult{Check: "state_corruption", Severity: SeverityError, Message: fmt.Sprintf("cannot read state file: %v", err)}
	}
}

func (r *Reporter) checkEmptyYields(state *store.StateStore) []CheckResult {
	if state == nil {
		return nil
	}
	var results []CheckResult
	for _, id := range sortedSourceIDs(state) {
		empty := state.Sources()[id].ConsecutiveEmpty
		res := CheckResult{Check: "source_yields_zero", Severity: SeverityOK,
			Message: fmt.Sprintf("source %q: consecutive empty = %d", id, empty)}
		if empty >= r.cfg.ConsecutiveEmpty {
			res.Severity = SeverityWarning
			res.Message = fmt.Sprintf("source %q returned 0 items for %d consecutive runs", id, empty)
		}
		results = append(results, res)
	}
	return results
}

func (r *Reporter) checkFetchErrors(state *store.StateStore) []CheckResult {
	if state == nil {
		return nil
	}
	var results []CheckResult
	for _, id := range sortedSourceIDs(state) {
		errCount := state.Sources()[id].ConsecutiveErrors
		res := CheckResult{Check: "fetch_errors", Severity: SeverityOK,
			Message: fmt.Sprintf("source %q: consecutive errors = %d", id, errCount)}
		if errCount >= r.cfg.ConsecutiveErrors {
			res.Severity = SeverityError
			res.Message = fmt.Sprintf("source %q had %d consecutive fetch errors", id, errCount)
		}
		results = append(results, res)
	}
	return results
}

func (r *Reporter) checkStaleSources(state *store.StateStore) []CheckResult {
	if state == nil {
		return nil
	}
	now := r.now().UTC()
	var results []CheckResult
	for _, src := range r.registry.Sources {
		if !src.Enabled {
			continue
		}

		lastFetched := state.Source(src.ID).LastFetchedAt
		if lastFetched == "" {
			results = append(results, CheckResult{Check: "stale_source", Severity: SeverityWarning,
				Message: fmt.Sprintf("source %q has never been fetched", src.ID)})
			continue
		}

		fetchedAt, err := time.Parse(time.RFC3339, lastFetched)
		switch {
		case err != nil:
			results = append(results, CheckResult{Check: "stale_source", Severity: SeverityWarning,
				Message: fmt.Sprintf("source %q has invalid last_fetched_at %q", src.ID, lastFetched)})
		case now.Sub(fetchedAt) > r.cfg.StaleAfter:
			results = append(results, CheckResult{Check: "stale_source", Severity: SeverityWarning,
				Message: fmt.Sprintf("source %q last fetched %d days ago", src.ID, int(now.Sub(fetchedAt).Hours()/24))})
		default:
			results = append(results, CheckResult{Check: "stale_source", Severity: SeverityOK,
				Message: fmt.Sprintf("source %q fetched recently", src.ID)})
		}
	}
	return results
}

func (r *Reporter) checkStagingOverflow() []CheckResult {
	count, err := r.staging.Count()
	if err != nil {
		return []CheckResult{{Check: "staging_overflow", Severity: SeverityError,
			Message: fmt.Sprintf("cannot count staging: %v", err)}}
	}
	if count >= r.cfg.StagingOverflow {
		return []CheckResult{{Check: "staging_overflow", Severity: SeverityWarning,
			Message: fmt.Sprintf("staging has %d unreviewed candidates (threshold %d)", count, r.cfg.StagingOverflow)}}
	}
	return []CheckResult{{Check: "staging_overflow", Severity: SeverityOK,
		Message: fmt.Sprintf("staging has %d candidates", count)}}
}

// checkRunQuality flags a weak last run: conversion success below half, or
// schema validation failures above one in ten.
func (r *Reporter) checkRunQuality(ctx context.Context) []CheckResult {
	lastRun, err := r.history.LastRun(ctx)
	if err != nil {
		return []CheckResult{{Check: "run_quality", Severity: SeverityError,
			Message: fmt.Sprintf("cannot read run history: %v", err)}}
	}
	if lastRun == nil {
		return []CheckResult{{Check: "run_quality", Severity: SeverityOK, Message: "no runs recorded yet"}}
	}

	var converted, convertFailed, validated, validationFailed int
	for _, src := range lastRun.Sources {
		converted += src.Converted
		convertFailed += src.ConvertFailed
		validated += src.Validated
		validationFailed += src.ValidationFailed
	}

	var results []CheckResult
	if total := converted + convertFailed; total > 0 {
		if rate := float64(converted) / float64(total); rate < 0.50 {
			results = append(results, CheckResult{Check: "low_conversion_rate", Severity: SeverityWarning,
				Message: fmt.Sprintf("conversion rate was %.0f%% in last run (%d/%d)", rate*100, converted, total)})
		}
	}
	if total := validated + validationFailed; total > 0 {
		if rate := float64(validationFailed) / float64(total); rate > 0.10 {
			results = append(results, CheckResult{Check: "schema_failures", Severity: SeverityError,
				Message: fmt.Sprintf("schema validation failure rate %.0f%% in last run", rate*100)})
		}
	}
	if len(results) == 0 {
		results = append(results, CheckResult{Check: "run_quality", Severity: SeverityOK,
			Message: "last run quality is acceptable"})
	}
	return results
}

func sortedSourceIDs(state *store.StateStore) []string {
	ids := make([]string, 0, len(state.Sources()))
	for id := range state.Sources() {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
