// Package pipeline orchestrates the ingestion workflow:
// fetch -> parse -> dedup -> convert -> validate -> stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kbingest/internal/dedup"
	"kbingest/internal/domain"
	"kbingest/internal/fetch"
	"kbingest/internal/parse"
	"kbingest/internal/ports"
	"kbingest/internal/source"
	"kbingest/internal/store"
)

// Modes reported in the run record.
const (
	ModeFull        = "full"
	ModeDryRun      = "dry-run"
	ModeSkipConvert = "skip-convert"
)

// Options select sources and switch run modes.
type Options struct {
	SourceIDs   []string
	SourceType  domain.SourceType
	DryRun      bool
	SkipConvert bool
	MaxItems    int
	Concurrency int
	CrossSource bool
}

// Mode returns the run mode label for the options.
func (o Options) Mode() string {
	switch {
	case o.DryRun:
		return ModeDryRun
	case o.SkipConvert:
		return ModeSkipConvert
	default:
		return ModeFull
	}
}

// Deps wires all driven adapters into the orchestrator.
type Deps struct {
	Registry  *source.Registry
	Fetchers  *fetch.Registry
	Parsers   *parse.Registry
	Engine    *dedup.Engine
	Converter ports.Converter
	Validator ports.Validator
	Records   ports.RecordReader
	Staging   ports.CandidateStager
	State     *store.StateStore
	History   ports.RunHistory
	Logger    *slog.Logger
}

// Orchestrator runs the ingestion pipeline once per invocation.
type Orchestrator struct {
	deps Deps
	opts Options
}

// New constructs the orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// sourceBatch is the output of the concurrent fetch+parse phase for one
// source, consumed sequentially in registry order.
type sourceBatch struct {
	src       domain.SourceConfig
	result    *fetch.Result
	findings  []domain.Finding
	parseErrs int
	err       error
	started   bool
}

// Run executes the pipeline. Fetching and parsing run concurrently across
// sources; everything from dedup onward is sequential in registry order so
// similarity decisions are reproducible. Dry runs mutate nothing durable.
func (o *Orchestrator) Run(ctx context.Context) (domain.RunRecord, error) {
	run := domain.RunRecord{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Mode:      o.opts.Mode(),
	}
	log := o.deps.Logger

	if err := o.seedCorpus(); err != nil {
		return run, err
	}

	sources := o.deps.Registry.Enabled(o.opts.SourceType, o.opts.SourceIDs)
	if len(sources) == 0 {
		log.Warn("no matching enabled sources")
		run.FinishedAt = time.Now().UTC()
		return run, nil
	}
	log.Info("starting run", "mode", run.Mode, "sources", len(sources),
		"threshold", o.deps.Engine.Threshold(), "corpus", o.deps.Engine.Len())

	batches := o.fetchAll(ctx, sources)

	for _, batch := range batches {
		outcome := o.processBatch(ctx, batch)
		run.Sources = append(run.Sources, outcome)
		if outcome.Error != "" {
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %s", outcome.SourceID, outcome.Error))
		}
	}
	run.FinishedAt = time.Now().UTC()

	if !o.opts.DryRun {
		if err := o.deps.State.Save(); err != nil {
			return run, fmt.Errorf("save state: %w", err)
		}
		if err := o.deps.History.RecordRun(ctx, run); err != nil {
			return run, fmt.Errorf("record run: %w", err)
		}
	}

	totals := run.Totals()
	log.Info("run finished", "run_id", run.ID,
		"sources_processed", totals.SourcesProcessed, "sources_errored", totals.SourcesErrored,
		"fetched", totals.Fetched, "novel", totals.Novel, "staged", totals.Staged)
	return run, nil
}

// seedCorpus loads the authoritative records into the dedup engine.
func (o *Orchestrator) seedCorpus() error {
	records, err := o.deps.Records.LoadAll()
	if err != nil {
		return fmt.Errorf("load existing records: %w", err)
	}
	for _, rec := range records {
		id, _ := rec["id"].(string)
		scenario, _ := rec["scenario"].(string)
		o.deps.Engine.Add(id, scenario, store.RecordText(rec))
	}
	o.deps.Logger.Info("seeded dedup corpus", "records", len(records))
	return nil
}

// fetchAll fetches and parses every source with a bounded worker pool,
// returning batches in registry order. Watermarks are read up front; state
// is only mutated later on the sequential path. Sources not yet started
// when the context is cancelled come back unstarted.
func (o *Orchestrator) fetchAll(ctx context.Context, sources []domain.SourceConfig) []sourceBatch {
	batches := make([]sourceBatch, len(sources))
	marks := make([]domain.Watermark, len(sources))
	for i, src := range sources {
		batches[i].src = src
		marks[i] = o.deps.State.Watermark(src.ID)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, o.opts.Concurrency)
	for i := range sources {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			batches[i].started = true
			o.fetchOne(ctx, &batches[i], marks[i])
		}(i)
	}
	wg.Wait()
	return batches
}

func (o *Orchestrator) fetchOne(ctx context.Context, batch *sourceBatch, mark domain.Watermark) {
	src := batch.src
	log := o.deps.Logger

	fetcher, err := o.deps.Fetchers.Resolve(src.Type)
	if err != nil {
		batch.err = err
		return
	}
	parser, err := o.deps.Parsers.Resolve(src.Type)
	if err != nil {
		batch.err = err
		return
	}

	result, err := fetcher.Fetch(ctx, src, mark)
	if err != nil {
		batch.err = err
		return
	}
	batch.result = result
	if result.NotModified {
		return
	}

	items := result.Items
	if o.opts.MaxItems > 0 && len(items) > o.opts.MaxItems {
		items = items[:o.opts.MaxItems]
	}

	for _, item := range items {
		findings, err := parser.Parse(src, item)
		if err != nil {
			batch.parseErrs++
			log.Warn("parse failed", "source", src.ID, "item", item.ItemID, "error", err)
			continue
		}
		batch.findings = append(batch.findings, findings...)
	}
}

// processBatch runs the sequential half of the pipeline for one source and
// builds its outcome.
func (o *Orchestrator) processBatch(ctx context.Context, batch sourceBatch) domain.SourceOutcome {
	outcome := domain.SourceOutcome{SourceID: batch.src.ID}
	log := o.deps.Logger

	if !batch.started {
		outcome.Error = "skipped: run cancelled"
		return outcome
	}
	if batch.err != nil {
		outcome.Error = batch.err.Error()
		log.Error("source failed", "source", batch.src.ID, "error", batch.err)
		if !o.opts.DryRun {
			o.deps.State.UpdateAfterFetch(batch.src.ID, "", "", 0, batch.err)
		}
		return outcome
	}
	if batch.result.NotModified {
		outcome.NotModified = true
		log.Info("source not modified", "source", batch.src.ID)
		if !o.opts.DryRun {
			o.deps.State.UpdateAfterFetch(batch.src.ID, batch.result.ETag, batch.result.LastModified, 0, nil)
		}
		return outcome
	}

	outcome.Fetched = len(batch.findings)
	outcome.ItemErrors = batch.result.ItemErrors + batch.parseErrs
	for _, finding := range batch.findings {
		o.processFinding(ctx, finding, &outcome)
	}

	if !o.opts.DryRun {
		o.deps.State.UpdateAfterFetch(batch.src.ID, batch.result.ETag, batch.result.LastModified, len(batch.findings), nil)
	}
	return outcome
}

// processFinding takes one finding through filter -> dedup -> convert ->
// validate -> stage. Item-level failures are counted, never propagated.
func (o *Orchestrator) processFinding(ctx context.Context, finding domain.Finding, outcome *domain.SourceOutcome) {
	log := o.deps.Logger

	hash := finding.ContentHash()
	if o.deps.State.IsSeen(finding.SourceID, hash) {
		outcome.FilteredSeen++
		return
	}
	if !o.opts.DryRun {
		o.deps.State.MarkSeen(finding.SourceID, hash)
	}

	score, matchedID, matchedScenario := o.deps.Engine.CheckFrom(finding.SourceID, finding.Title, finding.Body)
	if score >= o.deps.Engine.Threshold() {
		outcome.FilteredDup++
		log.Info("duplicate filtered", "source", finding.SourceID, "title", truncate(finding.Title, 60),
			"score", fmt.Sprintf("%.2f", score), "matched", matchedID)
		return
	}
	outcome.Novel++

	// Novel findings join the in-run corpus immediately so later findings in
	// the same run dedupe against them. Without cross-source suppression the
	// addition stays visible to its own source only.
	scope := finding.SourceID
	if o.opts.CrossSource {
		scope = ""
	}
	o.deps.Engine.AddScoped("run:"+hash, finding.Title, finding.Title+" "+finding.Body, scope)

	if o.opts.DryRun {
		log.Info("would process", "source", finding.SourceID, "title", truncate(finding.Title, 60),
			"score", fmt.Sprintf("%.2f", score))
		return
	}
	if o.opts.SkipConvert {
		return
	}

	record, ok := o.convertValidated(ctx, finding, outcome)
	if !ok {
		return
	}

	if o.stage(ctx, finding, record, score, matchedID, matchedScenario, outcome) {
		outcome.Staged++
	}
}

// convertValidated converts a finding and validates the result, retrying
// the conversion once with the violations appended to the prompt.
func (o *Orchestrator) convertValidated(ctx context.Context, finding domain.Finding, outcome *domain.SourceOutcome) (map[string]any, bool) {
	log := o.deps.Logger

	record, err := o.deps.Converter.Convert(ctx, finding)
	if err != nil {
		if errors.Is(err, domain.ErrConversionSkipped) {
			outcome.ConvertSkipped++
		} else {
			outcome.ConvertFailed++
			log.Warn("conversion failed", "source", finding.SourceID, "title", truncate(finding.Title, 60), "error", err)
		}
		return nil, false
	}
	outcome.Converted++

	err = o.deps.Validator.Validate(record)
	if err == nil {
		outcome.Validated++
		return record, true
	}

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		outcome.ValidationFailed++
		log.Error("validation errored", "title", truncate(finding.Title, 60), "error", err)
		return nil, false
	}

	outcome.ValidationFailed++
	log.Warn("validation failed, retrying conversion", "title", truncate(finding.Title, 60),
		"violations", len(ve.Violations))

	retry := finding
	retry.Body = fmt.Sprintf("%s\n\nPrevious attempt had validation errors: %s",
		finding.Body, strings.Join(ve.Violations, "; "))

	record, err = o.deps.Converter.Convert(ctx, retry)
	if err != nil {
		return nil, false
	}
	if err := o.deps.Validator.Validate(record); err != nil {
		log.Error("validation still failed after retry", "title", truncate(finding.Title, 60), "error", err)
		return nil, false
	}
	outcome.Validated++
	return record, true
}

// stage writes the candidate unless its id was rejected before or conflicts
// with the staging area or the knowledge base (Stage checks both stores).
func (o *Orchestrator) stage(ctx context.Context, finding domain.Finding, record map[string]any, score float64, matchedID, matchedScenario string, outcome *domain.SourceOutcome) bool {
	log := o.deps.Logger
	id, _ := record["id"].(string)

	rejected, err := o.deps.History.WasRejected(ctx, id)
	if err != nil {
		log.Warn("rejection lookup failed", "id", id, "error", err)
	} else if rejected {
		log.Info("skipping previously rejected recommendation", "id", id)
		return false
	}

	candidate := domain.Candidate{
		StagedAt:        time.Now().UTC().Format(time.RFC3339),
		StagedBy:        "ingest-pipeline",
		SourceID:        finding.SourceID,
		SourceURL:       finding.URL,
		DedupScore:      roundScore(score),
		MatchedID:       matchedID,
		MatchedScenario: matchedScenario,
		Status:          domain.StatusPending,
		Recommendation:  record,
	}
	if err := o.deps.Staging.Stage(candidate); err != nil {
		if errors.Is(err, domain.ErrStagingConflict) {
			log.Info("candidate id already staged or in knowledge base", "id", id)
		} else {
			log.Error("staging failed", "id", id, "error", err)
		}
		return false
	}
	log.Info("staged candidate", "id", id, "service", candidate.Service(),
		"title", truncate(finding.Title, 60))
	return true
}

func roundScore(score float64) float64 {
	return float64(int(score*10000+0.5)) / 10000
}

// truncate cuts s to at most n runes, never splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
