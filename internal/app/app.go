// Package app is the composition root: it wires configuration into the
// stores, fetchers, parsers and pipeline the CLI commands drive.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"kbingest/internal/config"
	"kbingest/internal/convert"
	"kbingest/internal/dedup"
	"kbingest/internal/domain"
	"kbingest/internal/fetch"
	"kbingest/internal/health"
	"kbingest/internal/logging"
	"kbingest/internal/parse"
	"kbingest/internal/pipeline"
	"kbingest/internal/ports"
	"kbingest/internal/schema"
	"kbingest/internal/source"
	"kbingest/internal/store"
)

// Application holds shared components for the command surface.
type Application struct {
	Cfg     config.Config
	Logger  *slog.Logger
	staging *store.Staging
	records *store.RecordStore
	history *store.History
}

// New builds an application instance over the configured data layout.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	history, err := store.OpenHistory(cfg.Paths.HistoryDB)
	if err != nil {
		return nil, err
	}

	records := store.NewRecordStore(cfg.Paths.ServiceDir())
	return &Application{
		Cfg:     cfg,
		Logger:  baseLogger,
		staging: store.NewStaging(cfg.Paths.StagingDir, records, baseLogger.With("component", "staging")),
		records: records,
		history: history,
	}, nil
}

// Close releases held resources.
func (a *Application) Close() error { return a.history.Close() }

// Staging exposes the staging area for review commands.
func (a *Application) Staging() *store.Staging { return a.staging }

// History exposes the run and rejection log.
func (a *Application) History() *store.History { return a.history }

// Sources loads the source registry.
func (a *Application) Sources() (*source.Registry, error) {
	return source.Load(a.Cfg.Paths.SourcesFn)
}

// HealthReporter builds the health reporter over the live stores.
func (a *Application) HealthReporter() (*health.Reporter, error) {
	registry, err := a.Sources()
	if err != nil {
		return nil, err
	}
	return health.NewReporter(a.Cfg.Health, a.Cfg.Paths.StateFn, registry, a.staging, a.history), nil
}

// RunPipeline assembles and executes one ingestion run. A corrupt state
// file aborts before any fetching happens.
func (a *Application) RunPipeline(ctx context.Context, opts pipeline.Options) (domain.RunRecord, error) {
	registry, err := a.Sources()
	if err != nil {
		return domain.RunRecord{}, err
	}

	state, err := store.LoadState(a.Cfg.Paths.StateFn)
	if err != nil {
		return domain.RunRecord{}, err
	}

	httpClient := &http.Client{Timeout: a.Cfg.Fetch.Timeout}

	fetchers := fetch.NewRegistry()
	fetchers.Register(fetch.NewFeedFetcher(httpClient, a.Logger.With("component", "fetch.feed")))
	fetchers.Register(fetch.NewPageFetcher(a.Cfg.Fetch.Timeout, a.Logger.With("component", "fetch.page")))
	repoFetcher, err := fetch.NewRepoFetcher(httpClient, "", "", a.Logger.With("component", "fetch.repo"))
	if err != nil {
		return domain.RunRecord{}, err
	}
	fetchers.Register(repoFetcher)

	parsers := parse.NewRegistry()
	parsers.Register(parse.NewFeedParser())
	parsers.Register(parse.NewPageParser())
	parsers.Register(parse.NewRuleFileParser())

	var converter ports.Converter
	var validator ports.Validator
	if !opts.DryRun && !opts.SkipConvert {
		schemaValidator, err := schema.Load(a.Cfg.Paths.SchemaFn)
		if err != nil {
			return domain.RunRecord{}, err
		}
		validator = schemaValidator
		converter = convert.NewBridge(a.Cfg.Generation, schemaValidator.Text(),
			a.Logger.With("component", "convert"))
	}

	if opts.Concurrency <= 0 {
		opts.Concurrency = a.Cfg.Fetch.Concurrency
	}
	opts.CrossSource = a.Cfg.Dedup.CrossSourceEnabled()

	orch := pipeline.New(pipeline.Deps{
		Registry:  registry,
		Fetchers:  fetchers,
		Parsers:   parsers,
		Engine:    dedup.NewEngine(a.Cfg.Dedup.Threshold),
		Converter: converter,
		Validator: validator,
		Records:   a.records,
		Staging:   a.staging,
		State:     state,
		History:   a.history,
		Logger:    a.Logger.With("component", "pipeline"),
	}, opts)

	return orch.Run(ctx)
}

// startTimeout guards command-scoped contexts when none is supplied.
const startTimeout = 30 * time.Minute

// RunContext derives a bounded context for one pipeline invocation.
func RunContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, startTimeout)
}
