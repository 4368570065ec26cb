package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"landreg/internal/config"
	"landreg/internal/matcher"
	"landreg/internal/merger"
	"landreg/internal/model"
	"landreg/internal/registry"
	"landreg/internal/store"
	"landreg/internal/workbook"
)

// ProgressEvent one step of a running pipeline
type ProgressEvent struct {
	Type      string      `json:"type"`    // start/row/done/error
	Message   string      `json:"message"` // human-readable summary
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// MatchSummary outcome of a match run
type MatchSummary struct {
	RunID      string `json:"runId,omitempty"`
	InputPath  string `json:"inputPath"`
	OutputPath string `json:"outputPath"`
	Total      int    `json:"total"`
	Matched    int    `json:"matched"`
	NoMatch    int    `json:"noMatch"`
	Errors     int    `json:"errors"`
}

// MergeSummary outcome of a merge run
type MergeSummary struct {
	RunID string `json:"runId,omitempty"`
	*merger.Result
}

// Coordinator wires config, workbooks, the registry client and run history
// for the match and merge pipelines.
type Coordinator struct {
	cfg    *config.AppConfig
	store  *store.Store // nil disables run history
	logger zerolog.Logger

	registry matcher.RegistryClient
	client   *registry.Client // owned by the coordinator, nil under WithRegistry
	sleep    func(time.Duration)
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithRegistry uses client for every lookup instead of building one per run.
func WithRegistry(client matcher.RegistryClient) Option {
	return func(c *Coordinator) { c.registry = client }
}

// WithSleep replaces time.Sleep for the matcher's pauses.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Coordinator) { c.sleep = sleep }
}

// NewCoordinator creates a pipeline coordinator
func NewCoordinator(cfg *config.AppConfig, st *store.Store, logger zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		store:  st,
		logger: logger,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		rc := cfg.Registry
		c.client = registry.NewClient(registry.ClientOptions{
			Endpoint:           rc.Endpoint,
			UserAgent:          rc.UserAgent,
			Timeout:            rc.Timeout(),
			InsecureSkipVerify: rc.InsecureSkipVerify,
		})
		c.registry = c.client
	}
	return c
}

// Close releases the idle registry connections.
func (c *Coordinator) Close() {
	if c.client != nil {
		c.client.CloseIdleConnections()
	}
}

// Config returns the configuration the coordinator runs with.
func (c *Coordinator) Config() *config.AppConfig {
	return c.cfg
}

// Lookup runs one registry lookup, newest sale first.
func (c *Coordinator) Lookup(ctx context.Context, postcode, doorNumber string) ([]model.LookupResult, error) {
	return c.registry.Lookup(ctx, postcode, doorNumber)
}

// Match reads the input workbook, looks up every property and overwrites the
// output workbook. progress may be nil.
func (c *Coordinator) Match(ctx context.Context, progress func(ProgressEvent)) (*MatchSummary, error) {
	mc := c.cfg.Matcher
	summary := &MatchSummary{InputPath: mc.InputPath, OutputPath: mc.OutputPath}

	runID := c.beginRun(store.RunKindMatch, mc.InputPath, mc.OutputPath)
	summary.RunID = runID

	fail := func(err error) (*MatchSummary, error) {
		c.failRun(runID, store.RunCounts{Total: summary.Total}, err)
		send(progress, "error", err.Error(), nil)
		return summary, err
	}

	inputs, err := workbook.ReadInputs(mc.InputPath, mc.InputSheet, inputColumns(mc))
	if err != nil {
		return fail(fmt.Errorf("failed to read input: %w", err))
	}
	summary.Total = len(inputs)

	c.logger.Info().Str("path", mc.InputPath).Int("properties", len(inputs)).Msg("matching properties against the registry")
	send(progress, "start", fmt.Sprintf("matching %d properties", len(inputs)), map[string]interface{}{
		"total": len(inputs),
	})

	opts := matcher.DefaultOptions()
	opts.Retries = mc.Retries
	opts.Delay = mc.Delay()
	opts.Sleep = c.sleep
	opts.OnRecord = func(n, total int, rec model.MatchedRecord) {
		send(progress, "row", fmt.Sprintf("%d/%d %s: %s", n, total, rec.PropertyID, rec.Status), rec)
	}
	m := matcher.New(c.registry, opts, c.logger)

	records, err := m.MatchAll(ctx, inputs)
	if err != nil {
		c.logger.Warn().Err(err).Int("done", len(records)).Int("total", len(inputs)).Msg("matching interrupted, output not written")
		return fail(err)
	}
	for _, r := range records {
		switch r.Status {
		case model.StatusMatched:
			summary.Matched++
		case model.StatusNoMatch:
			summary.NoMatch++
		default:
			summary.Errors++
		}
	}

	if err := workbook.WriteMatched(mc.OutputPath, mc.OutputSheet, records); err != nil {
		return fail(fmt.Errorf("failed to write output: %w", err))
	}

	if c.store != nil && runID != "" {
		if err := c.store.SaveMatches(runID, records); err != nil {
			c.logger.Warn().Err(err).Str("run_id", runID).Msg("failed to record match rows")
		}
	}
	c.completeRun(runID, store.RunCounts{
		Total:   summary.Total,
		Matched: summary.Matched,
		NoMatch: summary.NoMatch,
		Errors:  summary.Errors,
	})

	c.logger.Info().
		Int("total", summary.Total).
		Int("matched", summary.Matched).
		Int("no_match", summary.NoMatch).
		Int("errors", summary.Errors).
		Str("path", mc.OutputPath).
		Msg("matcher output written")
	send(progress, "done", "matching complete", summary)
	return summary, nil
}

// Merge folds the matcher output into the master workbook.
func (c *Coordinator) Merge(ctx context.Context) (*MergeSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mc := c.cfg.Merger
	runID := c.beginRun(store.RunKindMerge, mc.SourcePath, mc.TargetPath)

	result, err := merger.New(merger.Options{
		SourcePath:  mc.SourcePath,
		SourceSheet: mc.SourceSheet,
		TargetPath:  mc.TargetPath,
		TargetSheet: mc.TargetSheet,
	}, c.logger).Run()

	summary := &MergeSummary{RunID: runID, Result: result}
	counts := store.RunCounts{
		Total:    result.SourceRows,
		Matched:  result.Eligible,
		Inserted: result.Inserted,
		Updated:  result.Updated,
	}
	if err != nil {
		c.logger.Error().Err(err).Msg("merge aborted, master table not written")
		c.failRun(runID, counts, err)
		return summary, err
	}
	c.completeRun(runID, counts)
	return summary, nil
}

// inputColumns takes the configured column names, falling back to the
// defaults for any left blank.
func inputColumns(mc config.MatcherConfig) workbook.InputColumns {
	cols := workbook.DefaultInputColumns()
	if mc.IDColumn != "" {
		cols.PropertyID = mc.IDColumn
	}
	if mc.DoorColumn != "" {
		cols.DoorNumber = mc.DoorColumn
	}
	if mc.PostcodeColumn != "" {
		cols.Postcode = mc.PostcodeColumn
	}
	return cols
}

func (c *Coordinator) beginRun(kind store.RunKind, source, target string) string {
	if c.store == nil {
		return ""
	}
	id, err := c.store.CreateRun(kind, source, target)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to record run start")
		return ""
	}
	return id
}

func (c *Coordinator) completeRun(id string, counts store.RunCounts) {
	if c.store == nil || id == "" {
		return
	}
	if err := c.store.CompleteRun(id, counts); err != nil {
		c.logger.Warn().Err(err).Str("run_id", id).Msg("failed to record run completion")
	}
}

func (c *Coordinator) failRun(id string, counts store.RunCounts, cause error) {
	if c.store == nil || id == "" {
		return
	}
	if err := c.store.FailRun(id, counts, cause); err != nil {
		c.logger.Warn().Err(err).Str("run_id", id).Msg("failed to record run failure")
	}
}

func send(progress func(ProgressEvent), typ, message string, data interface{}) {
	if progress == nil {
		return
	}
	progress(ProgressEvent{
		Type:      typ,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}
