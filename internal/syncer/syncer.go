// Package syncer drives synchronization cycles from the source catalog to the
// target catalog, either as one full sync or as an event-driven loop.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/assemble"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/catalog"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/enrich"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/metrics"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/normalize"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/resolve"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/source"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/templates"
)

// ErrInvariant marks a violated internal invariant. It is never retried.
var ErrInvariant = errors.New("invariant violation")

// Stage is a state of the sync cycle.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageScraping   Stage = "scraping"
	StageEnriching  Stage = "enriching"
	StageAssembling Stage = "assembling"
	StageResolving  Stage = "resolving"
	StagePublishing Stage = "publishing"
	StageAck        Stage = "ack"
	StageRollback   Stage = "rollback"
)

// StageError reports the stage a cycle failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Options configures a Synchronizer.
type Options struct {
	Target assemble.Options
	Roles  models.Roles
	// EntityTypes restricts synchronization to these types; empty means all.
	// Entities of other types are loaded only as reference targets and are
	// never published.
	EntityTypes []string
	MaxDepth    int
	UIBaseURL   string

	PollTimeout        time.Duration
	SleepInterval      time.Duration
	TrustInlinePayload bool
}

// Report summarizes one cycle.
type Report struct {
	TaskID     string         `json:"taskId"`
	Mode       string         `json:"mode"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Events     int            `json:"events,omitempty"`
	Entities   int            `json:"entities"`
	Templates  int            `json:"templates"`
	Records    int            `json:"records"`
	Deleted    int            `json:"deleted"`
	Enrich     enrich.Report  `json:"enrich"`
	Resolve    resolve.Report `json:"resolve"`
}

// Synchronizer runs sync cycles. Cycles never overlap.
type Synchronizer struct {
	source  source.Client
	catalog catalog.Client
	opts    Options
	logger  *slog.Logger

	cycleMu sync.Mutex

	mu     sync.RWMutex
	status Status
}

// New creates a Synchronizer.
func New(src source.Client, cat catalog.Client, opts Options, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		source:  src,
		catalog: cat,
		opts:    opts,
		logger:  logger,
		status:  Status{Stage: StageIdle},
	}
}

// batch is the working state of one cycle.
type batch struct {
	report    *Report
	logger    *slog.Logger
	dict      models.TypeDictionary
	graph     *models.Graph
	synth     *templates.Synthesizer
	templates []models.Template
	records   []models.Record
}

func (s *Synchronizer) newBatch(mode string) *batch {
	r := &Report{TaskID: uuid.NewString(), Mode: mode, StartedAt: time.Now().UTC()}
	return &batch{
		report: r,
		logger: s.logger.With("task_id", r.TaskID, "mode", mode),
		graph:  models.NewGraph(),
	}
}

// FullSync scrapes the whole source, deletes entries of this source that
// are no longer present, and publishes every record and template.
func (s *Synchronizer) FullSync(ctx context.Context) (*Report, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	b := s.newBatch("full")
	b.logger.Info("full sync started")

	err := s.cycle(ctx, b, s.scrapeAll, func(ctx context.Context, b *batch) error {
		if err := s.deleteObsolete(ctx, b); err != nil {
			return err
		}
		return s.publish(ctx, b)
	})
	return s.finish(b, err)
}

// DryRun runs a full cycle up to resolution and returns what would be
// published.
func (s *Synchronizer) DryRun(ctx context.Context) ([]models.Template, []models.Record, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	b := s.newBatch("dry-run")
	err := s.cycle(ctx, b, s.scrapeAll, nil)
	if _, err := s.finish(b, err); err != nil {
		return nil, nil, err
	}
	return b.templates, b.records, nil
}

// cycle runs the stages shared by every mode. publish may be nil.
func (s *Synchronizer) cycle(ctx context.Context, b *batch, scrape, publish func(context.Context, *batch) error) error {
	s.enter(b, StageScraping)
	if err := scrape(ctx, b); err != nil {
		return &StageError{Stage: StageScraping, Err: err}
	}
	b.report.Entities = b.graph.Len()
	metrics.Add(metrics.EntitiesScraped, b.graph.Len())

	s.enter(b, StageEnriching)
	enrichReport, err := enrich.NewEnricher(s.source, b.dict, s.opts.MaxDepth, b.logger).Enrich(ctx, b.graph)
	if err != nil {
		return &StageError{Stage: StageEnriching, Err: err}
	}
	b.report.Enrich = enrichReport
	metrics.Add(metrics.MissingReferences, enrichReport.Missing)

	s.enter(b, StageAssembling)
	if err := s.assemble(b); err != nil {
		return &StageError{Stage: StageAssembling, Err: err}
	}

	s.enter(b, StageResolving)
	resolver := resolve.NewResolver(resolve.DefaultRules(s.opts.Roles), s.opts.UIBaseURL, b.logger)
	b.report.Resolve = resolver.Resolve(b.records)
	metrics.Add(metrics.UnresolvedRefs, b.report.Resolve.Unresolved)

	if publish == nil {
		return nil
	}
	s.enter(b, StagePublishing)
	if err := publish(ctx, b); err != nil {
		return &StageError{Stage: StagePublishing, Err: err}
	}
	return nil
}

func (s *Synchronizer) assemble(b *batch) error {
	b.synth = templates.NewSynthesizer(b.dict, s.opts.Roles, b.logger)

	allowed := models.NewTypeSet(s.opts.EntityTypes...)
	tpls, err := b.synth.Synthesize(b.graph, allowed)
	if err != nil {
		return fmt.Errorf("synthesizing templates: %w", err)
	}
	b.templates = tpls

	records, err := assemble.NewAssembler(s.opts.Target, b.synth, s.opts.Roles, b.logger).AssembleAll(b.graph, allowed)
	if err != nil {
		if errors.Is(err, assemble.ErrIDCollision) {
			return fmt.Errorf("%w: %w", ErrInvariant, err)
		}
		return fmt.Errorf("assembling records: %w", err)
	}
	b.records = records
	b.report.Templates = len(tpls)
	b.report.Records = len(records)
	b.logger.Info("records assembled", "templates", len(tpls), "records", len(records))
	return nil
}

// scrapeAll loads the type dictionary and every entity of the synchronized types.
func (s *Synchronizer) scrapeAll(ctx context.Context, b *batch) error {
	if m, err := s.source.AdminMetrics(ctx); err != nil {
		b.logger.Warn("fetching source metrics failed", "error", err)
	} else {
		b.logger.Info("source metrics", "entity", m["entity"], "general", m["general"])
	}

	dict, err := s.source.ListTypeDefs(ctx)
	if err != nil {
		return err
	}
	b.dict = dict

	for _, typeName := range s.syncedTypes(b) {
		headers, err := s.source.SearchEntitiesByType(ctx, typeName)
		if err != nil {
			return err
		}
		if len(headers) == 0 {
			continue
		}

		guids := make([]string, 0, len(headers))
		for _, h := range headers {
			guids = append(guids, h.GUID)
		}
		entities, err := s.source.FetchEntities(ctx, guids)
		if err != nil {
			return err
		}

		for _, h := range headers {
			e, ok := entities[h.GUID]
			if !ok {
				b.logger.Warn("entity listed but not returned", "guid", h.GUID, "type", typeName)
				continue
			}
			if len(h.ClassificationNames) > 0 {
				classifications, err := s.source.FetchClassifications(ctx, h.GUID)
				if err != nil {
					return err
				}
				e.Classifications = classifications
			}
			if b.graph.Put(e) {
				b.logger.Debug("entity fetched twice; keeping the later copy", "guid", e.GUID)
			}
		}
		b.logger.Debug("scraped type", "type", typeName, "entities", len(headers))
	}

	s.recordPayloadSize(b)
	b.logger.Info("scrape complete", "entities", b.graph.Len())
	return nil
}

func (s *Synchronizer) syncedTypes(b *batch) []string {
	if len(s.opts.EntityTypes) == 0 {
		return b.dict.EntityTypeNames()
	}
	out := make([]string, 0, len(s.opts.EntityTypes))
	for _, name := range s.opts.EntityTypes {
		if _, ok := b.dict.EntityTypes[name]; !ok {
			b.logger.Warn("allow-listed type not defined in source; skipping", "type", name)
			continue
		}
		out = append(out, name)
	}
	return out
}

func (s *Synchronizer) recordPayloadSize(b *batch) {
	payload, err := json.Marshal(b.graph.Entities())
	if err != nil {
		b.logger.Debug("measuring payload size failed", "error", err)
		return
	}
	metrics.LastPayloadBytes.Set(int64(len(payload)))
	b.logger.Info("metadata payload size", "bytes", len(payload))
}

// deleteObsolete removes entries of this source instance whose record is
// not part of the batch.
func (s *Synchronizer) deleteObsolete(ctx context.Context, b *batch) error {
	current := make(map[string]struct{}, len(b.records))
	for _, rec := range b.records {
		current[rec.Entry.Locator] = struct{}{}
	}

	var queries []catalog.Query
	if len(s.opts.EntityTypes) == 0 {
		queries = append(queries, s.instanceQuery())
	} else {
		for _, typeName := range s.opts.EntityTypes {
			q := s.instanceQuery()
			q.Type = normalize.FormatName(typeName)
			queries = append(queries, q)
		}
	}

	for _, q := range queries {
		locators, err := s.catalog.SearchByQuery(ctx, q)
		if err != nil {
			return fmt.Errorf("searching published entries: %w", err)
		}
		for _, locator := range locators {
			if _, ok := current[locator]; ok {
				continue
			}
			if err := s.deleteEntry(ctx, b, locator); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Synchronizer) deleteEntry(ctx context.Context, b *batch, locator string) error {
	err := s.catalog.DeleteEntry(ctx, locator)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting entry %s: %w", locator, err)
	}
	b.report.Deleted++
	metrics.Inc(metrics.EntriesDeleted)
	b.logger.Info("deleted entry", "locator", locator)
	return nil
}

// publish writes templates before the records that use them.
func (s *Synchronizer) publish(ctx context.Context, b *batch) error {
	for _, tpl := range b.templates {
		if err := s.catalog.CreateOrUpdateTemplate(ctx, tpl); err != nil {
			return fmt.Errorf("publishing template %s: %w", tpl.ID, err)
		}
		metrics.Inc(metrics.TemplatesWritten)
	}
	for _, rec := range b.records {
		if err := s.catalog.CreateOrUpdateEntry(ctx, rec); err != nil {
			return fmt.Errorf("publishing record %s: %w", rec.ID, err)
		}
		metrics.Inc(metrics.RecordsPublished)
	}
	b.logger.Info("published", "templates", len(b.templates), "records", len(b.records))
	return nil
}

// instanceQuery selects every entry published from this source instance.
func (s *Synchronizer) instanceQuery() catalog.Query {
	return catalog.Query{System: s.opts.Target.System}.WithTag(templates.FieldInstanceURL, s.opts.Target.InstanceURL)
}

func (s *Synchronizer) finish(b *batch, err error) (*Report, error) {
	b.report.FinishedAt = time.Now().UTC()
	elapsed := b.report.FinishedAt.Sub(b.report.StartedAt)
	metrics.Inc(metrics.CyclesTotal)
	metrics.LastCycleSeconds.Set(elapsed.Seconds())

	s.mu.Lock()
	s.status.Stage = StageIdle
	s.status.TaskID = b.report.TaskID
	s.status.Cycles++
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
		s.status.LastReport = b.report
	}
	s.mu.Unlock()

	if err != nil {
		metrics.Inc(metrics.CyclesFailed)
		stage := StageIdle
		var se *StageError
		if errors.As(err, &se) {
			stage = se.Stage
		}
		b.logger.Error("sync cycle failed", "stage", stage, "error", err, "elapsed", elapsed)
		return b.report, err
	}
	b.logger.Info("sync cycle complete",
		"entities", b.report.Entities,
		"records", b.report.Records,
		"templates", b.report.Templates,
		"deleted", b.report.Deleted,
		"elapsed", elapsed,
	)
	return b.report, nil
}

func (s *Synchronizer) enter(b *batch, stage Stage) {
	s.mu.Lock()
	s.status.Stage = stage
	s.status.TaskID = b.report.TaskID
	s.mu.Unlock()
	b.logger.Info("entering stage", "stage", stage)
}
