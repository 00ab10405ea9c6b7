package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/catalog"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/events"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/metrics"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/normalize"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/templates"
)

const (
	defaultPollTimeout   = 10 * time.Second
	defaultSleepInterval = 5 * time.Second
)

// Run consumes the feed until ctx is cancelled. A batch is acknowledged only
// after it has been fully published, so a failed batch is redelivered.
// Cancellation is observed between iterations; an iteration in flight
// completes first. Run returns nil on cancellation and an error only for
// invariant violations or a closed feed.
func (s *Synchronizer) Run(ctx context.Context, feed events.Feed) error {
	sleep := s.opts.SleepInterval
	if sleep <= 0 {
		sleep = defaultSleepInterval
	}
	s.logger.Info("event loop started", "sleep", sleep)

	for {
		if err := s.iterate(context.WithoutCancel(ctx), feed); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			s.logger.Info("event loop stopped")
			return nil
		case <-time.After(sleep):
		}
	}
}

// iterate runs one poll/process/ack round. Only fatal errors are returned.
func (s *Synchronizer) iterate(ctx context.Context, feed events.Feed) error {
	timeout := s.opts.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	batchEvents, err := feed.Poll(ctx, timeout)
	if err != nil {
		if errors.Is(err, events.ErrFeedClosed) {
			return err
		}
		s.logger.Error("polling events failed", "error", err)
		return nil
	}
	if len(batchEvents) == 0 {
		return nil
	}
	metrics.Add(metrics.EventsPolled, len(batchEvents))

	if _, err := s.ProcessEvents(ctx, batchEvents); err != nil {
		if errors.Is(err, ErrInvariant) {
			return err
		}
		s.logger.Warn("batch left unacknowledged for redelivery", "events", len(batchEvents), "error", err)
		return nil
	}

	s.setStage(StageAck)
	if err := feed.Ack(ctx); err != nil {
		s.logger.Error("acknowledging events failed", "events", len(batchEvents), "error", err)
	} else {
		metrics.Add(metrics.EventsAcked, len(batchEvents))
	}
	s.setStage(StageIdle)
	return nil
}

// ProcessEvents synchronizes the entities touched by one batch of events.
// Creates and updates are published first; deletes follow.
func (s *Synchronizer) ProcessEvents(ctx context.Context, batchEvents []models.SyncEvent) (*Report, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	b := s.newBatch("events")
	b.report.Events = len(batchEvents)
	upserts, deletes := partitionEvents(batchEvents)
	b.logger.Info("processing events", "events", len(batchEvents), "upserts", len(upserts), "deletes", len(deletes))

	err := s.cycle(ctx, b,
		func(ctx context.Context, b *batch) error { return s.scrapeEvents(ctx, b, batchEvents, upserts, deletes) },
		func(ctx context.Context, b *batch) error {
			if err := s.publish(ctx, b); err != nil {
				return err
			}
			return s.applyDeletes(ctx, b, deletes)
		},
	)
	if err != nil {
		s.setStage(StageRollback)
	}
	return s.finish(b, err)
}

// partitionEvents keeps the last operation per GUID, in first-seen order.
func partitionEvents(batchEvents []models.SyncEvent) (upserts []models.SyncEvent, deletes []string) {
	last := make(map[string]models.SyncEvent, len(batchEvents))
	var order []string
	for _, ev := range batchEvents {
		if ev.GUID == "" {
			continue
		}
		if _, seen := last[ev.GUID]; !seen {
			order = append(order, ev.GUID)
		}
		last[ev.GUID] = ev
	}
	for _, guid := range order {
		ev := last[guid]
		if ev.IsDelete() {
			deletes = append(deletes, guid)
		} else {
			upserts = append(upserts, ev)
		}
	}
	return upserts, deletes
}

// scrapeEvents loads the entities a batch touches. Column events pull in
// their owning tables so column tags are regenerated from the table.
func (s *Synchronizer) scrapeEvents(ctx context.Context, b *batch, all, upserts []models.SyncEvent, deletes []string) error {
	dict, err := s.source.ListTypeDefs(ctx)
	if err != nil {
		return err
	}
	b.dict = dict
	b.synth = templates.NewSynthesizer(dict, s.opts.Roles, b.logger)

	deleted := make(map[string]bool, len(deletes))
	for _, guid := range deletes {
		deleted[guid] = true
	}

	want := make(map[string]bool)
	for _, ev := range upserts {
		if s.opts.TrustInlinePayload && ev.Entity != nil {
			b.graph.Put(ev.Entity)
			continue
		}
		want[ev.GUID] = true
	}

	for _, ev := range all {
		if ev.TypeName != s.opts.Roles.Column || ev.GUID == "" {
			continue
		}
		tables, err := s.owningTables(ctx, b, ev.GUID)
		if err != nil {
			return err
		}
		for _, guid := range tables {
			want[guid] = true
		}
	}

	if err := s.fetchInto(ctx, b, want, deleted); err != nil {
		return err
	}

	// A column fetched on its own names its table; load that too.
	tables := make(map[string]bool)
	for _, e := range b.graph.OfType(s.opts.Roles.Column) {
		v, ok := e.Attr("table")
		if !ok {
			continue
		}
		for _, ref := range v.Refs() {
			if _, loaded := b.graph.Get(ref.GUID); !loaded && !deleted[ref.GUID] {
				tables[ref.GUID] = true
			}
		}
	}
	if err := s.fetchInto(ctx, b, tables, deleted); err != nil {
		return err
	}

	b.logger.Info("event scrape complete", "entities", b.graph.Len())
	return nil
}

func (s *Synchronizer) fetchInto(ctx context.Context, b *batch, want, deleted map[string]bool) error {
	guids := make([]string, 0, len(want))
	for guid := range want {
		if !deleted[guid] {
			guids = append(guids, guid)
		}
	}
	if len(guids) == 0 {
		return nil
	}
	sort.Strings(guids)

	entities, err := s.source.FetchEntities(ctx, guids)
	if err != nil {
		return err
	}
	for _, guid := range guids {
		e, ok := entities[guid]
		if !ok {
			b.logger.Warn("entity from event no longer in source", "guid", guid)
			continue
		}
		if e.Status == models.StatusDeleted {
			b.logger.Info("skipping deleted entity", "guid", guid)
			continue
		}
		classifications, err := s.source.FetchClassifications(ctx, guid)
		if err != nil {
			return err
		}
		e.Classifications = classifications
		b.graph.Put(e)
	}
	return nil
}

// owningTables finds published tables that carry a column tag for guid.
func (s *Synchronizer) owningTables(ctx context.Context, b *batch, columnGUID string) ([]string, error) {
	if s.opts.Roles.Table == "" {
		return nil, nil
	}
	schema, err := b.synth.EntityType(s.opts.Roles.Table)
	if err != nil {
		b.logger.Debug("table type not defined; skipping owner lookup", "type", s.opts.Roles.Table)
		return nil, nil
	}
	q := s.instanceQuery().WithTag(templates.FieldColumnGUID, columnGUID)
	q.Type = normalize.FormatName(s.opts.Roles.Table)

	guids, err := s.catalog.SearchTagValues(ctx, q, schema.TemplateID, templates.FieldGUID)
	if err != nil {
		return nil, fmt.Errorf("looking up tables of column %s: %w", columnGUID, err)
	}
	return guids, nil
}

// applyDeletes removes the entries published for each deleted GUID.
func (s *Synchronizer) applyDeletes(ctx context.Context, b *batch, deletes []string) error {
	for _, guid := range deletes {
		locators, err := s.catalog.SearchByQuery(ctx, s.instanceQuery().WithTag(templates.FieldGUID, guid))
		if err != nil {
			return fmt.Errorf("searching entries of %s: %w", guid, err)
		}
		if len(locators) == 0 {
			b.logger.Debug("deleted entity was never published", "guid", guid)
		}
		for _, locator := range locators {
			if err := s.deleteEntry(ctx, b, locator); err != nil {
				return err
			}
		}
	}
	return nil
}

// Cleanup removes every entry published from this source instance and
// every template this tool created.
func (s *Synchronizer) Cleanup(ctx context.Context) (entries, tpls int, err error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	locators, err := s.catalog.SearchByQuery(ctx, s.instanceQuery())
	if err != nil {
		return 0, 0, fmt.Errorf("searching entries: %w", err)
	}
	for _, locator := range locators {
		if err := s.catalog.DeleteEntry(ctx, locator); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return entries, 0, fmt.Errorf("deleting entry %s: %w", locator, err)
		}
		entries++
		metrics.Inc(metrics.EntriesDeleted)
	}

	ids, err := s.catalog.ListTemplates(ctx, normalize.TemplatePrefix)
	if err != nil {
		return entries, 0, fmt.Errorf("listing templates: %w", err)
	}
	for _, id := range ids {
		if err := s.catalog.DeleteTemplate(ctx, id); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return entries, tpls, fmt.Errorf("deleting template %s: %w", id, err)
		}
		tpls++
	}
	s.logger.Info("cleanup complete", "entries", entries, "templates", tpls)
	return entries, tpls, nil
}
