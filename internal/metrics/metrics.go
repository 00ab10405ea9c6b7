// Package metrics provides sync counters using stdlib expvar.
// Counters are exported on the /debug/vars endpoint of the status server.
package metrics

import "expvar"

// Cycle counters.
var (
	CyclesTotal       = expvar.NewInt("atlas_sync_cycles_total")
	CyclesFailed      = expvar.NewInt("atlas_sync_cycles_failed_total")
	RecordsPublished  = expvar.NewInt("atlas_sync_records_published_total")
	TemplatesWritten  = expvar.NewInt("atlas_sync_templates_published_total")
	EntriesDeleted    = expvar.NewInt("atlas_sync_entries_deleted_total")
	EventsPolled      = expvar.NewInt("atlas_sync_events_polled_total")
	EventsAcked       = expvar.NewInt("atlas_sync_events_acked_total")
	EntitiesScraped   = expvar.NewInt("atlas_sync_entities_scraped_total")
	LastCycleSeconds  = expvar.NewFloat("atlas_sync_last_cycle_seconds")
	LastPayloadBytes  = expvar.NewInt("atlas_sync_last_payload_bytes")
	UnresolvedRefs    = expvar.NewInt("atlas_sync_unresolved_refs_total")
	MissingReferences = expvar.NewInt("atlas_sync_missing_references_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }

// Add increments the given counter by n.
func Add(counter *expvar.Int, n int) { counter.Add(int64(n)) }
