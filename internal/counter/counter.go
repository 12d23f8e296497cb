// Package counter implements counter ingestion (spec.md §4.D): storing a
// monotonic cumulative reading into the sample ring and tracking the last
// raw value and timestamp as advisory state. The query layer's
// bucket_rate/counter_rate UDFs do not read that state; they work only
// from the sample values passed to them.
package counter

import (
	"context"

	"github.com/ringtsdb/ringtsdb/internal/errs"
	"github.com/ringtsdb/ringtsdb/internal/kvcodec"
	"github.com/ringtsdb/ringtsdb/internal/kvstore"
	"github.com/ringtsdb/ringtsdb/internal/registry"
	"github.com/ringtsdb/ringtsdb/internal/ring"
)

// Counter ingests raw cumulative readings for counter-typed metrics. Reset
// detection itself — noticing that a raw value dropped below the previous
// one — is a query-time concern (spec.md §4.F counter_rate), not ingest
// time: ingestion only records what it is told.
type Counter struct {
	backend  kvstore.Backend
	registry *registry.Registry
	ring     *ring.Ring
}

// New creates a Counter over backend, resolving descriptors through reg
// and writing samples through rg.
func New(backend kvstore.Backend, reg *registry.Registry, rg *ring.Ring) *Counter {
	return &Counter{backend: backend, registry: reg, ring: rg}
}

// IngestCounter records rawValue at ts for metricID: the raw cumulative
// reading is written into the sample ring exactly like a gauge sample, and
// the metric's (3, metric_id) counter state is updated to (ts, rawValue)
// if ts is newer than the state's current last_ts. Fails TYPE_MISMATCH if
// metricID is not a counter.
func (c *Counter) IngestCounter(ctx context.Context, metricID uint64, ts int64, rawValue float64) error {
	desc, err := c.registry.Get(ctx, metricID)
	if err != nil {
		return err
	}
	if desc.Type != kvcodec.Counter {
		return errs.New(errs.TypeMismatch, "metric %d is not a counter", metricID)
	}

	if err := c.ring.WriteSample(ctx, metricID, ts, rawValue); err != nil {
		return err
	}

	return c.backend.Update(ctx, func(txn kvstore.Txn) error {
		raw, err := txn.Get(kvcodec.CounterKey(metricID))
		if err != nil {
			return err
		}
		if raw != nil {
			state, err := kvcodec.DecodeCounterState(raw)
			if err != nil {
				return err
			}
			if state.LastTs >= ts {
				return nil
			}
		}
		state := kvcodec.CounterState{LastTs: ts, LastRaw: rawValue}
		return txn.Set(kvcodec.CounterKey(metricID), state.Encode())
	})
}

// LastState returns the most recently recorded (ts, raw value) for
// metricID, or ok=false if no counter sample has been ingested yet.
func (c *Counter) LastState(ctx context.Context, metricID uint64) (state kvcodec.CounterState, ok bool, err error) {
	err = c.backend.View(ctx, func(txn kvstore.Txn) error {
		raw, err := txn.Get(kvcodec.CounterKey(metricID))
		if err != nil {
			return err
		}
		if raw == nil {
			return nil
		}
		state, err = kvcodec.DecodeCounterState(raw)
		ok = err == nil
		return err
	})
	return state, ok, err
}
