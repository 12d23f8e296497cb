// Package ring implements the bounded ring storage engine (spec.md §4.C):
// writing samples into a metric's fixed-size slot ring and reading back a
// time range, either by scanning the whole ring prefix or by enumerating
// the exact slots the range covers, whichever touches fewer keys.
package ring

import (
	"context"
	"sort"

	"github.com/ringtsdb/ringtsdb/internal/config"
	"github.com/ringtsdb/ringtsdb/internal/errs"
	"github.com/ringtsdb/ringtsdb/internal/kvcodec"
	"github.com/ringtsdb/ringtsdb/internal/kvstore"
	"github.com/ringtsdb/ringtsdb/internal/ringmath"
	"github.com/ringtsdb/ringtsdb/internal/registry"
)

// Ring writes and reads samples against a metric's slot ring. It holds no
// per-metric state; every call re-resolves the descriptor so geometry
// changes (retention rewrite) are picked up immediately.
type Ring struct {
	backend  kvstore.Backend
	registry *registry.Registry
}

// New creates a Ring over backend, resolving descriptors through reg.
func New(backend kvstore.Backend, reg *registry.Registry) *Ring {
	return &Ring{backend: backend, registry: reg}
}

// WriteSample writes value at ts into metricID's ring, computing the slot
// from the metric's current (step, slots) geometry and unconditionally
// overwriting whatever sample previously occupied that slot (spec.md §4.C
// "last write wins per slot", invariant I2).
func (r *Ring) WriteSample(ctx context.Context, metricID uint64, ts int64, value float64) error {
	desc, err := r.registry.Get(ctx, metricID)
	if err != nil {
		return err
	}
	slot := ringmath.SlotFor(ts, desc.Step, desc.Slots)
	sample := kvcodec.Sample{Ts: ts, Value: value}
	return r.backend.Update(ctx, func(txn kvstore.Txn) error {
		return txn.Set(kvcodec.SampleKey(metricID, slot), sample.Encode())
	})
}

// Point is a decoded ring sample returned by ReadRange.
type Point struct {
	Ts    int64
	Value float64
}

// ReadRange returns every sample in metricID's ring whose timestamp falls
// in the closed interval [start, end], ordered by timestamp.
//
// A ring only ever holds `slots` live samples, so a wide [start, end]
// relative to the ring's total window (slots*step) is cheaper to satisfy
// by scanning every occupied slot once and filtering by timestamp, while a
// narrow range is cheaper to satisfy by computing the exact slots the
// range maps to and fetching only those (spec.md §4.C). ReadRange picks
// whichever touches fewer keys.
func (r *Ring) ReadRange(ctx context.Context, metricID uint64, start, end int64) ([]Point, error) {
	if end < start {
		return nil, errs.New(errs.Validation, "end must not be before start")
	}
	desc, err := r.registry.Get(ctx, metricID)
	if err != nil {
		return nil, err
	}

	window := int64(desc.Step) * int64(desc.Slots)
	rangeWidth := end - start + 1
	var points []Point
	if window > 0 && rangeWidth >= window {
		points, err = r.scanAll(ctx, metricID, desc, start, end)
	} else {
		points, err = r.enumerateSlots(ctx, metricID, desc, start, end)
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Ts < points[j].Ts })
	return points, nil
}

// scanAll reads every occupied slot of the ring once, in bounded batches,
// and keeps samples whose timestamp falls in [start, end].
func (r *Ring) scanAll(ctx context.Context, metricID uint64, desc *kvcodec.Descriptor, start, end int64) ([]Point, error) {
	var out []Point
	for s := uint32(0); s < desc.Slots; s += config.RewriteBatchSlots {
		e := s + config.RewriteBatchSlots
		if e > desc.Slots {
			e = desc.Slots
		}
		err := r.backend.View(ctx, func(txn kvstore.Txn) error {
			for slot := s; slot < e; slot++ {
				raw, err := txn.Get(kvcodec.SampleKey(metricID, slot))
				if err != nil {
					return err
				}
				if raw == nil {
					continue
				}
				sample, err := kvcodec.DecodeSample(raw)
				if err != nil {
					return err
				}
				if sample.Ts >= start && sample.Ts <= end {
					out = append(out, Point{Ts: sample.Ts, Value: sample.Value})
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// enumerateSlots computes the exact slots [start, end] maps to under the
// ring's geometry and fetches only those, restarting the underlying
// transaction every config.RewriteBatchSlots keys so a long range never
// exceeds the backend's transaction size/duration limits (spec.md §1).
func (r *Ring) enumerateSlots(ctx context.Context, metricID uint64, desc *kvcodec.Descriptor, start, end int64) ([]Point, error) {
	firstBucket := ringmath.BucketStart(start, int64(desc.Step)) / int64(desc.Step)
	lastBucket := ringmath.BucketStart(end, int64(desc.Step)) / int64(desc.Step)
	numBuckets := lastBucket - firstBucket + 1
	if numBuckets <= 0 {
		return nil, nil
	}
	if uint64(numBuckets) > uint64(desc.Slots)*2 {
		// The range spans more distinct buckets than the ring could ever
		// hold distinctly; cap the walk to one full ring's worth to keep
		// this path bounded regardless of how wide [start, end] is.
		numBuckets = int64(desc.Slots)
	}

	var out []Point
	const batch = int64(config.RewriteBatchSlots)
	for off := int64(0); off < numBuckets; off += batch {
		hi := off + batch
		if hi > numBuckets {
			hi = numBuckets
		}
		err := r.backend.View(ctx, func(txn kvstore.Txn) error {
			seen := make(map[uint32]bool, hi-off)
			for i := off; i < hi; i++ {
				bucket := firstBucket + i
				ts := bucket * int64(desc.Step)
				slot := ringmath.SlotFor(ts, desc.Step, desc.Slots)
				if seen[slot] {
					continue
				}
				seen[slot] = true
				raw, err := txn.Get(kvcodec.SampleKey(metricID, slot))
				if err != nil {
					return err
				}
				if raw == nil {
					continue
				}
				sample, err := kvcodec.DecodeSample(raw)
				if err != nil {
					return err
				}
				if sample.Ts >= start && sample.Ts <= end {
					out = append(out, Point{Ts: sample.Ts, Value: sample.Value})
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
