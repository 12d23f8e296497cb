// Package registry implements the metric registry (spec.md §4.B):
// allocating metric ids, maintaining name/tag indexes, and validating
// ring geometry. It is not cached (spec.md §5 "not cached... lookups
// always consult the backend"), so every call round-trips the backend.
package registry

import (
	"context"
	"encoding/binary"

	"github.com/ringtsdb/ringtsdb/internal/config"
	"github.com/ringtsdb/ringtsdb/internal/errs"
	"github.com/ringtsdb/ringtsdb/internal/kvcodec"
	"github.com/ringtsdb/ringtsdb/internal/kvstore"
	"github.com/ringtsdb/ringtsdb/internal/ringmath"
)

// Registry resolves (name, tags) pairs to metric ids and maintains their
// descriptors and indexes.
type Registry struct {
	backend kvstore.Backend
	now     func() int64
}

// New creates a Registry over backend. now defaults to the wall clock;
// tests may override it for deterministic CreatedAt values.
func New(backend kvstore.Backend) *Registry {
	return &Registry{backend: backend, now: defaultNow}
}

func defaultNow() int64 { return nowUnix() }

// Ensure resolves (name, tags) to a metric id, creating the descriptor on
// first use. Concurrent Ensure calls for the same (name, tag-set) collapse
// to a single metric_id (spec.md §5 linearizable-per-key guarantee): a
// commit conflict is retried once before surfacing CONFLICT.
func (r *Registry) Ensure(ctx context.Context, name string, tags map[string]string, mtype kvcodec.MetricType, step, slots uint32) (uint64, error) {
	if name == "" {
		return 0, errs.New(errs.Validation, "metric name must not be empty")
	}
	if step < 1 {
		return 0, errs.New(errs.Validation, "step must be >= 1")
	}
	if slots < 1 {
		return 0, errs.New(errs.Validation, "slots must be >= 1")
	}
	if uint64(step)*uint64(slots) > config.MaxRetentionWindowSeconds {
		return 0, errs.New(errs.Validation, "step*slots exceeds configured max window of %d seconds", config.MaxRetentionWindowSeconds)
	}

	var metricID uint64
	var attemptErr error
	for attempt := 0; attempt <= config.EnsureRetries; attempt++ {
		metricID, attemptErr = r.ensureOnce(ctx, name, tags, mtype, step, slots)
		if attemptErr == nil || !errs.IsRetryable(attemptErr) {
			break
		}
	}
	if attemptErr != nil {
		if errs.IsRetryable(attemptErr) {
			return 0, errs.Wrap(errs.Conflict, attemptErr, "ensure(%q) lost a concurrent create race", name)
		}
		return 0, attemptErr
	}
	return metricID, nil
}

func (r *Registry) ensureOnce(ctx context.Context, name string, tags map[string]string, mtype kvcodec.MetricType, step, slots uint32) (uint64, error) {
	var metricID uint64
	err := r.backend.Update(ctx, func(txn kvstore.Txn) error {
		candidates, err := readIDSet(txn, kvcodec.NameIndexKey(name))
		if err != nil {
			return err
		}
		for _, id := range candidates {
			d, err := readDescriptor(txn, id)
			if err != nil {
				return err
			}
			if d == nil || d.Deleting || !tagsEqual(d.Tags, tags) {
				continue
			}
			if d.Type != mtype {
				return errs.New(errs.TypeMismatch, "metric %q with this tag set already exists as %s", name, d.Type)
			}
			metricID = d.MetricID
			return nil
		}

		// No match: allocate a new id and create the descriptor + indexes.
		newID, err := nextMetricID(txn)
		if err != nil {
			return err
		}
		desc := &kvcodec.Descriptor{
			MetricID:  newID,
			Name:      name,
			Tags:      tags,
			Step:      step,
			Slots:     slots,
			Type:      mtype,
			CreatedAt: r.now(),
		}
		if err := writeDescriptor(txn, desc); err != nil {
			return err
		}
		if err := addToIndex(txn, kvcodec.NameIndexKey(name), newID); err != nil {
			return err
		}
		for k, v := range tags {
			if err := addToIndex(txn, kvcodec.TagIndexKey(name, k, v), newID); err != nil {
				return err
			}
		}
		metricID = newID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return metricID, nil
}

// Get returns the descriptor for metricID, or a NOT_FOUND error if it is
// absent or mid-deletion.
func (r *Registry) Get(ctx context.Context, metricID uint64) (*kvcodec.Descriptor, error) {
	var desc *kvcodec.Descriptor
	err := r.backend.View(ctx, func(txn kvstore.Txn) error {
		d, err := readDescriptor(txn, metricID)
		if err != nil {
			return err
		}
		if d == nil || d.Deleting {
			return errs.New(errs.NotFound, "metric %d not found", metricID)
		}
		desc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return desc, nil
}

// Lookup resolves a (name, tags) filter to matching descriptors, capped
// at config.MaxLookupResults and ordered by metric_id.
func (r *Registry) Lookup(ctx context.Context, name string, tags map[string]string, limit int) ([]*kvcodec.Descriptor, error) {
	if limit <= 0 || limit > config.MaxLookupResults {
		limit = config.MaxLookupResults
	}
	var out []*kvcodec.Descriptor
	err := r.backend.View(ctx, func(txn kvstore.Txn) error {
		var candidates idSet
		if name != "" {
			ids, err := readIDSet(txn, kvcodec.NameIndexKey(name))
			if err != nil {
				return err
			}
			candidates = ids
			for k, v := range tags {
				tagged, err := readIDSet(txn, kvcodec.TagIndexKey(name, k, v))
				if err != nil {
					return err
				}
				candidates = intersect(candidates, tagged)
			}
		} else {
			ids, err := scanAllDescriptorIDs(txn)
			if err != nil {
				return err
			}
			candidates = ids
		}
		for _, id := range candidates {
			if len(out) >= limit {
				break
			}
			d, err := readDescriptor(txn, id)
			if err != nil {
				return err
			}
			if d == nil || d.Deleting {
				continue
			}
			out = append(out, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes all five key families for metricID, in bounded,
// idempotent batches (spec.md §4.B). The descriptor is flagged Deleting
// first so writers observe NOT_FOUND while the deletion is in flight,
// then sample and counter keys are cleared in batches of
// config.DeleteBatchSlots, then both indexes, then the descriptor itself.
func (r *Registry) Delete(ctx context.Context, metricID uint64) error {
	var desc *kvcodec.Descriptor
	err := r.backend.Update(ctx, func(txn kvstore.Txn) error {
		d, err := readDescriptor(txn, metricID)
		if err != nil {
			return err
		}
		if d == nil {
			return nil // already gone: idempotent
		}
		if !d.Deleting {
			d.Deleting = true
			if err := writeDescriptor(txn, d); err != nil {
				return err
			}
		}
		desc = d
		return nil
	})
	if err != nil || desc == nil {
		return err
	}

	for {
		cleared, err := r.clearSampleBatch(ctx, metricID, config.DeleteBatchSlots)
		if err != nil {
			return err
		}
		if cleared < config.DeleteBatchSlots {
			break
		}
	}

	return r.backend.Update(ctx, func(txn kvstore.Txn) error {
		if err := txn.Delete(kvcodec.CounterKey(metricID)); err != nil {
			return err
		}
		if err := removeFromIndex(txn, kvcodec.NameIndexKey(desc.Name), metricID); err != nil {
			return err
		}
		for k, v := range desc.Tags {
			if err := removeFromIndex(txn, kvcodec.TagIndexKey(desc.Name, k, v), metricID); err != nil {
				return err
			}
		}
		return txn.Delete(kvcodec.DescriptorKey(metricID))
	})
}

// clearSampleBatch deletes up to max sample keys for metricID and reports
// how many were cleared, so Delete can tell when the prefix is exhausted.
func (r *Registry) clearSampleBatch(ctx context.Context, metricID uint64, max int) (int, error) {
	cleared := 0
	err := r.backend.Update(ctx, func(txn kvstore.Txn) error {
		prefix := kvcodec.SamplePrefix(metricID)
		var keys [][]byte
		err := txn.IterPrefix(prefix, func(key, _ []byte) (bool, error) {
			keys = append(keys, append([]byte{}, key...))
			return len(keys) < max, nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		cleared = len(keys)
		return nil
	})
	return cleared, err
}

// RetentionRewrite changes a gauge's step/slots, re-slotting every
// existing sample under the new geometry and clearing slots the new
// mapping does not cover. Fails TYPE_MISMATCH for counters (spec.md
// §4.B).
//
// Because sample keys address slots by a bare integer (spec.md §4.A),
// the old and new ring geometries share the same key space: rewriting
// slot-by-slot in place while reading the very range being mutated would
// let an already-rewritten new-geometry slot be re-read and reprocessed
// as if it were old-geometry data. RetentionRewrite instead reads the
// entire old ring into memory first (batched read-only transactions, so
// no single transaction holds the whole ring), computes the new mapping
// — keeping, for any new slot two old samples collide into, the sample
// with the later timestamp, consistent with §4.C's overwrite-last-write
// rule — and only then clears the old range and writes the new one in
// bounded write transactions.
func (r *Registry) RetentionRewrite(ctx context.Context, metricID uint64, newStep, newSlots uint32) error {
	if newStep < 1 || newSlots < 1 {
		return errs.New(errs.Validation, "step and slots must be >= 1")
	}
	if uint64(newStep)*uint64(newSlots) > config.MaxRetentionWindowSeconds {
		return errs.New(errs.Validation, "step*slots exceeds configured max window")
	}

	desc, err := r.Get(ctx, metricID)
	if err != nil {
		return err
	}
	if desc.Type != kvcodec.Gauge {
		return errs.New(errs.TypeMismatch, "retention rewrite is gauge-only, metric %d is %s", metricID, desc.Type)
	}
	oldSlots := desc.Slots

	oldSamples, err := r.readAllSamples(ctx, metricID, oldSlots)
	if err != nil {
		return err
	}

	newMap := make(map[uint32]kvcodec.Sample, len(oldSamples))
	for _, s := range oldSamples {
		newSlot := ringmath.SlotFor(s.Ts, newStep, newSlots)
		if existing, ok := newMap[newSlot]; !ok || s.Ts > existing.Ts {
			newMap[newSlot] = s
		}
	}

	if err := r.clearAllSamples(ctx, metricID, oldSlots); err != nil {
		return err
	}
	if err := r.writeSampleMap(ctx, metricID, newMap); err != nil {
		return err
	}

	return r.backend.Update(ctx, func(txn kvstore.Txn) error {
		d, err := readDescriptor(txn, metricID)
		if err != nil {
			return err
		}
		if d == nil {
			return errs.New(errs.NotFound, "metric %d not found", metricID)
		}
		d.Step = newStep
		d.Slots = newSlots
		return writeDescriptor(txn, d)
	})
}

func (r *Registry) readAllSamples(ctx context.Context, metricID uint64, slots uint32) (map[uint32]kvcodec.Sample, error) {
	out := make(map[uint32]kvcodec.Sample)
	for start := uint32(0); start < slots; start += config.RewriteBatchSlots {
		end := start + config.RewriteBatchSlots
		if end > slots {
			end = slots
		}
		err := r.backend.View(ctx, func(txn kvstore.Txn) error {
			for slot := start; slot < end; slot++ {
				raw, err := txn.Get(kvcodec.SampleKey(metricID, slot))
				if err != nil {
					return err
				}
				if raw == nil {
					continue
				}
				s, err := kvcodec.DecodeSample(raw)
				if err != nil {
					return err
				}
				out[slot] = s
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Registry) clearAllSamples(ctx context.Context, metricID uint64, slots uint32) error {
	for start := uint32(0); start < slots; start += config.RewriteBatchSlots {
		end := start + config.RewriteBatchSlots
		if end > slots {
			end = slots
		}
		err := r.backend.Update(ctx, func(txn kvstore.Txn) error {
			for slot := start; slot < end; slot++ {
				if err := txn.Delete(kvcodec.SampleKey(metricID, slot)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) writeSampleMap(ctx context.Context, metricID uint64, samples map[uint32]kvcodec.Sample) error {
	slots := make([]uint32, 0, len(samples))
	for slot := range samples {
		slots = append(slots, slot)
	}
	for start := 0; start < len(slots); start += int(config.RewriteBatchSlots) {
		end := start + int(config.RewriteBatchSlots)
		if end > len(slots) {
			end = len(slots)
		}
		batch := slots[start:end]
		err := r.backend.Update(ctx, func(txn kvstore.Txn) error {
			for _, slot := range batch {
				s := samples[slot]
				if err := txn.Set(kvcodec.SampleKey(metricID, slot), s.Encode()); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func tagsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func nextMetricID(txn kvstore.Txn) (uint64, error) {
	raw, err := txn.Get(kvcodec.IDCounterKey())
	if err != nil {
		return 0, err
	}
	var next uint64 = 1
	if raw != nil {
		next = binary.BigEndian.Uint64(raw) + 1
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := txn.Set(kvcodec.IDCounterKey(), buf); err != nil {
		return 0, err
	}
	return next, nil
}

func readDescriptor(txn kvstore.Txn, metricID uint64) (*kvcodec.Descriptor, error) {
	raw, err := txn.Get(kvcodec.DescriptorKey(metricID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return kvcodec.DecodeDescriptor(raw)
}

func writeDescriptor(txn kvstore.Txn, d *kvcodec.Descriptor) error {
	return txn.Set(kvcodec.DescriptorKey(d.MetricID), d.Encode())
}

func readIDSet(txn kvstore.Txn, key []byte) (idSet, error) {
	raw, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return decodeIDSet(raw), nil
}

func addToIndex(txn kvstore.Txn, key []byte, id uint64) error {
	set, err := readIDSet(txn, key)
	if err != nil {
		return err
	}
	return txn.Set(key, set.add(id).encode())
}

func removeFromIndex(txn kvstore.Txn, key []byte, id uint64) error {
	set, err := readIDSet(txn, key)
	if err != nil {
		return err
	}
	remaining := set.remove(id)
	if len(remaining) == 0 {
		return txn.Delete(key)
	}
	return txn.Set(key, remaining.encode())
}

func scanAllDescriptorIDs(txn kvstore.Txn) (idSet, error) {
	var ids idSet
	err := txn.IterPrefix(kvcodec.DescriptorPrefix(), func(key, _ []byte) (bool, error) {
		if len(key) >= 10 {
			id := binary.BigEndian.Uint64(key[2:10])
			if id != 0 {
				ids = append(ids, id)
			}
		}
		return true, nil
	})
	return ids, err
}
