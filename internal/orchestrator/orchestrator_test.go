package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/ringtsdb/ringtsdb/internal/errs"
	"github.com/ringtsdb/ringtsdb/internal/kvcodec"
	"github.com/ringtsdb/ringtsdb/internal/kvstore"
	"github.com/ringtsdb/ringtsdb/internal/registry"
	"github.com/ringtsdb/ringtsdb/internal/ring"
)

func TestValidateReferencesRejectsUnknownTable(t *testing.T) {
	err := validateReferences("SELECT * FROM secrets WHERE metric_id = 1")
	if !errs.Is(err, errs.Validation) {
		t.Errorf("expected VALIDATION for unknown table, got %v", err)
	}
}

func TestValidateReferencesAcceptsKnownTables(t *testing.T) {
	err := validateReferences("SELECT s.value AS v FROM samples s JOIN metrics m ON s.metric_id = m.metric_id WHERE s.metric_id = 1 AND s.ts BETWEEN 0 AND 10")
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestRejectUnboundedSamplesScan(t *testing.T) {
	if err := rejectUnboundedSamplesScan("SELECT * FROM samples"); !errs.Is(err, errs.Validation) {
		t.Errorf("expected VALIDATION for unbounded samples scan, got %v", err)
	}
	if err := rejectUnboundedSamplesScan("SELECT * FROM samples WHERE metric_id = 1"); err != nil {
		t.Errorf("expected no error with metric_id predicate, got %v", err)
	}
	if err := rejectUnboundedSamplesScan("SELECT * FROM samples WHERE ts >= 0"); err != nil {
		t.Errorf("expected no error with ts predicate, got %v", err)
	}
	if err := rejectUnboundedSamplesScan("SELECT * FROM metrics"); err != nil {
		t.Errorf("expected no error for a query that never touches samples, got %v", err)
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, uint64) {
	t.Helper()
	backend := kvstore.NewMemoryBackend()
	reg := registry.New(backend)
	rg := ring.New(backend, reg)
	id, err := reg.Ensure(context.Background(), "cpu", map[string]string{"host": "a"}, kvcodec.Gauge, 1, 10)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	return New(reg, rg), id
}

func TestQueryRejectsEmptyMetricResolution(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.Query(context.Background(), Request{
		MetricIDs: nil,
		StartTS:   0,
		EndTS:     10,
		SQL:       "SELECT * FROM samples WHERE metric_id = 1",
	})
	if !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NOT_FOUND when no metric_ids/selectors resolve, got %v", err)
	}
}

func TestQueryRejectsInvertedRange(t *testing.T) {
	o, id := newTestOrchestrator(t)
	_, err := o.Query(context.Background(), Request{
		MetricIDs: []uint64{id},
		StartTS:   10,
		EndTS:     0,
		SQL:       "SELECT * FROM samples WHERE metric_id = 1",
	})
	if !errs.Is(err, errs.Validation) {
		t.Errorf("expected VALIDATION for end_ts < start_ts, got %v", err)
	}
}

// TestQueryRunsRealSQLAgainstRingData drives an actual SQL string end to
// end through Orchestrator.Query against populated ring data, reproducing
// spec.md's end-to-end scenario 1: step=1, slots=4, ingest ts=100..104
// (ts=100 overwritten on wrap), read back via a real `samples` query bound
// to [100, 104]. This is the closed-interval boundary that ring.go's
// ReadRange handles; validateReferences/rejectUnboundedSamplesScan string
// checks alone would never have caught a regression there.
func TestQueryRunsRealSQLAgainstRingData(t *testing.T) {
	backend := kvstore.NewMemoryBackend()
	reg := registry.New(backend)
	rg := ring.New(backend, reg)
	id, err := reg.Ensure(context.Background(), "cpu", nil, kvcodec.Gauge, 1, 4)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	values := map[int64]float64{100: 1.0, 101: 2.0, 102: 3.0, 103: 4.0, 104: 5.0}
	for _, ts := range []int64{100, 101, 102, 103, 104} {
		if err := rg.WriteSample(context.Background(), id, ts, values[ts]); err != nil {
			t.Fatalf("WriteSample(%d) failed: %v", ts, err)
		}
	}

	o := New(reg, rg)
	rows, err := o.Query(context.Background(), Request{
		MetricIDs: []uint64{id},
		StartTS:   100,
		EndTS:     104,
		SQL:       fmt.Sprintf("SELECT ts, value FROM samples WHERE metric_id = %d AND ts BETWEEN 100 AND 104 ORDER BY ts", id),
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows (ts=100 overwritten, ts=104 included), got %d: %+v", len(rows), rows)
	}
	wantTs := []int64{101, 102, 103, 104}
	for i, row := range rows {
		ts, ok := row["ts"].(int64)
		if !ok {
			t.Fatalf("row %d: ts column has unexpected type %T: %+v", i, row["ts"], row)
		}
		if ts != wantTs[i] {
			t.Errorf("row %d: expected ts=%d, got %d", i, wantTs[i], ts)
		}
	}
	if rows[len(rows)-1]["ts"].(int64) != 104 {
		t.Errorf("expected last row ts=104 (inclusive end), got %v", rows[len(rows)-1]["ts"])
	}
}

func TestResolveMetricIDsDedupesAcrossSelectorsAndExplicitIDs(t *testing.T) {
	o, id := newTestOrchestrator(t)
	ids, err := o.resolveMetricIDs(context.Background(), Request{
		MetricIDs: []uint64{id},
		Selectors: []Selector{{Name: "cpu", Tags: map[string]string{"host": "a"}}},
	})
	if err != nil {
		t.Fatalf("resolveMetricIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("expected single deduped id %d, got %v", id, ids)
	}
}
