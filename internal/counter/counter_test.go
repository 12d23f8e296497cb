package counter

import (
	"context"
	"testing"

	"github.com/ringtsdb/ringtsdb/internal/errs"
	"github.com/ringtsdb/ringtsdb/internal/kvcodec"
	"github.com/ringtsdb/ringtsdb/internal/kvstore"
	"github.com/ringtsdb/ringtsdb/internal/registry"
	"github.com/ringtsdb/ringtsdb/internal/ring"
)

func newTestCounter(t *testing.T, mtype kvcodec.MetricType) (*Counter, uint64) {
	t.Helper()
	backend := kvstore.NewMemoryBackend()
	reg := registry.New(backend)
	rg := ring.New(backend, reg)
	id, err := reg.Ensure(context.Background(), "requests_total", nil, mtype, 1, 100)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	return New(backend, reg, rg), id
}

func TestIngestCounterTracksLastState(t *testing.T) {
	c, id := newTestCounter(t, kvcodec.Counter)
	ctx := context.Background()

	if err := c.IngestCounter(ctx, id, 1, 10); err != nil {
		t.Fatalf("IngestCounter(1) failed: %v", err)
	}
	if err := c.IngestCounter(ctx, id, 2, 25); err != nil {
		t.Fatalf("IngestCounter(2) failed: %v", err)
	}

	state, ok, err := c.LastState(ctx, id)
	if err != nil {
		t.Fatalf("LastState failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected counter state to exist")
	}
	if state.LastTs != 2 || state.LastRaw != 25 {
		t.Errorf("expected state (2, 25), got (%d, %v)", state.LastTs, state.LastRaw)
	}
}

func TestIngestCounterIgnoresOutOfOrderState(t *testing.T) {
	c, id := newTestCounter(t, kvcodec.Counter)
	ctx := context.Background()

	if err := c.IngestCounter(ctx, id, 5, 100); err != nil {
		t.Fatalf("IngestCounter(5) failed: %v", err)
	}
	if err := c.IngestCounter(ctx, id, 3, 50); err != nil {
		t.Fatalf("IngestCounter(3) failed: %v", err)
	}

	state, _, err := c.LastState(ctx, id)
	if err != nil {
		t.Fatalf("LastState failed: %v", err)
	}
	if state.LastTs != 5 || state.LastRaw != 100 {
		t.Errorf("expected state to remain (5, 100) after out-of-order write, got (%d, %v)", state.LastTs, state.LastRaw)
	}
}

func TestIngestCounterRejectsGauge(t *testing.T) {
	c, id := newTestCounter(t, kvcodec.Gauge)
	err := c.IngestCounter(context.Background(), id, 1, 1)
	if !errs.Is(err, errs.TypeMismatch) {
		t.Errorf("expected TYPE_MISMATCH for gauge metric, got %v", err)
	}
}
