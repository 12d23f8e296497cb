package registry

import (
	"context"
	"testing"

	"github.com/ringtsdb/ringtsdb/internal/errs"
	"github.com/ringtsdb/ringtsdb/internal/kvcodec"
	"github.com/ringtsdb/ringtsdb/internal/kvstore"
)

func newTestRegistry() *Registry {
	return New(kvstore.NewMemoryBackend())
}

func TestEnsureCreatesAndReuses(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	id1, err := r.Ensure(ctx, "cpu_usage", map[string]string{"host": "a"}, kvcodec.Gauge, 1, 10)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	id2, err := r.Ensure(ctx, "cpu_usage", map[string]string{"host": "a"}, kvcodec.Gauge, 1, 10)
	if err != nil {
		t.Fatalf("Ensure (repeat) failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("repeated ensure() for same (name,tags) returned different ids: %d vs %d", id1, id2)
	}

	id3, err := r.Ensure(ctx, "cpu_usage", map[string]string{"host": "b"}, kvcodec.Gauge, 1, 10)
	if err != nil {
		t.Fatalf("Ensure (distinct tags) failed: %v", err)
	}
	if id3 == id1 {
		t.Errorf("distinct tag sets collapsed to the same metric id")
	}
}

func TestEnsureRejectsTypeMismatch(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	if _, err := r.Ensure(ctx, "requests", nil, kvcodec.Gauge, 1, 10); err != nil {
		t.Fatalf("initial Ensure failed: %v", err)
	}
	_, err := r.Ensure(ctx, "requests", nil, kvcodec.Counter, 1, 10)
	if !errs.Is(err, errs.TypeMismatch) {
		t.Errorf("expected TYPE_MISMATCH, got %v", err)
	}
}

func TestEnsureValidatesGeometry(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	if _, err := r.Ensure(ctx, "m", nil, kvcodec.Gauge, 0, 10); !errs.Is(err, errs.Validation) {
		t.Errorf("expected VALIDATION for step=0, got %v", err)
	}
	if _, err := r.Ensure(ctx, "m", nil, kvcodec.Gauge, 1, 0); !errs.Is(err, errs.Validation) {
		t.Errorf("expected VALIDATION for slots=0, got %v", err)
	}
}

func TestLookupByNameAndTags(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	idA, _ := r.Ensure(ctx, "latency", map[string]string{"region": "us"}, kvcodec.Gauge, 1, 10)
	idB, _ := r.Ensure(ctx, "latency", map[string]string{"region": "eu"}, kvcodec.Gauge, 1, 10)

	byName, err := r.Lookup(ctx, "latency", nil, 0)
	if err != nil {
		t.Fatalf("Lookup by name failed: %v", err)
	}
	if len(byName) != 2 {
		t.Errorf("expected 2 descriptors by name, got %d", len(byName))
	}

	byTag, err := r.Lookup(ctx, "latency", map[string]string{"region": "us"}, 0)
	if err != nil {
		t.Fatalf("Lookup by tag failed: %v", err)
	}
	if len(byTag) != 1 || byTag[0].MetricID != idA {
		t.Errorf("expected single descriptor %d, got %+v", idA, byTag)
	}
	_ = idB
}

func TestDeleteIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	id, err := r.Ensure(ctx, "will_delete", nil, kvcodec.Gauge, 1, 4)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if err := r.Delete(ctx, id); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if err := r.Delete(ctx, id); err != nil {
		t.Fatalf("second Delete (idempotent) failed: %v", err)
	}
	if _, err := r.Get(ctx, id); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NOT_FOUND after delete, got %v", err)
	}
}

func TestRetentionRewriteGaugeOnly(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	counterID, err := r.Ensure(ctx, "reqs", nil, kvcodec.Counter, 1, 10)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if err := r.RetentionRewrite(ctx, counterID, 2, 10); !errs.Is(err, errs.TypeMismatch) {
		t.Errorf("expected TYPE_MISMATCH for counter retention rewrite, got %v", err)
	}
}
