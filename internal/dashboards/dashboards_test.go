package dashboards

import (
	"context"
	"reflect"
	"testing"

	"github.com/ringtsdb/ringtsdb/internal/errs"
	"github.com/ringtsdb/ringtsdb/internal/kvstore"
)

func TestPutGetRoundTrip(t *testing.T) {
	d := New(kvstore.NewMemoryBackend())
	ctx := context.Background()

	body := []byte(`{"panels":[]}`)
	if err := d.Put(ctx, "cpu-overview", body); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := d.Get(ctx, "cpu-overview")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(got, body) {
		t.Errorf("expected %q, got %q", body, got)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	d := New(kvstore.NewMemoryBackend())
	_, err := d.Get(context.Background(), "missing")
	if !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestListReturnsAllSlugsSorted(t *testing.T) {
	d := New(kvstore.NewMemoryBackend())
	ctx := context.Background()

	for _, slug := range []string{"zeta", "alpha", "mid"} {
		if err := d.Put(ctx, slug, []byte("{}")); err != nil {
			t.Fatalf("Put(%q) failed: %v", slug, err)
		}
	}
	slugs, err := d.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if !reflect.DeepEqual(slugs, want) {
		t.Errorf("expected %v, got %v", want, slugs)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	d := New(kvstore.NewMemoryBackend())
	ctx := context.Background()

	if err := d.Put(ctx, "temp", []byte("{}")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := d.Delete(ctx, "temp"); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if err := d.Delete(ctx, "temp"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if _, err := d.Get(ctx, "temp"); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NOT_FOUND after delete, got %v", err)
	}
}
