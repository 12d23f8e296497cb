// Package dashboards stores opaque dashboard blobs keyed by slug (spec.md
// §4.J, key family 6). ringtsdb does not interpret the blob contents;
// front ends own the JSON schema for panel layouts.
package dashboards

import (
	"context"

	"github.com/ringtsdb/ringtsdb/internal/errs"
	"github.com/ringtsdb/ringtsdb/internal/kvcodec"
	"github.com/ringtsdb/ringtsdb/internal/kvstore"
)

// Dashboards is opaque blob storage over key family 6.
type Dashboards struct {
	backend kvstore.Backend
}

// New creates a Dashboards store over backend.
func New(backend kvstore.Backend) *Dashboards {
	return &Dashboards{backend: backend}
}

// Put stores body under slug, overwriting any prior value.
func (d *Dashboards) Put(ctx context.Context, slug string, body []byte) error {
	if slug == "" {
		return errs.New(errs.Validation, "dashboard slug must not be empty")
	}
	return d.backend.Update(ctx, func(txn kvstore.Txn) error {
		return txn.Set(kvcodec.DashboardKey(slug), body)
	})
}

// Get returns the blob stored at slug, or NOT_FOUND if absent.
func (d *Dashboards) Get(ctx context.Context, slug string) ([]byte, error) {
	var body []byte
	err := d.backend.View(ctx, func(txn kvstore.Txn) error {
		raw, err := txn.Get(kvcodec.DashboardKey(slug))
		if err != nil {
			return err
		}
		if raw == nil {
			return errs.New(errs.NotFound, "dashboard %q not found", slug)
		}
		body = append([]byte{}, raw...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// List returns every stored dashboard slug, in ascending order.
func (d *Dashboards) List(ctx context.Context) ([]string, error) {
	var slugs []string
	err := d.backend.View(ctx, func(txn kvstore.Txn) error {
		return txn.IterPrefix(kvcodec.DashboardPrefix(), func(key, _ []byte) (bool, error) {
			slug, err := kvcodec.DecodeDashboardKey(key)
			if err != nil {
				return false, err
			}
			slugs = append(slugs, slug)
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return slugs, nil
}

// Delete removes slug. Deleting an absent slug is not an error.
func (d *Dashboards) Delete(ctx context.Context, slug string) error {
	return d.backend.Update(ctx, func(txn kvstore.Txn) error {
		return txn.Delete(kvcodec.DashboardKey(slug))
	})
}
