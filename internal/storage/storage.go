// Package storage holds product image assets outside the database. The
// catalog releases an image exactly once per delete and once per
// replace-with-new-image update.
package storage

import (
	"context"
	"io"
)

type ImageStore interface {
	// Upload stores the file and returns the reference to persist on the
	// product.
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
	// Delete releases a previously uploaded asset.
	Delete(ctx context.Context, ref string) error
}
