package merge

import (
	"context"
	"errors"
	"fmt"

	"deckmerge/internal/storage"
)

// ObjectStore is the slice of a content-store backend the merge pipeline
// needs: get-by-key with a distinguishable not-found, and put-by-key.
type ObjectStore interface {
	Get(ctx context.Context, key string) (*storage.Object, error)
	Put(ctx context.Context, key string, obj *storage.Object) error
}

// ImageCache addresses a content store with a deterministic key per card id
// and translates between stored objects and CachedAssets.
type ImageCache struct {
	store  ObjectStore
	prefix string
}

// NewImageCache wraps store with the configured key prefix.
func NewImageCache(store ObjectStore, prefix string) *ImageCache {
	return &ImageCache{store: store, prefix: prefix}
}

func (c *ImageCache) keyFor(id string) string {
	return c.prefix + id
}

// Get looks up the asset for id. The second return is false on a miss;
// backend failures other than not-found propagate unchanged.
func (c *ImageCache) Get(ctx context.Context, id string) (*CachedAsset, bool, error) {
	obj, err := c.store.Get(ctx, c.keyFor(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return assetFromStored(id, obj), true, nil
}

// Put persists the asset payload together with its provenance metadata.
func (c *ImageCache) Put(ctx context.Context, asset *CachedAsset) error {
	if err := c.store.Put(ctx, c.keyFor(asset.ID), assetToObject(asset)); err != nil {
		return fmt.Errorf("cache write for %s: %w", asset.ID, err)
	}
	return nil
}
