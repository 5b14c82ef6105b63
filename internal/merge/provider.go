package merge

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// Provider resolves descriptors to image bytes via the cache-or-fetch
// policy: content store first, remote fetch plus mandatory persist on a
// miss.
type Provider struct {
	cache    *ImageCache
	fetcher  *Fetcher
	maxBytes int64
	logger   zerolog.Logger
}

// NewProvider wires a Provider from its collaborators.
func NewProvider(cache *ImageCache, fetcher *Fetcher, maxBytes int64, logger zerolog.Logger) *Provider {
	return &Provider{cache: cache, fetcher: fetcher, maxBytes: maxBytes, logger: logger}
}

// GetImage resolves desc to a ProvidedImage. Failures are reported as
// *ProvisionError carrying a status and machine-readable code; store-read
// failures are treated as unexpected and surface under the generic
// provision-failed code.
func (p *Provider) GetImage(ctx context.Context, desc Descriptor) (*ProvidedImage, error) {
	cached, ok, err := p.cache.Get(ctx, desc.ID)
	if err != nil {
		return nil, newProvisionError(desc.ID, 0, CodeProvisionFailed,
			fmt.Sprintf("failed to resolve image %s from %s", desc.ID, desc.ImageURI), err)
	}

	if ok {
		p.logger.Debug().Str("id", desc.ID).Int64("bytes", cached.Bytes).
			Str("source_url", cached.SourceURL).Msg("image cache hit")
		if err := p.ensureWithinSize(cached); err != nil {
			return nil, err
		}
		if cached.SourceURL == UnknownSourceURL {
			cached.SourceURL = desc.ImageURI
		}
		return &ProvidedImage{CachedAsset: *cached, WasCached: true}, nil
	}

	remote, err := p.fetcher.Fetch(ctx, desc.ImageURI)
	if err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			status := fetchErr.Status
			if status == 0 {
				status = http.StatusBadGateway
			}
			return nil, newProvisionError(desc.ID, status, CodeFetchFailed, fetchErr.Error(), fetchErr)
		}
		return nil, newProvisionError(desc.ID, 0, CodeProvisionFailed,
			fmt.Sprintf("failed to resolve image %s from %s", desc.ID, desc.ImageURI), err)
	}

	p.logger.Debug().Str("id", desc.ID).Int64("bytes", remote.Bytes).
		Str("content_type", remote.ContentType).Str("resolved_url", remote.URL).
		Msg("fetched remote image")

	asset := assetFromFetched(desc.ID, remote)
	if err := p.ensureWithinSize(asset); err != nil {
		return nil, err
	}

	// Persistence is mandatory on the fresh path: the fetched bytes are
	// not returned when the cache write fails.
	if err := p.cache.Put(ctx, asset); err != nil {
		p.logger.Error().Err(err).Str("id", desc.ID).Msg("failed to cache image")
		return nil, newProvisionError(desc.ID, 0, CodeCacheFailed,
			fmt.Sprintf("failed to persist image %s in cache", desc.ID), err)
	}

	return &ProvidedImage{CachedAsset: *asset, WasCached: false}, nil
}

func (p *Provider) ensureWithinSize(asset *CachedAsset) error {
	if asset.Bytes > p.maxBytes {
		return newProvisionError(asset.ID, http.StatusRequestEntityTooLarge, CodeTooLarge,
			fmt.Sprintf("image %s exceeds maximum allowed size (%d > %d)", asset.ID, asset.Bytes, p.maxBytes), nil)
	}
	return nil
}
