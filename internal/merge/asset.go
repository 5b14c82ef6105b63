package merge

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"deckmerge/internal/storage"
)

// Metadata keys tagged onto stored objects so provenance survives the
// round trip through the content store.
const (
	metaSourceURL = "merge-source-url"
	metaChecksum  = "merge-checksum"
	metaCachedAt  = "merge-cached-at"
)

// UnknownSourceURL marks assets whose origin was not recorded, e.g. objects
// written by a legacy writer without metadata.
const UnknownSourceURL = "cache://unknown"

// Descriptor references a single card image to provision.
type Descriptor struct {
	ID       string
	ImageURI string
}

// FetchedImage is the raw result of a successful remote fetch.
type FetchedImage struct {
	Data        []byte
	Bytes       int64
	ContentType string
	// URL is the final URL after redirects.
	URL string
}

// CachedAsset is a binary image payload plus its provenance. Checksum is
// always the SHA-256 of Data and Bytes always equals len(Data).
type CachedAsset struct {
	ID          string
	Data        []byte
	ContentType string
	Bytes       int64
	Checksum    string
	CachedAt    time.Time
	SourceURL   string
}

// ProvidedImage is a CachedAsset tagged with how it was obtained. WasCached
// is true only when the asset existed in the content store before this
// request.
type ProvidedImage struct {
	CachedAsset
	WasCached bool
}

// Checksum returns the hex-encoded SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// assetFromStored reconstructs a CachedAsset from a stored object. Missing
// metadata falls back to recomputing the checksum, the backend's
// last-modified timestamp, and the unknown-source sentinel.
func assetFromStored(id string, obj *storage.Object) *CachedAsset {
	checksum := obj.Metadata[metaChecksum]
	if checksum == "" {
		checksum = Checksum(obj.Data)
	}

	cachedAt := obj.LastModified
	if raw := obj.Metadata[metaCachedAt]; raw != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			cachedAt = parsed
		}
	}
	if cachedAt.IsZero() {
		cachedAt = time.Now().UTC()
	}

	sourceURL := obj.Metadata[metaSourceURL]
	if sourceURL == "" {
		sourceURL = UnknownSourceURL
	}

	return &CachedAsset{
		ID:          id,
		Data:        obj.Data,
		ContentType: obj.ContentType,
		Bytes:       int64(len(obj.Data)),
		Checksum:    checksum,
		CachedAt:    cachedAt,
		SourceURL:   sourceURL,
	}
}

// assetFromFetched wraps a freshly fetched image; the checksum is always
// computed fresh.
func assetFromFetched(id string, img *FetchedImage) *CachedAsset {
	return &CachedAsset{
		ID:          id,
		Data:        img.Data,
		ContentType: img.ContentType,
		Bytes:       img.Bytes,
		Checksum:    Checksum(img.Data),
		CachedAt:    time.Now().UTC(),
		SourceURL:   img.URL,
	}
}

// assetToObject projects a CachedAsset into a storable object with its
// provenance metadata attached.
func assetToObject(asset *CachedAsset) *storage.Object {
	return &storage.Object{
		Data:        asset.Data,
		ContentType: asset.ContentType,
		Metadata: map[string]string{
			metaSourceURL: asset.SourceURL,
			metaChecksum:  asset.Checksum,
			metaCachedAt:  asset.CachedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}
