package merge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"deckmerge/pkg/parallel"
)

// Synthetic identity for the inline hidden image occupying the reserved
// final slot.
const (
	hiddenImageID        = "hidden-image"
	hiddenImageSourceURL = "inline://hidden-image"
)

// TileSize reports the fixed tile dimensions in result metadata.
type TileSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// OutputInfo reports the rendered sheet's shape and encoding.
type OutputInfo struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Format      string `json:"format"`
	ContentType string `json:"contentType"`
}

// Failure is reserved for per-card failure reporting. Provisioning failures
// currently abort the whole merge, so the list is always empty on success.
type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Status int    `json:"status,omitempty"`
}

// Metadata is the aggregated provenance report for one merge.
type Metadata struct {
	TotalRequested int        `json:"totalRequested"`
	Grid           Grid       `json:"grid"`
	Tile           TileSize   `json:"tile"`
	Output         OutputInfo `json:"output"`
	Cached         []string   `json:"cached"`
	Downloaded     []string   `json:"downloaded"`
	DurationMs     float64    `json:"durationMs"`
	Failures       []Failure  `json:"failures"`
}

// Result is a finished merge: the encoded sheet plus its metadata.
type Result struct {
	Buffer      []byte
	ContentType string
	Metadata    Metadata
}

// EncodeMetadataHeader serializes metadata for transport in a response
// header, base64url without padding.
func EncodeMetadataHeader(m Metadata) (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Service orchestrates a merge: parse, capacity check, bounded provisioning,
// slot placement, optional hidden image, composition, packaging. A merge is
// all-or-nothing; the first provisioning failure aborts it.
type Service struct {
	provider    *Provider
	compositor  *Compositor
	concurrency int
	logger      zerolog.Logger
}

// ServiceOptions wires a Service from configuration and collaborators.
type ServiceOptions struct {
	Store            ObjectStore
	CachePrefix      string
	MaxImageBytes    int64
	FetchTimeout     time.Duration
	FetchConcurrency int
	OutputFormat     string
	TileWidth        int
	TileHeight       int
	HTTPClient       *http.Client
	Logger           zerolog.Logger
}

// NewService constructs the merge pipeline.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("merge: store is required")
	}
	if opts.FetchConcurrency < 1 {
		return nil, fmt.Errorf("merge: fetch concurrency must be at least 1, got %d", opts.FetchConcurrency)
	}

	compositor, err := NewCompositor(opts.TileWidth, opts.TileHeight, opts.OutputFormat)
	if err != nil {
		return nil, err
	}

	cache := NewImageCache(opts.Store, opts.CachePrefix)
	fetcher := NewFetcher(FetcherOptions{
		HTTPClient: opts.HTTPClient,
		Timeout:    opts.FetchTimeout,
		MaxBytes:   opts.MaxImageBytes,
	})
	provider := NewProvider(cache, fetcher, opts.MaxImageBytes, opts.Logger)

	return &Service{
		provider:    provider,
		compositor:  compositor,
		concurrency: opts.FetchConcurrency,
		logger:      opts.Logger,
	}, nil
}

// MergeDeck parses a raw JSON payload and executes the merge.
func (s *Service) MergeDeck(ctx context.Context, raw []byte) (*Result, error) {
	request, err := ParseRequest(raw)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, request)
}

// Execute runs an already-parsed request through the pipeline.
func (s *Service) Execute(ctx context.Context, request *Request) (*Result, error) {
	startedAt := time.Now()

	totalCells := request.Grid.Rows * request.Grid.Columns
	visibleSlots := totalCells
	if request.Hidden != nil {
		visibleSlots = totalCells - 1
	}
	if len(request.Cards) > visibleSlots {
		message := fmt.Sprintf("cards must contain %d items or fewer", visibleSlots)
		if request.Hidden != nil {
			message = fmt.Sprintf("cards must contain %d items or fewer to reserve the final slot for the hidden image", visibleSlots)
		}
		return nil, &ValidationError{Issues: []Issue{{Code: "custom", Message: message, Path: "cards"}}}
	}

	images, err := parallel.Map(ctx, request.Cards, s.concurrency,
		func(ctx context.Context, card Card, _ int) (*ProvidedImage, error) {
			fetchStartedAt := time.Now()
			img, err := s.provider.GetImage(ctx, Descriptor{ID: card.ID, ImageURI: card.ImageURI})
			elapsed := time.Since(fetchStartedAt)
			if err != nil {
				s.logger.Warn().Err(err).Str("id", card.ID).Dur("elapsed", elapsed).
					Msg("card provisioning failed")
				return nil, err
			}
			s.logger.Debug().Str("id", card.ID).Bool("cached", img.WasCached).
				Dur("elapsed", elapsed).Msg("card provisioned")
			return img, nil
		})
	if err != nil {
		return nil, err
	}

	slots := make([]*ProvidedImage, totalCells)
	for i, img := range images {
		slots[request.Cards[i].Index] = img
	}

	all := images
	if request.Hidden != nil {
		hidden, err := s.provideHiddenImage(request.Hidden)
		if err != nil {
			return nil, err
		}
		slots[totalCells-1] = hidden
		all = append(all, hidden)
	}

	cached := make([]string, 0, len(all))
	downloaded := make([]string, 0, len(all))
	for _, img := range all {
		if img.WasCached {
			cached = append(cached, img.ID)
		} else {
			downloaded = append(downloaded, img.ID)
		}
	}

	composition, err := s.compositor.ComposeGrid(slots, request.Grid)
	if err != nil {
		return nil, err
	}

	contentType := "image/png"
	if composition.Format == "jpeg" {
		contentType = "image/jpeg"
	}

	durationMs := float64(time.Since(startedAt)) / float64(time.Millisecond)
	s.logger.Info().Int("cards", len(request.Cards)).Int("cache_hits", len(cached)).
		Int("downloads", len(downloaded)).Float64("duration_ms", durationMs).
		Msg("merge completed")

	return &Result{
		Buffer:      composition.Buffer,
		ContentType: contentType,
		Metadata: Metadata{
			TotalRequested: len(all),
			Grid:           request.Grid,
			Tile:           TileSize{Width: composition.TileWidth, Height: composition.TileHeight},
			Output: OutputInfo{
				Width:       composition.Width,
				Height:      composition.Height,
				Format:      composition.Format,
				ContentType: contentType,
			},
			Cached:     cached,
			Downloaded: downloaded,
			DurationMs: durationMs,
			Failures:   []Failure{},
		},
	}, nil
}

// provideHiddenImage renders the inline payload into a tile. It bypasses
// the cache entirely and counts as a download in result metadata. Bytes
// that fail to decode as an image downgrade to a validation error so the
// client sees a 422.
func (s *Service) provideHiddenImage(hidden *HiddenImage) (*ProvidedImage, error) {
	tile, err := s.compositor.PrepareTile(hidden.Data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("hidden image processing failed")
		return nil, &ValidationError{Issues: []Issue{{
			Code:    "custom",
			Message: "hiddenImage must decode to a valid PNG or JPEG image",
			Path:    "hiddenImage",
		}}}
	}

	return &ProvidedImage{
		CachedAsset: CachedAsset{
			ID:          hiddenImageID,
			Data:        tile,
			ContentType: hidden.ContentType,
			Bytes:       int64(len(tile)),
			Checksum:    Checksum(tile),
			CachedAt:    time.Now().UTC(),
			SourceURL:   hiddenImageSourceURL,
		},
		WasCached: false,
	}, nil
}
