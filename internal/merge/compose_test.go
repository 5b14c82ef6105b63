package merge

import (
	"image/color"
	"strings"
	"testing"
)

func provided(t *testing.T, id string, data []byte) *ProvidedImage {
	t.Helper()
	return &ProvidedImage{CachedAsset: CachedAsset{
		ID:       id,
		Data:     data,
		Bytes:    int64(len(data)),
		Checksum: Checksum(data),
	}}
}

func TestComposeGridDimensions(t *testing.T) {
	compositor, err := NewCompositor(20, 28, "png")
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}

	grid := Grid{Rows: 7, Columns: 10}
	slots := make([]*ProvidedImage, grid.Rows*grid.Columns)
	slots[0] = provided(t, "a", pngBytes(t, 10, 14, color.RGBA{R: 255, A: 255}))

	result, err := compositor.ComposeGrid(slots, grid)
	if err != nil {
		t.Fatalf("ComposeGrid: %v", err)
	}
	if result.Width != 200 || result.Height != 196 {
		t.Fatalf("canvas dimensions mismatch: %dx%d", result.Width, result.Height)
	}
	if result.TileWidth != 20 || result.TileHeight != 28 {
		t.Fatalf("tile dimensions mismatch: %dx%d", result.TileWidth, result.TileHeight)
	}

	decoded := decodeImage(t, result.Buffer)
	bounds := decoded.Bounds()
	if bounds.Dx() != 200 || bounds.Dy() != 196 {
		t.Fatalf("decoded dimensions mismatch: %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestComposeGridPlacesSlotsRowMajor(t *testing.T) {
	compositor, err := NewCompositor(10, 10, "png")
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}

	grid := Grid{Rows: 2, Columns: 2}
	red := color.RGBA{R: 255, A: 255}
	green := color.RGBA{G: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	slots := []*ProvidedImage{
		provided(t, "slot0", pngBytes(t, 10, 10, red)),
		provided(t, "slot1", pngBytes(t, 10, 10, green)),
		nil,
		provided(t, "slot3", pngBytes(t, 10, 10, blue)),
	}

	result, err := compositor.ComposeGrid(slots, grid)
	if err != nil {
		t.Fatalf("ComposeGrid: %v", err)
	}

	decoded := decodeImage(t, result.Buffer)
	checks := []struct {
		x, y int
		want color.RGBA
	}{
		{5, 5, red},    // slot 0: top-left
		{15, 5, green}, // slot 1: top-right
		{15, 15, blue}, // slot 3: bottom-right
	}
	for _, check := range checks {
		r, g, b, a := decoded.At(check.x, check.y).RGBA()
		got := color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
		if got != check.want {
			t.Fatalf("pixel (%d,%d) = %v, want %v", check.x, check.y, got, check.want)
		}
	}

	// Slot 2 (bottom-left) stays transparent in PNG output.
	_, _, _, alpha := decoded.At(5, 15).RGBA()
	if alpha != 0 {
		t.Fatalf("expected transparent empty slot, alpha = %d", alpha)
	}
}

func TestComposeGridContainFitPadsWithoutCropping(t *testing.T) {
	compositor, err := NewCompositor(20, 20, "png")
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}

	// A wide source must letterbox vertically, not crop.
	grid := Grid{Rows: 1, Columns: 1}
	slots := []*ProvidedImage{provided(t, "wide", pngBytes(t, 40, 20, color.RGBA{R: 255, A: 255}))}

	result, err := compositor.ComposeGrid(slots, grid)
	if err != nil {
		t.Fatalf("ComposeGrid: %v", err)
	}

	decoded := decodeImage(t, result.Buffer)
	_, _, _, topAlpha := decoded.At(10, 1).RGBA()
	if topAlpha != 0 {
		t.Fatalf("expected transparent padding above letterboxed image")
	}
	r, _, _, a := decoded.At(10, 10).RGBA()
	if a == 0 || r>>8 < 200 {
		t.Fatalf("expected red content at tile center, got r=%d a=%d", r>>8, a>>8)
	}
}

func TestComposeGridJPEGFlattensOntoBlack(t *testing.T) {
	compositor, err := NewCompositor(10, 10, "jpeg")
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}

	grid := Grid{Rows: 1, Columns: 2}
	slots := []*ProvidedImage{provided(t, "a", jpegBytes(t, 10, 10, color.RGBA{255, 255, 255, 255})), nil}

	result, err := compositor.ComposeGrid(slots, grid)
	if err != nil {
		t.Fatalf("ComposeGrid: %v", err)
	}
	if result.Format != "jpeg" {
		t.Fatalf("format mismatch: %q", result.Format)
	}

	decoded := decodeImage(t, result.Buffer)
	// The empty slot is opaque black, not transparent.
	r, g, b, a := decoded.At(15, 5).RGBA()
	if a == 0 {
		t.Fatalf("jpeg output must be fully opaque")
	}
	if r>>8 > 16 || g>>8 > 16 || b>>8 > 16 {
		t.Fatalf("expected black empty slot, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestComposeGridRequiresAnImage(t *testing.T) {
	compositor, err := NewCompositor(10, 10, "png")
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}

	_, err = compositor.ComposeGrid(make([]*ProvidedImage, 4), Grid{Rows: 2, Columns: 2})
	if err == nil || !strings.Contains(err.Error(), "at least one image") {
		t.Fatalf("expected empty-grid error, got %v", err)
	}
}

func TestComposeGridRejectsUndecodableImage(t *testing.T) {
	compositor, err := NewCompositor(10, 10, "png")
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}

	slots := []*ProvidedImage{provided(t, "junk", []byte("not an image"))}
	if _, err := compositor.ComposeGrid(slots, Grid{Rows: 1, Columns: 1}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestPrepareTileMatchesTileSize(t *testing.T) {
	compositor, err := NewCompositor(16, 24, "png")
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}

	tile, err := compositor.PrepareTile(pngBytes(t, 100, 30, color.RGBA{B: 255, A: 255}))
	if err != nil {
		t.Fatalf("PrepareTile: %v", err)
	}
	decoded := decodeImage(t, tile)
	if decoded.Bounds().Dx() != 16 || decoded.Bounds().Dy() != 24 {
		t.Fatalf("tile dimensions mismatch: %dx%d", decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}
}
