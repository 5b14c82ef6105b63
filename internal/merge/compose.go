package merge

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// jpegQuality keeps JPEG sheets visually lossless for card text.
const jpegQuality = 90

// Compositor renders provided images into a uniform tiled sheet. The tile
// size is fixed at construction, chosen once for the deck's physical card
// aspect ratio rather than derived from the inputs.
type Compositor struct {
	tileWidth  int
	tileHeight int
	format     string
}

// CompositeResult is an encoded sheet plus its dimensions.
type CompositeResult struct {
	Buffer     []byte
	Width      int
	Height     int
	TileWidth  int
	TileHeight int
	Format     string
}

// NewCompositor constructs a Compositor for the given tile size and output
// format ("png" or "jpeg"). The format applies uniformly to every tile and
// the sheet.
func NewCompositor(tileWidth, tileHeight int, format string) (*Compositor, error) {
	if tileWidth <= 0 || tileHeight <= 0 {
		return nil, fmt.Errorf("tile dimensions must be positive, got %dx%d", tileWidth, tileHeight)
	}
	if format != "png" && format != "jpeg" {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return &Compositor{tileWidth: tileWidth, tileHeight: tileHeight, format: format}, nil
}

// ComposeGrid lays the slot-indexed images onto one canvas. Slot i's origin
// is (i%columns)*tileWidth, (i/columns)*tileHeight. Empty slots keep the
// background: transparent for PNG, opaque black for JPEG.
func (c *Compositor) ComposeGrid(images []*ProvidedImage, grid Grid) (*CompositeResult, error) {
	occupied := false
	for _, img := range images {
		if img != nil {
			occupied = true
			break
		}
	}
	if !occupied {
		return nil, errors.New("at least one image is required to compose grid")
	}

	width := c.tileWidth * grid.Columns
	height := c.tileHeight * grid.Rows
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	if c.format == "jpeg" {
		// JPEG has no alpha channel; everything flattens onto black.
		xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)
	}

	totalCells := grid.Rows * grid.Columns
	for index, img := range images {
		if index >= totalCells {
			break
		}
		if img == nil {
			continue
		}
		src, _, err := image.Decode(bytes.NewReader(img.Data))
		if err != nil {
			return nil, fmt.Errorf("decode image %s: %w", img.ID, err)
		}
		x := (index % grid.Columns) * c.tileWidth
		y := (index / grid.Columns) * c.tileHeight
		tile := image.Rect(x, y, x+c.tileWidth, y+c.tileHeight)
		drawContain(canvas, tile, src)
	}

	buffer, err := c.encode(canvas)
	if err != nil {
		return nil, err
	}

	return &CompositeResult{
		Buffer:     buffer,
		Width:      width,
		Height:     height,
		TileWidth:  c.tileWidth,
		TileHeight: c.tileHeight,
		Format:     c.format,
	}, nil
}

// PrepareTile decodes raw image bytes and renders them into a single
// standalone tile in the sheet's format. It is how inline images enter the
// pipeline without touching the content store.
func (c *Compositor) PrepareTile(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode inline image: %w", err)
	}

	tile := image.NewRGBA(image.Rect(0, 0, c.tileWidth, c.tileHeight))
	if c.format == "jpeg" {
		xdraw.Draw(tile, tile.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)
	}
	drawContain(tile, tile.Bounds(), src)

	return c.encode(tile)
}

// drawContain scales src into target preserving aspect ratio, centered, never
// cropping; the remainder keeps the existing background.
func drawContain(dst *image.RGBA, target image.Rectangle, src image.Image) {
	srcBounds := src.Bounds()
	srcW, srcH := srcBounds.Dx(), srcBounds.Dy()
	if srcW == 0 || srcH == 0 {
		return
	}

	targetW, targetH := target.Dx(), target.Dy()
	scaledW := targetW
	scaledH := srcH * targetW / srcW
	if scaledH > targetH {
		scaledH = targetH
		scaledW = srcW * targetH / srcH
	}
	if scaledW < 1 {
		scaledW = 1
	}
	if scaledH < 1 {
		scaledH = 1
	}

	offsetX := target.Min.X + (targetW-scaledW)/2
	offsetY := target.Min.Y + (targetH-scaledH)/2
	rect := image.Rect(offsetX, offsetY, offsetX+scaledW, offsetY+scaledH)
	xdraw.CatmullRom.Scale(dst, rect, src, srcBounds, xdraw.Over, nil)
}

func (c *Compositor) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	switch c.format {
	case "png":
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", c.format)
	}
	return buf.Bytes(), nil
}
