package merge

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"

	"deckmerge/internal/storage"
)

// memStore is an in-memory ObjectStore with injectable failures.
type memStore struct {
	mu      sync.Mutex
	objects map[string]*storage.Object
	getErr  error
	putErr  error
	puts    int
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]*storage.Object{}}
}

func (s *memStore) Get(ctx context.Context, key string) (*storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *obj
	return &copied, nil
}

func (s *memStore) Put(ctx context.Context, key string, obj *storage.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.puts++
	copied := *obj
	s.objects[key] = &copied
	return nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func pngBytes(t *testing.T, width, height int, fill color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T, width, height int, fill color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func decodeImage(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode composite: %v", err)
	}
	return img
}

func cardUUID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}
