package main

import (
	"context"
	"fmt"
	"image"
	"log"
	"net/http"
	"time"

	"golang.org/x/image/bmp"
)

// Bitmap is the core's view of a game image: a width plus a flat row-major
// grayscale buffer. Where the bytes come from is the loader's business.
type Bitmap struct {
	Width  int
	Height int
	Pixels []byte
}

// BitmapLoader fetches the bitmap pair an arena is built from. The load is
// awaited before the arena is registered, so a click can never race a
// half-built cluster set.
type BitmapLoader interface {
	Load(ctx context.Context, url string) (*Bitmap, error)
}

// HTTPBitmapLoader pulls BMP assets from the asset service.
type HTTPBitmapLoader struct {
	client *http.Client
}

// NewHTTPBitmapLoader returns a loader with a bounded request timeout.
func NewHTTPBitmapLoader() *HTTPBitmapLoader {
	return &HTTPBitmapLoader{client: &http.Client{Timeout: 10 * time.Second}}
}

// Load fetches and decodes one BMP, flattening it to grayscale.
func (l *HTTPBitmapLoader) Load(ctx context.Context, url string) (*Bitmap, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching bitmap %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching bitmap %s: status %d", url, resp.StatusCode)
	}

	img, err := bmp.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding bitmap %s: %w", url, err)
	}

	bitmap := flatten(img)
	log.Printf("[ASSET] Loaded bitmap %s (%dx%d)", url, bitmap.Width, bitmap.Height)
	return bitmap, nil
}

// flatten converts a decoded image to the flat grayscale buffer the cluster
// counter scans.
func flatten(img image.Image) *Bitmap {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	pixels := make([]byte, 0, w*h)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// Standard luma weights, 16-bit channels scaled to a byte.
			luma := (299*r + 587*g + 114*b) / 1000
			pixels = append(pixels, byte(luma>>8))
		}
	}
	return &Bitmap{Width: w, Height: h, Pixels: pixels}
}

// originalAssetURL and modifiedAssetURL mirror the asset service naming:
// one pristine image and one with the differences applied.
func originalAssetURL(baseURL string, gameID int) string {
	return fmt.Sprintf("%s/%d_original.bmp", baseURL, gameID)
}

func modifiedAssetURL(baseURL string, gameID int) string {
	return fmt.Sprintf("%s/%d_modified.bmp", baseURL, gameID)
}
