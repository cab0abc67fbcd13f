// Package qrexport renders the public landing URL of a code as a QR image.
package qrexport

import (
	"archive/zip"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/kkkkikiki/redemption/internal/model"
)

const (
	DefaultSize = 256
	MinSize     = 64
	MaxSize     = 2048
)

// Renderer builds landing URLs and their QR images
type Renderer struct {
	baseURL string
	level   qrcode.RecoveryLevel
}

// New creates a renderer for landing pages under baseURL. Images use the
// highest error correction level so printed codes survive smudges.
func New(baseURL string) *Renderer {
	return &Renderer{
		baseURL: strings.TrimRight(baseURL, "/"),
		level:   qrcode.Highest,
	}
}

// URL returns the public landing URL of a slug
func (r *Renderer) URL(slug string) string {
	return r.baseURL + "/" + url.PathEscape(slug)
}

// CheckSize rejects image sizes outside [MinSize, MaxSize]; zero is allowed
func CheckSize(size int) error {
	if size != 0 && (size < MinSize || size > MaxSize) {
		return model.ValidationError(model.FieldError{
			Field:   "size",
			Message: fmt.Sprintf("must be between %d and %d", MinSize, MaxSize),
		})
	}
	return nil
}

// PNG encodes the landing URL of slug as a square PNG of size pixels.
// A zero size selects DefaultSize.
func (r *Renderer) PNG(slug string, size int) ([]byte, error) {
	if err := CheckSize(size); err != nil {
		return nil, err
	}
	if size == 0 {
		size = DefaultSize
	}

	png, err := qrcode.Encode(r.URL(slug), r.level, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}

// WriteArchive streams a zip archive holding one <slug>.png per slug
func (r *Renderer) WriteArchive(w io.Writer, slugs []string, size int) error {
	if err := CheckSize(size); err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	modified := time.Now()
	for _, slug := range slugs {
		png, err := r.PNG(slug, size)
		if err != nil {
			return err
		}
		// png is already compressed
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:     slug + ".png",
			Method:   zip.Store,
			Modified: modified,
		})
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", slug, err)
		}
		if _, err := f.Write(png); err != nil {
			return fmt.Errorf("failed to write %s to archive: %w", slug, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}
