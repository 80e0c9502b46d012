// Package thumbnail renders square previews of uploaded images. Previews are
// stored unencrypted next to the encrypted originals; they are small and
// lossy, and serving them without a decrypt pass keeps galleries cheap.
package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/dmitrijs2005/vaultbox/internal/server/blobstore"
)

const (
	DefaultSize = 300
	// DefaultMaxPixels rejects images whose header claims more pixels than
	// this before any decoding happens.
	DefaultMaxPixels = 100_000_000
)

// Generator writes cover-fit thumbnails into a blob store.
type Generator struct {
	store     blobstore.Store
	size      int
	maxPixels int
}

func NewGenerator(store blobstore.Store, size int) *Generator {
	if size <= 0 {
		size = DefaultSize
	}
	return &Generator{store: store, size: size, maxPixels: DefaultMaxPixels}
}

// Generate reads the plaintext image at sourcePath, crops and scales it to
// size x size around the centre and stores it as dir.Thumbnail(storedName).
// The encoded format follows the stored name's extension, JPEG otherwise.
// Any error means "no thumbnail"; callers must not fail the upload on it.
func (g *Generator) Generate(ctx context.Context, sourcePath string, dir blobstore.Dir, storedName string) (string, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return "", fmt.Errorf("decode header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > g.maxPixels {
		return "", fmt.Errorf("image %dx%d out of bounds", cfg.Width, cfg.Height)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind source: %w", err)
	}

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	thumb := imaging.Fill(img, g.size, g.size, imaging.Center, imaging.Lanczos)

	format, err := imaging.FormatFromFilename(storedName)
	if err != nil {
		format = imaging.JPEG
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, format, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}

	key := dir.Thumbnail(storedName)
	if _, err := g.store.Write(ctx, key, &buf); err != nil {
		return "", err
	}
	return key, nil
}
