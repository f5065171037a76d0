package extract

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/gographics/imagick.v3/imagick"

	"photomap/internal/photo"
)

// Thumbnailer renders a small JPEG for a photo and returns its path.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, id photo.ID, src photo.Source) (string, error)
}

// MagickThumbnailer uses the ImageMagick bindings, which decode HEIC when
// ImageMagick is built with libheif.
type MagickThumbnailer struct {
	dir     string
	size    uint
	quality uint
	once    sync.Once
}

// NewMagickThumbnailer prepares dir and initialises ImageMagick. Call Close
// when done.
func NewMagickThumbnailer(dir string, size, quality uint) (*MagickThumbnailer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbnail dir: %w", err)
	}
	if size == 0 {
		size = 320
	}
	if quality == 0 || quality > 100 {
		quality = 80
	}
	imagick.Initialize()
	return &MagickThumbnailer{dir: dir, size: size, quality: quality}, nil
}

// Close releases ImageMagick.
func (t *MagickThumbnailer) Close() error {
	t.once.Do(imagick.Terminate)
	return nil
}

// PathFor returns where the thumbnail for id is written.
func (t *MagickThumbnailer) PathFor(id photo.ID) string {
	return ThumbnailPath(t.dir, id)
}

// ThumbnailPath maps an id to a file name inside dir.
func ThumbnailPath(dir string, id photo.ID) string {
	sum := sha1.Sum([]byte(id))
	return filepath.Join(dir, hex.EncodeToString(sum[:])+".jpg")
}

func (t *MagickThumbnailer) Thumbnail(ctx context.Context, id photo.ID, src photo.Source) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ReadImage(src.Path); err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if err := mw.AutoOrientImage(); err != nil {
		return "", fmt.Errorf("orient: %w", err)
	}

	w, h := fitBox(mw.GetImageWidth(), mw.GetImageHeight(), t.size)
	if err := mw.ThumbnailImage(w, h); err != nil {
		return "", fmt.Errorf("resize: %w", err)
	}
	if err := mw.SetImageFormat("JPEG"); err != nil {
		return "", fmt.Errorf("set format: %w", err)
	}
	if err := mw.SetImageCompressionQuality(t.quality); err != nil {
		return "", fmt.Errorf("set quality: %w", err)
	}
	_ = mw.StripImage()

	out := t.PathFor(id)
	if err := mw.WriteImage(out); err != nil {
		return "", fmt.Errorf("write thumbnail: %w", err)
	}
	return out, nil
}

// fitBox scales w x h so the longest edge is at most box, never upscaling.
func fitBox(w, h, box uint) (uint, uint) {
	if w == 0 || h == 0 || (w <= box && h <= box) {
		return w, h
	}
	if w >= h {
		nh := h * box / w
		if nh == 0 {
			nh = 1
		}
		return box, nh
	}
	nw := w * box / h
	if nw == 0 {
		nw = 1
	}
	return nw, box
}
