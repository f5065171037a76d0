package fsutil

import (
	"os"
	"path/filepath"
	"strings"

	"photomap/internal/photo"
)

// imageExts maps supported extensions to the media type reported for them.
var imageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
}

var imageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/webp": {},
	"image/heic": {},
	"image/heif": {},
}

// IsSupported reports whether a file should be imported, judged by its
// declared media type or, failing that, its extension.
func IsSupported(name, mediaType string) bool {
	if IsHidden(name) {
		return false
	}
	if _, ok := imageTypes[strings.ToLower(strings.TrimSpace(mediaType))]; ok {
		return true
	}
	_, ok := imageExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsHEIC reports whether the file needs a HEIC decode before thumbnailing.
func IsHEIC(name, mediaType string) bool {
	switch strings.ToLower(mediaType) {
	case "image/heic", "image/heif":
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".heic", ".heif":
		return true
	}
	return false
}

// MediaType guesses the media type from the extension.
func MediaType(name string) string {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// IsHidden reports dotfiles.
func IsHidden(name string) bool {
	return strings.HasPrefix(filepath.Base(name), ".")
}

// ListImages walks root and returns every supported image below it. Hidden
// files and hidden directories are skipped. RelPath is prefixed with the
// root's base name, matching what a browser folder drop reports.
func ListImages(root string) ([]photo.Source, error) {
	root = filepath.Clean(root)
	base := filepath.Base(root)
	var files []photo.Source
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && IsHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsSupported(d.Name(), "") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, photo.Source{
			Path:      path,
			RelPath:   filepath.ToSlash(filepath.Join(base, rel)),
			Name:      d.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			MediaType: MediaType(d.Name()),
		})
		return nil
	})
	return files, err
}

// FirstExisting returns the first path that exists.
func FirstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
