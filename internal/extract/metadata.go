package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"photomap/internal/photo"
)

// errNoMetadata means the reader ran but found nothing usable.
var errNoMetadata = errors.New("no metadata")

// Metadata is what a reader could recover from one file.
type Metadata struct {
	Taken    time.Time
	Location *photo.LatLng
}

// Reader recovers capture time and GPS from a file on disk.
type Reader interface {
	Name() string
	Read(ctx context.Context, path string) (Metadata, error)
}

// ExifReader decodes EXIF with goexif. It handles JPEG and TIFF-based files.
type ExifReader struct{}

func (ExifReader) Name() string { return "goexif" }

func (ExifReader) Read(ctx context.Context, path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return Metadata{}, fmt.Errorf("decode exif: %w", err)
	}

	var meta Metadata
	if tm, err := x.DateTime(); err == nil {
		meta.Taken = tm
	}
	if lat, lng, err := x.LatLong(); err == nil {
		meta.Location = checkLocation(lat, lng)
	}
	return meta, nil
}

// ExiftoolReader shells out to exiftool, which also understands HEIC.
type ExiftoolReader struct {
	Binary string
}

func (r ExiftoolReader) Name() string { return "exiftool" }

func (r ExiftoolReader) binary() string {
	if r.Binary != "" {
		return r.Binary
	}
	return "exiftool"
}

// Available reports whether the binary is on PATH.
func (r ExiftoolReader) Available() bool {
	return commandExists(r.binary())
}

func (r ExiftoolReader) Read(ctx context.Context, path string) (Metadata, error) {
	cmd := exec.CommandContext(ctx, r.binary(), "-json", "-n",
		"-DateTimeOriginal", "-CreateDate", "-GPSLatitude", "-GPSLongitude", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return Metadata{}, fmt.Errorf("exiftool: %w", err)
	}
	return parseExiftoolJSON(out.Bytes())
}

func parseExiftoolJSON(data []byte) (Metadata, error) {
	var parsed []map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Metadata{}, fmt.Errorf("parse exiftool output: %w", err)
	}
	if len(parsed) == 0 {
		return Metadata{}, errNoMetadata
	}
	m := parsed[0]

	var meta Metadata
	for _, key := range []string{"DateTimeOriginal", "CreateDate"} {
		if v, ok := m[key].(string); ok {
			if tm, err := parseExifTime(v); err == nil {
				meta.Taken = tm
				break
			}
		}
	}
	lat, latOK := m["GPSLatitude"].(float64)
	lng, lngOK := m["GPSLongitude"].(float64)
	if latOK && lngOK {
		meta.Location = checkLocation(lat, lng)
	}
	return meta, nil
}

func parseExifTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{"2006:01:02 15:04:05-07:00", "2006:01:02 15:04:05Z07:00", "2006:01:02 15:04:05"} {
		if tm, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return tm, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised exif time %q", v)
}

// checkLocation drops coordinates that are out of range or exactly zero on
// either axis; cameras write zeros when they had no fix.
func checkLocation(lat, lng float64) *photo.LatLng {
	ll := photo.LatLng{Lat: lat, Lng: lng}
	if !ll.Valid() || lat == 0 || lng == 0 {
		return nil
	}
	return &ll
}

// chain tries each reader in turn and returns the first success.
type chain []Reader

func (c chain) Read(ctx context.Context, path string) (Metadata, string, error) {
	var errs []error
	for _, r := range c {
		meta, err := r.Read(ctx, path)
		if err == nil {
			return meta, r.Name(), nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
	}
	if len(errs) == 0 {
		return Metadata{}, "", errNoMetadata
	}
	return Metadata{}, "", errors.Join(errs...)
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
