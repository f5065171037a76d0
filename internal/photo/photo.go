package photo

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"
)

// ID identifies a photo across the catalog, the marker table and the list.
type ID string

func (id ID) String() string { return string(id) }

// DeriveID returns the stable key for a source file: its relative path when
// known, otherwise name plus modification time.
func DeriveID(src Source) ID {
	if rel := strings.TrimSpace(src.RelPath); rel != "" {
		return ID(filepath.ToSlash(rel))
	}
	return ID(fmt.Sprintf("%s@%d", src.Name, src.ModTime.UnixMilli()))
}

// LatLng is a WGS84 coordinate in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is finite and inside WGS84 range.
func (ll LatLng) Valid() bool {
	if math.IsNaN(ll.Lat) || math.IsNaN(ll.Lng) || math.IsInf(ll.Lat, 0) || math.IsInf(ll.Lng, 0) {
		return false
	}
	return ll.Lat >= -90 && ll.Lat <= 90 && ll.Lng >= -180 && ll.Lng <= 180
}

func (ll LatLng) String() string {
	return fmt.Sprintf("%.6f,%.6f", ll.Lat, ll.Lng)
}

// Source describes the original file. It is never modified after import.
type Source struct {
	Path      string    `json:"path"`
	RelPath   string    `json:"relPath"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"modTime"`
	MediaType string    `json:"mediaType"`
}

// Record is one imported image.
type Record struct {
	ID               ID        `json:"id"`
	Source           Source    `json:"source"`
	Timestamp        time.Time `json:"timestamp"`
	Location         *LatLng   `json:"location,omitempty"`
	ManuallyAssigned bool      `json:"manuallyAssigned"`
	Thumbnail        string    `json:"thumbnail,omitempty"`
}

// HasLocation reports whether a coordinate is known.
func (r Record) HasLocation() bool { return r.Location != nil }

// ExportPath is the key used by the manual-assignment export.
func (r Record) ExportPath() string {
	if r.Source.RelPath != "" {
		return filepath.ToSlash(r.Source.RelPath)
	}
	return r.Source.Name
}

// SourceKey is the absolute path of the source file, or "" when the
// record has none. It scopes stored assignments to one file on disk.
func (r Record) SourceKey() string {
	if r.Source.Path == "" {
		return ""
	}
	abs, err := filepath.Abs(r.Source.Path)
	if err != nil {
		return filepath.Clean(r.Source.Path)
	}
	return abs
}

// Clone returns a copy that shares no pointers with r.
func (r Record) Clone() Record {
	if r.Location != nil {
		ll := *r.Location
		r.Location = &ll
	}
	return r
}

// FormatTime renders a timestamp the way popups and list entries show it.
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

// Summary is the two-line text used by marker popups and list entries.
func (r Record) Summary() string {
	return fmt.Sprintf("Time: %s\nFile: %s", FormatTime(r.Timestamp), r.Source.Name)
}
