package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photomap/internal/photo"
)

type stubReader struct {
	name  string
	meta  Metadata
	err   error
	calls int
}

func (s *stubReader) Name() string { return s.name }

func (s *stubReader) Read(ctx context.Context, path string) (Metadata, error) {
	s.calls++
	return s.meta, s.err
}

type stubThumbs struct {
	path string
	err  error
}

func (s stubThumbs) Thumbnail(ctx context.Context, id photo.ID, src photo.Source) (string, error) {
	return s.path, s.err
}

var mod = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func TestExtractUsesFirstSuccessfulReader(t *testing.T) {
	taken := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	failing := &stubReader{name: "a", err: errors.New("boom")}
	ok := &stubReader{name: "b", meta: Metadata{Taken: taken, Location: &photo.LatLng{Lat: 39.9, Lng: 116.4}}}
	e := New(slog.Default(), false, WithReaders(failing, ok))

	rec := e.Extract(context.Background(), "trip/a.jpg", photo.Source{Path: "a.jpg", ModTime: mod})
	if !rec.Timestamp.Equal(taken) {
		t.Fatalf("timestamp = %v, want %v", rec.Timestamp, taken)
	}
	if rec.Location == nil || rec.Location.Lat != 39.9 {
		t.Fatalf("location = %+v", rec.Location)
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Fatalf("calls = %d/%d", failing.calls, ok.calls)
	}
	if rec.ManuallyAssigned {
		t.Fatalf("extracted record must not be manual")
	}
}

func TestExtractFallsBackToModTime(t *testing.T) {
	e := New(slog.Default(), false, WithReaders(&stubReader{name: "a", err: errors.New("no exif")}))
	rec := e.Extract(context.Background(), "x", photo.Source{Path: "x.png", ModTime: mod})
	if !rec.Timestamp.Equal(mod) {
		t.Fatalf("timestamp = %v, want modtime", rec.Timestamp)
	}
	if rec.Location != nil {
		t.Fatalf("expected no location")
	}
}

func TestExtractThumbnailBestEffort(t *testing.T) {
	reader := &stubReader{name: "a"}
	e := New(slog.Default(), false, WithReaders(reader), WithThumbnailer(stubThumbs{err: errors.New("no heic delegate")}))
	rec := e.Extract(context.Background(), "x", photo.Source{Path: "x.heic", ModTime: mod})
	if rec.Thumbnail != "" {
		t.Fatalf("thumbnail = %q, want empty", rec.Thumbnail)
	}

	e = New(slog.Default(), false, WithReaders(reader), WithThumbnailer(stubThumbs{path: "/tmp/t.jpg"}))
	rec = e.Extract(context.Background(), "x", photo.Source{Path: "x.jpg", ModTime: mod})
	if rec.Thumbnail != "/tmp/t.jpg" {
		t.Fatalf("thumbnail = %q", rec.Thumbnail)
	}
}

func TestParseExiftoolJSON(t *testing.T) {
	out := []byte(`[{"SourceFile":"a.heic","DateTimeOriginal":"2024:05:01 10:00:00","GPSLatitude":39.9,"GPSLongitude":116.4}]`)
	meta, err := parseExiftoolJSON(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.Location == nil || meta.Location.Lng != 116.4 {
		t.Fatalf("location = %+v", meta.Location)
	}
	if meta.Taken.Year() != 2024 || meta.Taken.Hour() != 10 {
		t.Fatalf("taken = %v", meta.Taken)
	}
}

func TestParseExiftoolJSONWithoutGPS(t *testing.T) {
	meta, err := parseExiftoolJSON([]byte(`[{"SourceFile":"a.jpg","CreateDate":"2023:01:02 03:04:05"}]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.Location != nil {
		t.Fatalf("unexpected location")
	}
	if meta.Taken.Year() != 2023 {
		t.Fatalf("taken = %v", meta.Taken)
	}
	if _, err := parseExiftoolJSON([]byte(`[]`)); err == nil {
		t.Fatalf("expected error for empty output")
	}
}

func TestCheckLocation(t *testing.T) {
	cases := []struct {
		lat, lng float64
		ok       bool
	}{
		{39.9, 116.4, true},
		{0, 116.4, false},
		{39.9, 0, false},
		{95, 10, false},
	}
	for _, tc := range cases {
		if got := checkLocation(tc.lat, tc.lng) != nil; got != tc.ok {
			t.Errorf("checkLocation(%v,%v) = %v, want %v", tc.lat, tc.lng, got, tc.ok)
		}
	}
}

func TestFitBox(t *testing.T) {
	cases := []struct {
		w, h, box, ww, wh uint
	}{
		{4000, 3000, 320, 320, 240},
		{3000, 4000, 320, 240, 320},
		{100, 50, 320, 100, 50},
		{0, 0, 320, 0, 0},
	}
	for _, tc := range cases {
		w, h := fitBox(tc.w, tc.h, tc.box)
		if w != tc.ww || h != tc.wh {
			t.Errorf("fitBox(%d,%d,%d) = %d,%d want %d,%d", tc.w, tc.h, tc.box, w, h, tc.ww, tc.wh)
		}
	}
}

func TestThumbnailPathStable(t *testing.T) {
	a := ThumbnailPath("/t", "trip/a.jpg")
	b := ThumbnailPath("/t", "trip/a.jpg")
	c := ThumbnailPath("/t", "trip/b.jpg")
	if a != b || a == c {
		t.Fatalf("unstable thumbnail paths: %s %s %s", a, b, c)
	}
}

// testdata/gps.jpg carries DateTimeOriginal 2024:05:01 10:00:00 and GPS
// 39°54'N 116°24'E; testdata/zero_gps.jpg has 2024:05:02 11:30:00 and a
// GPS block of zeros.
func TestExifReaderReadsTimeAndGPS(t *testing.T) {
	const wall = "2006-01-02 15:04:05"
	cases := []struct {
		file     string
		taken    string
		location *photo.LatLng
	}{
		{"gps.jpg", "2024-05-01 10:00:00", &photo.LatLng{Lat: 39.9, Lng: 116.4}},
		{"zero_gps.jpg", "2024-05-02 11:30:00", nil},
	}
	for _, tc := range cases {
		t.Run(tc.file, func(t *testing.T) {
			meta, err := ExifReader{}.Read(context.Background(), filepath.Join("testdata", tc.file))
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if got := meta.Taken.Format(wall); got != tc.taken {
				t.Fatalf("taken = %s, want %s", got, tc.taken)
			}
			if tc.location == nil {
				if meta.Location != nil {
					t.Fatalf("location = %+v, want none", meta.Location)
				}
				return
			}
			if meta.Location == nil {
				t.Fatalf("location missing")
			}
			if math.Abs(meta.Location.Lat-tc.location.Lat) > 1e-9 || math.Abs(meta.Location.Lng-tc.location.Lng) > 1e-9 {
				t.Fatalf("location = %+v, want %+v", meta.Location, tc.location)
			}
		})
	}
}

func TestExifReaderRejectsFileWithoutExif(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.jpg")
	if err := os.WriteFile(path, []byte("not a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (ExifReader{}).Read(context.Background(), path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestExtractRealExifBatch(t *testing.T) {
	e := New(slog.New(slog.NewTextHandler(io.Discard, nil)), false)
	plain := filepath.Join(t.TempDir(), "c.png")
	if err := os.WriteFile(plain, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	srcs := []photo.Source{
		{Path: filepath.Join("testdata", "gps.jpg"), RelPath: "trip/gps.jpg", Name: "gps.jpg", ModTime: mod},
		{Path: filepath.Join("testdata", "zero_gps.jpg"), RelPath: "trip/zero_gps.jpg", Name: "zero_gps.jpg", ModTime: mod},
		{Path: plain, RelPath: "trip/c.png", Name: "c.png", ModTime: mod},
	}
	var located int
	for _, src := range srcs {
		rec := e.Extract(context.Background(), photo.DeriveID(src), src)
		if rec.ManuallyAssigned {
			t.Fatalf("%s marked manual", rec.ID)
		}
		if rec.HasLocation() {
			located++
		}
		switch rec.ID {
		case "trip/gps.jpg":
			if rec.Location == nil || rec.Timestamp.Equal(mod) {
				t.Fatalf("gps.jpg = %+v", rec)
			}
		case "trip/zero_gps.jpg":
			if rec.Location != nil || rec.Timestamp.Equal(mod) {
				t.Fatalf("zero_gps.jpg = %+v", rec)
			}
		case "trip/c.png":
			if rec.Location != nil || !rec.Timestamp.Equal(mod) {
				t.Fatalf("c.png = %+v", rec)
			}
		}
	}
	if located != 1 {
		t.Fatalf("located = %d, want 1", located)
	}
}
