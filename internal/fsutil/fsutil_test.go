package fsutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestIsSupported(t *testing.T) {
	cases := []struct {
		name, mediaType string
		want            bool
	}{
		{"a.jpg", "", true},
		{"a.JPEG", "", true},
		{"b.heic", "", true},
		{"b.HEIC", "application/octet-stream", true},
		{"noext", "image/png", true},
		{"c.txt", "", false},
		{"c.gif", "image/gif", false},
		{".hidden.jpg", "image/jpeg", false},
	}
	for _, tc := range cases {
		if got := IsSupported(tc.name, tc.mediaType); got != tc.want {
			t.Errorf("IsSupported(%q, %q) = %v, want %v", tc.name, tc.mediaType, got, tc.want)
		}
	}
}

func TestListImagesSkipsHiddenAndUnsupported(t *testing.T) {
	root := filepath.Join(t.TempDir(), "trip")
	for _, p := range []string{
		"day1/a.jpg",
		"day1/.b.jpg",
		"day2/c.heic",
		"notes.txt",
		".cache/d.jpg",
	} {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := ListImages(root)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	var rels []string
	for _, f := range files {
		rels = append(rels, f.RelPath)
	}
	sort.Strings(rels)
	want := []string{"trip/day1/a.jpg", "trip/day2/c.heic"}
	if len(rels) != len(want) {
		t.Fatalf("got %v, want %v", rels, want)
	}
	for i := range want {
		if rels[i] != want[i] {
			t.Fatalf("got %v, want %v", rels, want)
		}
	}
	for _, f := range files {
		if f.Name == "c.heic" && f.MediaType != "image/heic" {
			t.Fatalf("unexpected media type %q", f.MediaType)
		}
	}
}
