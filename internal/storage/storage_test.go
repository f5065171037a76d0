package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"photomap/internal/photo"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "photomap.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBatchLifecycle(t *testing.T) {
	s := openTestStore(t)
	if err := s.RecordBatchQueued(BatchRecord{ID: "b1", Source: "/trip", Status: "queued", FileCount: 3}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := s.RecordBatchStart("b1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.RecordBatchResult("b1", "completed", 3, 2, ""); err != nil {
		t.Fatalf("result: %v", err)
	}
	recs, err := s.RecentBatches(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("batches = %d", len(recs))
	}
	got := recs[0]
	if got.Status != "completed" || got.Imported != 3 || got.Located != 2 || got.Source != "/trip" {
		t.Fatalf("batch = %+v", got)
	}
	if got.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}
}

func TestManualLocationsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := photo.Record{
		ID:       "trip/a.jpg",
		Source:   photo.Source{Path: "/photos/trip/a.jpg", Name: "a.jpg", RelPath: "trip/a.jpg"},
		Location: &photo.LatLng{Lat: 39.9, Lng: 116.4},
	}
	other := rec
	other.Source.Path = "/elsewhere/trip/a.jpg"
	if err := s.SaveManualLocation(ctx, "b1", rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec.Location = &photo.LatLng{Lat: 40.1, Lng: 116.2}
	if err := s.SaveManualLocation(ctx, "b2", rec); err != nil {
		t.Fatalf("save again: %v", err)
	}
	if err := s.SaveManualLocation(ctx, "b3", other); err != nil {
		t.Fatalf("save other: %v", err)
	}
	got, err := s.ManualLocations(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got["/photos/trip/a.jpg"].Lat != 40.1 || got["/elsewhere/trip/a.jpg"].Lat != 40.1 {
		t.Fatalf("locations = %+v", got)
	}
	if _, ok := got["trip/a.jpg"]; ok {
		t.Fatalf("stored under relative path: %+v", got)
	}
	if err := s.SaveManualLocation(ctx, "b1", photo.Record{ID: "x"}); err == nil {
		t.Fatalf("expected error for record without location")
	}
	noPath := photo.Record{ID: "y", Location: &photo.LatLng{Lat: 1, Lng: 1}}
	if err := s.SaveManualLocation(ctx, "b1", noPath); err == nil {
		t.Fatalf("expected error for record without source path")
	}
	n, err := s.ForgetManualLocations(ctx)
	if err != nil || n != 2 {
		t.Fatalf("forget = %d, %v", n, err)
	}
}

func TestRecordPhotoMetadata(t *testing.T) {
	s := openTestStore(t)
	recs := []photo.Record{
		{ID: "a", Source: photo.Source{Name: "a.jpg"}, Timestamp: time.Now()},
		{ID: "b", Source: photo.Source{Name: "b.jpg"}, Timestamp: time.Now(), Location: &photo.LatLng{Lat: 1, Lng: 2}},
	}
	for _, r := range recs {
		if err := s.RecordPhotoMetadata("b1", r); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	n, err := s.BatchPhotoCount("b1")
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

func TestNilStoreIsNoop(t *testing.T) {
	var s *Store
	if err := s.RecordBatchStart("x"); err != nil {
		t.Fatalf("nil store: %v", err)
	}
	if err := s.SaveManualLocation(context.Background(), "b", photo.Record{}); err != nil {
		t.Fatalf("nil store: %v", err)
	}
	if _, err := s.RecentBatches(1); err == nil {
		t.Fatalf("expected error from nil store")
	}
}
