package grpcserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"photomap/internal/catalog"
	"photomap/internal/photo"
)

type memBackend struct {
	mu  sync.Mutex
	cat *catalog.Catalog
}

func (b *memBackend) Stats(ctx context.Context) (catalog.Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cat.Stats(), nil
}

func (b *memBackend) Records(ctx context.Context) ([]photo.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cat.Records(), nil
}

func (b *memBackend) Assign(ctx context.Context, ids []photo.ID, ll photo.LatLng) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		if err := b.cat.UpdateLocation(id, ll); err != nil {
			return err
		}
	}
	return nil
}

func newClient(t *testing.T) (*Client, *memBackend) {
	t.Helper()
	cat := catalog.New()
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cat.ReplaceAll([]photo.Record{
		{ID: "trip/a.jpg", Source: photo.Source{Name: "a.jpg", RelPath: "trip/a.jpg"}, Timestamp: t0},
		{ID: "trip/b.jpg", Source: photo.Source{Name: "b.jpg", RelPath: "trip/b.jpg"}, Timestamp: t0.Add(time.Minute),
			Location: &photo.LatLng{Lat: 39.9, Lng: 116.4}},
	})
	backend := &memBackend{cat: cat}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterCatalogServer(srv, New(backend, slog.New(slog.NewTextHandler(io.Discard, nil))))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	client, conn, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return client, backend
}

func TestStatsAndList(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	st, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 2 || st.Located != 1 || st.Manual != 0 {
		t.Fatalf("stats = %+v", st)
	}

	photos, err := client.ListPhotos(ctx, "nogps")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(photos) != 1 || photos[0]["id"] != "trip/a.jpg" {
		t.Fatalf("photos = %v", photos)
	}
	if _, ok := photos[0]["lat"]; ok {
		t.Fatalf("unlocated photo has lat")
	}

	if _, err := client.ListPhotos(ctx, "bogus"); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad filter err = %v", err)
	}
}

func TestAssignLocation(t *testing.T) {
	client, backend := newClient(t)
	ctx := context.Background()

	n, err := client.AssignLocation(ctx, []photo.ID{"trip/a.jpg"}, photo.LatLng{Lat: 35, Lng: 139})
	if err != nil || n != 1 {
		t.Fatalf("assign = %d, %v", n, err)
	}
	rec, _ := backend.cat.Get("trip/a.jpg")
	if rec.Location == nil || rec.Location.Lat != 35 || !rec.ManuallyAssigned {
		t.Fatalf("record = %+v", rec)
	}

	_, err = client.AssignLocation(ctx, []photo.ID{"missing.jpg"}, photo.LatLng{Lat: 1, Lng: 1})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("missing id err = %v", err)
	}
	_, err = client.AssignLocation(ctx, []photo.ID{"trip/a.jpg"}, photo.LatLng{Lat: 95, Lng: 1})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad lat err = %v", err)
	}
	_, err = client.AssignLocation(ctx, nil, photo.LatLng{Lat: 1, Lng: 1})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("no ids err = %v", err)
	}
}
