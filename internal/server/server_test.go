package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"photomap/internal/app"
	"photomap/internal/assign"
	"photomap/internal/config"
	"photomap/internal/photo"
	"photomap/internal/pipeline"
)

func newTestServer(t *testing.T) (*app.App, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.UploadDir = filepath.Join(dir, "uploads")
	cfg.Paths.ThumbnailDir = filepath.Join(dir, "thumbs")
	cfg.Paths.DatabasePath = filepath.Join(dir, "photomap.db")
	cfg.Import.Thumbnails = false
	cfg.Import.UseExiftool = false

	ctx, cancel := context.WithCancel(context.Background())
	a, err := app.New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), false)
	if err != nil {
		cancel()
		t.Fatalf("app: %v", err)
	}
	srv := httptest.NewServer(New(a).Handler())
	t.Cleanup(func() {
		srv.Close()
		a.Close()
		cancel()
	})
	return a, srv
}

func addFile(t *testing.T, mw *multipart.Writer, name, contentType string, data []byte, modMillis int64) {
	t.Helper()
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, name))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	if err := mw.WriteField("modtime", fmt.Sprint(modMillis)); err != nil {
		t.Fatal(err)
	}
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestHealthAndConfig(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	resp.Body.Close()

	var cfg pageConfig
	getJSON(t, srv.URL+"/api/config", &cfg)
	if cfg.Center.Lat != 39.875272 || cfg.Zoom != 13 || cfg.TileURL == "" {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestUploadImportsAndExports(t *testing.T) {
	a, srv := newTestServer(t)
	results, unsubscribe := a.Pipeline.Subscribe()
	defer unsubscribe()

	taken := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	addFile(t, mw, "trip/a.jpg", "image/jpeg", []byte("not really a jpeg"), taken.UnixMilli())
	addFile(t, mw, "trip/notes.txt", "text/plain", []byte("x"), taken.UnixMilli())
	addFile(t, mw, "trip/.hidden/b.jpg", "image/jpeg", []byte("x"), taken.UnixMilli())
	addFile(t, mw, "../../escape.jpg", "image/jpeg", []byte("x"), taken.UnixMilli())
	mw.Close()

	resp, err := http.Post(srv.URL+"/api/import", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("import status = %d", resp.StatusCode)
	}

	deadline := time.After(10 * time.Second)
	for done := false; !done; {
		select {
		case res := <-results:
			if res.Kind == pipeline.KindFailed {
				t.Fatalf("import failed: %v", res.Message)
			}
			done = res.Kind == pipeline.KindCompleted
		case <-deadline:
			t.Fatalf("import did not finish")
		}
	}

	var recs []photo.Record
	getJSON(t, srv.URL+"/api/photos", &recs)
	if len(recs) != 2 {
		t.Fatalf("photos = %d, want 2", len(recs))
	}
	var a0 photo.Record
	for _, r := range recs {
		if r.ID == "trip/a.jpg" {
			a0 = r
		}
	}
	if a0.ID == "" || !a0.Timestamp.Equal(taken) || a0.Location != nil {
		t.Fatalf("record = %+v", a0)
	}

	var located []photo.Record
	getJSON(t, srv.URL+"/api/photos?filter=located", &located)
	if len(located) != 0 {
		t.Fatalf("located = %d", len(located))
	}

	resp, err = http.Get(srv.URL + "/photos/" + "trip%2Fa.jpg" + "/original")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(data) != "not really a jpeg" {
		t.Fatalf("original = %d %q", resp.StatusCode, data)
	}

	resp, err = http.Get(srv.URL + "/api/export/manual")
	if err != nil {
		t.Fatal(err)
	}
	data, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(data)) != "{}" {
		t.Fatalf("manual export = %q", data)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "manual-locations.json") {
		t.Fatalf("disposition = %q", cd)
	}
}

func TestUploadWithoutImages(t *testing.T) {
	_, srv := newTestServer(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	addFile(t, mw, "trip/notes.txt", "text/plain", []byte("x"), 0)
	mw.Close()
	resp, err := http.Post(srv.URL+"/api/import", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/export/csv")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestUploadRel(t *testing.T) {
	cases := map[string]string{
		"trip/a.jpg":      "trip/a.jpg",
		"../../etc/a.jpg": "etc/a.jpg",
		`trip\sub\b.jpg`:  "trip/sub/b.jpg",
		"/abs/c.jpg":      "abs/c.jpg",
		"":                "",
	}
	for in, want := range cases {
		if got := uploadRel(in); got != want {
			t.Errorf("uploadRel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPhotoURL(t *testing.T) {
	rec := photo.Record{ID: "trip/a.jpg"}
	if got := PhotoURL("http://h", rec); got != "http://h/photos/trip%2Fa.jpg/original" {
		t.Fatalf("url = %s", got)
	}
	rec.Thumbnail = "/tmp/x.jpg"
	if got := PhotoURL("http://h", rec); got != "http://h/photos/trip%2Fa.jpg/thumb" {
		t.Fatalf("url = %s", got)
	}
}

func uploadAndWait(t *testing.T, a *app.App, srv *httptest.Server, taken time.Time) string {
	t.Helper()
	results, unsubscribe := a.Pipeline.Subscribe()
	defer unsubscribe()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	addFile(t, mw, "trip/a.jpg", "image/jpeg", []byte("x"), taken.UnixMilli())
	mw.Close()
	resp, err := http.Post(srv.URL+"/api/import", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	var queued struct {
		Batch string `json:"batch"`
	}
	json.NewDecoder(resp.Body).Decode(&queued)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || queued.Batch == "" {
		t.Fatalf("import status = %d batch = %q", resp.StatusCode, queued.Batch)
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case res := <-results:
			if res.Job.ID != queued.Batch || res.Kind == pipeline.KindProgress {
				continue
			}
			if res.Kind == pipeline.KindFailed {
				t.Fatalf("import failed: %v", res.Message)
			}
			if err := a.Session.Do(context.Background(), func(*assign.Coordinator) {}); err != nil {
				t.Fatal(err)
			}
			return queued.Batch
		case <-deadline:
			t.Fatalf("import did not finish")
		}
	}
}

func TestReimportRemovesPreviousUpload(t *testing.T) {
	a, srv := newTestServer(t)
	taken := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	first := uploadAndWait(t, a, srv, taken)
	info, err := os.Stat(filepath.Join(a.UploadPath(first), "trip", "a.jpg"))
	if err != nil {
		t.Fatalf("upload copy missing: %v", err)
	}
	if !info.ModTime().Equal(taken) {
		t.Fatalf("mtime = %v, want %v", info.ModTime(), taken)
	}

	second := uploadAndWait(t, a, srv, taken)
	entries, err := os.ReadDir(a.Config.Paths.UploadDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != second {
		t.Fatalf("upload dirs = %v, want only %s", entries, second)
	}

	if err := a.Session.Dispatch(assign.Cleared{}); err != nil {
		t.Fatal(err)
	}
	if err := a.Session.Do(context.Background(), func(*assign.Coordinator) {}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(a.UploadPath(second)); !os.IsNotExist(err) {
		t.Fatalf("upload kept after clear: %v", err)
	}
}
