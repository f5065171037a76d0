package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"photomap/internal/app"
	"photomap/internal/assign"
	"photomap/internal/catalog"
	"photomap/internal/export"
	"photomap/internal/fsutil"
	"photomap/internal/photo"
	"photomap/internal/pipeline"
	"photomap/internal/session"
	"photomap/internal/web"
)

// Server exposes the page, the JSON API and the websocket for one App.
type Server struct {
	app    *app.App
	addr   string
	log    *slog.Logger
	server *http.Server
}

// New creates a server for a, which must not be headless.
func New(a *app.App) *Server {
	return &Server{app: a, addr: a.Config.Server.Addr, log: a.Log}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.setupRoutes(r)
	return r
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		s.log.Info("Shutting down server...")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("Server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/", web.IndexHandler()).Methods("GET")
	r.PathPrefix("/static/").Handler(web.StaticHandler()).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/ws", s.app.Hub.Handler(s.app.Session, session.Decode))
	r.HandleFunc("/stream", s.handleImportStream).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/config", s.handleConfig).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/photos", s.handlePhotos).Methods("GET")
	api.HandleFunc("/batches", s.handleBatches).Methods("GET")
	api.HandleFunc("/import", s.handleImport).Methods("POST")
	api.HandleFunc("/export/{format}", s.handleExport).Methods("GET")

	r.HandleFunc("/photos/{id:.+}/thumb", s.handleThumbnail).Methods("GET")
	r.HandleFunc("/photos/{id:.+}/original", s.handleOriginal).Methods("GET")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// pageConfig is what the page needs before it can draw the map.
type pageConfig struct {
	Center          photo.LatLng `json:"center"`
	Zoom            float64      `json:"zoom"`
	TileURL         string       `json:"tileURL"`
	TileAttribution string       `json:"tileAttribution"`
	MaxZoom         int          `json:"maxZoom"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	m := s.app.Config.Map
	opts := app.MapOptions(m)
	writeJSON(w, http.StatusOK, pageConfig{
		Center:          opts.Center,
		Zoom:            opts.Zoom,
		TileURL:         m.TileURL,
		TileAttribution: m.TileAttribution,
		MaxZoom:         m.MaxZoom,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		catalog.Stats
		Importing bool `json:"importing"`
		Clients   int  `json:"clients"`
	}{st, s.app.Pipeline.Busy(), s.app.Hub.Clients()})
}

func (s *Server) handlePhotos(w http.ResponseWriter, r *http.Request) {
	filter := assign.FilterAll
	if v := r.URL.Query().Get("filter"); v != "" {
		f, err := assign.ParseFilter(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter = f
	}
	recs := []photo.Record{}
	err := s.app.Session.Do(r.Context(), func(c *assign.Coordinator) {
		for rec := range c.Catalog().Filter(filter.Predicate()) {
			recs = append(recs, rec)
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	if s.app.Store == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	recs, err := s.app.Store.RecentBatches(100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleImport saves a multipart folder upload and queues it. Each "files"
// part carries the path relative to the dropped folder as its filename and
// may be followed by a "modtime" part in Unix milliseconds.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.app.Pipeline.Busy() {
		writeError(w, http.StatusConflict, pipeline.ErrBusy)
		return
	}
	if limit := s.app.Config.Import.MaxUploadMB; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(limit)<<20)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	batchID := uuid.NewString()
	dir := s.app.UploadPath(batchID)
	files, err := s.saveUpload(mr, dir)
	if err != nil {
		os.RemoveAll(dir)
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(files) == 0 {
		os.RemoveAll(dir)
		writeError(w, http.StatusBadRequest, errors.New("no supported images in upload"))
		return
	}

	job := pipeline.NewJob("upload", files)
	job.ID = batchID
	if err := s.app.Pipeline.Submit(job); err != nil {
		os.RemoveAll(dir)
		status := http.StatusServiceUnavailable
		if errors.Is(err, pipeline.ErrBusy) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	s.log.Info("upload queued", "batch", batchID, "files", len(files))
	writeJSON(w, http.StatusAccepted, map[string]any{"batch": batchID, "files": len(files)})
}

func (s *Server) saveUpload(mr *multipart.Reader, dir string) ([]photo.Source, error) {
	var files []photo.Source
	last := -1 // index of the file the next modtime part belongs to
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, err
		}
		switch part.FormName() {
		case "files":
			name := rawFilename(part.Header.Get("Content-Disposition"))
			src, ok, err := savePart(part, dir, name, part.Header.Get("Content-Type"))
			part.Close()
			if err != nil {
				return nil, err
			}
			last = -1
			if ok {
				files = append(files, src)
				last = len(files) - 1
			}
		case "modtime":
			data, err := io.ReadAll(io.LimitReader(part, 32))
			part.Close()
			if err != nil {
				return nil, err
			}
			ms, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
			if err != nil || last < 0 {
				continue
			}
			f := &files[last]
			f.ModTime = time.UnixMilli(ms)
			if err := os.Chtimes(f.Path, f.ModTime, f.ModTime); err != nil {
				s.log.Debug("failed to set upload mtime", "path", f.Path, "error", err)
			}
		default:
			part.Close()
		}
	}
}

// rawFilename keeps the directory part that multipart.Part.FileName strips.
func rawFilename(disposition string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// uploadRel cleans a client supplied relative path so it stays inside the
// upload dir.
func uploadRel(name string) string {
	rel := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimPrefix(rel, "/")
}

func savePart(r io.Reader, dir, name, mediaType string) (photo.Source, bool, error) {
	rel := uploadRel(name)
	if rel == "" {
		return photo.Source{}, false, nil
	}
	for _, seg := range strings.Split(rel, "/") {
		if fsutil.IsHidden(seg) {
			return photo.Source{}, false, nil
		}
	}
	base := path.Base(rel)
	if !fsutil.IsSupported(base, mediaType) {
		return photo.Source{}, false, nil
	}

	dst := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return photo.Source{}, false, fmt.Errorf("create upload dir: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return photo.Source{}, false, fmt.Errorf("save %s: %w", rel, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return photo.Source{}, false, fmt.Errorf("save %s: %w", rel, err)
	}
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = fsutil.MediaType(base)
	}
	return photo.Source{
		Path:      dst,
		RelPath:   rel,
		Name:      base,
		Size:      n,
		ModTime:   time.Now(),
		MediaType: mediaType,
	}, true, nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(mux.Vars(r)["format"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	recs, err := s.app.Records(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	base := baseURL(r)
	var buf bytes.Buffer
	n, err := export.Write(&buf, format, recs, export.KMLOptions{
		ImageURL: func(rec photo.Record) string { return PhotoURL(base, rec) },
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("export written", "format", format, "entries", n)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename()))
	w.Write(buf.Bytes())
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// PhotoURL is the address of rec's thumbnail, or of the original when no
// thumbnail exists.
func PhotoURL(base string, rec photo.Record) string {
	kind := "original"
	if rec.Thumbnail != "" {
		kind = "thumb"
	}
	return base + "/photos/" + url.PathEscape(string(rec.ID)) + "/" + kind
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (photo.Record, bool) {
	id := photo.ID(mux.Vars(r)["id"])
	var (
		rec photo.Record
		ok  bool
	)
	if err := s.app.Session.Do(r.Context(), func(c *assign.Coordinator) {
		rec, ok = c.Catalog().Get(id)
	}); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return rec, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, catalog.ErrNotFound)
	}
	return rec, ok
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if rec.Thumbnail == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, rec.Thumbnail)
}

func (s *Server) handleOriginal(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if rec.Source.MediaType != "" {
		w.Header().Set("Content-Type", rec.Source.MediaType)
	}
	http.ServeFile(w, r, rec.Source.Path)
}

func (s *Server) handleImportStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	resCh, unsubscribe := s.app.Pipeline.Subscribe()
	defer unsubscribe()
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case res, ok := <-resCh:
			if !ok {
				return
			}
			payload, _ := json.Marshal(res)
			_, _ = w.Write([]byte("data: " + string(payload) + "\n\n"))
			flusher.Flush()
		}
	}
}
