// Package app assembles the photomap components from a config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"photomap/internal/assign"
	"photomap/internal/catalog"
	"photomap/internal/config"
	"photomap/internal/extract"
	"photomap/internal/listview"
	"photomap/internal/mapview"
	"photomap/internal/photo"
	"photomap/internal/pipeline"
	"photomap/internal/session"
	"photomap/internal/storage"
	"photomap/internal/watch"
	"photomap/internal/web"
)

// App holds one running photomap instance.
type App struct {
	Config   *config.Config
	Log      *slog.Logger
	Store    *storage.Store
	Hub      *web.WebSocketHub // nil when headless
	Session  *session.Session
	Pipeline *pipeline.Pipeline
	Watcher  *watch.Watcher // nil unless a watch dir is configured

	thumbs *extract.MagickThumbnailer
	cancel context.CancelFunc
}

// MapOptions converts the map section of the config.
func MapOptions(m config.Map) mapview.Options {
	opts := mapview.DefaultOptions()
	if m.CenterLat != 0 || m.CenterLng != 0 {
		opts.Center = photo.LatLng{Lat: m.CenterLat, Lng: m.CenterLng}
	}
	if m.Zoom > 0 {
		opts.Zoom = m.Zoom
	}
	if m.FocusZoom > 0 {
		opts.FocusZoom = m.FocusZoom
	}
	if m.FitPadding > 0 {
		opts.FitPadding = m.FitPadding
	}
	if m.MinFitDistance > 0 {
		opts.MinFitDistance = m.MinFitDistance
	}
	if m.MinZoomBoxDistance > 0 {
		opts.MinZoomBoxDistance = m.MinZoomBoxDistance
	}
	if m.TrackpadZoomStep > 0 {
		opts.TrackpadZoomStep = m.TrackpadZoomStep
	}
	return opts
}

// New builds and starts every component. With headless set the views
// render nowhere and no hub is created. Optional parts (store, thumbnails,
// watcher) that fail to start are logged and left out.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, headless bool) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	a := &App{Config: cfg, Log: log, cancel: cancel}

	if err := os.MkdirAll(filepath.Dir(cfg.Paths.DatabasePath), 0o755); err != nil {
		log.Warn("cannot create data dir", "error", err)
	}
	store, err := storage.New(cfg.Paths.DatabasePath)
	if err != nil {
		log.Warn("storage disabled", "path", cfg.Paths.DatabasePath, "error", err)
	} else {
		a.Store = store
	}

	var opts []extract.Option
	if cfg.Import.Thumbnails {
		thumbs, err := extract.NewMagickThumbnailer(cfg.Paths.ThumbnailDir, cfg.Import.ThumbnailSize, cfg.Import.ThumbnailQuality)
		if err != nil {
			log.Warn("thumbnails disabled", "error", err)
		} else {
			a.thumbs = thumbs
			opts = append(opts, extract.WithThumbnailer(thumbs))
		}
	}
	extractor := extract.New(log, cfg.Import.UseExiftool, opts...)

	var (
		mr mapview.Renderer  = mapview.Discard
		lr listview.Renderer = listview.Discard
	)
	if !headless {
		a.Hub = web.NewHub(log)
		go a.Hub.Run(ctx)
		mr, lr = a.Hub, a.Hub
	}

	mv := mapview.New(mr, MapOptions(cfg.Map), log)
	lv := listview.New(lr)
	var st assign.Store
	if a.Store != nil {
		st = a.Store
	}
	coord := assign.New(catalog.New(), mv, lv, st, log)
	coord.OnRelease(a.release)
	a.sweepUploads()
	a.Session = session.New(coord, log)
	go a.Session.Run(ctx)

	a.Pipeline = pipeline.New(ctx, pipeline.NewImporter(extractor, log), log, a.Store,
		func(ctx context.Context, job pipeline.Job, records []photo.Record) {
			if err := a.Session.Dispatch(assign.Imported{BatchID: job.ID, Records: records}); err != nil {
				log.Error("failed to publish import", "batch", job.ID, "error", err)
			}
		})

	failed, unsubscribe := a.Pipeline.Subscribe()
	go a.reapFailed(ctx, failed, unsubscribe)
	if a.Hub != nil {
		go a.forwardProgress(ctx)
	}

	if cfg.Watch.Dir != "" {
		debounce := time.Duration(cfg.Watch.DebounceMS) * time.Millisecond
		w, err := watch.New(cfg.Watch.Dir, debounce, a.reimport, log)
		if err != nil {
			log.Warn("folder watcher disabled", "dir", cfg.Watch.Dir, "error", err)
		} else {
			a.Watcher = w
			go func() {
				if err := w.Run(ctx); err != nil {
					log.Error("folder watcher stopped", "error", err)
				}
			}()
			log.Info("watching folder", "dir", cfg.Watch.Dir, "debounce", debounce)
		}
	}
	return a, nil
}

// forwardProgress relays pipeline results to every connected page.
func (a *App) forwardProgress(ctx context.Context) {
	results, unsubscribe := a.Pipeline.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			a.Hub.Publish(web.ChannelImport, res)
		}
	}
}

// UploadPath is where an uploaded batch keeps its copy of the dropped
// folder.
func (a *App) UploadPath(batchID string) string {
	return filepath.Join(a.Config.Paths.UploadDir, batchID)
}

// release drops the on-disk leftovers of a batch that is no longer shown.
func (a *App) release(rel assign.Release) {
	if rel.BatchID != "" {
		a.removeUpload(rel.BatchID)
	}
	thumbDir := filepath.Clean(a.Config.Paths.ThumbnailDir)
	for _, p := range rel.Thumbnails {
		if filepath.Dir(p) != thumbDir {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.Log.Warn("failed to remove thumbnail", "path", p, "error", err)
		}
	}
}

// removeUpload deletes the upload copy of a batch. Batch ids are uuids;
// anything else never names an upload dir.
func (a *App) removeUpload(batchID string) {
	if _, err := uuid.Parse(batchID); err != nil {
		return
	}
	dir := a.UploadPath(batchID)
	if _, err := os.Stat(dir); err != nil {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		a.Log.Warn("failed to remove upload", "batch", batchID, "error", err)
		return
	}
	a.Log.Debug("upload removed", "batch", batchID)
}

// sweepUploads removes upload copies left by an earlier run. Nothing is
// on display at startup, so none of them is in use.
func (a *App) sweepUploads() {
	entries, err := os.ReadDir(a.Config.Paths.UploadDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			a.removeUpload(e.Name())
		}
	}
}

func (a *App) reapFailed(ctx context.Context, results <-chan pipeline.Result, unsubscribe func()) {
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			if res.Kind == pipeline.KindFailed {
				a.removeUpload(res.Job.ID)
			}
		}
	}
}

func (a *App) reimport(ctx context.Context, root string, events []watch.Event) error {
	job, err := pipeline.FolderJob(root)
	if err != nil {
		return fmt.Errorf("list %s: %w", root, err)
	}
	job.Source = "watch:" + root
	if err := a.Pipeline.Submit(job); err != nil {
		return err
	}
	a.Log.Info("re-import queued", "root", root, "changes", len(events), "batch", job.ID)
	return nil
}

// ImportFolder submits root and waits for its final result.
func (a *App) ImportFolder(ctx context.Context, root string) (pipeline.Result, error) {
	job, err := pipeline.FolderJob(root)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("list %s: %w", root, err)
	}
	return a.Run(ctx, job)
}

// Run submits job and waits until it completes or fails. The coordinator
// has seen the records by the time Run returns.
func (a *App) Run(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
	results, unsubscribe := a.Pipeline.Subscribe()
	defer unsubscribe()
	if err := a.Pipeline.Submit(job); err != nil {
		return pipeline.Result{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return pipeline.Result{}, ctx.Err()
		case res, ok := <-results:
			if !ok {
				return pipeline.Result{}, pipeline.ErrStopped
			}
			if res.Job.ID != job.ID || res.Kind == pipeline.KindProgress {
				continue
			}
			if res.Error != nil {
				return res, res.Error
			}
			// the Imported event was queued before this result was sent
			if err := a.Session.Do(ctx, func(*assign.Coordinator) {}); err != nil {
				return res, err
			}
			return res, nil
		}
	}
}

// Records returns a snapshot of the catalog.
func (a *App) Records(ctx context.Context) ([]photo.Record, error) {
	var out []photo.Record
	err := a.Session.Do(ctx, func(c *assign.Coordinator) {
		out = c.Catalog().Records()
	})
	return out, err
}

// Stats returns the catalog counters.
func (a *App) Stats(ctx context.Context) (catalog.Stats, error) {
	var st catalog.Stats
	err := a.Session.Do(ctx, func(c *assign.Coordinator) {
		st = c.Catalog().Stats()
	})
	return st, err
}

// Assign places ids at ll as one manual assignment, the same way a map
// click in edit mode does.
func (a *App) Assign(ctx context.Context, ids []photo.ID, ll photo.LatLng) error {
	if len(ids) == 0 {
		return errors.New("no photos to assign")
	}
	if !ll.Valid() {
		return fmt.Errorf("invalid location %s", ll)
	}
	var err error
	doErr := a.Session.Do(ctx, func(c *assign.Coordinator) {
		err = c.AssignTo(ids, ll)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Close stops the pipeline and background loops and releases resources.
func (a *App) Close() error {
	a.Pipeline.Stop()
	a.cancel()
	if a.thumbs != nil {
		a.thumbs.Close()
	}
	return a.Store.Close()
}
