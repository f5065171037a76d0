// Package assign drives the select-then-pick workflow that gives photos a
// location by clicking the map.
package assign

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"photomap/internal/catalog"
	"photomap/internal/listview"
	"photomap/internal/logging"
	"photomap/internal/mapview"
	"photomap/internal/photo"
)

// State of the assignment workflow.
type State int

const (
	Idle State = iota
	Selecting
	Picking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case Picking:
		return "picking"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PromptText is shown before anything has been imported.
const PromptText = "Drop a folder of travel photos on the sidebar, or use Import."

// DescribeImport is the header text after a batch.
func DescribeImport(st catalog.Stats) string {
	return fmt.Sprintf("%d imported, %d with location.", st.Total, st.Located)
}

// Store persists manual assignments so a re-import keeps them.
type Store interface {
	SaveManualLocation(ctx context.Context, batchID string, rec photo.Record) error
	ManualLocations(ctx context.Context) (map[string]photo.LatLng, error)
}

// Release names what a batch left behind once it stops being displayed:
// its id, when a different batch or nothing replaced it, and thumbnails no
// record on display still uses.
type Release struct {
	BatchID    string
	Thumbnails []string
}

// Coordinator owns the catalog and both views. It is not safe for
// concurrent use; the session loop serialises calls to Handle.
type Coordinator struct {
	cat   *catalog.Catalog
	mv    *mapview.View
	lv    *listview.List
	store Store
	log   *slog.Logger

	state     State
	filter    Filter
	batchID   string
	onRelease func(Release)
}

// New wires a coordinator. store may be nil.
func New(cat *catalog.Catalog, mv *mapview.View, lv *listview.List, store Store, log *slog.Logger) *Coordinator {
	c := &Coordinator{cat: cat, mv: mv, lv: lv, store: store, log: log, filter: FilterAll}
	lv.SetDescription(PromptText)
	return c
}

// OnRelease registers fn to be called on the loop after a batch is
// replaced or cleared.
func (c *Coordinator) OnRelease(fn func(Release)) { c.onRelease = fn }

// State returns the workflow state.
func (c *Coordinator) State() State { return c.state }

// Filter returns the active filter.
func (c *Coordinator) Filter() Filter { return c.filter }

// BatchID returns the id of the batch on display.
func (c *Coordinator) BatchID() string { return c.batchID }

// Catalog exposes the catalog for read-only callers on the loop.
func (c *Coordinator) Catalog() *catalog.Catalog { return c.cat }

// Map exposes the map view for gesture events.
func (c *Coordinator) Map() *mapview.View { return c.mv }

// List exposes the list view.
func (c *Coordinator) List() *listview.List { return c.lv }

// Handle applies one event.
func (c *Coordinator) Handle(ev Event) error {
	switch e := ev.(type) {
	case SetEditMode:
		c.setEditMode(e.Enabled)
	case EntryClicked:
		c.lv.Click(e.ID)
	case MarkerClicked:
		c.mv.ClickMarker(e.ID)
	case MapClicked:
		c.mv.HandleClick(e.At)
	case SetFilter:
		c.filter = e.Filter
		c.render()
	case FitAll:
		c.mv.FitToAll()
	case Imported:
		c.imported(e)
	case Cleared:
		c.clear()
	default:
		return fmt.Errorf("unhandled event %T", ev)
	}
	return nil
}

func (c *Coordinator) setEditMode(enabled bool) {
	if !enabled {
		c.lv.SetSelectMode(false, nil)
		c.mv.DisarmPicker()
		c.state = Idle
		return
	}
	c.state = Selecting
	c.lv.SetSelectMode(true, c.selectionChanged)
}

// selectionChanged re-arms the picker with the latest snapshot so the next
// map click goes to whatever is selected at that moment.
func (c *Coordinator) selectionChanged(sel listview.Selection) {
	if !c.lv.SelectMode() {
		return
	}
	if sel.Empty() {
		c.mv.DisarmPicker()
		c.state = Selecting
		return
	}
	c.mv.ArmPicker(func(ll photo.LatLng) { c.commit(sel, ll) })
	c.state = Picking
}

func (c *Coordinator) commit(sel listview.Selection, ll photo.LatLng) {
	c.place(sel.IDs(), ll)
	c.lv.ClearSelection()
	c.state = Selecting
	c.render()
	c.lv.SetDescription(DescribeImport(c.cat.Stats()))
}

// AssignTo places ids at ll without touching the selection or pick mode.
// Known ids are assigned even when some are missing; the missing ones are
// reported as catalog.ErrNotFound.
func (c *Coordinator) AssignTo(ids []photo.ID, ll photo.LatLng) error {
	assigned := c.place(ids, ll)
	c.render()
	c.lv.SetDescription(DescribeImport(c.cat.Stats()))
	if missing := len(ids) - len(assigned); missing > 0 {
		return fmt.Errorf("%d of %d photos: %w", missing, len(ids), catalog.ErrNotFound)
	}
	return nil
}

func (c *Coordinator) place(ids []photo.ID, ll photo.LatLng) []string {
	var assigned []string
	for _, id := range ids {
		if err := c.cat.UpdateLocation(id, ll); err != nil {
			c.log.Warn("assignment skipped", "id", id, "error", err)
			continue
		}
		rec, _ := c.cat.Get(id)
		c.mv.CreateOrUpdateMarker(rec, c.markerClicked)
		c.lv.Refresh(rec)
		c.persist(rec)
		assigned = append(assigned, string(id))
	}
	logging.LogAssignment(c.log, assigned, ll.Lat, ll.Lng)
	return assigned
}

func (c *Coordinator) persist(rec photo.Record) {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.SaveManualLocation(ctx, c.batchID, rec); err != nil {
		c.log.Warn("failed to persist assignment", "id", rec.ID, "error", err)
	}
}

func (c *Coordinator) imported(e Imported) {
	prevID, prev := c.batchID, c.cat.Records()
	defer c.release(prevID, prev)
	c.batchID = e.BatchID
	c.mv.Clear()
	c.lv.Clear()
	c.cat.ReplaceAll(e.Records)
	c.restore()
	for rec := range c.cat.Filter(catalog.WithLocation) {
		c.mv.CreateOrUpdateMarker(rec, c.markerClicked)
	}
	c.render()
	c.lv.SetDescription(DescribeImport(c.cat.Stats()))
	c.mv.FitToAll()
}

// restore re-applies stored manual locations to catalog records that have
// none. Only the same file on disk matches.
func (c *Coordinator) restore() {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	saved, err := c.store.ManualLocations(ctx)
	if err != nil {
		c.log.Warn("failed to load stored assignments", "error", err)
		return
	}
	if len(saved) == 0 {
		return
	}
	for _, rec := range slices.Collect(c.cat.Filter(catalog.WithoutLocation)) {
		key := rec.SourceKey()
		if key == "" {
			continue
		}
		ll, ok := saved[key]
		if !ok {
			continue
		}
		if err := c.cat.UpdateLocation(rec.ID, ll); err != nil {
			c.log.Warn("failed to restore assignment", "id", rec.ID, "error", err)
		}
	}
}

func (c *Coordinator) clear() {
	prevID, prev := c.batchID, c.cat.Records()
	defer c.release(prevID, prev)
	c.batchID = ""
	c.cat.Clear()
	c.mv.Clear()
	c.lv.Clear()
	c.lv.SetDescription(PromptText)
	if c.lv.SelectMode() {
		c.state = Selecting
	}
}

func (c *Coordinator) release(prevID string, prev []photo.Record) {
	if c.onRelease == nil {
		return
	}
	var rel Release
	if prevID != "" && prevID != c.batchID {
		rel.BatchID = prevID
	}
	inUse := make(map[string]bool)
	for rec := range c.cat.Filter(catalog.All) {
		if rec.Thumbnail != "" {
			inUse[rec.Thumbnail] = true
		}
	}
	for _, rec := range prev {
		if rec.Thumbnail != "" && !inUse[rec.Thumbnail] {
			rel.Thumbnails = append(rel.Thumbnails, rec.Thumbnail)
			inUse[rec.Thumbnail] = true
		}
	}
	if rel.BatchID == "" && len(rel.Thumbnails) == 0 {
		return
	}
	c.onRelease(rel)
}

func (c *Coordinator) render() {
	recs := slices.Collect(c.cat.Filter(c.filter.Predicate()))
	c.mv.ShowMarkers(recs)
	c.lv.Rebuild(recs, c.entryClicked)
}

func (c *Coordinator) entryClicked(id photo.ID) {
	if rec, ok := c.cat.Get(id); ok && rec.HasLocation() {
		c.mv.Focus(id)
	}
}

func (c *Coordinator) markerClicked(id photo.ID) {
	c.mv.Focus(id)
	c.lv.ScrollTo(id)
}
