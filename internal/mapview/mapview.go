// Package mapview keeps the marker table and viewport state behind the
// browser map, and implements pick mode and the custom gestures.
package mapview

import (
	"log/slog"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"photomap/internal/photo"
)

// Options tunes viewport behaviour.
type Options struct {
	Center             photo.LatLng
	Zoom               float64
	FocusZoom          float64
	FitPadding         float64
	MinFitDistance     float64 // meters
	MinZoomBoxDistance float64 // meters
	TrackpadZoomStep   float64
}

// DefaultOptions mirrors the built-in config.
func DefaultOptions() Options {
	return Options{
		Center:             photo.LatLng{Lat: 39.875272, Lng: 116.3914417},
		Zoom:               13,
		FocusZoom:          18,
		FitPadding:         0.1,
		MinFitDistance:     100,
		MinZoomBoxDistance: 100,
		TrackpadZoomStep:   0.3,
	}
}

// Viewport is the last known map center and zoom.
type Viewport struct {
	Center photo.LatLng `json:"center"`
	Zoom   float64      `json:"zoom"`
}

// Marker is one photo's pin.
type Marker struct {
	ID       photo.ID
	LatLng   photo.LatLng
	Popup    string
	Attached bool
	onClick  func(photo.ID)
}

type zoomBox struct {
	active bool
	drawn  bool
	start  photo.LatLng
	end    photo.LatLng
}

// View is not safe for concurrent use; the session loop owns it.
type View struct {
	r        Renderer
	opts     Options
	log      *slog.Logger
	markers  map[photo.ID]*Marker
	viewport Viewport
	picker   func(photo.LatLng)
	box      zoomBox

	rightClickZoom bool
	trackpad       bool
}

// New returns a view with no markers.
func New(r Renderer, opts Options, log *slog.Logger) *View {
	if r == nil {
		r = Discard
	}
	return &View{
		r:              r,
		opts:           opts,
		log:            log,
		markers:        make(map[photo.ID]*Marker),
		viewport:       Viewport{Center: opts.Center, Zoom: opts.Zoom},
		rightClickZoom: true,
	}
}

// CreateOrUpdateMarker places the marker for rec. An existing marker is
// moved and its click handler replaced. Records without a location are
// ignored. New markers start detached; ShowMarkers attaches them.
func (v *View) CreateOrUpdateMarker(rec photo.Record, onClick func(photo.ID)) {
	if rec.Location == nil {
		return
	}
	ll := *rec.Location
	if m, ok := v.markers[rec.ID]; ok {
		m.LatLng = ll
		m.Popup = rec.Summary()
		m.onClick = onClick
		v.r.RenderMap(Command{Kind: CmdMarkerUpdate, ID: m.ID, LatLng: &ll, Popup: m.Popup})
		return
	}
	m := &Marker{ID: rec.ID, LatLng: ll, Popup: rec.Summary(), onClick: onClick}
	v.markers[rec.ID] = m
	v.r.RenderMap(Command{Kind: CmdMarkerCreate, ID: m.ID, LatLng: &ll, Popup: m.Popup})
}

// ShowMarkers attaches exactly the markers belonging to records and detaches
// the rest. Records without a marker are skipped.
func (v *View) ShowMarkers(records []photo.Record) {
	want := make(map[photo.ID]struct{}, len(records))
	for _, r := range records {
		if _, ok := v.markers[r.ID]; ok {
			want[r.ID] = struct{}{}
		}
	}
	for _, id := range v.sortedIDs() {
		m := v.markers[id]
		_, keep := want[id]
		switch {
		case keep && !m.Attached:
			m.Attached = true
			v.r.RenderMap(Command{Kind: CmdMarkerShow, ID: id})
		case !keep && m.Attached:
			m.Attached = false
			v.r.RenderMap(Command{Kind: CmdMarkerHide, ID: id})
		}
	}
}

// Clear drops every marker and cancels pick mode.
func (v *View) Clear() {
	v.markers = make(map[photo.ID]*Marker)
	v.DisarmPicker()
	v.r.RenderMap(Command{Kind: CmdMarkersClear})
}

// Marker returns a copy of the marker for id.
func (v *View) Marker(id photo.ID) (Marker, bool) {
	m, ok := v.markers[id]
	if !ok {
		return Marker{}, false
	}
	return *m, true
}

// MarkerCount returns the size of the marker table.
func (v *View) MarkerCount() int { return len(v.markers) }

// Attached lists the ids currently on the visible layer.
func (v *View) Attached() []photo.ID {
	var ids []photo.ID
	for _, id := range v.sortedIDs() {
		if v.markers[id].Attached {
			ids = append(ids, id)
		}
	}
	return ids
}

func (v *View) sortedIDs() []photo.ID {
	ids := make([]photo.ID, 0, len(v.markers))
	for id := range v.markers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ClickMarker runs the click handler bound to a marker.
func (v *View) ClickMarker(id photo.ID) {
	m, ok := v.markers[id]
	if !ok || m.onClick == nil {
		return
	}
	m.onClick(id)
}

// FitToAll fits the viewport to every attached marker with padding. It
// reports false and leaves the viewport alone when there is nothing to fit
// or the box is degenerate.
func (v *View) FitToAll() bool {
	var pts orb.MultiPoint
	for _, m := range v.markers {
		if m.Attached {
			pts = append(pts, toPoint(m.LatLng))
		}
	}
	if len(pts) == 0 {
		return false
	}
	b := pts.Bound()
	if !v.spanExceeds(b, v.opts.MinFitDistance) {
		v.log.Debug("fit skipped, degenerate bounds", "markers", len(pts))
		return false
	}
	v.fit(pad(b, v.opts.FitPadding))
	return true
}

// Focus flies to the marker for id and then opens its popup. The popup must
// follow the fly command or it anchors to the old viewport.
func (v *View) Focus(id photo.ID) bool {
	m, ok := v.markers[id]
	if !ok {
		v.log.Warn("focus on unknown marker", "id", id)
		return false
	}
	ll := m.LatLng
	v.viewport = Viewport{Center: ll, Zoom: v.opts.FocusZoom}
	v.r.RenderMap(Command{Kind: CmdFlyTo, LatLng: &ll, Zoom: v.opts.FocusZoom, Animate: true})
	v.r.RenderMap(Command{Kind: CmdPopupOpen, ID: id})
	return true
}

// ViewportChanged records the viewport the page reports after a move.
func (v *View) ViewportChanged(vp Viewport) {
	v.viewport = vp
}

// Viewport returns the last known viewport.
func (v *View) Viewport() Viewport { return v.viewport }

// ArmPicker captures the next map click and hands its coordinate to
// onPicked. Arming again replaces the pending callback.
func (v *View) ArmPicker(onPicked func(photo.LatLng)) {
	wasArmed := v.picker != nil
	v.picker = onPicked
	if !wasArmed {
		v.r.RenderMap(Command{Kind: CmdCursor, Cursor: "crosshair"})
		v.renderModes()
	}
}

// DisarmPicker cancels a pending pick without calling back.
func (v *View) DisarmPicker() {
	if v.picker == nil {
		return
	}
	v.picker = nil
	v.r.RenderMap(Command{Kind: CmdCursor, Cursor: ""})
	v.renderModes()
}

// PickerArmed reports whether a pick is pending.
func (v *View) PickerArmed() bool { return v.picker != nil }

// HandleClick processes a plain left click on the map surface. It reports
// whether the click was consumed by pick mode.
func (v *View) HandleClick(ll photo.LatLng) bool {
	if v.picker == nil {
		return false
	}
	fn := v.picker
	v.DisarmPicker()
	fn(ll)
	return true
}

// Modes returns the gesture state.
func (v *View) Modes() Modes {
	return Modes{RightClickZoom: v.rightClickZoom, Trackpad: v.trackpad, Picking: v.picker != nil}
}

func (v *View) renderModes() {
	m := v.Modes()
	v.r.RenderMap(Command{Kind: CmdModes, Modes: &m})
}

func (v *View) fit(b orb.Bound) {
	bounds := boundsFromOrb(b)
	center := b.Center()
	v.viewport.Center = photo.LatLng{Lat: center.Lat(), Lng: center.Lon()}
	v.r.RenderMap(Command{Kind: CmdFitBounds, Bounds: &bounds})
}

// spanExceeds reports whether b is a real box whose diagonal is longer than
// min meters.
func (v *View) spanExceeds(b orb.Bound, min float64) bool {
	if b.Min.Equal(b.Max) {
		return false
	}
	return geo.DistanceHaversine(b.Min, b.Max) > min
}

// Replay re-emits the full marker and mode state, for a renderer that just
// connected.
func (v *View) Replay(r Renderer) {
	r.RenderMap(Command{Kind: CmdMarkersClear})
	for _, id := range v.sortedIDs() {
		m := v.markers[id]
		ll := m.LatLng
		r.RenderMap(Command{Kind: CmdMarkerCreate, ID: id, LatLng: &ll, Popup: m.Popup})
		if m.Attached {
			r.RenderMap(Command{Kind: CmdMarkerShow, ID: id})
		}
	}
	center := v.viewport.Center
	r.RenderMap(Command{Kind: CmdFlyTo, LatLng: &center, Zoom: v.viewport.Zoom})
	modes := v.Modes()
	r.RenderMap(Command{Kind: CmdModes, Modes: &modes})
}

func toPoint(ll photo.LatLng) orb.Point { return orb.Point{ll.Lng, ll.Lat} }

func pad(b orb.Bound, ratio float64) orb.Bound {
	dx := (b.Max.Lon() - b.Min.Lon()) * ratio
	dy := (b.Max.Lat() - b.Min.Lat()) * ratio
	return orb.Bound{
		Min: orb.Point{b.Min.Lon() - dx, b.Min.Lat() - dy},
		Max: orb.Point{b.Max.Lon() + dx, b.Max.Lat() + dy},
	}
}
