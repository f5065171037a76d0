package mapview

import (
	"github.com/paulmach/orb"

	"photomap/internal/photo"
)

// Command kinds understood by the page's Leaflet renderer.
const (
	CmdMarkerCreate  = "marker.create"
	CmdMarkerUpdate  = "marker.update"
	CmdMarkerShow    = "marker.show"
	CmdMarkerHide    = "marker.hide"
	CmdMarkersClear  = "markers.clear"
	CmdPopupOpen     = "popup.open"
	CmdFitBounds     = "view.fit"
	CmdFlyTo         = "view.fly"
	CmdPanBy         = "view.pan"
	CmdCursor        = "view.cursor"
	CmdZoomBoxDraw   = "zoombox.draw"
	CmdZoomBoxRemove = "zoombox.remove"
	CmdModes         = "view.modes"
)

// Bounds is a lat/lng rectangle.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

func boundsFromOrb(b orb.Bound) Bounds {
	return Bounds{South: b.Min.Lat(), West: b.Min.Lon(), North: b.Max.Lat(), East: b.Max.Lon()}
}

// Command is one instruction for the renderer. Only the fields relevant to
// Kind are set.
type Command struct {
	Kind    string        `json:"kind"`
	ID      photo.ID      `json:"id,omitempty"`
	LatLng  *photo.LatLng `json:"latlng,omitempty"`
	Popup   string        `json:"popup,omitempty"`
	Bounds  *Bounds       `json:"bounds,omitempty"`
	Zoom    float64       `json:"zoom,omitempty"`
	Animate bool          `json:"animate,omitempty"`
	DX      float64       `json:"dx,omitempty"`
	DY      float64       `json:"dy,omitempty"`
	Cursor  string        `json:"cursor,omitempty"`
	Modes   *Modes        `json:"modes,omitempty"`
}

// Modes reports which gesture handlers are on.
type Modes struct {
	RightClickZoom bool `json:"rightClickZoom"`
	Trackpad       bool `json:"trackpad"`
	Picking        bool `json:"picking"`
}

// Renderer receives map commands in the order they must be applied.
type Renderer interface {
	RenderMap(Command)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Command)

func (f RendererFunc) RenderMap(c Command) { f(c) }

// Discard drops every command.
var Discard Renderer = RendererFunc(func(Command) {})
