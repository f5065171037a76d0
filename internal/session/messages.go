package session

import (
	"encoding/json"
	"fmt"

	"photomap/internal/assign"
	"photomap/internal/photo"
)

// ContextMenu starts a right-button zoom box.
type ContextMenu struct{ At photo.LatLng }

// MouseMove extends an active zoom box.
type MouseMove struct{ At photo.LatLng }

// MouseUp ends a zoom box gesture.
type MouseUp struct{}

// Wheel is a wheel or trackpad event.
type Wheel struct {
	DX, DY   float64
	Modifier bool
}

// SetRightClickZoom toggles the zoom box gesture.
type SetRightClickZoom struct{ Enabled bool }

// SetTrackpad toggles trackpad wheel handling.
type SetTrackpad struct{ Enabled bool }

// ViewportChanged is reported by the page after every move.
type ViewportChanged struct {
	Center photo.LatLng
	Zoom   float64
}

// Message is the JSON envelope the page sends over the websocket.
type Message struct {
	Type     string       `json:"type"`
	ID       photo.ID     `json:"id,omitempty"`
	LatLng   photo.LatLng `json:"latlng"`
	Enabled  bool         `json:"enabled,omitempty"`
	Filter   string       `json:"filter,omitempty"`
	DX       float64      `json:"dx,omitempty"`
	DY       float64      `json:"dy,omitempty"`
	Modifier bool         `json:"modifier,omitempty"`
	Zoom     float64      `json:"zoom,omitempty"`
}

// Decode turns a page message into an event.
func Decode(data []byte) (any, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return m.Event()
}

// Event maps the envelope to its event value.
func (m Message) Event() (any, error) {
	switch m.Type {
	case "edit":
		return assign.SetEditMode{Enabled: m.Enabled}, nil
	case "entry.click":
		return assign.EntryClicked{ID: m.ID}, nil
	case "marker.click":
		return assign.MarkerClicked{ID: m.ID}, nil
	case "map.click":
		return assign.MapClicked{At: m.LatLng}, nil
	case "filter":
		f, err := assign.ParseFilter(m.Filter)
		if err != nil {
			return nil, err
		}
		return assign.SetFilter{Filter: f}, nil
	case "fit":
		return assign.FitAll{}, nil
	case "clear":
		return assign.Cleared{}, nil
	case "map.contextmenu":
		return ContextMenu{At: m.LatLng}, nil
	case "map.mousemove":
		return MouseMove{At: m.LatLng}, nil
	case "map.mouseup":
		return MouseUp{}, nil
	case "map.wheel":
		return Wheel{DX: m.DX, DY: m.DY, Modifier: m.Modifier}, nil
	case "mode.rightclickzoom":
		return SetRightClickZoom{Enabled: m.Enabled}, nil
	case "mode.trackpad":
		return SetTrackpad{Enabled: m.Enabled}, nil
	case "map.moveend":
		return ViewportChanged{Center: m.LatLng, Zoom: m.Zoom}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
}
