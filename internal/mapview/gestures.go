package mapview

import (
	"github.com/paulmach/orb"

	"photomap/internal/photo"
)

// SetRightClickZoom turns the right-drag zoom box on or off.
func (v *View) SetRightClickZoom(on bool) {
	v.rightClickZoom = on
	if !on {
		v.cancelZoomBox()
	}
	v.renderModes()
}

// SetTrackpad switches wheel handling between the default scroll zoom and
// trackpad pan/pinch.
func (v *View) SetTrackpad(on bool) {
	v.trackpad = on
	v.renderModes()
}

// ContextMenu starts a zoom box at ll.
func (v *View) ContextMenu(ll photo.LatLng) {
	if !v.rightClickZoom {
		return
	}
	if v.box.drawn {
		v.r.RenderMap(Command{Kind: CmdZoomBoxRemove})
	}
	v.box = zoomBox{active: true, start: ll, end: ll}
	v.r.RenderMap(Command{Kind: CmdCursor, Cursor: "crosshair"})
}

// MouseMove redraws the zoom box while the right button is held.
func (v *View) MouseMove(ll photo.LatLng) {
	if !v.box.active {
		return
	}
	v.box.end = ll
	v.box.drawn = true
	b := boundsFromOrb(boxBound(v.box.start, ll))
	v.r.RenderMap(Command{Kind: CmdZoomBoxDraw, Bounds: &b})
}

// MouseUp ends the gesture. The viewport is fitted to the box only when its
// diagonal exceeds the minimum distance; it reports whether that happened.
func (v *View) MouseUp() bool {
	if !v.box.active {
		return false
	}
	box := v.box
	v.cancelZoomBox()
	if !box.drawn {
		return false
	}
	b := boxBound(box.start, box.end)
	if !v.spanExceeds(b, v.opts.MinZoomBoxDistance) {
		return false
	}
	v.fit(b)
	return true
}

func (v *View) cancelZoomBox() {
	if !v.box.active && !v.box.drawn {
		return
	}
	if v.box.drawn {
		v.r.RenderMap(Command{Kind: CmdZoomBoxRemove})
	}
	if v.picker == nil {
		v.r.RenderMap(Command{Kind: CmdCursor, Cursor: ""})
	}
	v.box = zoomBox{}
}

// Wheel handles a wheel event in trackpad mode: a plain scroll pans by the
// raw delta, a pinch (reported with the modifier held) zooms by a fixed
// step in the direction of the delta. It reports whether it acted.
func (v *View) Wheel(dx, dy float64, modifier bool) bool {
	if !v.trackpad {
		return false
	}
	if !modifier {
		v.r.RenderMap(Command{Kind: CmdPanBy, DX: dx, DY: dy})
		return true
	}
	switch {
	case dy < 0:
		v.zoomBy(v.opts.TrackpadZoomStep)
	case dy > 0:
		v.zoomBy(-v.opts.TrackpadZoomStep)
	default:
		return false
	}
	return true
}

func (v *View) zoomBy(step float64) {
	center := v.viewport.Center
	v.viewport.Zoom += step
	v.r.RenderMap(Command{Kind: CmdFlyTo, LatLng: &center, Zoom: v.viewport.Zoom, Animate: true})
}

func boxBound(a, b photo.LatLng) orb.Bound {
	return orb.MultiPoint{toPoint(a), toPoint(b)}.Bound()
}
