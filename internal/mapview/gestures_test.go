package mapview

import (
	"testing"

	"photomap/internal/photo"
)

func TestZoomBoxBelowThresholdKeepsViewport(t *testing.T) {
	v, rec := newView()
	before := v.Viewport()

	v.ContextMenu(photo.LatLng{Lat: 39.9, Lng: 116.4})
	v.MouseMove(photo.LatLng{Lat: 39.9002, Lng: 116.4002})
	if v.MouseUp() {
		t.Fatalf("small box fitted")
	}
	if rec.count(CmdFitBounds) != 0 || v.Viewport() != before {
		t.Fatalf("viewport changed: %v", rec.kinds())
	}
	if rec.count(CmdZoomBoxRemove) != 1 {
		t.Fatalf("box not removed: %v", rec.kinds())
	}
}

func TestZoomBoxFitsOnRelease(t *testing.T) {
	v, rec := newView()
	v.ContextMenu(photo.LatLng{Lat: 39.9, Lng: 116.4})
	v.MouseMove(photo.LatLng{Lat: 39.95, Lng: 116.45})
	v.MouseMove(photo.LatLng{Lat: 40.0, Lng: 116.5})
	if rec.count(CmdZoomBoxDraw) != 2 {
		t.Fatalf("box not redrawn live: %v", rec.kinds())
	}
	if !v.MouseUp() {
		t.Fatalf("box not fitted")
	}
	last := rec.cmds[len(rec.cmds)-1]
	if last.Kind != CmdFitBounds || last.Bounds.North != 40.0 || last.Bounds.West != 116.4 {
		t.Fatalf("last = %+v", last)
	}
}

func TestZoomBoxWithoutDragIsIgnored(t *testing.T) {
	v, rec := newView()
	v.ContextMenu(photo.LatLng{Lat: 39.9, Lng: 116.4})
	if v.MouseUp() || rec.count(CmdFitBounds) != 0 {
		t.Fatalf("click without drag fitted")
	}
}

func TestZoomBoxDisabled(t *testing.T) {
	v, rec := newView()
	v.SetRightClickZoom(false)
	rec.reset()
	v.ContextMenu(photo.LatLng{Lat: 39.9, Lng: 116.4})
	v.MouseMove(photo.LatLng{Lat: 41, Lng: 117})
	if v.MouseUp() || len(rec.cmds) != 0 {
		t.Fatalf("disabled zoom box acted: %v", rec.kinds())
	}
}

func TestWheel(t *testing.T) {
	cases := []struct {
		name     string
		trackpad bool
		dx, dy   float64
		modifier bool
		acted    bool
		kind     string
		zoom     float64
	}{
		{"default mode ignored", false, 5, 5, false, false, "", 13},
		{"pan", true, 12, -7, false, true, CmdPanBy, 13},
		{"pinch in", true, 0, -3, true, true, CmdFlyTo, 13.3},
		{"pinch out", true, 0, 40, true, true, CmdFlyTo, 12.7},
		{"zero delta", true, 0, 0, true, false, "", 13},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, rec := newView()
			v.SetTrackpad(tc.trackpad)
			rec.reset()
			if got := v.Wheel(tc.dx, tc.dy, tc.modifier); got != tc.acted {
				t.Fatalf("Wheel = %v, want %v", got, tc.acted)
			}
			if !tc.acted {
				if len(rec.cmds) != 0 {
					t.Fatalf("unexpected commands %v", rec.kinds())
				}
				return
			}
			c := rec.cmds[0]
			if c.Kind != tc.kind {
				t.Fatalf("kind = %s, want %s", c.Kind, tc.kind)
			}
			if c.Kind == CmdPanBy && (c.DX != tc.dx || c.DY != tc.dy || c.Animate) {
				t.Fatalf("pan = %+v", c)
			}
			if d := v.Viewport().Zoom - tc.zoom; d > 1e-9 || d < -1e-9 {
				t.Fatalf("zoom = %v, want %v", v.Viewport().Zoom, tc.zoom)
			}
		})
	}
}

func TestModesToggleIndependently(t *testing.T) {
	v, _ := newView()
	v.SetTrackpad(true)
	v.SetRightClickZoom(false)
	m := v.Modes()
	if !m.Trackpad || m.RightClickZoom {
		t.Fatalf("modes = %+v", m)
	}
	v.SetRightClickZoom(true)
	if m = v.Modes(); !m.Trackpad || !m.RightClickZoom {
		t.Fatalf("modes = %+v", m)
	}
}
