package listview

import (
	"testing"
	"time"

	"photomap/internal/photo"
)

type recorder struct {
	cmds []Command
}

func (r *recorder) RenderList(c Command) { r.cmds = append(r.cmds, c) }

func (r *recorder) count(kind string) int {
	n := 0
	for _, c := range r.cmds {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func rec(id string) photo.Record {
	return photo.Record{
		ID:        photo.ID(id),
		Source:    photo.Source{Name: id},
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEnsureEntryIdempotent(t *testing.T) {
	r := &recorder{}
	l := New(r)
	var got []string
	l.EnsureEntry(rec("a"), func(id photo.ID) { got = append(got, "first") })
	l.EnsureEntry(rec("a"), func(id photo.ID) { got = append(got, "second") })
	if l.Len() != 1 {
		t.Fatalf("entries = %d, want 1", l.Len())
	}
	if r.count(CmdEntryUpsert) != 1 {
		t.Fatalf("entry rendered %d times", r.count(CmdEntryUpsert))
	}
	l.Click("a")
	if len(got) != 1 || got[0] != "second" {
		t.Fatalf("handler = %v", got)
	}
}

func TestRebuildKeepsOrderAndReusesEntries(t *testing.T) {
	l := New(nil)
	l.EnsureEntry(rec("b"), nil)
	l.Rebuild([]photo.Record{rec("c"), rec("a"), rec("b")}, nil)
	if l.Len() != 3 {
		t.Fatalf("entries = %d", l.Len())
	}
	order := l.Order()
	if len(order) != 3 || order[0] != "c" || order[1] != "a" || order[2] != "b" {
		t.Fatalf("order = %v", order)
	}
	l.Rebuild([]photo.Record{rec("a")}, nil)
	if l.Len() != 3 || len(l.Order()) != 1 {
		t.Fatalf("rebuild recreated entries: len=%d order=%v", l.Len(), l.Order())
	}
}

func TestRefreshRewritesLocation(t *testing.T) {
	l := New(nil)
	r := rec("a")
	l.EnsureEntry(r, nil)
	if e, _ := l.Entry("a"); e.Located || e.Location != NoLocationLabel {
		t.Fatalf("entry = %+v", e)
	}
	r.Location = &photo.LatLng{Lat: 39.9, Lng: 116.4}
	r.ManuallyAssigned = true
	if !l.Refresh(r) {
		t.Fatalf("refresh failed")
	}
	e, _ := l.Entry("a")
	if !e.Located || e.Location != "Location: 39.90000, 116.40000 (manual)" {
		t.Fatalf("entry = %+v", e)
	}
	if l.Refresh(rec("missing")) {
		t.Fatalf("refresh of unknown id succeeded")
	}
}

func TestSelectModeTogglesAndExcludesClick(t *testing.T) {
	l := New(nil)
	clicked := 0
	l.Rebuild([]photo.Record{rec("a"), rec("b")}, func(photo.ID) { clicked++ })

	var changes []Selection
	l.SetSelectMode(true, func(s Selection) { changes = append(changes, s) })
	if len(changes) != 1 || !changes[0].Empty() {
		t.Fatalf("entering select mode: %v", changes)
	}
	l.Click("a")
	l.Click("b")
	l.Click("a")
	if clicked != 0 {
		t.Fatalf("entry handler ran in select mode")
	}
	if len(changes) != 4 {
		t.Fatalf("changes = %d, want 4", len(changes))
	}
	last := changes[3]
	if last.Len() != 1 || !last.Contains("b") {
		t.Fatalf("selection = %v", last.IDs())
	}
	if changes[2].Len() != 2 {
		t.Fatalf("snapshot mutated: %v", changes[2].IDs())
	}

	l.SetSelectMode(false, nil)
	if !l.Selection().Empty() {
		t.Fatalf("selection survived toggle off")
	}
	if e, _ := l.Entry("b"); e.Selected {
		t.Fatalf("entry still marked selected")
	}
	l.Click("a")
	if clicked != 1 {
		t.Fatalf("handler not called outside select mode")
	}
}

func TestReenteringSelectModeClears(t *testing.T) {
	l := New(nil)
	l.Rebuild([]photo.Record{rec("a")}, nil)
	l.SetSelectMode(true, nil)
	l.Click("a")
	var got Selection
	l.SetSelectMode(true, func(s Selection) { got = s })
	if !got.Empty() || !l.Selection().Empty() {
		t.Fatalf("selection not cleared on re-entry")
	}
}

func TestSetDescription(t *testing.T) {
	r := &recorder{}
	l := New(r)
	l.SetDescription("3 imported, 2 with location.")
	if l.Description() != "3 imported, 2 with location." || r.count(CmdDescription) != 1 {
		t.Fatalf("description = %q", l.Description())
	}
}

func TestNewSelectionDropsDuplicates(t *testing.T) {
	s := NewSelection("a", "b", "a")
	if s.Len() != 2 {
		t.Fatalf("len = %d", s.Len())
	}
	ids := s.IDs()
	ids[0] = "z"
	if !s.Contains("a") {
		t.Fatalf("IDs leaked internal slice")
	}
}
