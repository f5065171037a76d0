// Package listview keeps the sidebar entries and the multi-select state.
package listview

import (
	"fmt"
	"slices"

	"photomap/internal/photo"
)

// Command kinds understood by the page's sidebar renderer.
const (
	CmdEntryUpsert  = "entry.upsert"
	CmdEntrySelect  = "entry.select"
	CmdEntryScroll  = "entry.scroll"
	CmdOrder        = "list.order"
	CmdClear        = "list.clear"
	CmdDescription  = "list.description"
	CmdSelectMode   = "list.selectmode"
	NoLocationLabel = "Location: none"
)

// Entry is what the page draws for one record.
type Entry struct {
	ID        photo.ID `json:"id"`
	Summary   string   `json:"summary"`
	Location  string   `json:"location"`
	Located   bool     `json:"located"`
	Manual    bool     `json:"manual"`
	Thumbnail bool     `json:"thumbnail"`
	Selected  bool     `json:"selected"`

	onClick func(photo.ID)
}

// Command is one sidebar instruction.
type Command struct {
	Kind       string     `json:"kind"`
	Entry      *Entry     `json:"entry,omitempty"`
	ID         photo.ID   `json:"id,omitempty"`
	IDs        []photo.ID `json:"ids,omitempty"`
	Selected   bool       `json:"selected,omitempty"`
	Text       string     `json:"text,omitempty"`
	SelectMode bool       `json:"selectMode,omitempty"`
}

// Renderer receives sidebar commands in order.
type Renderer interface {
	RenderList(Command)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Command)

func (f RendererFunc) RenderList(c Command) { f(c) }

// Discard drops every command.
var Discard Renderer = RendererFunc(func(Command) {})

// Selection is an immutable snapshot of selected ids in selection order.
type Selection struct {
	ids []photo.ID
}

// NewSelection builds a snapshot from ids, dropping duplicates.
func NewSelection(ids ...photo.ID) Selection {
	var s Selection
	for _, id := range ids {
		if !s.Contains(id) {
			s.ids = append(s.ids, id)
		}
	}
	return s
}

// Len returns the number of selected ids.
func (s Selection) Len() int { return len(s.ids) }

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool { return len(s.ids) == 0 }

// Contains reports whether id is selected.
func (s Selection) Contains(id photo.ID) bool { return slices.Contains(s.ids, id) }

// IDs returns a copy of the selected ids.
func (s Selection) IDs() []photo.ID { return slices.Clone(s.ids) }

func (s Selection) toggle(id photo.ID) Selection {
	if i := slices.Index(s.ids, id); i >= 0 {
		return Selection{ids: slices.Delete(slices.Clone(s.ids), i, i+1)}
	}
	return Selection{ids: append(slices.Clone(s.ids), id)}
}

// List is not safe for concurrent use; the session loop owns it.
type List struct {
	r        Renderer
	entries  map[photo.ID]*Entry
	order    []photo.ID
	selMode  bool
	sel      Selection
	onChange func(Selection)
	desc     string
}

// New returns an empty list.
func New(r Renderer) *List {
	if r == nil {
		r = Discard
	}
	return &List{r: r, entries: make(map[photo.ID]*Entry)}
}

// EnsureEntry creates the entry for rec if missing, and always rebinds its
// click handler. Calling it again never adds a second entry.
func (l *List) EnsureEntry(rec photo.Record, onClick func(photo.ID)) {
	if e, ok := l.entries[rec.ID]; ok {
		e.onClick = onClick
		return
	}
	e := &Entry{onClick: onClick}
	fill(e, rec)
	l.entries[rec.ID] = e
	l.emitEntry(e)
}

// Rebuild displays exactly one entry per record, in the given order. Existing
// entries are reused.
func (l *List) Rebuild(records []photo.Record, onClick func(photo.ID)) {
	order := make([]photo.ID, 0, len(records))
	for _, rec := range records {
		l.EnsureEntry(rec, onClick)
		order = append(order, rec.ID)
	}
	l.order = order
	l.r.RenderList(Command{Kind: CmdOrder, IDs: slices.Clone(order)})
}

// Refresh rewrites the location indicator of an existing entry in place.
func (l *List) Refresh(rec photo.Record) bool {
	e, ok := l.entries[rec.ID]
	if !ok {
		return false
	}
	fill(e, rec)
	l.emitEntry(e)
	return true
}

// Clear drops every entry and the selection.
func (l *List) Clear() {
	l.entries = make(map[photo.ID]*Entry)
	l.order = nil
	l.sel = Selection{}
	l.r.RenderList(Command{Kind: CmdClear})
	if l.selMode && l.onChange != nil {
		l.onChange(l.sel)
	}
}

// Len returns the size of the entry table.
func (l *List) Len() int { return len(l.entries) }

// Order returns the displayed ids.
func (l *List) Order() []photo.ID { return slices.Clone(l.order) }

// Entry returns a copy of the entry for id.
func (l *List) Entry(id photo.ID) (Entry, bool) {
	e, ok := l.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// SetSelectMode enters or leaves select mode. Either way the selection is
// cleared and onChange, when entering, receives the empty set.
func (l *List) SetSelectMode(enabled bool, onChange func(Selection)) {
	for _, id := range l.sel.ids {
		if e, ok := l.entries[id]; ok {
			e.Selected = false
			l.r.RenderList(Command{Kind: CmdEntrySelect, ID: id})
		}
	}
	l.sel = Selection{}
	l.selMode = enabled
	l.r.RenderList(Command{Kind: CmdSelectMode, SelectMode: enabled})
	if !enabled {
		l.onChange = nil
		return
	}
	l.onChange = onChange
	if onChange != nil {
		onChange(l.sel)
	}
}

// SelectMode reports whether select mode is on.
func (l *List) SelectMode() bool { return l.selMode }

// Selection returns the current snapshot.
func (l *List) Selection() Selection { return l.sel }

// ClearSelection empties the selection without leaving select mode.
func (l *List) ClearSelection() {
	if l.sel.Empty() {
		return
	}
	for _, id := range l.sel.ids {
		if e, ok := l.entries[id]; ok {
			e.Selected = false
			l.r.RenderList(Command{Kind: CmdEntrySelect, ID: id})
		}
	}
	l.sel = Selection{}
	if l.onChange != nil {
		l.onChange(l.sel)
	}
}

// Click handles a click on an entry: in select mode it toggles membership,
// otherwise it calls the entry's handler.
func (l *List) Click(id photo.ID) {
	e, ok := l.entries[id]
	if !ok {
		return
	}
	if !l.selMode {
		if e.onClick != nil {
			e.onClick(id)
		}
		return
	}
	l.sel = l.sel.toggle(id)
	e.Selected = l.sel.Contains(id)
	l.r.RenderList(Command{Kind: CmdEntrySelect, ID: id, Selected: e.Selected})
	if l.onChange != nil {
		l.onChange(l.sel)
	}
}

// ScrollTo asks the page to bring an entry into view.
func (l *List) ScrollTo(id photo.ID) {
	if _, ok := l.entries[id]; ok {
		l.r.RenderList(Command{Kind: CmdEntryScroll, ID: id})
	}
}

// SetDescription replaces the header text.
func (l *List) SetDescription(text string) {
	l.desc = text
	l.r.RenderList(Command{Kind: CmdDescription, Text: text})
}

// Description returns the header text.
func (l *List) Description() string { return l.desc }

// Replay re-emits the whole sidebar for a renderer that just connected.
func (l *List) Replay(r Renderer) {
	r.RenderList(Command{Kind: CmdClear})
	ids := make([]photo.ID, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		e := *l.entries[id]
		r.RenderList(Command{Kind: CmdEntryUpsert, Entry: &e})
	}
	r.RenderList(Command{Kind: CmdOrder, IDs: slices.Clone(l.order)})
	r.RenderList(Command{Kind: CmdSelectMode, SelectMode: l.selMode})
	r.RenderList(Command{Kind: CmdDescription, Text: l.desc})
}

func (l *List) emitEntry(e *Entry) {
	cp := *e
	l.r.RenderList(Command{Kind: CmdEntryUpsert, Entry: &cp})
}

func fill(e *Entry, rec photo.Record) {
	e.ID = rec.ID
	e.Summary = rec.Summary()
	e.Located = rec.HasLocation()
	e.Manual = rec.ManuallyAssigned
	e.Thumbnail = rec.Thumbnail != ""
	e.Location = LocationLabel(rec)
}

// LocationLabel is the indicator line shown under an entry.
func LocationLabel(rec photo.Record) string {
	if rec.Location == nil {
		return NoLocationLabel
	}
	label := fmt.Sprintf("Location: %.5f, %.5f", rec.Location.Lat, rec.Location.Lng)
	if rec.ManuallyAssigned {
		label += " (manual)"
	}
	return label
}
