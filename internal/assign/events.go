package assign

import (
	"fmt"
	"strings"

	"photomap/internal/catalog"
	"photomap/internal/photo"
)

// Event is a user or system action applied to the coordinator.
type Event interface {
	isEvent()
}

// SetEditMode turns the multi-select assignment mode on or off.
type SetEditMode struct{ Enabled bool }

// EntryClicked is a click on a sidebar entry.
type EntryClicked struct{ ID photo.ID }

// MarkerClicked is a click on a map marker.
type MarkerClicked struct{ ID photo.ID }

// MapClicked is a plain left click on the map surface.
type MapClicked struct{ At photo.LatLng }

// SetFilter changes which records both views display.
type SetFilter struct{ Filter Filter }

// FitAll fits the viewport to the displayed markers.
type FitAll struct{}

// Imported replaces the catalog with a finished batch.
type Imported struct {
	BatchID string
	Records []photo.Record
}

// Cleared empties everything.
type Cleared struct{}

func (SetEditMode) isEvent()   {}
func (EntryClicked) isEvent()  {}
func (MarkerClicked) isEvent() {}
func (MapClicked) isEvent()    {}
func (SetFilter) isEvent()     {}
func (FitAll) isEvent()        {}
func (Imported) isEvent()      {}
func (Cleared) isEvent()       {}

// Filter names a catalog predicate.
type Filter string

const (
	FilterAll        Filter = "all"
	FilterNoLocation Filter = "nogps"
	FilterLocated    Filter = "located"
	FilterManual     Filter = "manual"
)

// ParseFilter accepts the names used by the page and the CLI.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FilterAll:
		return FilterAll, nil
	case FilterNoLocation, "no-gps", "missing":
		return FilterNoLocation, nil
	case FilterLocated, FilterManual:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q", s)
	}
}

// Predicate returns the catalog predicate for f.
func (f Filter) Predicate() catalog.Predicate {
	switch f {
	case FilterNoLocation:
		return catalog.WithoutLocation
	case FilterLocated:
		return catalog.WithLocation
	case FilterManual:
		return catalog.ManuallyAssigned
	default:
		return catalog.All
	}
}
