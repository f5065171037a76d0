// Package catalog holds the ordered set of imported photos.
package catalog

import (
	"errors"
	"iter"
	"slices"

	"photomap/internal/photo"
)

// ErrNotFound is returned for ids that are not in the catalog.
var ErrNotFound = errors.New("photo not found")

// Predicate selects records for Filter.
type Predicate func(photo.Record) bool

// All matches every record.
func All(photo.Record) bool { return true }

// WithoutLocation matches records that still need a coordinate.
func WithoutLocation(r photo.Record) bool { return !r.HasLocation() }

// WithLocation matches records that have a coordinate.
func WithLocation(r photo.Record) bool { return r.HasLocation() }

// ManuallyAssigned matches records placed by hand.
func ManuallyAssigned(r photo.Record) bool { return r.ManuallyAssigned }

// Stats summarises a catalog.
type Stats struct {
	Total   int `json:"total"`
	Located int `json:"located"`
	Manual  int `json:"manual"`
}

// Catalog is not safe for concurrent use; the session loop owns it.
type Catalog struct {
	records []photo.Record
	index   map[photo.ID]int
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{index: make(map[photo.ID]int)}
}

// ReplaceAll discards the current contents and stores records sorted by
// timestamp. Equal timestamps keep their input order.
func (c *Catalog) ReplaceAll(records []photo.Record) {
	next := make([]photo.Record, len(records))
	for i, r := range records {
		next[i] = r.Clone()
	}
	slices.SortStableFunc(next, func(a, b photo.Record) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	c.records = next
	c.reindex()
}

// Clear empties the catalog.
func (c *Catalog) Clear() {
	c.records = nil
	c.index = make(map[photo.ID]int)
}

func (c *Catalog) reindex() {
	c.index = make(map[photo.ID]int, len(c.records))
	for i, r := range c.records {
		c.index[r.ID] = i
	}
}

// Filter yields, in catalog order, copies of the records matching pred. The
// sequence may be ranged over any number of times.
func (c *Catalog) Filter(pred Predicate) iter.Seq[photo.Record] {
	if pred == nil {
		pred = All
	}
	return func(yield func(photo.Record) bool) {
		for _, r := range c.records {
			if !pred(r) {
				continue
			}
			if !yield(r.Clone()) {
				return
			}
		}
	}
}

// Records returns a copy of every record in order.
func (c *Catalog) Records() []photo.Record {
	return slices.Collect(c.Filter(All))
}

// Get returns a copy of the record with the given id.
func (c *Catalog) Get(id photo.ID) (photo.Record, bool) {
	i, ok := c.index[id]
	if !ok {
		return photo.Record{}, false
	}
	return c.records[i].Clone(), true
}

// Len returns the number of records.
func (c *Catalog) Len() int { return len(c.records) }

// UpdateLocation records a manually chosen coordinate.
func (c *Catalog) UpdateLocation(id photo.ID, ll photo.LatLng) error {
	i, ok := c.index[id]
	if !ok {
		return ErrNotFound
	}
	c.records[i].Location = &ll
	c.records[i].ManuallyAssigned = true
	return nil
}

// Stats counts records by location state.
func (c *Catalog) Stats() Stats {
	s := Stats{Total: len(c.records)}
	for _, r := range c.records {
		if r.HasLocation() {
			s.Located++
		}
		if r.ManuallyAssigned {
			s.Manual++
		}
	}
	return s
}
