// Package extract turns image files into photo records.
package extract

import (
	"context"
	"log/slog"

	"photomap/internal/logging"
	"photomap/internal/photo"
)

// Extractor reads metadata and renders a thumbnail for one file at a time.
// It holds no per-batch state.
type Extractor struct {
	readers chain
	thumbs  Thumbnailer
	log     *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithReaders replaces the metadata reader chain.
func WithReaders(readers ...Reader) Option {
	return func(e *Extractor) { e.readers = readers }
}

// WithThumbnailer enables thumbnail generation.
func WithThumbnailer(t Thumbnailer) Option {
	return func(e *Extractor) { e.thumbs = t }
}

// New returns an Extractor using goexif, then exiftool when useExiftool is
// set and the binary is installed.
func New(log *slog.Logger, useExiftool bool, opts ...Option) *Extractor {
	readers := chain{ExifReader{}}
	if et := (ExiftoolReader{}); useExiftool && et.Available() {
		readers = append(readers, et)
	}
	e := &Extractor{readers: readers, log: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract builds the record for src. It never fails: unreadable metadata
// leaves Location nil and Timestamp at the file's modification time, and a
// failed thumbnail leaves Thumbnail empty.
func (e *Extractor) Extract(ctx context.Context, id photo.ID, src photo.Source) photo.Record {
	rec := photo.Record{
		ID:        id,
		Source:    src,
		Timestamp: src.ModTime,
	}

	meta, reader, err := e.readers.Read(ctx, src.Path)
	if err != nil {
		logging.LogFileSkipped(e.log, src.Path, "metadata", err)
	} else {
		if !meta.Taken.IsZero() {
			rec.Timestamp = meta.Taken
		}
		rec.Location = meta.Location
		e.log.Debug("metadata read",
			"id", id,
			"reader", reader,
			"has_location", rec.Location != nil,
		)
	}

	if e.thumbs != nil {
		thumb, err := e.thumbs.Thumbnail(ctx, id, src)
		if err != nil {
			logging.LogFileSkipped(e.log, src.Path, "thumbnail", err)
		} else {
			rec.Thumbnail = thumb
		}
	}

	return rec
}
