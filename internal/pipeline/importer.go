package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"photomap/internal/photo"
)

// Extractor builds one record per file.
type Extractor interface {
	Extract(ctx context.Context, id photo.ID, src photo.Source) photo.Record
}

// Importer processes files strictly one after another so progress stays
// accurate and memory stays bounded.
type Importer struct {
	extractor Extractor
	log       *slog.Logger
}

// NewImporter returns the default Processor.
func NewImporter(extractor Extractor, logger *slog.Logger) *Importer {
	return &Importer{extractor: extractor, log: logger}
}

// Process extracts every file in job. Cancellation is checked between files.
func (im *Importer) Process(ctx context.Context, job Job, progress func(Result)) Result {
	total := len(job.Files)
	res := Result{Job: job, Total: total}
	seen := make(map[photo.ID]int, total)
	records := make([]photo.Record, 0, total)

	for i, src := range job.Files {
		if err := ctx.Err(); err != nil {
			res.Error = fmt.Errorf("import cancelled after %d of %d files: %w", i, total, err)
			return res
		}
		id := UniqueID(photo.DeriveID(src), seen)
		rec := im.extractor.Extract(ctx, id, src)
		records = append(records, rec)
		if rec.HasLocation() {
			res.Located++
		}
		res.Done = i + 1
		if progress != nil {
			progress(Result{Job: job, Kind: KindProgress, Done: i + 1, Total: total, File: src.Name, Located: res.Located})
		}
	}
	res.Records = records
	return res
}

// UniqueID returns id, or id with a "#n" suffix when it was already used in
// this batch. seen is updated.
func UniqueID(id photo.ID, seen map[photo.ID]int) photo.ID {
	n := seen[id]
	seen[id] = n + 1
	if n == 0 {
		return id
	}
	for {
		n++
		candidate := photo.ID(fmt.Sprintf("%s#%d", id, n))
		if seen[candidate] == 0 {
			seen[candidate] = 1
			seen[id] = n
			return candidate
		}
	}
}
