package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"photomap/internal/photo"
)

// Format names an export kind.
type Format string

const (
	FormatKML     Format = "kml"
	FormatManual  Format = "manual"
	FormatGeoJSON Format = "geojson"
	FormatParquet Format = "parquet"
)

// Formats lists every supported format.
var Formats = []Format{FormatKML, FormatManual, FormatGeoJSON, FormatParquet}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType is the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatKML:
		return "application/vnd.google-earth.kml+xml"
	case FormatGeoJSON:
		return "application/geo+json"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "application/json"
	}
}

// Filename is the suggested download name for f.
func (f Format) Filename() string {
	switch f {
	case FormatKML:
		return "export.kml"
	case FormatManual:
		return "manual-locations.json"
	case FormatGeoJSON:
		return "photos.geojson"
	default:
		return "photos.parquet"
	}
}

// ManualLocations maps export path to coordinate for hand-placed records.
func ManualLocations(records []photo.Record) map[string]photo.LatLng {
	out := make(map[string]photo.LatLng)
	for _, r := range records {
		if r.ManuallyAssigned && r.Location != nil {
			out[r.ExportPath()] = *r.Location
		}
	}
	return out
}

// WriteManualJSON writes {path: {lat, lng}} for manually assigned records,
// indented by two spaces. With none it writes an empty object.
func WriteManualJSON(w io.Writer, records []photo.Record) (int, error) {
	locs := ManualLocations(records)
	data, err := json.MarshalIndent(locs, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode manual locations: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return 0, err
	}
	return len(locs), nil
}

// FeatureCollection builds a GeoJSON collection of located records.
func FeatureCollection(records []photo.Record) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range records {
		if r.Location == nil {
			continue
		}
		f := geojson.NewFeature(orb.Point{r.Location.Lng, r.Location.Lat})
		f.ID = string(r.ID)
		f.Properties["name"] = r.Source.Name
		f.Properties["path"] = r.ExportPath()
		f.Properties["time"] = r.Timestamp.Format(time.RFC3339)
		f.Properties["manual"] = r.ManuallyAssigned
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON writes the located records as a FeatureCollection.
func WriteGeoJSON(w io.Writer, records []photo.Record) (int, error) {
	fc := FeatureCollection(records)
	data, err := fc.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("encode geojson: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return 0, err
	}
	return len(fc.Features), nil
}

// Row is one catalog record in the Parquet dump.
type Row struct {
	ID        string   `parquet:"id"`
	Path      string   `parquet:"path"`
	Name      string   `parquet:"name"`
	MediaType string   `parquet:"media_type"`
	Size      int64    `parquet:"size"`
	TakenAt   int64    `parquet:"taken_at_ms"`
	Lat       *float64 `parquet:"lat,optional"`
	Lng       *float64 `parquet:"lng,optional"`
	Manual    bool     `parquet:"manual"`
}

// Rows flattens records for Parquet.
func Rows(records []photo.Record) []Row {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		row := Row{
			ID:        string(r.ID),
			Path:      r.ExportPath(),
			Name:      r.Source.Name,
			MediaType: r.Source.MediaType,
			Size:      r.Source.Size,
			TakenAt:   r.Timestamp.UnixMilli(),
			Manual:    r.ManuallyAssigned,
		}
		if r.Location != nil {
			lat, lng := r.Location.Lat, r.Location.Lng
			row.Lat, row.Lng = &lat, &lng
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteParquet writes every record, located or not.
func WriteParquet(w io.Writer, records []photo.Record) (int, error) {
	rows := Rows(records)
	if err := parquet.Write(w, rows); err != nil {
		return 0, fmt.Errorf("write parquet: %w", err)
	}
	return len(rows), nil
}

// Write dispatches to the writer for f.
func Write(w io.Writer, f Format, records []photo.Record, kml KMLOptions) (int, error) {
	switch f {
	case FormatKML:
		return WriteKML(w, records, kml)
	case FormatManual:
		return WriteManualJSON(w, records)
	case FormatGeoJSON:
		return WriteGeoJSON(w, records)
	case FormatParquet:
		return WriteParquet(w, records)
	default:
		return 0, fmt.Errorf("unknown export format %q", f)
	}
}
