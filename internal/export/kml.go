// Package export writes the catalog out as KML, JSON, GeoJSON or Parquet.
package export

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"photomap/internal/photo"
)

// DefaultDocumentName titles exported KML documents.
const DefaultDocumentName = "Untitled project"

// KMLOptions controls KML output.
type KMLOptions struct {
	DocumentName string
	// ImageURL returns the carousel image reference for a record; empty
	// leaves the element blank.
	ImageURL func(photo.Record) string
}

var xmlEscaper = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	"&", "&amp;",
	"'", "&apos;",
	`"`, "&quot;",
)

// EscapeXML escapes the five XML special characters.
func EscapeXML(s string) string { return xmlEscaper.Replace(s) }

type placemark struct {
	Index int
	Name  string
	Image string
	Lat   float64
	Lng   float64
}

var kmlTemplate = template.Must(template.New("kml").Funcs(template.FuncMap{
	"esc":   EscapeXML,
	"coord": func(f float64) string { return fmt.Sprint(f) },
}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2"
     xmlns:gx="http://www.google.com/kml/ext/2.2"
     xmlns:kml="http://www.opengis.net/kml/2.2"
     xmlns:atom="http://www.w3.org/2005/Atom">
<Document>
  <name>{{esc .Name}}</name>
  <gx:CascadingStyle kml:id="photomap_style_highlight">
    <styleUrl>https://earth.google.com/balloon_components/base/1.1.0.0/card_template.kml#main</styleUrl>
    <Style>
      <IconStyle>
        <scale>1.2</scale>
        <Icon>
          <href>https://earth.google.com/earth/document/icon?color=1976d2&amp;id=2000&amp;scale=4</href>
        </Icon>
        <hotSpot x="64" y="128" xunits="pixels" yunits="insetPixels"/>
      </IconStyle>
      <LabelStyle>
        <scale>0</scale>
      </LabelStyle>
      <LineStyle>
        <color>ff2dc0fb</color>
        <width>3.3</width>
      </LineStyle>
      <PolyStyle>
        <color>40ffffff</color>
      </PolyStyle>
      <BalloonStyle>
      </BalloonStyle>
    </Style>
  </gx:CascadingStyle>
  <gx:CascadingStyle kml:id="photomap_style_normal">
    <styleUrl>https://earth.google.com/balloon_components/base/1.1.0.0/card_template.kml#main</styleUrl>
    <Style>
      <IconStyle>
        <Icon>
          <href>https://earth.google.com/earth/document/icon?color=1976d2&amp;id=2000&amp;scale=4</href>
        </Icon>
        <hotSpot x="64" y="128" xunits="pixels" yunits="insetPixels"/>
      </IconStyle>
      <LabelStyle>
        <scale>0</scale>
      </LabelStyle>
      <LineStyle>
        <color>ff2dc0fb</color>
        <width>2.2</width>
      </LineStyle>
      <PolyStyle>
        <color>40ffffff</color>
      </PolyStyle>
      <BalloonStyle>
      </BalloonStyle>
    </Style>
  </gx:CascadingStyle>
  <StyleMap id="photomap_style">
    <Pair>
      <key>normal</key>
      <styleUrl>#photomap_style_normal</styleUrl>
    </Pair>
    <Pair>
      <key>highlight</key>
      <styleUrl>#photomap_style_highlight</styleUrl>
    </Pair>
  </StyleMap>
{{- range .Placemarks}}
    <Placemark id="{{.Index}}">
      <name>{{esc .Name}}</name>
      <styleUrl>#photomap_style</styleUrl>
      <gx:Carousel>
        <gx:Image kml:id="embedded_image_{{.Index}}">
          <gx:imageUrl>{{esc .Image}}</gx:imageUrl>
        </gx:Image>
      </gx:Carousel>
      <Point>
        <coordinates>{{coord .Lng}},{{coord .Lat}},0</coordinates>
      </Point>
    </Placemark>
{{- end}}
</Document>
</kml>
`))

// WriteKML writes one placemark per located record, numbered from 1.
// It returns the number of placemarks.
func WriteKML(w io.Writer, records []photo.Record, opts KMLOptions) (int, error) {
	name := opts.DocumentName
	if name == "" {
		name = DefaultDocumentName
	}
	var marks []placemark
	for _, r := range records {
		if r.Location == nil {
			continue
		}
		pm := placemark{Index: len(marks) + 1, Name: r.Source.Name, Lat: r.Location.Lat, Lng: r.Location.Lng}
		if opts.ImageURL != nil {
			pm.Image = opts.ImageURL(r)
		}
		marks = append(marks, pm)
	}
	err := kmlTemplate.Execute(w, struct {
		Name       string
		Placemarks []placemark
	}{name, marks})
	if err != nil {
		return 0, fmt.Errorf("render kml: %w", err)
	}
	return len(marks), nil
}
