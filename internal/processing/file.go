package processing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ojparkinson/gpx-ingest/internal/track"
	"github.com/tkrajina/gpxgo/gpx"
)

// ParseFile reads a GPX file into tracks.
func ParseFile(path string) ([]track.Track, error) {
	doc, err := gpx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w\nAction: Verify the file is valid GPX 1.0 or 1.1", path, err)
	}
	return fromGPX(doc), nil
}

func ParseBytes(b []byte) ([]track.Track, error) {
	doc, err := gpx.ParseBytes(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gpx: %w", err)
	}
	return fromGPX(doc), nil
}

func fromGPX(doc *gpx.GPX) []track.Track {
	tracks := make([]track.Track, 0, len(doc.Tracks))
	for _, t := range doc.Tracks {
		segments := make([]track.Segment, 0, len(t.Segments))
		for _, s := range t.Segments {
			points := make([]track.Point, 0, len(s.Points))
			for i := range s.Points {
				points = append(points, fromGPXPoint(&s.Points[i]))
			}
			segments = append(segments, track.Segment{Points: points})
		}
		tracks = append(tracks, track.Track{Name: t.Name, Segments: segments})
	}
	return tracks
}

func fromGPXPoint(p *gpx.GPXPoint) track.Point {
	point := track.Point{
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		Elevation:   nullableFloat(p.Elevation),
		GeoidHeight: parseFloat(p.GeoidHeight),
		HDOP:        nullableFloat(p.HorizontalDilution),
		VDOP:        nullableFloat(p.VerticalDilution),
		PDOP:        nullableFloat(p.PositionalDilution),
		Comment:     nonEmpty(p.Comment),
		Description: nonEmpty(p.Description),
		Source:      nonEmpty(p.Source),
		Symbol:      nonEmpty(p.Symbol),
	}

	if !p.Timestamp.IsZero() {
		ts := p.Timestamp
		point.Time = &ts
	}
	if p.Satellites.NotNull() && p.Satellites.Value() >= 0 {
		sat := uint64(p.Satellites.Value())
		point.Satellites = &sat
	}

	return point
}

func nullableFloat(v gpx.NullableFloat64) *float64 {
	if v.Null() {
		return nil
	}
	f := v.Value()
	return &f
}

func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
