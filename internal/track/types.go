// Package track holds the in-memory shape of a parsed GPS track log.
package track

import (
	"errors"
	"time"

	"github.com/ojparkinson/gpx-ingest/internal/geodesy"
)

// ErrTimestampNotPresent is returned when a point needs a timestamp and has none.
var ErrTimestampNotPresent = errors.New("timestamp not present")

type Track struct {
	Name     string
	Segments []Segment
}

type Segment struct {
	Points []Point
}

// Point is a single recorded fix. Nil pointers mark attributes the
// recording did not carry.
type Point struct {
	Latitude  float64
	Longitude float64
	Time      *time.Time

	Elevation   *float64
	GeoidHeight *float64
	HDOP        *float64
	VDOP        *float64
	PDOP        *float64

	Comment     *string
	Description *string
	Source      *string
	Symbol      *string

	Satellites *uint64

	// Speed in km/h.
	Speed *float64
}

func (p Point) Location() geodesy.Location {
	return geodesy.Location{Latitude: p.Latitude, Longitude: p.Longitude}
}

// PointCount returns the number of points across all segments.
func (t Track) PointCount() int {
	n := 0
	for _, seg := range t.Segments {
		n += len(seg.Points)
	}
	return n
}
