package processing

import (
	"fmt"
	"math"

	"github.com/ojparkinson/gpx-ingest/internal/geodesy"
	"github.com/ojparkinson/gpx-ingest/internal/track"
)

const mpsToKmph = 3.6

// FillMissingSpeeds derives a km/h speed for every point that lacks one,
// from the distance and elapsed time to the point before it. The first
// point has no predecessor and takes the second point's speed.
//
// Timestamps are not checked for ordering: duplicate or reversed times
// produce infinite, NaN or negative speeds.
func FillMissingSpeeds(seg *track.Segment) error {
	points := seg.Points
	if len(points) == 0 {
		return nil
	}

	for i := 1; i < len(points); i++ {
		if points[i].Speed != nil {
			continue
		}

		prev, curr := &points[i-1], &points[i]
		if prev.Time == nil {
			return fmt.Errorf("point %d: %w", i-1, track.ErrTimestampNotPresent)
		}
		if curr.Time == nil {
			return fmt.Errorf("point %d: %w", i, track.ErrTimestampNotPresent)
		}

		distance, err := geodesy.Distance(prev.Location(), curr.Location())
		if err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}

		elapsed := curr.Time.Sub(*prev.Time).Seconds()
		speed := distance / elapsed * mpsToKmph
		curr.Speed = &speed
	}

	if len(points) > 1 && points[1].Speed != nil {
		first := *points[1].Speed
		points[0].Speed = &first
	}

	return nil
}

// speedStats summarises the derived speeds of a segment, ignoring points
// with no speed and degenerate values.
func speedStats(points []track.Point) (avgSpeed, maxSpeed float64) {
	var sum float64
	n := 0
	for _, p := range points {
		if p.Speed == nil || math.IsInf(*p.Speed, 0) || math.IsNaN(*p.Speed) {
			continue
		}
		sum += *p.Speed
		if n == 0 || *p.Speed > maxSpeed {
			maxSpeed = *p.Speed
		}
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), maxSpeed
}
