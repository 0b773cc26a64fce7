package processing

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ojparkinson/gpx-ingest/internal/geodesy"
	"github.com/ojparkinson/gpx-ingest/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 5, 4, 9, 30, 0, 0, time.UTC)

func ptr[T any](v T) *T {
	return &v
}

func pointAt(lat, lon float64, offset time.Duration) track.Point {
	ts := baseTime.Add(offset)
	return track.Point{Latitude: lat, Longitude: lon, Time: &ts}
}

func TestFillMissingSpeedsEmptySegment(t *testing.T) {
	seg := &track.Segment{}

	require.NoError(t, FillMissingSpeeds(seg))
	assert.Empty(t, seg.Points)
}

func TestFillMissingSpeedsSinglePoint(t *testing.T) {
	seg := &track.Segment{Points: []track.Point{pointAt(51.5007, -0.1246, 0)}}

	require.NoError(t, FillMissingSpeeds(seg))
	assert.Nil(t, seg.Points[0].Speed)
}

func TestFillMissingSpeedsSinglePointKeepsExistingSpeed(t *testing.T) {
	p := pointAt(51.5007, -0.1246, 0)
	p.Speed = ptr(12.5)
	seg := &track.Segment{Points: []track.Point{p}}

	require.NoError(t, FillMissingSpeeds(seg))
	require.NotNil(t, seg.Points[0].Speed)
	assert.Equal(t, 12.5, *seg.Points[0].Speed)
}

func TestFillMissingSpeedsSinglePointWithoutTimestamp(t *testing.T) {
	seg := &track.Segment{Points: []track.Point{{Latitude: 1, Longitude: 1}}}

	require.NoError(t, FillMissingSpeeds(seg))
	assert.Nil(t, seg.Points[0].Speed)
}

func TestFillMissingSpeedsTwoPoints(t *testing.T) {
	seg := &track.Segment{Points: []track.Point{
		pointAt(51.5007, -0.1246, 0),
		pointAt(51.504565, -0.1246, time.Minute),
	}}

	require.NoError(t, FillMissingSpeeds(seg))

	distance, err := geodesy.Distance(seg.Points[0].Location(), seg.Points[1].Location())
	require.NoError(t, err)
	want := distance / 60 * 3.6

	require.NotNil(t, seg.Points[1].Speed)
	assert.InDelta(t, want, *seg.Points[1].Speed, 1e-9)
	assert.InDelta(t, 25.8, *seg.Points[1].Speed, 0.1)

	require.NotNil(t, seg.Points[0].Speed)
	assert.Equal(t, *seg.Points[1].Speed, *seg.Points[0].Speed)
}

func TestFillMissingSpeedsEveryPointFilled(t *testing.T) {
	seg := &track.Segment{Points: []track.Point{
		pointAt(47.6440, -122.3090, 0),
		pointAt(47.6442, -122.3093, 10*time.Second),
		pointAt(47.6446, -122.3096, 20*time.Second),
		pointAt(47.6450, -122.3101, 35*time.Second),
		pointAt(47.6451, -122.3110, 50*time.Second),
	}}

	require.NoError(t, FillMissingSpeeds(seg))

	for i, p := range seg.Points {
		require.NotNil(t, p.Speed, "point %d", i)
		assert.Greater(t, *p.Speed, 0.0, "point %d", i)
	}
	assert.Equal(t, *seg.Points[1].Speed, *seg.Points[0].Speed)
}

func TestFillMissingSpeedsAlwaysUsesPreviousIndex(t *testing.T) {
	// Point 1 has a recorded speed; point 2 must still be measured from
	// point 1 rather than from point 0.
	seg := &track.Segment{Points: []track.Point{
		pointAt(0, 0, 0),
		pointAt(0, 0.001, 10*time.Second),
		pointAt(0, 0.002, 20*time.Second),
	}}
	seg.Points[1].Speed = ptr(99.0)

	require.NoError(t, FillMissingSpeeds(seg))

	d, err := geodesy.Distance(seg.Points[1].Location(), seg.Points[2].Location())
	require.NoError(t, err)
	assert.InDelta(t, d/10*3.6, *seg.Points[2].Speed, 1e-9)
}

func TestFillMissingSpeedsKeepsExistingSpeeds(t *testing.T) {
	seg := &track.Segment{Points: []track.Point{
		pointAt(0, 0, 0),
		pointAt(0, 0.001, 10*time.Second),
		pointAt(0, 0.002, 20*time.Second),
	}}
	seg.Points[0].Speed = ptr(1.0)
	seg.Points[1].Speed = ptr(42.0)
	seg.Points[2].Speed = ptr(43.0)

	require.NoError(t, FillMissingSpeeds(seg))

	assert.Equal(t, 42.0, *seg.Points[1].Speed)
	assert.Equal(t, 43.0, *seg.Points[2].Speed)
	// Point 0 always mirrors point 1.
	assert.Equal(t, 42.0, *seg.Points[0].Speed)
}

func TestFillMissingSpeedsFirstPointIsCopied(t *testing.T) {
	seg := &track.Segment{Points: []track.Point{
		pointAt(0, 0, 0),
		pointAt(0, 0.001, 10*time.Second),
	}}

	require.NoError(t, FillMissingSpeeds(seg))

	*seg.Points[1].Speed = 0
	assert.NotEqual(t, 0.0, *seg.Points[0].Speed)
}

func TestFillMissingSpeedsMissingTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		missing int
	}{
		{"current point", 1},
		{"previous point", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seg := &track.Segment{Points: []track.Point{
				pointAt(0, 0, 0),
				pointAt(0, 0.001, 10*time.Second),
			}}
			seg.Points[tc.missing].Time = nil

			err := FillMissingSpeeds(seg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, track.ErrTimestampNotPresent))
		})
	}
}

func TestFillMissingSpeedsMissingTimestampWithRecordedSpeed(t *testing.T) {
	// Nothing to derive, so no timestamp is required.
	seg := &track.Segment{Points: []track.Point{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 0.001, Speed: ptr(5.0)},
	}}

	require.NoError(t, FillMissingSpeeds(seg))
	assert.Equal(t, 5.0, *seg.Points[0].Speed)
}

func TestFillMissingSpeedsDistanceFailure(t *testing.T) {
	seg := &track.Segment{Points: []track.Point{
		pointAt(0, 0, 0),
		pointAt(0.5, 179.7, time.Hour),
	}}

	err := FillMissingSpeeds(seg)
	require.Error(t, err)

	var distErr *geodesy.DistanceError
	assert.True(t, errors.As(err, &distErr))
}

func TestFillMissingSpeedsDegenerateElapsedTime(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		lon    float64
		check  func(t *testing.T, speed float64)
	}{
		{"duplicate timestamp", 0, 0.001, func(t *testing.T, speed float64) {
			assert.True(t, math.IsInf(speed, 1))
		}},
		{"duplicate timestamp and position", 0, 0, func(t *testing.T, speed float64) {
			assert.True(t, math.IsNaN(speed))
		}},
		{"reversed timestamps", -10 * time.Second, 0.001, func(t *testing.T, speed float64) {
			assert.Less(t, speed, 0.0)
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seg := &track.Segment{Points: []track.Point{
				pointAt(0, 0, 0),
				pointAt(0, tc.lon, tc.offset),
			}}

			require.NoError(t, FillMissingSpeeds(seg))
			require.NotNil(t, seg.Points[1].Speed)
			tc.check(t, *seg.Points[1].Speed)
		})
	}
}

func TestSpeedStats(t *testing.T) {
	points := []track.Point{
		{Speed: ptr(10.0)},
		{Speed: ptr(20.0)},
		{},
		{Speed: ptr(math.Inf(1))},
		{Speed: ptr(30.0)},
	}

	avg, maxSpeed := speedStats(points)
	assert.InDelta(t, 20.0, avg, 1e-9)
	assert.Equal(t, 30.0, maxSpeed)

	avg, maxSpeed = speedStats(nil)
	assert.Zero(t, avg)
	assert.Zero(t, maxSpeed)
}
