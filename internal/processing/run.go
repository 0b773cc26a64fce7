package processing

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ojparkinson/gpx-ingest/internal/track"
	"go.uber.org/zap"
)

// Runner drives a load: tracks, then segments, one batch at a time. The first
// failure stops the run.
type Runner struct {
	loader           *Loader
	logger           *zap.Logger
	progressCallback ProgressCallback
}

func NewRunner(loader *Loader, logger *zap.Logger) *Runner {
	return &Runner{
		loader:           loader,
		logger:           logger,
		progressCallback: &NoOpProgressCallback{},
	}
}

func (r *Runner) SetProgressCallback(callback ProgressCallback) {
	if callback != nil {
		r.progressCallback = callback
	}
}

// Run fills missing speeds and loads every segment of tracks under trackName.
// The returned total counts rows of segments committed before any error.
func (r *Runner) Run(ctx context.Context, trackName string, tracks []track.Track) (uint32, error) {
	var total uint32

	for t := range tracks {
		trackIdx := uint32(t)
		for s := range tracks[t].Segments {
			if err := ctx.Err(); err != nil {
				return total, err
			}

			segmentIdx := uint32(s)
			seg := &tracks[t].Segments[s]
			start := time.Now()

			if err := FillMissingSpeeds(seg); err != nil {
				return total, fmt.Errorf("track %d segment %d: %w", trackIdx, segmentIdx, err)
			}

			rows, err := r.loader.Load(ctx, trackName, trackIdx, segmentIdx, seg.Points)
			if err != nil {
				return total, fmt.Errorf("track %d segment %d: %w", trackIdx, segmentIdx, err)
			}
			total += rows

			avg, maxSpeed := speedStats(seg.Points)
			r.progressCallback.OnSegmentLoaded(SegmentResult{
				TrackName: trackName,
				Track:     trackIdx,
				Segment:   segmentIdx,
				Rows:      rows,
				AvgSpeed:  avg,
				MaxSpeed:  maxSpeed,
				Duration:  time.Since(start),
			})
		}
	}

	return total, nil
}

// RunFiles parses and loads each file in order. With more than one file each
// is loaded as <trackName>/<file stem> so rows stay distinguishable.
func (r *Runner) RunFiles(ctx context.Context, trackName string, paths []string) (uint32, error) {
	var total uint32

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		name := trackName
		if len(paths) > 1 {
			name = trackName + "/" + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		tracks, err := ParseFile(path)
		if err != nil {
			return total, err
		}

		points := 0
		for _, t := range tracks {
			points += t.PointCount()
		}

		r.logger.Info("Loading file",
			zap.String("file", path),
			zap.String("track_name", name),
			zap.Int("tracks", len(tracks)),
			zap.Int("points", points))
		r.progressCallback.OnFileStart(path, points)

		rows, err := r.Run(ctx, name, tracks)
		total += rows
		if err != nil {
			return total, fmt.Errorf("%s: %w", path, err)
		}

		r.progressCallback.OnFileComplete(path)
		r.logger.Info("File loaded", zap.String("file", path), zap.Uint32("rows", rows))
	}

	return total, nil
}
