package processing

import (
	"context"
	"time"

	"github.com/ojparkinson/gpx-ingest/internal/metrics"
	"github.com/ojparkinson/gpx-ingest/internal/persistance"
	"github.com/ojparkinson/gpx-ingest/internal/track"
	"go.uber.org/zap"
)

// Loader turns one segment into a single batch and submits it.
type Loader struct {
	writer persistance.Writer
	table  string
	schema []persistance.ColumnSchema
	logger *zap.Logger
}

func NewLoader(writer persistance.Writer, table string, logger *zap.Logger) *Loader {
	return &Loader{
		writer: writer,
		table:  table,
		schema: persistance.GPXSchema(),
		logger: logger,
	}
}

// Load maps every point to a row and submits them in one call. It returns the
// number of rows the store reports as inserted. Nothing is submitted if any
// point fails to map.
func (l *Loader) Load(ctx context.Context, trackName string, trackIdx, segmentIdx uint32, points []track.Point) (uint32, error) {
	rows := make([]persistance.Row, 0, len(points))
	for _, p := range points {
		row, err := persistance.ToRow(trackName, trackIdx, segmentIdx, p)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	start := time.Now()
	affected, err := l.writer.Submit(ctx, l.table, l.schema, rows)
	metrics.WriteDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.WriteErrorsTotal.Inc()
		l.logger.Error("Failed to write segment",
			zap.String("track_name", trackName),
			zap.Uint32("track", trackIdx),
			zap.Uint32("segment", segmentIdx),
			zap.Int("rows", len(rows)),
			zap.Error(err))
		return 0, &persistance.WriteError{Table: l.table, Rows: len(rows), Err: err}
	}

	metrics.BatchSizeRows.Observe(float64(len(rows)))
	metrics.RowsWrittenTotal.Add(float64(affected))
	metrics.SegmentsLoadedTotal.Inc()

	l.logger.Debug("Segment written",
		zap.String("track_name", trackName),
		zap.Uint32("track", trackIdx),
		zap.Uint32("segment", segmentIdx),
		zap.Uint32("rows", affected))

	return affected, nil
}
