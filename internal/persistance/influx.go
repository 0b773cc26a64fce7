package persistance

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/ojparkinson/gpx-ingest/internal/config"
	"go.uber.org/zap"
)

// InfluxWriter writes batches with the blocking write API, one request per
// batch. The database name is used as the bucket.
type InfluxWriter struct {
	client influxdb2.Client
	org    string
	bucket string
	logger *zap.Logger
}

func NewInfluxWriter(cfg *config.Config, logger *zap.Logger) *InfluxWriter {
	options := influxdb2.DefaultOptions()
	options.SetPrecision(time.Second)
	if cfg.RequestTimeout > 0 {
		options.SetHTTPRequestTimeout(timeoutSeconds(cfg.RequestTimeout))
	}
	if cfg.UseTLS {
		options.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	serverURL := cfg.HTTPBaseURL()
	client := influxdb2.NewClientWithOptions(serverURL, influxToken(cfg), options)

	logger.Debug("InfluxDB client created",
		zap.String("url", serverURL),
		zap.String("org", cfg.InfluxOrg),
		zap.String("bucket", cfg.DatabaseName))

	return &InfluxWriter{
		client: client,
		org:    cfg.InfluxOrg,
		bucket: cfg.DatabaseName,
		logger: logger,
	}
}

// timeoutSeconds rounds d up to whole seconds; the client takes no finer unit.
func timeoutSeconds(d time.Duration) uint {
	return uint(math.Ceil(d.Seconds()))
}

// influxToken prefers username:password, the form InfluxDB 1.8+ accepts in
// place of a token.
func influxToken(cfg *config.Config) string {
	if cfg.HasCredentials() {
		return cfg.Username + ":" + cfg.Password
	}
	return cfg.InfluxToken
}

func (w *InfluxWriter) Submit(ctx context.Context, table string, schema []ColumnSchema, rows []Row) (uint32, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	points := make([]*write.Point, 0, len(rows))
	for i := range rows {
		point, err := toInfluxPoint(table, schema, rows[i])
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		points = append(points, point)
	}

	writeAPI := w.client.WriteAPIBlocking(w.org, w.bucket)
	if err := writeAPI.WritePoint(ctx, points...); err != nil {
		return 0, err
	}

	w.logger.Debug("Wrote points", zap.String("measurement", table), zap.Int("points", len(points)))
	return uint32(len(points)), nil
}

func (w *InfluxWriter) Close(context.Context) error {
	w.client.Close()
	return nil
}

func toInfluxPoint(measurement string, schema []ColumnSchema, row Row) (*write.Point, error) {
	if err := checkRow(schema, row); err != nil {
		return nil, err
	}
	ts, err := timestampOf(schema, row)
	if err != nil {
		return nil, err
	}

	tags := make(map[string]string)
	fields := make(map[string]interface{})

	for i, col := range schema {
		if col.SemanticType == Timestamp || IsNull(row[i]) {
			continue
		}

		if col.SemanticType == Tag {
			tag, err := tagValue(row[i])
			if err != nil {
				return nil, fmt.Errorf("%w: column %s", err, col.Name)
			}
			tags[col.Name] = tag
			continue
		}

		switch v := row[i].(type) {
		case StringValue:
			fields[col.Name] = string(v)
		case Uint32Value:
			fields[col.Name] = uint64(v)
		case Uint64Value:
			fields[col.Name] = uint64(v)
		case Float64Value:
			fields[col.Name] = float64(v)
		default:
			return nil, fmt.Errorf("%w: column %s has unsupported value %T", ErrSchemaMismatch, col.Name, v)
		}
	}

	return influxdb2.NewPoint(measurement, tags, fields, time.Unix(ts, 0)), nil
}

func tagValue(v Value) (string, error) {
	switch v := v.(type) {
	case StringValue:
		return string(v), nil
	case Uint32Value:
		return strconv.FormatUint(uint64(v), 10), nil
	case Uint64Value:
		return strconv.FormatUint(uint64(v), 10), nil
	case Float64Value:
		return strconv.FormatFloat(float64(v), 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: %T cannot be a tag", ErrSchemaMismatch, v)
	}
}
