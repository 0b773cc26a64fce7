package persistance

import (
	"context"
	"fmt"
	"time"

	"github.com/ojparkinson/gpx-ingest/internal/config"
	qdb "github.com/questdb/go-questdb-client/v4"
	"go.uber.org/zap"
)

// ilpSink is the part of the ILP sender a row encoder needs.
type ilpSink interface {
	Table(name string)
	Symbol(name, value string)
	Int64Column(name string, value int64)
	Float64Column(name string, value float64)
	StringColumn(name, value string)
	At(ctx context.Context, ts time.Time) error
}

type lineSenderSink struct {
	sender qdb.LineSender
}

func (s lineSenderSink) Table(name string)                    { s.sender.Table(name) }
func (s lineSenderSink) Symbol(name, value string)            { s.sender.Symbol(name, value) }
func (s lineSenderSink) Int64Column(name string, value int64) { s.sender.Int64Column(name, value) }
func (s lineSenderSink) StringColumn(name, value string)      { s.sender.StringColumn(name, value) }
func (s lineSenderSink) Float64Column(name string, value float64) {
	s.sender.Float64Column(name, value)
}
func (s lineSenderSink) At(ctx context.Context, ts time.Time) error {
	return s.sender.At(ctx, ts)
}

// QuestDBWriter writes batches over ILP/HTTP. Auto-flush is off so a batch
// reaches the server as a single request.
type QuestDBWriter struct {
	sender qdb.LineSender
	logger *zap.Logger
}

func NewQuestDBWriter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*QuestDBWriter, error) {
	opts := []qdb.LineSenderOption{
		qdb.WithHttp(),
		qdb.WithAddress(cfg.Endpoint),
		qdb.WithAutoFlushDisabled(),
		qdb.WithRequestTimeout(cfg.RequestTimeout),
	}
	if cfg.UseTLS {
		opts = append(opts, qdb.WithTls())
	}
	if cfg.HasCredentials() {
		opts = append(opts, qdb.WithBasicAuth(cfg.Username, cfg.Password))
	}

	sender, err := qdb.NewLineSender(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create questdb sender for %s: %w", cfg.Endpoint, err)
	}

	logger.Debug("QuestDB sender created",
		zap.String("address", cfg.Endpoint),
		zap.Bool("tls", cfg.UseTLS))

	return &QuestDBWriter{sender: sender, logger: logger}, nil
}

func (w *QuestDBWriter) Submit(ctx context.Context, table string, schema []ColumnSchema, rows []Row) (uint32, error) {
	for i := range rows {
		if err := checkRow(schema, rows[i]); err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}

	if len(rows) == 0 {
		return 0, nil
	}

	sink := lineSenderSink{sender: w.sender}
	for i := range rows {
		if err := encodeRow(ctx, sink, table, schema, rows[i]); err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}

	if err := w.sender.Flush(ctx); err != nil {
		return 0, err
	}

	w.logger.Debug("Flushed batch", zap.String("table", table), zap.Int("rows", len(rows)))
	return uint32(len(rows)), nil
}

func (w *QuestDBWriter) Close(ctx context.Context) error {
	return w.sender.Close(ctx)
}

// encodeRow writes one checked row. ILP requires symbols before other
// columns, so string tags go first; unset values are left out and land as
// NULL.
func encodeRow(ctx context.Context, sink ilpSink, table string, schema []ColumnSchema, row Row) error {
	ts, err := timestampOf(schema, row)
	if err != nil {
		return err
	}

	sink.Table(table)

	for i, col := range schema {
		if !isSymbol(col) {
			continue
		}
		if v, ok := row[i].(StringValue); ok {
			sink.Symbol(col.Name, string(v))
		}
	}

	for i, col := range schema {
		if isSymbol(col) || col.SemanticType == Timestamp {
			continue
		}

		switch v := row[i].(type) {
		case Null:
		case StringValue:
			sink.StringColumn(col.Name, string(v))
		case Uint32Value:
			sink.Int64Column(col.Name, int64(v))
		case Uint64Value:
			sink.Int64Column(col.Name, int64(v))
		case Float64Value:
			sink.Float64Column(col.Name, float64(v))
		default:
			return fmt.Errorf("%w: column %s has unsupported value %T", ErrSchemaMismatch, col.Name, v)
		}
	}

	return sink.At(ctx, time.Unix(ts, 0))
}

func isSymbol(col ColumnSchema) bool {
	return col.SemanticType == Tag && col.DataType == String
}
