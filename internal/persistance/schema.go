package persistance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

type DataType int

const (
	String DataType = iota
	Uint32
	Uint64
	Float64
	TimestampSecond
)

func (d DataType) String() string {
	switch d {
	case String:
		return "String"
	case Uint32:
		return "Uint32"
	case Uint64:
		return "Uint64"
	case Float64:
		return "Float64"
	case TimestampSecond:
		return "TimestampSecond"
	default:
		return fmt.Sprintf("DataType(%d)", int(d))
	}
}

type SemanticType int

const (
	Tag SemanticType = iota
	Field
	Timestamp
)

func (s SemanticType) String() string {
	switch s {
	case Tag:
		return "Tag"
	case Field:
		return "Field"
	case Timestamp:
		return "Timestamp"
	default:
		return fmt.Sprintf("SemanticType(%d)", int(s))
	}
}

type ColumnSchema struct {
	Name         string
	DataType     DataType
	SemanticType SemanticType
}

// ColumnCount is the arity of every Row.
const ColumnCount = 16

// GPXSchema describes the columns of a GPX row. The order is the order of
// values produced by ToRow and must change in lockstep with it.
func GPXSchema() []ColumnSchema {
	columns := make([]ColumnSchema, 0, ColumnCount)
	columns = append(columns,
		ColumnSchema{Name: "name", DataType: String, SemanticType: Tag},
		ColumnSchema{Name: "track", DataType: Uint32, SemanticType: Tag},
		ColumnSchema{Name: "segment", DataType: Uint32, SemanticType: Tag},
		ColumnSchema{Name: "ts", DataType: TimestampSecond, SemanticType: Timestamp},
	)

	for _, f := range []struct {
		name string
		typ  DataType
	}{
		{"latitude", Float64},
		{"longitude", Float64},
		{"elevation", Float64},
		{"geoidheight", Float64},
		{"hdop", Float64},
		{"vdop", Float64},
		{"pdop", Float64},
		{"comment", String},
		{"description", String},
		{"source", String},
		{"symbol", String},
		{"sat", Uint64},
	} {
		columns = append(columns, ColumnSchema{Name: f.name, DataType: f.typ, SemanticType: Field})
	}

	return columns
}

// CreateTableSQL renders QuestDB DDL for a table holding rows of the given schema.
// Rows sharing timestamp and tags are deduplicated, so reloading a file is idempotent.
func CreateTableSQL(table string, schema []ColumnSchema) string {
	var (
		columns []string
		keys    []string
		tsName  string
	)

	for _, col := range schema {
		columns = append(columns, fmt.Sprintf("%s %s", col.Name, questDBType(col)))
		switch col.SemanticType {
		case Timestamp:
			tsName = col.Name
			keys = append([]string{col.Name}, keys...)
		case Tag:
			keys = append(keys, col.Name)
		}
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n\t%s\n) TIMESTAMP(%s) PARTITION BY DAY WAL\nDEDUP UPSERT KEYS(%s);",
		table, strings.Join(columns, ",\n\t"), tsName, strings.Join(keys, ", "))
}

func questDBType(col ColumnSchema) string {
	switch col.DataType {
	case String:
		if col.SemanticType == Tag {
			return "SYMBOL CAPACITY 1024 INDEX"
		}
		return "STRING"
	case Uint32, Uint64:
		return "LONG"
	case Float64:
		return "DOUBLE"
	case TimestampSecond:
		return "TIMESTAMP"
	default:
		return "STRING"
	}
}

// Schema creates the target table through QuestDB's HTTP /exec endpoint.
type Schema struct {
	baseURL    string
	table      string
	client     *http.Client
	logger     *zap.Logger
	maxRetries int
	baseDelay  time.Duration

	username string
	password string
}

func NewSchema(baseURL, table string, client *http.Client, logger *zap.Logger) *Schema {
	if client == nil {
		client = http.DefaultClient
	}
	return &Schema{
		baseURL:    strings.TrimRight(baseURL, "/"),
		table:      table,
		client:     client,
		logger:     logger,
		maxRetries: 10,
		baseDelay:  1 * time.Second,
	}
}

// SetBasicAuth sends credentials with every query.
func (s *Schema) SetBasicAuth(username, password string) {
	s.username, s.password = username, password
}

func (s *Schema) CreateTableHTTP(ctx context.Context) error {
	return s.executeQuery(ctx, CreateTableSQL(s.table, GPXSchema()))
}

func (s *Schema) executeQuery(ctx context.Context, query string) error {
	endpoint := fmt.Sprintf("%s/exec?query=%s", s.baseURL, url.QueryEscape(query))

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		retry, err := s.exec(ctx, endpoint)
		if err == nil {
			s.logger.Info("Table ready", zap.String("table", s.table))
			return nil
		}
		if !retry || attempt == s.maxRetries-1 {
			return err
		}

		delay := s.baseDelay * time.Duration(1<<uint(attempt))
		s.logger.Warn("QuestDB not ready, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", s.maxRetries),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("failed to execute query after %d retries", s.maxRetries)
}

// exec runs one attempt and reports whether a failure is worth retrying.
func (s *Schema) exec(ctx context.Context, endpoint string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("questdb connection failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return false, nil
	case http.StatusMethodNotAllowed, http.StatusServiceUnavailable:
		return true, fmt.Errorf("questdb not ready, status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("query failed with status %d", resp.StatusCode)
	}
}
