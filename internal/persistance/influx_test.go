package persistance

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ojparkinson/gpx-ingest/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedWrite struct {
	query  map[string]string
	auth   string
	body   string
	status int
}

func influxServer(t *testing.T, status int) (*httptest.Server, *capturedWrite) {
	t.Helper()
	captured := &capturedWrite{status: status}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/write" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		captured.body = string(body)
		captured.auth = r.Header.Get("Authorization")
		captured.query = map[string]string{
			"org":       r.URL.Query().Get("org"),
			"bucket":    r.URL.Query().Get("bucket"),
			"precision": r.URL.Query().Get("precision"),
		}
		if captured.status != http.StatusNoContent {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(captured.status)
			_, _ = w.Write([]byte(`{"code":"invalid","message":"bad line protocol"}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	return server, captured
}

func influxConfig(url string) *config.Config {
	return &config.Config{
		Endpoint:       url,
		DatabaseName:   "tracks",
		InfluxOrg:      "home",
		InfluxToken:    "secret-token",
		RequestTimeout: 5 * time.Second,
	}
}

func TestInfluxWriterSubmit(t *testing.T) {
	server, captured := influxServer(t, http.StatusNoContent)

	w := NewInfluxWriter(influxConfig(server.URL), zap.NewNop())
	defer w.Close(context.Background())

	full, err := ToRow("commute", 0, 1, fullPoint())
	require.NoError(t, err)

	n, err := w.Submit(context.Background(), "gpx", GPXSchema(), []Row{full, bareRow(t)})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)

	assert.Equal(t, "home", captured.query["org"])
	assert.Equal(t, "tracks", captured.query["bucket"])
	assert.Equal(t, "s", captured.query["precision"])
	assert.Equal(t, "Token secret-token", captured.auth)

	lines := strings.Split(strings.TrimSpace(captured.body), "\n")
	require.Len(t, lines, 2)

	assert.True(t, strings.HasPrefix(lines[0], "gpx,name=commute,segment=1,track=0 "), lines[0])
	assert.Contains(t, lines[0], "latitude=51.5007")
	assert.Contains(t, lines[0], "sat=7u")
	assert.Contains(t, lines[0], `comment="bridge"`)
	assert.True(t, strings.HasSuffix(lines[0], " 1714815015"), lines[0])

	assert.Contains(t, lines[1], "longitude=-0.1246")
	assert.NotContains(t, lines[1], "elevation")
	assert.NotContains(t, lines[1], "sat=")
}

func TestInfluxWriterSubmitRejected(t *testing.T) {
	server, _ := influxServer(t, http.StatusBadRequest)

	w := NewInfluxWriter(influxConfig(server.URL), zap.NewNop())
	defer w.Close(context.Background())

	_, err := w.Submit(context.Background(), "gpx", GPXSchema(), []Row{bareRow(t)})
	assert.Error(t, err)
}

func TestInfluxWriterSubmitSchemaMismatch(t *testing.T) {
	server, captured := influxServer(t, http.StatusNoContent)

	w := NewInfluxWriter(influxConfig(server.URL), zap.NewNop())
	defer w.Close(context.Background())

	row := bareRow(t)
	row[4] = StringValue("north")

	_, err := w.Submit(context.Background(), "gpx", GPXSchema(), []Row{row})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Empty(t, captured.body)
}

func TestInfluxToken(t *testing.T) {
	cfg := &config.Config{InfluxToken: "tok"}
	assert.Equal(t, "tok", influxToken(cfg))

	cfg.Username, cfg.Password = "admin", "pw"
	assert.Equal(t, "admin:pw", influxToken(cfg))
}

func TestInfluxWriterSubmitEmptyBatch(t *testing.T) {
	server, captured := influxServer(t, http.StatusNoContent)

	w := NewInfluxWriter(influxConfig(server.URL), zap.NewNop())
	defer w.Close(context.Background())

	n, err := w.Submit(context.Background(), "gpx", GPXSchema(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, captured.query)
}

func TestInfluxWriterRequestTimeoutRoundsUp(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    uint
	}{
		{300 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}

	for _, tt := range tests {
		cfg := influxConfig("http://localhost:8086")
		cfg.RequestTimeout = tt.timeout

		w := NewInfluxWriter(cfg, zap.NewNop())
		assert.Equal(t, tt.want, w.client.Options().HTTPRequestTimeout(), tt.timeout.String())
		w.Close(context.Background())
	}
}

func TestTagValueRejectsUntaggableValues(t *testing.T) {
	v, err := tagValue(Uint32Value(3))
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	_, err = tagValue(TimestampSecondValue(1714815015))
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = tagValue(Null{DataType: String})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}
