package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	SinkQuestDB  = "questdb"
	SinkInfluxDB = "influxdb"
	SinkAMQP     = "amqp"
)

var (
	ErrIncompleteCredentials = errors.New("database username and password must be both present or not")
	ErrMissingFlag           = errors.New("missing required flag")
	ErrUnknownSink           = errors.New("unknown sink")
)

type Config struct {
	TrackName string
	Input     string

	Sink         string
	Endpoint     string
	Username     string
	Password     string
	TableName    string
	DatabaseName string
	UseTLS       bool

	InfluxOrg   string
	InfluxToken string

	AMQPExchange   string
	AMQPRoutingKey string

	CreateTable      bool
	RequestTimeout   time.Duration
	FileAgeThreshold time.Duration

	MetricsAddr string
	Verbose     bool
	Quiet       bool
}

// RegisterFlags declares every setting on flags. Each flag can also be set
// through the environment as GPX_<FLAG_NAME>.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("track-name", "t", "", "unique name for the track to load")
	flags.StringP("input", "i", "", "path of a GPX file, or a directory of GPX files, to load")

	flags.String("sink", SinkQuestDB, "target store: questdb, influxdb or amqp")
	flags.StringP("db-endpoint", "o", "", "host:port of the target store (default depends on --sink)")
	flags.String("db-username", "", "username for the target store")
	flags.String("db-password", "", "password for the target store")
	flags.String("table-name", "gpx", "table (or measurement) to insert into")
	flags.String("database-name", "public", "target database name (InfluxDB bucket)")
	flags.Bool("use-tls", false, "whether to use TLS")

	flags.String("influx-org", "public", "InfluxDB organisation")
	flags.String("influx-token", "", "InfluxDB API token")

	flags.String("amqp-exchange", "gpx_topic", "exchange batches are published to")
	flags.String("amqp-routing-key", "gpx.points", "routing key batches are published with")

	flags.Bool("create-table", true, "create the QuestDB table before loading")
	flags.Duration("request-timeout", 60*time.Second, "timeout of a single write request")
	flags.Duration("file-age-threshold", 0, "skip files in an input directory modified more recently than this")

	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while loading")
	flags.BoolP("verbose", "v", false, "enable verbose logging")
	flags.BoolP("quiet", "q", false, "do not print the load summary")
}

// Load resolves flags, GPX_* environment variables and a .env file in the
// working directory, in that order of precedence, then validates the result.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("GPX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	cfg := &Config{
		TrackName:        v.GetString("track-name"),
		Input:            v.GetString("input"),
		Sink:             strings.ToLower(v.GetString("sink")),
		Endpoint:         v.GetString("db-endpoint"),
		Username:         v.GetString("db-username"),
		Password:         v.GetString("db-password"),
		TableName:        v.GetString("table-name"),
		DatabaseName:     v.GetString("database-name"),
		UseTLS:           v.GetBool("use-tls"),
		InfluxOrg:        v.GetString("influx-org"),
		InfluxToken:      v.GetString("influx-token"),
		AMQPExchange:     v.GetString("amqp-exchange"),
		AMQPRoutingKey:   v.GetString("amqp-routing-key"),
		CreateTable:      v.GetBool("create-table"),
		RequestTimeout:   v.GetDuration("request-timeout"),
		FileAgeThreshold: v.GetDuration("file-age-threshold"),
		MetricsAddr:      v.GetString("metrics-addr"),
		Verbose:          v.GetBool("verbose"),
		Quiet:            v.GetBool("quiet"),
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint(cfg.Sink)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultEndpoint(sink string) string {
	switch sink {
	case SinkInfluxDB:
		return "localhost:8086"
	case SinkAMQP:
		return "localhost:5672"
	default:
		return "localhost:9000"
	}
}

// Validate checks settings that must hold before any connection is opened.
func (c *Config) Validate() error {
	if (c.Username == "") != (c.Password == "") {
		return ErrIncompleteCredentials
	}

	switch c.Sink {
	case SinkQuestDB, SinkInfluxDB, SinkAMQP:
	default:
		return fmt.Errorf("%w: %q\nAction: use one of %s, %s, %s", ErrUnknownSink, c.Sink, SinkQuestDB, SinkInfluxDB, SinkAMQP)
	}

	if c.Endpoint == "" {
		return fmt.Errorf("%w: --db-endpoint", ErrMissingFlag)
	}
	if c.TableName == "" {
		return fmt.Errorf("%w: --table-name", ErrMissingFlag)
	}
	return nil
}

// ValidateLoad additionally checks the settings only a load needs.
func (c *Config) ValidateLoad() error {
	if c.TrackName == "" {
		return fmt.Errorf("%w: --track-name", ErrMissingFlag)
	}
	if c.Input == "" {
		return fmt.Errorf("%w: --input", ErrMissingFlag)
	}
	return nil
}

func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// HTTPBaseURL returns the endpoint as an http(s) URL.
func (c *Config) HTTPBaseURL() string {
	if strings.Contains(c.Endpoint, "://") {
		return c.Endpoint
	}
	if c.UseTLS {
		return "https://" + c.Endpoint
	}
	return "http://" + c.Endpoint
}

// AMQPURL returns the broker URL with credentials, if any.
func (c *Config) AMQPURL() string {
	scheme := "amqp"
	if c.UseTLS {
		scheme = "amqps"
	}
	if c.HasCredentials() {
		return fmt.Sprintf("%s://%s:%s@%s/", scheme, c.Username, c.Password, c.Endpoint)
	}
	return fmt.Sprintf("%s://%s/", scheme, c.Endpoint)
}
