package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"eventbus/internal/logging"
)

const SupportedSchema = "v1"

// ErrInvalid marks configuration errors; they are fatal at startup.
var ErrInvalid = errors.New("invalid configuration")

type ProducerCfg struct {
	RequiredAcks string        `koanf:"required_acks"` // all|leader|none
	Compression  string        `koanf:"compression"`   // none|gzip|snappy|lz4|zstd
	Format       string        `koanf:"format"`        // avro|avro-json
	FlushTimeout time.Duration `koanf:"flush_timeout"`
}

type AdminCfg struct {
	Timeout time.Duration `koanf:"timeout"` // per list/create call
	Retries *uint64       `koanf:"retries"` // list-topics retries; nil means default, 0 disables
}

// Connection is shared by every producer and consumer in the process.
type Connection struct {
	Brokers           []string `koanf:"brokers"`
	SchemaRegistryURL string   `koanf:"schema_registry_url"`
	ClientID          string   `koanf:"client_id"`
	Version           string   `koanf:"version"`
	TLSEn             bool     `koanf:"tls_enabled"`
	SASLUser          string   `koanf:"sasl_user"`
	SASLPass          string   `koanf:"sasl_pass"`

	Producer ProducerCfg `koanf:"producer"`
	Admin    AdminCfg    `koanf:"admin"`
}

type TopicCfg struct {
	Name            string `koanf:"name"`
	KeySchema       string `koanf:"key_schema"`
	KeySchemaFile   string `koanf:"key_schema_file"`
	ValueSchema     string `koanf:"value_schema"`
	ValueSchemaFile string `koanf:"value_schema_file"`
	Partitions      int32  `koanf:"partitions"`
	Replication     int16  `koanf:"replication"`
}

type ConsumerCfg struct {
	Enabled   bool     `koanf:"enabled"`
	GroupID   string   `koanf:"group_id"`
	Topics    []string `koanf:"topics"`
	StartFrom string   `koanf:"start_from"` // oldest|newest
}

type StationCfg struct {
	Enabled  bool          `koanf:"enabled"`
	Name     string        `koanf:"name"`
	Topic    string        `koanf:"topic"`
	Interval time.Duration `koanf:"interval"`
}

type Config struct {
	Kafka    Connection      `koanf:"kafka"`
	Topics   []TopicCfg      `koanf:"topics"`
	Consumer ConsumerCfg     `koanf:"consumer"`
	Station  StationCfg      `koanf:"station"`
	Log      logging.Options `koanf:"log"`

	MetricsPort int `koanf:"metrics_port"`
	HealthPort  int `koanf:"health_port"`
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// Load merges YAML (if present) with env-vars
// (prefix `EVENTBUS__`, delimiter `__`), applies defaults, resolves schema
// files relative to the YAML and validates the result.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return Config{}, fmt.Errorf("%w: schema_version %q not supported (want %s)", ErrInvalid, sv, SupportedSchema)
	}

	_ = k.Load(env.Provider("EVENTBUS__", "__", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "EVENTBUS__"))
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	applyDefaults(&cfg)

	base := ""
	if path != "" {
		base = filepath.Dir(path)
	}
	if err := resolveSchemas(cfg.Topics, base); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func applyDefaults(c *Config) {
	ApplyConnectionDefaults(&c.Kafka)
	for i := range c.Topics {
		if c.Topics[i].Partitions == 0 {
			c.Topics[i].Partitions = 1
		}
		if c.Topics[i].Replication == 0 {
			c.Topics[i].Replication = 1
		}
	}
	if c.Consumer.GroupID == "" {
		c.Consumer.GroupID = c.Kafka.ClientID + "-weather"
	}
	if c.Consumer.StartFrom == "" {
		c.Consumer.StartFrom = "oldest"
	}
	if c.Station.Name == "" {
		c.Station.Name = "station-1"
	}
	if c.Station.Topic == "" {
		c.Station.Topic = "weather-events"
	}
	if c.Station.Interval == 0 {
		c.Station.Interval = 5 * time.Second
	}
	if c.MetricsPort == 0 {
		c.MetricsPort = 9100
	}
	if c.HealthPort == 0 {
		c.HealthPort = 7070
	}
}

// ApplyConnectionDefaults fills zero fields of a Connection built in code.
func ApplyConnectionDefaults(c *Connection) {
	if c.ClientID == "" {
		c.ClientID = "eventbus"
	}
	if c.Version == "" {
		c.Version = "2.8.0"
	}
	if c.Producer.RequiredAcks == "" {
		c.Producer.RequiredAcks = "all"
	}
	if c.Producer.Compression == "" {
		c.Producer.Compression = "none"
	}
	if c.Producer.Format == "" {
		c.Producer.Format = "avro"
	}
	if c.Producer.FlushTimeout == 0 {
		c.Producer.FlushTimeout = 10 * time.Second
	}
	if c.Admin.Timeout == 0 {
		c.Admin.Timeout = 5 * time.Second
	}
	if c.Admin.Retries == nil {
		n := uint64(3)
		c.Admin.Retries = &n
	}
}

func resolveSchemas(topics []TopicCfg, base string) error {
	read := func(p string) (string, error) {
		if !filepath.IsAbs(p) && base != "" {
			p = filepath.Join(base, p)
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("%w: schema file: %v", ErrInvalid, err)
		}
		return string(raw), nil
	}
	for i := range topics {
		t := &topics[i]
		if t.KeySchema == "" && t.KeySchemaFile != "" {
			s, err := read(t.KeySchemaFile)
			if err != nil {
				return err
			}
			t.KeySchema = s
		}
		if t.ValueSchema == "" && t.ValueSchemaFile != "" {
			s, err := read(t.ValueSchemaFile)
			if err != nil {
				return err
			}
			t.ValueSchema = s
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// validation
// ---------------------------------------------------------------------------

func (c Config) Validate() error {
	if err := c.Kafka.Validate(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Topics))
	for _, t := range c.Topics {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%w: topic name is empty", ErrInvalid)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("%w: topic %q declared twice", ErrInvalid, t.Name)
		}
		seen[t.Name] = struct{}{}
		if strings.TrimSpace(t.KeySchema) == "" {
			return fmt.Errorf("%w: topic %q: key schema required", ErrInvalid, t.Name)
		}
		if t.Partitions < 1 || t.Replication < 1 {
			return fmt.Errorf("%w: topic %q: partitions and replication must be positive", ErrInvalid, t.Name)
		}
	}
	if c.Consumer.StartFrom != "oldest" && c.Consumer.StartFrom != "newest" {
		return fmt.Errorf("%w: consumer.start_from %q (want oldest|newest)", ErrInvalid, c.Consumer.StartFrom)
	}
	if c.Consumer.Enabled && len(c.Consumer.Topics) == 0 {
		return fmt.Errorf("%w: consumer enabled without topics", ErrInvalid)
	}
	if c.Station.Enabled {
		if _, ok := seen[c.Station.Topic]; !ok {
			return fmt.Errorf("%w: station topic %q is not declared under topics", ErrInvalid, c.Station.Topic)
		}
	}
	return nil
}

func (c Connection) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("%w: kafka.brokers required", ErrInvalid)
	}
	for _, b := range c.Brokers {
		if _, _, err := net.SplitHostPort(b); err != nil {
			return fmt.Errorf("%w: broker %q: %v", ErrInvalid, b, err)
		}
	}
	u, err := url.Parse(c.SchemaRegistryURL)
	if err != nil || c.SchemaRegistryURL == "" {
		return fmt.Errorf("%w: kafka.schema_registry_url %q", ErrInvalid, c.SchemaRegistryURL)
	}
	switch u.Scheme {
	case "http", "https", "mem":
	default:
		return fmt.Errorf("%w: kafka.schema_registry_url scheme %q (want http|https|mem)", ErrInvalid, u.Scheme)
	}
	if (c.SASLUser == "") != (c.SASLPass == "") {
		return fmt.Errorf("%w: sasl_user and sasl_pass go together", ErrInvalid)
	}
	if c.Producer.FlushTimeout < 0 || c.Admin.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalid)
	}
	return nil
}
