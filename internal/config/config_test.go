package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const keySchema = `{"type":"string"}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoad_ResolvesRelativeSchemaFilesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "weather_value.avsc", `{"type":"record","name":"weather","fields":[{"name":"temperature","type":"float"}]}`)
	path := writeFile(t, dir, "eventbus.yml", `schema_version: v1
kafka:
  brokers: ["localhost:9092"]
  schema_registry_url: http://localhost:8081
topics:
  - name: weather-events
    key_schema: '{"type":"string"}'
    value_schema_file: weather_value.avsc
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Topics) != 1 {
		t.Fatalf("want 1 topic, got %d", len(cfg.Topics))
	}
	tc := cfg.Topics[0]
	if tc.ValueSchema == "" {
		t.Fatal("value schema file was not resolved")
	}
	if tc.Partitions != 1 || tc.Replication != 1 {
		t.Fatalf("want partitions=1 replication=1, got %d/%d", tc.Partitions, tc.Replication)
	}
	if cfg.Kafka.Producer.RequiredAcks != "all" || cfg.Kafka.Producer.Format != "avro" {
		t.Fatalf("unexpected producer defaults: %+v", cfg.Kafka.Producer)
	}
	if cfg.Kafka.Producer.FlushTimeout != 10*time.Second {
		t.Fatalf("want flush timeout 10s, got %s", cfg.Kafka.Producer.FlushTimeout)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "eventbus.yml", `kafka:
  brokers: ["localhost:9092"]
  schema_registry_url: http://localhost:8081
`)
	t.Setenv("EVENTBUS__KAFKA__SCHEMA_REGISTRY_URL", "http://registry:8081")
	t.Setenv("EVENTBUS__KAFKA__PRODUCER__FLUSH_TIMEOUT", "3s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kafka.SchemaRegistryURL != "http://registry:8081" {
		t.Fatalf("env override not applied: %q", cfg.Kafka.SchemaRegistryURL)
	}
	if cfg.Kafka.Producer.FlushTimeout != 3*time.Second {
		t.Fatalf("want 3s, got %s", cfg.Kafka.Producer.FlushTimeout)
	}
}

func TestLoad_AdminRetries(t *testing.T) {
	const conn = `kafka:
  brokers: ["localhost:9092"]
  schema_registry_url: http://localhost:8081
`
	dir := t.TempDir()
	cfg, err := Load(writeFile(t, dir, "default.yml", conn))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kafka.Admin.Retries == nil || *cfg.Kafka.Admin.Retries != 3 {
		t.Fatalf("absent retries: want default 3, got %v", cfg.Kafka.Admin.Retries)
	}

	cfg, err = Load(writeFile(t, dir, "off.yml", conn+"  admin:\n    retries: 0\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kafka.Admin.Retries == nil || *cfg.Kafka.Admin.Retries != 0 {
		t.Fatalf("retries: 0 must disable retries, got %v", cfg.Kafka.Admin.Retries)
	}
	ApplyConnectionDefaults(&cfg.Kafka)
	if *cfg.Kafka.Admin.Retries != 0 {
		t.Fatalf("defaults overwrote an explicit 0: %d", *cfg.Kafka.Admin.Retries)
	}
}

func TestLoad_InvalidSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "eventbus.yml", "schema_version: v999\n")
	_, err := Load(path)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestConnectionValidate(t *testing.T) {
	cases := []struct {
		name    string
		conn    Connection
		wantErr bool
	}{
		{"empty", Connection{}, true},
		{"noPort", Connection{Brokers: []string{"localhost"}, SchemaRegistryURL: "http://r:8081"}, true},
		{"noRegistry", Connection{Brokers: []string{"localhost:9092"}}, true},
		{"badScheme", Connection{Brokers: []string{"localhost:9092"}, SchemaRegistryURL: "ftp://r"}, true},
		{"halfSASL", Connection{Brokers: []string{"localhost:9092"}, SchemaRegistryURL: "http://r:8081", SASLUser: "u"}, true},
		{"ok", Connection{Brokers: []string{"localhost:9092"}, SchemaRegistryURL: "http://r:8081"}, false},
		{"memRegistry", Connection{Brokers: []string{"localhost:9092"}, SchemaRegistryURL: "mem://local"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.conn.Validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("Validate() = %v, wantErr=%v", err, c.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Fatalf("want ErrInvalid, got %v", err)
			}
		})
	}
}

func TestConfigValidate_Topics(t *testing.T) {
	base := func() Config {
		c := Config{Kafka: Connection{Brokers: []string{"localhost:9092"}, SchemaRegistryURL: "http://r:8081"}}
		applyDefaults(&c)
		return c
	}

	c := base()
	c.Topics = []TopicCfg{{Name: "a", KeySchema: keySchema, Partitions: 1, Replication: 1}, {Name: "a", KeySchema: keySchema, Partitions: 1, Replication: 1}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected duplicate topic error")
	}

	c = base()
	c.Topics = []TopicCfg{{Name: "a", Partitions: 1, Replication: 1}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected missing key schema error")
	}

	c = base()
	c.Station = StationCfg{Enabled: true, Topic: "weather-events"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected undeclared station topic error")
	}

	c = base()
	c.Topics = []TopicCfg{{Name: "weather-events", KeySchema: keySchema, Partitions: 1, Replication: 1}}
	c.Station = StationCfg{Enabled: true, Topic: "weather-events"}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_ShippedSample(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "eventbus.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Station.Enabled || cfg.Station.Topic != "weather-events" || cfg.Station.Interval != 5*time.Second {
		t.Fatalf("unexpected station %+v", cfg.Station)
	}
	if cfg.Consumer.GroupID != "eventbus-weather" {
		t.Fatalf("want derived group id, got %q", cfg.Consumer.GroupID)
	}
	if cfg.Topics[0].KeySchema == "" || cfg.Topics[0].ValueSchema == "" {
		t.Fatal("schema files were not resolved")
	}
}
