package serde

import (
	"errors"
	"sync/atomic"
	"testing"
)

const (
	stringSchema  = `{"type":"string"}`
	weatherSchema = `{"type":"record","name":"weather","namespace":"eventbus","fields":[
		{"name":"temperature","type":"float"},
		{"name":"status","type":"string"}]}`
)

type countingRegistry struct {
	*MemoryRegistry
	registers int32
}

func (c *countingRegistry) Register(subject, schema string) (int, error) {
	atomic.AddInt32(&c.registers, 1)
	return c.MemoryRegistry.Register(subject, schema)
}

func TestAvro_WeatherValueRoundTrip(t *testing.T) {
	for _, format := range []string{"avro", "avro-json"} {
		t.Run(format, func(t *testing.T) {
			s, err := New(format, NewMemoryRegistry())
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			data, err := s.Serialize(ValueSubject("weather-events"), weatherSchema,
				map[string]any{"temperature": 72.5, "status": "cloudy"})
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}
			if data[0] != magicByte {
				t.Fatalf("want magic byte 0, got %d", data[0])
			}

			native, err := s.Deserialize(data)
			if err != nil {
				t.Fatalf("Deserialize: %v", err)
			}
			rec, ok := native.(map[string]any)
			if !ok {
				t.Fatalf("want record map, got %T", native)
			}
			if rec["status"] != "cloudy" {
				t.Fatalf("unexpected status %v", rec["status"])
			}
			if temp, _ := rec["temperature"].(float32); temp != 72.5 {
				t.Fatalf("unexpected temperature %v", rec["temperature"])
			}
		})
	}
}

func TestAvro_MalformedValueIsSerializationError(t *testing.T) {
	s, _ := New("avro", NewMemoryRegistry())
	_, err := s.Serialize(ValueSubject("weather-events"), weatherSchema,
		map[string]any{"temperature": "hot", "status": "cloudy"})
	if !errors.Is(err, ErrSerialization) {
		t.Fatalf("want ErrSerialization, got %v", err)
	}
	var se *SerializationError
	if !errors.As(err, &se) || se.Subject != "weather-events-value" {
		t.Fatalf("want SerializationError for weather-events-value, got %#v", err)
	}

	_, err = s.Serialize(ValueSubject("weather-events"), weatherSchema, map[string]any{"temperature": 70.0})
	if !errors.Is(err, ErrSerialization) {
		t.Fatalf("missing field: want ErrSerialization, got %v", err)
	}
}

func TestAvro_InvalidSchema(t *testing.T) {
	s, _ := New("avro", NewMemoryRegistry())
	_, err := s.Serialize("t-key", `{"type":"nope"}`, "x")
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("want ErrSchema, got %v", err)
	}
}

func TestAvro_RegistersOncePerSubject(t *testing.T) {
	reg := &countingRegistry{MemoryRegistry: NewMemoryRegistry()}
	s, _ := New("avro", reg)
	for i := 0; i < 3; i++ {
		if _, err := s.Serialize(KeySubject("weather-events"), stringSchema, "station-1"); err != nil {
			t.Fatalf("Serialize: %v", err)
		}
	}
	if got := atomic.LoadInt32(&reg.registers); got != 1 {
		t.Fatalf("want 1 registry call, got %d", got)
	}
	if v := reg.Versions("weather-events-key"); len(v) != 1 {
		t.Fatalf("want 1 version, got %v", v)
	}
}

func TestAvro_DeserializeWithFreshSerdeUsesRegistry(t *testing.T) {
	reg := NewMemoryRegistry()
	producer, _ := New("avro", reg)
	data, err := producer.Serialize(KeySubject("weather-events"), stringSchema, "station-1")
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	consumer, _ := New("avro", reg)
	got, err := consumer.Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got != "station-1" {
		t.Fatalf("want station-1, got %v", got)
	}
}

func TestAvro_DeserializeRejectsBadFrames(t *testing.T) {
	s, _ := New("avro", NewMemoryRegistry())
	if _, err := s.Deserialize([]byte{1, 0, 0, 0, 1, 2}); !errors.Is(err, ErrWireFormat) {
		t.Fatalf("bad magic: want ErrWireFormat, got %v", err)
	}
	if _, err := s.Deserialize([]byte{0, 0}); !errors.Is(err, ErrWireFormat) {
		t.Fatalf("short frame: want ErrWireFormat, got %v", err)
	}
	if _, err := s.Deserialize([]byte{0, 0, 0, 0, 42, 2}); !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("unknown id: want ErrSchemaNotFound, got %v", err)
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	if _, err := New("protobuf", NewMemoryRegistry()); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if got := Formats(); len(got) != 2 || got[0] != "avro" || got[1] != "avro-json" {
		t.Fatalf("unexpected formats %v", got)
	}
}

func TestOpen_MemScheme(t *testing.T) {
	r, err := Open("mem://local")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := r.(*MemoryRegistry); !ok {
		t.Fatalf("want *MemoryRegistry, got %T", r)
	}
	if _, ok := mustOpen(t, "http://localhost:8081").(*RegistryClient); !ok {
		t.Fatal("want *RegistryClient for http scheme")
	}
}

func mustOpen(t *testing.T, u string) Registry {
	t.Helper()
	r, err := Open(u)
	if err != nil {
		t.Fatalf("Open(%s): %v", u, err)
	}
	return r
}
