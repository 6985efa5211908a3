package serde

import (
	"fmt"
	"sort"
	"sync"
)

// Registry resolves schemas against a schema registry.
type Registry interface {
	// Register returns the id of schema under subject, registering it if needed.
	Register(subject, schema string) (int, error)
	// Lookup returns the schema definition stored under id.
	Lookup(id int) (string, error)
}

// Serializer turns native values into schema-framed bytes and back.
type Serializer interface {
	Serialize(subject, schema string, native any) ([]byte, error)
	Deserialize(data []byte) (any, error)
}

// Factory builds a Serializer for one wire format on top of a Registry.
type Factory func(Registry) Serializer

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

// Register is called from each format's init().
func Register(name string, f Factory) {
	mu.Lock()
	registry[name] = f
	mu.Unlock()
}

// New returns a serializer by format name ("avro", "avro-json").
func New(format string, reg Registry) (Serializer, error) {
	mu.RLock()
	f, ok := registry[format]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("serde: unsupported format %q", format)
	}
	return f(reg), nil
}

func Formats() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// KeySubject and ValueSubject follow the topic-name subject strategy.
func KeySubject(topic string) string   { return topic + "-key" }
func ValueSubject(topic string) string { return topic + "-value" }
