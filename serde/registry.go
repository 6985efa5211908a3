package serde

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/riferrei/srclient"
)

var ErrSchemaNotFound = errors.New("serde: schema not found")

// Open returns the registry client for rawURL. The mem:// scheme selects an
// in-process registry, useful for local runs without a registry service.
func Open(rawURL string) (Registry, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("serde: registry url %q: %w", rawURL, err)
	}
	if u.Scheme == "mem" {
		return NewMemoryRegistry(), nil
	}
	return NewRegistryClient(rawURL), nil
}

/* ───────────────────────── Confluent-compatible HTTP registry ───────────── */

type RegistryClient struct {
	c srclient.ISchemaRegistryClient
}

func NewRegistryClient(rawURL string) *RegistryClient {
	return &RegistryClient{c: srclient.CreateSchemaRegistryClient(rawURL)}
}

func (r *RegistryClient) Register(subject, schema string) (int, error) {
	s, err := r.c.CreateSchema(subject, schema, srclient.Avro)
	if err != nil {
		return 0, err
	}
	return s.ID(), nil
}

func (r *RegistryClient) Lookup(id int) (string, error) {
	s, err := r.c.GetSchema(id)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", fmt.Errorf("%w: id %d", ErrSchemaNotFound, id)
	}
	return s.Schema(), nil
}

/* ───────────────────────── in-process registry ───────────────────────────── */

// MemoryRegistry hands out ids per distinct schema text, like the registry
// service does across subjects.
type MemoryRegistry struct {
	mu       sync.Mutex
	ids      map[string]int
	schemas  map[int]string
	subjects map[string][]int
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		ids:      make(map[string]int),
		schemas:  make(map[int]string),
		subjects: make(map[string][]int),
	}
}

func (m *MemoryRegistry) Register(subject, schema string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.ids[schema]
	if !ok {
		id = len(m.ids) + 1
		m.ids[schema] = id
		m.schemas[id] = schema
	}
	for _, v := range m.subjects[subject] {
		if v == id {
			return id, nil
		}
	}
	m.subjects[subject] = append(m.subjects[subject], id)
	return id, nil
}

func (m *MemoryRegistry) Lookup(id int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schemas[id]
	if !ok {
		return "", fmt.Errorf("%w: id %d", ErrSchemaNotFound, id)
	}
	return s, nil
}

// Versions returns the schema ids registered under subject, oldest first.
func (m *MemoryRegistry) Versions(subject string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.subjects[subject]...)
}
