package weather

import (
	"fmt"
	"sync"

	"eventbus/internal/logging"
)

const (
	DefaultTemperature = 70.0
	DefaultStatus      = "sunny"
)

// Conditions is one observation of the weather.
type Conditions struct {
	Temperature float64
	Status      string
}

// Model holds the latest weather seen on the stream. It satisfies
// consumer.Sink.
type Model struct {
	mu  sync.RWMutex
	cur Conditions
}

func NewModel() *Model {
	return &Model{cur: Conditions{Temperature: DefaultTemperature, Status: DefaultStatus}}
}

// Handle replaces the current conditions with the ones in msg. Messages
// missing either field, or carrying the wrong types, leave the model as is.
func (m *Model) Handle(msg map[string]any) {
	temp, err := number(msg["temperature"])
	if err != nil {
		logging.L().Warn("ignoring weather message", "field", "temperature", "err", err)
		return
	}
	status, ok := msg["status"].(string)
	if !ok {
		logging.L().Warn("ignoring weather message", "field", "status", "value", msg["status"])
		return
	}

	m.mu.Lock()
	m.cur = Conditions{Temperature: temp, Status: status}
	m.mu.Unlock()
	logging.L().Info("weather updated", "temperature", temp, "status", status)
}

func (m *Model) Snapshot() Conditions {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case nil:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
