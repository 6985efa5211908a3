package weather

// Topic is the default topic weather readings are published to.
const Topic = "weather-events"

const KeySchema = `{"type": "string"}`

const ValueSchema = `{
  "type": "record",
  "name": "weather_value",
  "namespace": "eventbus.weather",
  "fields": [
    {"name": "temperature", "type": "float"},
    {"name": "status", "type": "string"}
  ]
}`

// Reading is what a station reports on each tick.
type Reading struct {
	Temperature float64
	Status      string
}

// Native returns the goavro native form of r for ValueSchema.
func (r Reading) Native() map[string]any {
	return map[string]any{
		"temperature": float32(r.Temperature),
		"status":      r.Status,
	}
}
