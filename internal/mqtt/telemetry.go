package mqtt

import (
	"fmt"
	"time"
)

// Telemetry is one raw reading published by a station logger.
type Telemetry struct {
	SiteNo      int       `json:"site_no"`
	Timestamp   time.Time `json:"timestamp"`
	Count       *float64  `json:"count,omitempty"`
	Pressure    *float64  `json:"pressure_hpa,omitempty"`
	Humidity    *float64  `json:"humidity_pct,omitempty"`
	Temperature *float64  `json:"temperature_c,omitempty"`
	Battery     *float64  `json:"battery_v,omitempty"`
	Sequence    *int      `json:"sequence,omitempty"`
}

// Fields returns the readings present in t, keyed by raw_values field name.
func (t Telemetry) Fields() map[string]any {
	out := make(map[string]any, 5)
	add := func(name string, v *float64) {
		if v != nil {
			out[name] = *v
		}
	}
	add("count", t.Count)
	add("pressure", t.Pressure)
	add("internal_humidity", t.Humidity)
	add("internal_temperature", t.Temperature)
	add("battery", t.Battery)
	return out
}

func validateTelemetry(t Telemetry) error {
	if t.SiteNo <= 0 {
		return fmt.Errorf("site_no must be positive: %d", t.SiteNo)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if t.Count != nil && *t.Count < 0 {
		return fmt.Errorf("count must not be negative: %f", *t.Count)
	}
	if t.Humidity != nil && (*t.Humidity < 0 || *t.Humidity > 100) {
		return fmt.Errorf("humidity_pct out of range: %f (must be 0-100)", *t.Humidity)
	}
	if t.Pressure != nil && *t.Pressure <= 0 {
		return fmt.Errorf("pressure_hpa must be positive: %f", *t.Pressure)
	}
	if t.Count == nil && t.Pressure == nil && t.Humidity == nil && t.Temperature == nil && t.Battery == nil {
		return fmt.Errorf("at least one reading is required")
	}
	return nil
}
