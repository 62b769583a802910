// Package source provides DataSource implementations: a deterministic
// simulator for development and tests, and an OpenWeather-backed client.
package source

import (
	"context"
	"hash/fnv"
	"strings"
	"time"

	"github.com/ecoguardian/ecoguardian"
)

// Simulated is a deterministic DataSource. The same city always yields the
// same reading, which keeps workflows reproducible without network access.
type Simulated struct {
	now func() time.Time
}

func NewSimulated() *Simulated {
	return &Simulated{now: time.Now}
}

func (s *Simulated) Fetch(ctx context.Context, entityID string) (ecoguardian.Reading, error) {
	if err := ctx.Err(); err != nil {
		return ecoguardian.Reading{}, err
	}
	if entityID == "" {
		return ecoguardian.Reading{}, &ecoguardian.ValidationError{
			Field: "entityID", Reason: "city must not be empty"}
	}

	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(entityID)))
	seed := h.Sum64()

	reading := ecoguardian.Reading{
		City:         entityID,
		AQI:          int(seed%5) + 1,
		TemperatureC: -5 + float64(seed>>8%450)/10,  // -5.0 .. 39.9
		HumidityPct:  20 + float64(seed>>16%750)/10, // 20.0 .. 94.9
		WindSpeedMPS: float64(seed>>24%120) / 10,    // 0.0 .. 11.9
		CollectedAt:  s.now(),
	}
	return reading, nil
}
