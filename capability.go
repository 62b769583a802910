// Package ecoguardian - capability.go
// Abstract external capabilities consumed by the core, the domain payloads
// they exchange, and the retry/circuit-breaker plumbing around them.

package ecoguardian

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Reading is one environmental observation for a city. AQI uses the 1-5
// scale (1 good, 5 very poor).
type Reading struct {
	City               string    `json:"city"`
	AQI                int       `json:"aqi"`
	TemperatureC       float64   `json:"temperature_celsius"`
	HumidityPct        float64   `json:"humidity_percent"`
	WindSpeedMPS       float64   `json:"wind_speed_mps"`
	EnvironmentalScore float64   `json:"environmental_score"`
	Issues             []string  `json:"issues,omitempty"`
	CollectedAt        time.Time `json:"collected_at"`
}

// Intervention is one recommended eco-action with its confidence.
type Intervention struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Category       string  `json:"category"`
	ExpectedImpact string  `json:"expected_impact"`
	Timeline       string  `json:"implementation_timeline"`
	Priority       string  `json:"priority_level"`
	Confidence     float64 `json:"confidence_score"`
}

// Prediction is the ordered intervention list produced for one city.
type Prediction struct {
	City              string         `json:"city"`
	Interventions     []Intervention `json:"interventions"`
	AverageConfidence float64        `json:"average_confidence"`
	Model             string         `json:"model_used,omitempty"`
}

// DeployedAction is one executed intervention with its estimated effect.
type DeployedAction struct {
	Type                  string    `json:"type"`
	City                  string    `json:"city"`
	Status                string    `json:"status"`
	CO2ReductionKgPerYear float64   `json:"co2_reduction_kg_per_year"`
	AQIImprovementPct     float64   `json:"aqi_improvement_percent"`
	DeployedAt            time.Time `json:"deployed_at"`
}

// Deployment aggregates the actions deployed for one city.
type Deployment struct {
	City                       string           `json:"city"`
	Actions                    []DeployedAction `json:"actions"`
	TotalCO2ReductionKgPerYear float64          `json:"total_co2_reduction_kg_per_year"`
	TotalAQIImprovementPct     float64          `json:"total_aqi_improvement_percent"`
}

// DataSource is the consumed environmental-data capability. Implementations
// fail with ErrUnavailable or ErrTimeout; concrete integrations live outside
// the core.
type DataSource interface {
	Fetch(ctx context.Context, entityID string) (Reading, error)
}

// Predictor is the consumed prediction capability. Implementations fail with
// ErrUnavailable; malformed model output is a ValidationError.
type Predictor interface {
	Predict(ctx context.Context, reading Reading) (Prediction, error)
}

// RetryPolicy retries transient capability failures with linear backoff.
// Validation failures are never retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) || attempt == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff * time.Duration(attempt)):
		}
	}
	return err
}

// Default circuit breaker settings.
const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 30 * time.Second
)

func breakerSettings(name string, maxFailures uint32, timeout time.Duration, logger *slog.Logger) gobreaker.Settings {
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // one probe in half-open state
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	}
}

// BreakerSource wraps a DataSource with a circuit breaker so a failing
// integration fails fast instead of feeding retry storms.
type BreakerSource struct {
	inner   DataSource
	breaker *gobreaker.CircuitBreaker[Reading]
}

func NewBreakerSource(inner DataSource, maxFailures uint32, timeout time.Duration, logger *slog.Logger) *BreakerSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerSource{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[Reading](breakerSettings("source", maxFailures, timeout, logger)),
	}
}

func (s *BreakerSource) Fetch(ctx context.Context, entityID string) (Reading, error) {
	reading, err := s.breaker.Execute(func() (Reading, error) {
		return s.inner.Fetch(ctx, entityID)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return Reading{}, fmt.Errorf("source circuit open: %w", ErrUnavailable)
	}
	return reading, err
}

// BreakerPredictor wraps a Predictor the same way.
type BreakerPredictor struct {
	inner   Predictor
	breaker *gobreaker.CircuitBreaker[Prediction]
}

func NewBreakerPredictor(inner Predictor, maxFailures uint32, timeout time.Duration, logger *slog.Logger) *BreakerPredictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerPredictor{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[Prediction](breakerSettings("predictor", maxFailures, timeout, logger)),
	}
}

func (p *BreakerPredictor) Predict(ctx context.Context, reading Reading) (Prediction, error) {
	prediction, err := p.breaker.Execute(func() (Prediction, error) {
		return p.inner.Predict(ctx, reading)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return Prediction{}, fmt.Errorf("predictor circuit open: %w", ErrUnavailable)
	}
	return prediction, err
}
