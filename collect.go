// Package ecoguardian - collect.go
// The collector agent: fetches a reading through the DataSource capability,
// derives the environmental score and issue categories, and records the
// result in the memory bank.

package ecoguardian

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Issue categories derived from a reading. The evaluator matches these
// against intervention categories when scoring relevance.
const (
	IssueAirQuality  = "air_quality"
	IssueTemperature = "temperature"
	IssueHumidity    = "humidity"
	IssueStagnantAir = "stagnant_air"
)

// ScoreReading fills in the 0-100 environmental score and the issue
// categories for a raw reading. Penalties: 15 per AQI level above 1, 10 for
// temperature extremes, 5 for high humidity, 10 for stagnant air.
func ScoreReading(r Reading) Reading {
	score := 100.0
	var issues []string

	if r.AQI > 1 {
		score -= float64(r.AQI-1) * 15
	}
	if r.AQI >= 3 {
		issues = append(issues, IssueAirQuality)
	}
	if r.TemperatureC < 0 || r.TemperatureC > 35 {
		score -= 10
		issues = append(issues, IssueTemperature)
	}
	if r.HumidityPct > 80 {
		score -= 5
		issues = append(issues, IssueHumidity)
	}
	if r.WindSpeedMPS < 1 {
		score -= 10
		issues = append(issues, IssueStagnantAir)
	}

	if score < 0 {
		score = 0
	}
	r.EnvironmentalScore = score
	r.Issues = issues
	return r
}

// StatusFor bands an environmental score.
func StatusFor(score float64) string {
	switch {
	case score >= 80:
		return "EXCELLENT"
	case score >= 70:
		return "GOOD"
	case score >= 50:
		return "MODERATE"
	default:
		return "CRITICAL"
	}
}

// CollectorAgent wraps the DataSource capability as a registry agent.
type CollectorAgent struct {
	id     string
	source DataSource
	bank   *MemoryBank
	logger *slog.Logger
}

func NewCollectorAgent(id string, source DataSource, bank *MemoryBank, logger *slog.Logger) *CollectorAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollectorAgent{id: id, source: source, bank: bank, logger: logger}
}

func (a *CollectorAgent) ID() string      { return a.id }
func (a *CollectorAgent) Kind() AgentKind { return KindCollector }

// Run expects a city name and returns a scored Reading.
func (a *CollectorAgent) Run(ctx context.Context, input any) (any, error) {
	city, ok := input.(string)
	if !ok || city == "" {
		return nil, &AgentError{AgentID: a.id, Kind: KindCollector,
			Err: &ValidationError{Field: "input", Reason: "expected a city name"}}
	}

	reading, err := a.source.Fetch(ctx, city)
	if err != nil {
		return nil, &AgentError{AgentID: a.id, Kind: KindCollector, Err: err}
	}
	reading = ScoreReading(reading)

	key := fmt.Sprintf("reading:%s", strings.ToLower(city))
	if err := a.bank.Put(key, reading); err != nil {
		return nil, &AgentError{AgentID: a.id, Kind: KindCollector, Err: err}
	}
	a.logger.Info("reading collected",
		"agent_id", a.id,
		"city", city,
		"score", reading.EnvironmentalScore,
		"aqi", reading.AQI,
	)
	return reading, nil
}
