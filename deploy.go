// Package ecoguardian - deploy.go
// The predictor and deployer agents. The predictor delegates to the abstract
// Predictor capability; the deployer simulates intervention roll-out and
// estimates aggregate impact.

package ecoguardian

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// PredictorAgent wraps the Predictor capability as a registry agent.
type PredictorAgent struct {
	id        string
	predictor Predictor
	bank      *MemoryBank
	logger    *slog.Logger
}

func NewPredictorAgent(id string, predictor Predictor, bank *MemoryBank, logger *slog.Logger) *PredictorAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictorAgent{id: id, predictor: predictor, bank: bank, logger: logger}
}

func (a *PredictorAgent) ID() string      { return a.id }
func (a *PredictorAgent) Kind() AgentKind { return KindPredictor }

// Run expects a Reading and returns a Prediction.
func (a *PredictorAgent) Run(ctx context.Context, input any) (any, error) {
	reading, ok := input.(Reading)
	if !ok {
		return nil, &AgentError{AgentID: a.id, Kind: KindPredictor,
			Err: &ValidationError{Field: "input", Reason: "expected a Reading"}}
	}

	prediction, err := a.predictor.Predict(ctx, reading)
	if err != nil {
		return nil, &AgentError{AgentID: a.id, Kind: KindPredictor, Err: err}
	}
	if prediction.AverageConfidence == 0 && len(prediction.Interventions) > 0 {
		prediction.AverageConfidence = averageConfidence(prediction.Interventions)
	}
	if prediction.City == "" {
		prediction.City = reading.City
	}

	key := fmt.Sprintf("prediction:%s", strings.ToLower(reading.City))
	if err := a.bank.Put(key, prediction); err != nil {
		return nil, &AgentError{AgentID: a.id, Kind: KindPredictor, Err: err}
	}
	a.logger.Info("prediction generated",
		"agent_id", a.id,
		"city", reading.City,
		"interventions", len(prediction.Interventions),
		"avg_confidence", prediction.AverageConfidence,
	)
	return prediction, nil
}

func averageConfidence(interventions []Intervention) float64 {
	if len(interventions) == 0 {
		return 0
	}
	total := 0.0
	for _, iv := range interventions {
		total += iv.Confidence
	}
	return total / float64(len(interventions))
}

// Per-category base impact estimates, scaled by priority and confidence.
var actionImpacts = map[string]struct {
	co2KgPerYear float64
	aqiPct       float64
}{
	"air_quality":  {co2KgPerYear: 1500, aqiPct: 8},
	"greening":     {co2KgPerYear: 2400, aqiPct: 6},
	"transport":    {co2KgPerYear: 1800, aqiPct: 5},
	"industry":     {co2KgPerYear: 3000, aqiPct: 10},
	"energy":       {co2KgPerYear: 2000, aqiPct: 4},
	"monitoring":   {co2KgPerYear: 200, aqiPct: 2},
	"temperature":  {co2KgPerYear: 900, aqiPct: 3},
	"humidity":     {co2KgPerYear: 400, aqiPct: 2},
	"stagnant_air": {co2KgPerYear: 600, aqiPct: 4},
}

var priorityMultipliers = map[string]float64{
	"High":   1.0,
	"Medium": 0.7,
	"Low":    0.4,
}

// DeployerAgent turns a prediction into simulated deployments.
type DeployerAgent struct {
	id     string
	bank   *MemoryBank
	logger *slog.Logger
	now    func() time.Time
}

func NewDeployerAgent(id string, bank *MemoryBank, logger *slog.Logger) *DeployerAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeployerAgent{id: id, bank: bank, logger: logger, now: time.Now}
}

func (a *DeployerAgent) ID() string      { return a.id }
func (a *DeployerAgent) Kind() AgentKind { return KindDeployer }

// Run expects a Prediction and returns a Deployment. Interventions with an
// unknown category are skipped, not failed; a prediction with no deployable
// intervention is a validation failure.
func (a *DeployerAgent) Run(ctx context.Context, input any) (any, error) {
	prediction, ok := input.(Prediction)
	if !ok {
		return nil, &AgentError{AgentID: a.id, Kind: KindDeployer,
			Err: &ValidationError{Field: "input", Reason: "expected a Prediction"}}
	}

	deployment := Deployment{City: prediction.City}
	for _, iv := range prediction.Interventions {
		if ctx.Err() != nil {
			return nil, &AgentError{AgentID: a.id, Kind: KindDeployer, Err: ctx.Err()}
		}
		impact, known := actionImpacts[iv.Category]
		if !known {
			a.logger.Warn("skipping unknown intervention category",
				"agent_id", a.id, "category", iv.Category, "name", iv.Name)
			continue
		}
		multiplier, ok := priorityMultipliers[iv.Priority]
		if !ok {
			multiplier = priorityMultipliers["Medium"]
		}
		confidence := iv.Confidence / 100
		action := DeployedAction{
			Type:                  iv.Category,
			City:                  prediction.City,
			Status:                "deployed",
			CO2ReductionKgPerYear: impact.co2KgPerYear * multiplier * confidence,
			AQIImprovementPct:     impact.aqiPct * multiplier * confidence,
			DeployedAt:            a.now(),
		}
		deployment.Actions = append(deployment.Actions, action)
		deployment.TotalCO2ReductionKgPerYear += action.CO2ReductionKgPerYear
		deployment.TotalAQIImprovementPct += action.AQIImprovementPct
	}

	if len(deployment.Actions) == 0 {
		return nil, &AgentError{AgentID: a.id, Kind: KindDeployer,
			Err: &ValidationError{Field: "interventions", Reason: "no deployable intervention"}}
	}

	key := fmt.Sprintf("deployment:%s", strings.ToLower(prediction.City))
	if err := a.bank.Put(key, deployment); err != nil {
		return nil, &AgentError{AgentID: a.id, Kind: KindDeployer, Err: err}
	}
	a.logger.Info("actions deployed",
		"agent_id", a.id,
		"city", prediction.City,
		"actions", len(deployment.Actions),
		"co2_kg_per_year", deployment.TotalCO2ReductionKgPerYear,
	)
	return deployment, nil
}
