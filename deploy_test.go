package ecoguardian

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPredictor returns a canned prediction or a canned error.
type stubPredictor struct {
	prediction Prediction
	err        error
	calls      int
}

func (s *stubPredictor) Predict(ctx context.Context, reading Reading) (Prediction, error) {
	s.calls++
	if s.err != nil {
		return Prediction{}, s.err
	}
	p := s.prediction
	if p.City == "" {
		p.City = reading.City
	}
	return p, nil
}

func TestPredictorAgentRun(t *testing.T) {
	bank := newTestBank(t, 100)
	pred := &stubPredictor{prediction: Prediction{
		Interventions: testInterventions(5, 80, "greening"),
	}}
	agent := NewPredictorAgent("eco-predictor", pred, bank, testLogger())

	out, err := agent.Run(context.Background(), Reading{City: "Oslo"})
	require.NoError(t, err)

	prediction := out.(Prediction)
	assert.Equal(t, "Oslo", prediction.City)
	assert.InDelta(t, 80, prediction.AverageConfidence, 0.001,
		"missing average is derived from the interventions")

	var stored Prediction
	require.NoError(t, bank.GetJSON("prediction:oslo", &stored))
	assert.Len(t, stored.Interventions, 5)
}

func TestPredictorAgentRejectsBadInput(t *testing.T) {
	agent := NewPredictorAgent("eco-predictor", &stubPredictor{}, newTestBank(t, 100), testLogger())
	_, err := agent.Run(context.Background(), "not a reading")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDeployerAgentRun(t *testing.T) {
	bank := newTestBank(t, 100)
	agent := NewDeployerAgent("eco-deployer", bank, testLogger())

	prediction := Prediction{City: "Oslo", Interventions: []Intervention{
		{Name: "trees", Category: "greening", Priority: "High", Confidence: 100},
		{Name: "transit", Category: "transport", Priority: "Low", Confidence: 50},
	}}
	out, err := agent.Run(context.Background(), prediction)
	require.NoError(t, err)

	deployment := out.(Deployment)
	require.Len(t, deployment.Actions, 2)
	for _, action := range deployment.Actions {
		assert.Equal(t, "deployed", action.Status)
		assert.Equal(t, "Oslo", action.City)
	}
	// greening: 2400 * 1.0 * 1.0; transport: 1800 * 0.4 * 0.5.
	assert.InDelta(t, 2400, deployment.Actions[0].CO2ReductionKgPerYear, 0.001)
	assert.InDelta(t, 360, deployment.Actions[1].CO2ReductionKgPerYear, 0.001)
	assert.InDelta(t, 2760, deployment.TotalCO2ReductionKgPerYear, 0.001)

	var stored Deployment
	require.NoError(t, bank.GetJSON("deployment:oslo", &stored))
	assert.InDelta(t, deployment.TotalAQIImprovementPct, stored.TotalAQIImprovementPct, 0.001)
}

func TestDeployerAgentSkipsUnknownCategories(t *testing.T) {
	agent := NewDeployerAgent("eco-deployer", newTestBank(t, 100), testLogger())

	prediction := Prediction{City: "Oslo", Interventions: []Intervention{
		{Name: "mystery", Category: "terraforming", Priority: "High", Confidence: 90},
		{Name: "trees", Category: "greening", Priority: "High", Confidence: 90},
	}}
	out, err := agent.Run(context.Background(), prediction)
	require.NoError(t, err)
	assert.Len(t, out.(Deployment).Actions, 1, "unknown categories are skipped, not failed")

	// Nothing deployable is a validation failure.
	_, err = agent.Run(context.Background(), Prediction{City: "Oslo", Interventions: []Intervention{
		{Name: "mystery", Category: "terraforming", Priority: "High", Confidence: 90},
	}})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDeployerAgentDefaultsUnknownPriority(t *testing.T) {
	agent := NewDeployerAgent("eco-deployer", newTestBank(t, 100), testLogger())
	out, err := agent.Run(context.Background(), Prediction{City: "Oslo", Interventions: []Intervention{
		{Name: "trees", Category: "greening", Priority: "Urgent", Confidence: 100},
	}})
	require.NoError(t, err)
	// Unknown priority falls back to the Medium multiplier.
	assert.InDelta(t, 2400*0.7, out.(Deployment).Actions[0].CO2ReductionKgPerYear, 0.001)
}
