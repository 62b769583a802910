package ecoguardian

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	return NewEvaluator(DefaultEvaluatorConfig(), NewRecordingSink(), testLogger())
}

func testInterventions(n int, confidence float64, category string) []Intervention {
	ivs := make([]Intervention, n)
	for i := range ivs {
		ivs[i] = Intervention{
			Name:           fmt.Sprintf("intervention-%d", i),
			Description:    "description",
			Category:       category,
			ExpectedImpact: "impact",
			Timeline:       "3-6 months",
			Priority:       "High",
			Confidence:     confidence,
		}
	}
	return ivs
}

func TestEvaluatePredictionFullMarks(t *testing.T) {
	eval := newTestEvaluator(t)
	reading := Reading{City: "Oslo", Issues: []string{IssueAirQuality}}
	pred := Prediction{City: "Oslo", Interventions: testInterventions(5, 70, IssueAirQuality)}

	result := eval.EvaluatePrediction("eco-predictor", pred, reading)

	assert.Equal(t, true, result.Criteria["completeness"])
	assert.Equal(t, true, result.Criteria["coverage"])
	assert.Equal(t, true, result.Criteria["confidence"])
	assert.InDelta(t, 70, result.Criteria["average_confidence"], 0.001)
	assert.InDelta(t, 1.0, result.Criteria["relevance"], 0.001)
	assert.InDelta(t, 100, result.QualityScore, 0.001)
	assert.True(t, result.Passed)
	assert.Empty(t, result.Issues)
}

func TestEvaluatePredictionFlagsShortfalls(t *testing.T) {
	eval := newTestEvaluator(t)
	reading := Reading{City: "Oslo", Issues: []string{IssueAirQuality, IssueHumidity}}

	// Three interventions, low confidence, one of two issues addressed.
	pred := Prediction{City: "Oslo", Interventions: testInterventions(3, 40, IssueAirQuality)}
	result := eval.EvaluatePrediction("eco-predictor", pred, reading)

	assert.Equal(t, false, result.Criteria["completeness"])
	assert.Equal(t, true, result.Criteria["coverage"])
	assert.Equal(t, false, result.Criteria["confidence"])
	assert.InDelta(t, 0.5, result.Criteria["relevance"], 0.001)
	// coverage (0.25) + relevance (0.5 * 0.25), normalised to 100.
	assert.InDelta(t, 37.5, result.QualityScore, 0.001)
	assert.False(t, result.Passed)
	assert.Len(t, result.Issues, 3)
}

func TestEvaluatePredictionMissingFields(t *testing.T) {
	eval := newTestEvaluator(t)
	ivs := testInterventions(5, 80, "greening")
	ivs[2].ExpectedImpact = ""
	result := eval.EvaluatePrediction("eco-predictor",
		Prediction{City: "Oslo", Interventions: ivs}, Reading{City: "Oslo"})

	assert.Equal(t, false, result.Criteria["coverage"])
	assert.Contains(t, result.Issues, "interventions missing required fields")
}

func TestRelevanceWithoutIssues(t *testing.T) {
	pred := Prediction{Interventions: testInterventions(5, 70, "greening")}
	assert.Equal(t, 1.0, relevanceScore(pred, Reading{City: "Oslo"}),
		"no issues means nothing to address")
}

func TestEvaluateCollection(t *testing.T) {
	eval := newTestEvaluator(t)

	good := eval.EvaluateCollection("eco-collector", Reading{City: "Oslo", EnvironmentalScore: 85})
	assert.InDelta(t, 100, good.QualityScore, 0.001)
	assert.True(t, good.Passed)

	bad := eval.EvaluateCollection("eco-collector", Reading{EnvironmentalScore: 120})
	assert.InDelta(t, 0, bad.QualityScore, 0.001)
	assert.False(t, bad.Passed)
}

func TestEvaluateDeploymentTracksCumulativeRate(t *testing.T) {
	eval := newTestEvaluator(t)
	deployed := Deployment{City: "Oslo", Actions: []DeployedAction{{Status: "deployed"}}}
	failed := Deployment{City: "Oslo"}

	first := eval.EvaluateDeployment("eco-deployer", deployed)
	assert.InDelta(t, 100, first.QualityScore, 0.001)

	second := eval.EvaluateDeployment("eco-deployer", failed)
	assert.InDelta(t, 50, second.QualityScore, 0.001)

	third := eval.EvaluateDeployment("eco-deployer", deployed)
	assert.InDelta(t, 100.0/1.5, third.QualityScore, 0.001)
	assert.InDelta(t, 2.0/3.0, eval.DeploymentRate("eco-deployer"), 0.001)
}

func TestEvaluateCoordination(t *testing.T) {
	eval := newTestEvaluator(t)
	eval.RecordStage("coordinator", true)
	eval.RecordStage("coordinator", true)
	eval.RecordStage("coordinator", false)
	eval.RecordStage("coordinator", true)

	result := eval.EvaluateCoordination("coordinator")
	assert.Equal(t, 4, result.Criteria["stages_attempted"])
	assert.Equal(t, 3, result.Criteria["stages_completed"])
	assert.InDelta(t, 75, result.QualityScore, 0.001)
	assert.True(t, result.Passed)
}

func TestReportAggregatesAcrossRuns(t *testing.T) {
	eval := newTestEvaluator(t)
	reading := Reading{City: "Oslo", Issues: []string{IssueAirQuality}}

	eval.EvaluatePrediction("eco-predictor",
		Prediction{Interventions: testInterventions(5, 70, IssueAirQuality)}, reading)
	eval.EvaluatePrediction("eco-predictor",
		Prediction{Interventions: testInterventions(2, 70, IssueAirQuality)}, reading)

	report := eval.Report("eco-predictor")
	assert.Equal(t, 2, report.Evaluations)
	assert.InDelta(t, 100, report.MaxScore, 0.001)
	assert.InDelta(t, 75, report.MinScore, 0.001)
	assert.InDelta(t, 87.5, report.MeanScore, 0.001)
	assert.InDelta(t, 1.0, report.PassRate, 0.001)

	// Aggregates survive until an explicit reset.
	eval.Reset("eco-predictor")
	assert.Equal(t, 0, eval.Report("eco-predictor").Evaluations)
}

func TestEvaluationResultCarriesTimestamp(t *testing.T) {
	eval := newTestEvaluator(t)
	before := time.Now()
	result := eval.EvaluateCollection("eco-collector", Reading{City: "Oslo", EnvironmentalScore: 50})
	require.False(t, result.Timestamp.Before(before))
	assert.Equal(t, KindCollector, result.Kind)
}
