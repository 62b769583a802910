package predict

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoguardian/ecoguardian"
)

func TestRulePredictsAtLeastFiveInterventions(t *testing.T) {
	rule := NewRule()
	pred, err := rule.Predict(context.Background(), ecoguardian.Reading{City: "Oslo"})
	require.NoError(t, err)

	assert.Equal(t, "Oslo", pred.City)
	assert.Len(t, pred.Interventions, 5)
	for _, iv := range pred.Interventions {
		assert.NotEmpty(t, iv.Name)
		assert.NotEmpty(t, iv.Description)
		assert.NotEmpty(t, iv.ExpectedImpact)
		assert.NotEmpty(t, iv.Priority)
		assert.Greater(t, iv.Confidence, 0.0)
	}
}

func TestRuleAddressesEveryIssue(t *testing.T) {
	rule := NewRule()
	reading := ecoguardian.Reading{
		City: "Oslo",
		Issues: []string{
			ecoguardian.IssueAirQuality,
			ecoguardian.IssueTemperature,
			ecoguardian.IssueStagnantAir,
		},
	}
	pred, err := rule.Predict(context.Background(), reading)
	require.NoError(t, err)

	categories := make(map[string]bool)
	for _, iv := range pred.Interventions {
		categories[iv.Category] = true
	}
	for _, issue := range reading.Issues {
		assert.True(t, categories[issue], "issue %s must be addressed", issue)
	}
	assert.GreaterOrEqual(t, len(pred.Interventions), 5)
}

func TestRuleIsDeterministic(t *testing.T) {
	rule := NewRule()
	reading := ecoguardian.Reading{City: "Oslo", Issues: []string{ecoguardian.IssueHumidity}}

	first, err := rule.Predict(context.Background(), reading)
	require.NoError(t, err)
	second, err := rule.Predict(context.Background(), reading)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

type cannedPredictor struct {
	prediction ecoguardian.Prediction
	err        error
	calls      int
}

func (p *cannedPredictor) Predict(ctx context.Context, reading ecoguardian.Reading) (ecoguardian.Prediction, error) {
	p.calls++
	return p.prediction, p.err
}

func TestFallbackUsesSecondaryOnPrimaryFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	primary := &cannedPredictor{err: ecoguardian.ErrUnavailable}
	fb := NewFallback(primary, NewRule(), logger)

	pred, err := fb.Predict(context.Background(), ecoguardian.Reading{City: "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, "rule-engine", pred.Model)
	assert.Equal(t, 1, primary.calls)
}

func TestFallbackPrefersPrimary(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	primary := &cannedPredictor{prediction: ecoguardian.Prediction{Model: "primary"}}
	fb := NewFallback(primary, NewRule(), logger)

	pred, err := fb.Predict(context.Background(), ecoguardian.Reading{City: "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, "primary", pred.Model)
}

func TestFallbackDoesNotMaskCancellation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	primary := &cannedPredictor{err: context.Canceled}
	fb := NewFallback(primary, NewRule(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fb.Predict(ctx, ecoguardian.Reading{City: "Oslo"})
	assert.Error(t, err)
}
