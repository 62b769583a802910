package predict

import (
	"context"
	"log/slog"

	"github.com/ecoguardian/ecoguardian"
)

// Fallback tries the primary predictor and falls back to the secondary when
// the primary fails for any reason. Pairing the model client with the rule
// engine keeps predictions flowing while the model is unreachable.
type Fallback struct {
	primary   ecoguardian.Predictor
	secondary ecoguardian.Predictor
	logger    *slog.Logger
}

func NewFallback(primary, secondary ecoguardian.Predictor, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) Predict(ctx context.Context, reading ecoguardian.Reading) (ecoguardian.Prediction, error) {
	prediction, err := f.primary.Predict(ctx, reading)
	if err == nil {
		return prediction, nil
	}
	if ctx.Err() != nil {
		return ecoguardian.Prediction{}, err
	}
	f.logger.Warn("primary predictor failed, using fallback",
		"city", reading.City, "error", err)
	return f.secondary.Predict(ctx, reading)
}
