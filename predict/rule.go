package predict

import (
	"context"

	"github.com/ecoguardian/ecoguardian"
)

// Rule is a deterministic Predictor that needs no external service. It
// tailors one intervention to every detected issue and pads the plan from a
// fixed catalogue so the result always carries at least five interventions.
type Rule struct{}

func NewRule() *Rule { return &Rule{} }

var issueResponses = map[string]ecoguardian.Intervention{
	ecoguardian.IssueAirQuality: {
		Name:           "Low Emission Zone",
		Description:    "Restrict high-emission vehicles in the city center",
		Category:       ecoguardian.IssueAirQuality,
		ExpectedImpact: "15-25% reduction in traffic-related PM2.5",
		Timeline:       "3-6 months",
		Priority:       "High",
		Confidence:     85,
	},
	ecoguardian.IssueTemperature: {
		Name:           "Cool Roof Program",
		Description:    "Reflective roofing and shade canopies in heat-stressed districts",
		Category:       ecoguardian.IssueTemperature,
		ExpectedImpact: "2-4 degree reduction in surface temperature",
		Timeline:       "6-12 months",
		Priority:       "Medium",
		Confidence:     75,
	},
	ecoguardian.IssueHumidity: {
		Name:           "Drainage Upgrade",
		Description:    "Improve storm water drainage to limit damp and mold conditions",
		Category:       ecoguardian.IssueHumidity,
		ExpectedImpact: "Reduced humidity-related health incidents",
		Timeline:       "6-12 months",
		Priority:       "Medium",
		Confidence:     70,
	},
	ecoguardian.IssueStagnantAir: {
		Name:           "Ventilation Corridors",
		Description:    "Preserve and open urban wind corridors to disperse pollutants",
		Category:       ecoguardian.IssueStagnantAir,
		ExpectedImpact: "Improved pollutant dispersion on low-wind days",
		Timeline:       "12-24 months",
		Priority:       "Medium",
		Confidence:     65,
	},
}

// catalogue is the baseline plan used to pad every prediction to at least
// five interventions.
var catalogue = []ecoguardian.Intervention{
	{
		Name:           "Urban Tree Planting",
		Description:    "Plant native trees along major corridors and in parks",
		Category:       "greening",
		ExpectedImpact: "2400 kg CO2 absorbed per year per 100 trees",
		Timeline:       "1-3 months",
		Priority:       "High",
		Confidence:     90,
	},
	{
		Name:           "Public Transit Incentives",
		Description:    "Discounted fares and expanded bus lanes to cut car trips",
		Category:       "transport",
		ExpectedImpact: "5-10% reduction in commuter vehicle traffic",
		Timeline:       "3-6 months",
		Priority:       "High",
		Confidence:     80,
	},
	{
		Name:           "Industrial Emission Audit",
		Description:    "Audit and retrofit the highest-emitting industrial sites",
		Category:       "industry",
		ExpectedImpact: "10% reduction in industrial emissions",
		Timeline:       "6-12 months",
		Priority:       "Medium",
		Confidence:     70,
	},
	{
		Name:           "Rooftop Solar Program",
		Description:    "Subsidize rooftop solar on municipal and residential buildings",
		Category:       "energy",
		ExpectedImpact: "2000 kg CO2 offset per installation per year",
		Timeline:       "6-12 months",
		Priority:       "Medium",
		Confidence:     75,
	},
	{
		Name:           "Air Quality Sensor Network",
		Description:    "Deploy street-level sensors for block-by-block monitoring",
		Category:       "monitoring",
		ExpectedImpact: "Real-time visibility into pollution hotspots",
		Timeline:       "1-3 months",
		Priority:       "Low",
		Confidence:     95,
	},
}

const minInterventions = 5

// Predict builds the plan: issue-specific interventions first, then catalogue
// entries until the minimum count is met. Same reading, same plan.
func (r *Rule) Predict(ctx context.Context, reading ecoguardian.Reading) (ecoguardian.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return ecoguardian.Prediction{}, err
	}

	var interventions []ecoguardian.Intervention
	for _, issue := range reading.Issues {
		if iv, ok := issueResponses[issue]; ok {
			interventions = append(interventions, iv)
		}
	}
	for _, iv := range catalogue {
		if len(interventions) >= minInterventions {
			break
		}
		interventions = append(interventions, iv)
	}

	return ecoguardian.Prediction{
		City:          reading.City,
		Interventions: interventions,
		Model:         "rule-engine",
	}, nil
}
