// Package ecoguardian - evaluator.go
// Post-hoc scoring of agent artifacts with per-agent running aggregates.

package ecoguardian

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// EvaluatorConfig holds the documented scoring knobs. Weights are normalised
// by their sum, so identical input always yields the same score under a
// given configuration.
type EvaluatorConfig struct {
	// MinInterventions is the completeness bar for predictor artifacts.
	MinInterventions int `yaml:"min_interventions"`
	// ConfidenceThreshold is the minimum acceptable average confidence.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// PassScore is the quality score at or above which a result passes.
	PassScore float64 `yaml:"pass_score"`

	CompletenessWeight float64 `yaml:"completeness_weight"`
	CoverageWeight     float64 `yaml:"coverage_weight"`
	ConfidenceWeight   float64 `yaml:"confidence_weight"`
	RelevanceWeight    float64 `yaml:"relevance_weight"`
}

func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		MinInterventions:    5,
		ConfidenceThreshold: 60,
		PassScore:           70,
		CompletenessWeight:  0.25,
		CoverageWeight:      0.25,
		ConfidenceWeight:    0.25,
		RelevanceWeight:     0.25,
	}
}

// EvaluationResult records one scoring pass over an agent artifact.
type EvaluationResult struct {
	AgentID      string         `json:"agent_id"`
	Kind         AgentKind      `json:"kind"`
	Criteria     map[string]any `json:"criteria"`
	QualityScore float64        `json:"quality_score"`
	Passed       bool           `json:"passed"`
	Issues       []string       `json:"issues,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// AgentReport aggregates every evaluation recorded for one agent id.
type AgentReport struct {
	AgentID     string  `json:"agent_id"`
	Evaluations int     `json:"evaluations"`
	MeanScore   float64 `json:"mean_score"`
	MinScore    float64 `json:"min_score"`
	MaxScore    float64 `json:"max_score"`
	PassRate    float64 `json:"pass_rate"`
}

type scoreStats struct {
	count  int
	total  float64
	min    float64
	max    float64
	passes int
}

func (s *scoreStats) record(score float64, passed bool) {
	if s.count == 0 || score < s.min {
		s.min = score
	}
	if s.count == 0 || score > s.max {
		s.max = score
	}
	s.count++
	s.total += score
	if passed {
		s.passes++
	}
}

type ratioStats struct {
	attempts  int
	successes int
}

func (r *ratioStats) rate() float64 {
	if r.attempts == 0 {
		return 0
	}
	return float64(r.successes) / float64(r.attempts)
}

// Evaluator scores agent output and keeps process-wide aggregates keyed by
// agent id. Aggregates never reset implicitly; only Reset clears them.
type Evaluator struct {
	mu     sync.Mutex
	cfg    EvaluatorConfig
	sink   Sink
	logger *slog.Logger

	scores    map[string]*scoreStats
	deployers map[string]*ratioStats
	stages    map[string]*ratioStats
}

func NewEvaluator(cfg EvaluatorConfig, sink Sink, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		cfg:       cfg,
		sink:      sinkOrDefault(sink),
		logger:    logger,
		scores:    make(map[string]*scoreStats),
		deployers: make(map[string]*ratioStats),
		stages:    make(map[string]*ratioStats),
	}
}

// EvaluatePrediction scores a predictor artifact against the reading it was
// produced for. Criteria: completeness (at least MinInterventions
// recommendations), coverage (every recommendation carries name, description,
// expected impact and priority), confidence (average >= threshold) and
// relevance (fraction of the reading's issue categories addressed by at
// least one recommendation of a matching category; full when the reading has
// no issues).
func (e *Evaluator) EvaluatePrediction(agentID string, pred Prediction, reading Reading) EvaluationResult {
	var issues []string

	completeness := len(pred.Interventions) >= e.cfg.MinInterventions
	if !completeness {
		issues = append(issues, fmt.Sprintf("only %d interventions provided (expected %d)",
			len(pred.Interventions), e.cfg.MinInterventions))
	}

	coverage := len(pred.Interventions) > 0
	for _, iv := range pred.Interventions {
		if iv.Name == "" || iv.Description == "" || iv.ExpectedImpact == "" || iv.Priority == "" {
			coverage = false
			issues = append(issues, "interventions missing required fields")
			break
		}
	}

	avg := pred.AverageConfidence
	if avg == 0 {
		avg = averageConfidence(pred.Interventions)
	}
	confidence := avg >= e.cfg.ConfidenceThreshold
	if !confidence {
		issues = append(issues, "low confidence scores indicate uncertain predictions")
	}

	relevance := relevanceScore(pred, reading)
	if relevance < 1 {
		issues = append(issues, "recommendations do not address every detected issue")
	}

	weightSum := e.cfg.CompletenessWeight + e.cfg.CoverageWeight +
		e.cfg.ConfidenceWeight + e.cfg.RelevanceWeight
	score := 0.0
	if weightSum > 0 {
		score = (boolWeight(completeness)*e.cfg.CompletenessWeight +
			boolWeight(coverage)*e.cfg.CoverageWeight +
			boolWeight(confidence)*e.cfg.ConfidenceWeight +
			relevance*e.cfg.RelevanceWeight) / weightSum * 100
	}

	result := EvaluationResult{
		AgentID: agentID,
		Kind:    KindPredictor,
		Criteria: map[string]any{
			"completeness":       completeness,
			"coverage":           coverage,
			"confidence":         confidence,
			"average_confidence": avg,
			"relevance":          relevance,
		},
		QualityScore: score,
		Passed:       score >= e.cfg.PassScore,
		Issues:       issues,
		Timestamp:    time.Now(),
	}
	e.recordScore(agentID, result)
	return result
}

// relevanceScore is the documented heuristic for the source's abstract
// "assess relevance against city data": the fraction of the reading's issue
// categories covered by at least one intervention whose category matches
// (case-insensitive). No issues means nothing to address, so full relevance.
func relevanceScore(pred Prediction, reading Reading) float64 {
	if len(reading.Issues) == 0 {
		return 1
	}
	covered := 0
	for _, issue := range reading.Issues {
		for _, iv := range pred.Interventions {
			if strings.EqualFold(iv.Category, issue) {
				covered++
				break
			}
		}
	}
	return float64(covered) / float64(len(reading.Issues))
}

// EvaluateCollection scores a collector artifact: the reading must name its
// city and carry an in-range environmental score.
func (e *Evaluator) EvaluateCollection(agentID string, reading Reading) EvaluationResult {
	hasCity := reading.City != ""
	inRange := reading.EnvironmentalScore >= 0 && reading.EnvironmentalScore <= 100

	score := 0.0
	if hasCity {
		score += 50
	}
	if inRange {
		score += 50
	}
	result := EvaluationResult{
		AgentID: agentID,
		Kind:    KindCollector,
		Criteria: map[string]any{
			"has_city":       hasCity,
			"score_in_range": inRange,
		},
		QualityScore: score,
		Passed:       score >= e.cfg.PassScore,
		Timestamp:    time.Now(),
	}
	e.recordScore(agentID, result)
	return result
}

// EvaluateDeployment updates the deployer's cumulative success rate in O(1)
// and returns the evaluation for this attempt.
func (e *Evaluator) EvaluateDeployment(agentID string, dep Deployment) EvaluationResult {
	success := len(dep.Actions) > 0
	for _, action := range dep.Actions {
		if action.Status != "deployed" {
			success = false
			break
		}
	}

	e.mu.Lock()
	stats, ok := e.deployers[agentID]
	if !ok {
		stats = &ratioStats{}
		e.deployers[agentID] = stats
	}
	stats.attempts++
	if success {
		stats.successes++
	}
	rate := stats.rate()
	e.mu.Unlock()

	result := EvaluationResult{
		AgentID: agentID,
		Kind:    KindDeployer,
		Criteria: map[string]any{
			"success":      success,
			"success_rate": rate,
		},
		QualityScore: rate * 100,
		Passed:       rate*100 >= e.cfg.PassScore,
		Timestamp:    time.Now(),
	}
	e.recordScore(agentID, result)
	return result
}

// RecordStage tracks a coordinator's stage outcome.
func (e *Evaluator) RecordStage(agentID string, completed bool) {
	e.mu.Lock()
	stats, ok := e.stages[agentID]
	if !ok {
		stats = &ratioStats{}
		e.stages[agentID] = stats
	}
	stats.attempts++
	if completed {
		stats.successes++
	}
	e.mu.Unlock()
}

// EvaluateCoordination returns the coordinator's orchestration performance:
// stages completed without failure over stages attempted.
func (e *Evaluator) EvaluateCoordination(agentID string) EvaluationResult {
	e.mu.Lock()
	stats, ok := e.stages[agentID]
	attempted, completed, rate := 0, 0, 0.0
	if ok {
		attempted = stats.attempts
		completed = stats.successes
		rate = stats.rate()
	}
	e.mu.Unlock()

	result := EvaluationResult{
		AgentID: agentID,
		Kind:    KindCoordinator,
		Criteria: map[string]any{
			"stages_attempted": attempted,
			"stages_completed": completed,
			"success_rate":     rate,
		},
		QualityScore: rate * 100,
		Passed:       rate*100 >= e.cfg.PassScore,
		Timestamp:    time.Now(),
	}
	e.recordScore(agentID, result)
	return result
}

// Report summarises all evaluations recorded for an agent id.
func (e *Evaluator) Report(agentID string) AgentReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats, ok := e.scores[agentID]
	if !ok || stats.count == 0 {
		return AgentReport{AgentID: agentID}
	}
	return AgentReport{
		AgentID:     agentID,
		Evaluations: stats.count,
		MeanScore:   stats.total / float64(stats.count),
		MinScore:    stats.min,
		MaxScore:    stats.max,
		PassRate:    float64(stats.passes) / float64(stats.count),
	}
}

// DeploymentRate returns the deployer's cumulative success rate.
func (e *Evaluator) DeploymentRate(agentID string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats, ok := e.deployers[agentID]
	if !ok {
		return 0
	}
	return stats.rate()
}

// Reset clears every aggregate for an agent id. Aggregates are never cleared
// any other way.
func (e *Evaluator) Reset(agentID string) {
	e.mu.Lock()
	delete(e.scores, agentID)
	delete(e.deployers, agentID)
	delete(e.stages, agentID)
	e.mu.Unlock()
	e.logger.Info("evaluator aggregates reset", "agent_id", agentID)
}

func (e *Evaluator) recordScore(agentID string, result EvaluationResult) {
	e.mu.Lock()
	stats, ok := e.scores[agentID]
	if !ok {
		stats = &scoreStats{}
		e.scores[agentID] = stats
	}
	stats.record(result.QualityScore, result.Passed)
	e.mu.Unlock()

	emit(e.sink, EventEvaluation, agentID, map[string]any{
		"kind":          string(result.Kind),
		"quality_score": result.QualityScore,
		"passed":        result.Passed,
	})
}

func boolWeight(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
