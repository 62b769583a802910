// Package ecoguardian - coordinator.go
// The workflow coordinator: drives the parallel, sequential, loop and hybrid
// patterns, wiring the registry, bus, bank and evaluator together.

package ecoguardian

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CoordinatorConfig tunes orchestration behaviour. Zero values fall back to
// the defaults below.
type CoordinatorConfig struct {
	// MaxWorkers bounds the parallel fan-out pool.
	MaxWorkers int `yaml:"max_workers"`
	// BranchTimeout converts a hung parallel branch into a reported failure.
	BranchTimeout time.Duration `yaml:"-"`
	// RetryAttempts bounds retries of Unavailable/Timeout capability failures.
	RetryAttempts int `yaml:"retry_attempts"`
	// RetryBackoff is the base delay between retries (linear).
	RetryBackoff time.Duration `yaml:"-"`
	// LoopInterval is the monitor loop's tick period.
	LoopInterval time.Duration `yaml:"-"`
	// MaxIterations bounds the monitor loop even without an external stop.
	MaxIterations int `yaml:"max_iterations"`
	// ScoreThreshold triggers the intervention branch when a reading's
	// environmental score falls below it.
	ScoreThreshold float64 `yaml:"score_threshold"`
	// CompactionReduction is the fraction requested from automatic compaction.
	CompactionReduction float64 `yaml:"compaction_reduction"`
}

func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		MaxWorkers:          4,
		BranchTimeout:       10 * time.Second,
		RetryAttempts:       3,
		RetryBackoff:        500 * time.Millisecond,
		LoopInterval:        2 * time.Second,
		MaxIterations:       10,
		ScoreThreshold:      60,
		CompactionReduction: 0.3,
	}
}

func (c CoordinatorConfig) normalized() CoordinatorConfig {
	def := DefaultCoordinatorConfig()
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = def.MaxWorkers
	}
	if c.BranchTimeout <= 0 {
		c.BranchTimeout = def.BranchTimeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = def.RetryAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.LoopInterval <= 0 {
		c.LoopInterval = def.LoopInterval
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.ScoreThreshold <= 0 {
		c.ScoreThreshold = def.ScoreThreshold
	}
	if c.CompactionReduction <= 0 {
		c.CompactionReduction = def.CompactionReduction
	}
	return c
}

// Coordinator dispatches work to registered agents under the four execution
// patterns. All shared state lives in the bank and the bus; the coordinator
// itself only assembles WorkflowRuns.
type Coordinator struct {
	id       string
	registry *Registry
	bus      *Bus
	bank     *MemoryBank
	eval     *Evaluator
	store    Storage
	sink     Sink
	logger   *slog.Logger
	cfg      CoordinatorConfig
}

func NewCoordinator(registry *Registry, bus *Bus, bank *MemoryBank, eval *Evaluator, cfg CoordinatorConfig, sink Sink, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		id:       "coordinator",
		registry: registry,
		bus:      bus,
		bank:     bank,
		eval:     eval,
		sink:     sinkOrDefault(sink),
		logger:   logger,
		cfg:      cfg.normalized(),
	}
}

// ID returns the coordinator's agent id used in evaluator aggregates.
func (c *Coordinator) ID() string { return c.id }

// SetArchive attaches an optional storage backend; completed runs and their
// message histories are saved there.
func (c *Coordinator) SetArchive(store Storage) { c.store = store }

// RunParallel fans the collector out over the given cities with a bounded
// worker pool and a per-branch timeout. Branch failures are isolated: the
// run completes with the failures listed unless every branch fails.
func (c *Coordinator) RunParallel(ctx context.Context, cities []string) (*WorkflowRun, error) {
	if len(cities) == 0 {
		return nil, &ValidationError{Field: "cities", Reason: "empty"}
	}
	run := c.newRun(PatternParallel)

	branches := c.collectAll(ctx, run, cities)
	successes := c.absorbBranches(run, branches)

	c.rank(run, branches)
	if err := c.ensureCapacity(run); err != nil {
		return run, err
	}
	if successes == 0 {
		run.Error = "all branches failed"
		c.finishRun(run, StatusFailed)
		return run, nil
	}
	c.finishRun(run, StatusCompleted)
	return run, nil
}

// RunSequential executes the collect -> predict -> deploy pipeline for one
// city. A failing stage aborts the pipeline; the run keeps every stage
// completed before it and names the failing one.
func (c *Coordinator) RunSequential(ctx context.Context, city string) (*WorkflowRun, error) {
	if city == "" {
		return nil, &ValidationError{Field: "city", Reason: "empty"}
	}
	run := c.newRun(PatternSequential)

	out, err := c.stage(ctx, run, "collect", KindCollector, city, nil)
	if err != nil {
		return run, c.failRun(run, "collect", err)
	}
	reading := out.(Reading)
	c.publish(run, "collector", "predictor", MsgDataReady, reading)

	out, err = c.stage(ctx, run, "predict", KindPredictor, reading, &reading)
	if err != nil {
		return run, c.failRun(run, "predict", err)
	}
	prediction := out.(Prediction)
	c.publish(run, "predictor", "deployer", MsgPredictionReady, prediction)

	out, err = c.stage(ctx, run, "deploy", KindDeployer, prediction, nil)
	if err != nil {
		return run, c.failRun(run, "deploy", err)
	}
	c.publish(run, "deployer", c.id, MsgDeployComplete, out.(Deployment))

	if err := c.ensureCapacity(run); err != nil {
		return run, err
	}
	c.finishRun(run, StatusCompleted)
	return run, nil
}

// RunLoop monitors one city: collect, compare against the score threshold,
// and run the intervention pipeline when the reading falls below it. The
// loop ends on context cancellation or after MaxIterations ticks, whichever
// comes first; transient tick failures are recorded and monitoring resumes.
func (c *Coordinator) RunLoop(ctx context.Context, city string) (*WorkflowRun, error) {
	if city == "" {
		return nil, &ValidationError{Field: "city", Reason: "empty"}
	}
	run := c.newRun(PatternLoop)

	for i := 1; i <= c.cfg.MaxIterations; i++ {
		if i > 1 {
			select {
			case <-ctx.Done():
				c.stopLoop(run)
				return run, nil
			case <-time.After(c.cfg.LoopInterval):
			}
		}
		run.Iterations = i

		out, err := c.stage(ctx, run, fmt.Sprintf("collect#%d", i), KindCollector, city, nil)
		if err != nil {
			if ctx.Err() != nil {
				c.stopLoop(run)
				return run, nil
			}
			run.BranchFailures = append(run.BranchFailures,
				BranchFailure{Input: fmt.Sprintf("%s#%d", city, i), Reason: err.Error()})
			continue
		}
		reading := out.(Reading)
		c.publish(run, "collector", c.id, MsgReadingUpdate, reading)

		if reading.EnvironmentalScore >= c.cfg.ScoreThreshold {
			continue
		}
		if err := c.intervene(ctx, run, fmt.Sprintf("#%d", i), reading); err != nil {
			if ctx.Err() != nil {
				c.stopLoop(run)
				return run, nil
			}
			run.BranchFailures = append(run.BranchFailures,
				BranchFailure{Input: fmt.Sprintf("%s#%d", city, i), Reason: err.Error()})
		}
	}

	if err := c.ensureCapacity(run); err != nil {
		return run, err
	}
	c.finishRun(run, StatusCompleted)
	return run, nil
}

// RunHybrid composes the patterns: parallel collection over all cities, then
// one sequential intervention pipeline per city scoring below the threshold.
// Every stage transition is published, so the run is reconstructable from
// the bus history alone.
func (c *Coordinator) RunHybrid(ctx context.Context, cities []string) (*WorkflowRun, error) {
	if len(cities) == 0 {
		return nil, &ValidationError{Field: "cities", Reason: "empty"}
	}
	run := c.newRun(PatternHybrid)

	branches := c.collectAll(ctx, run, cities)
	successes := c.absorbBranches(run, branches)
	c.rank(run, branches)

	for _, branch := range branches {
		if branch.err != nil || branch.reading.EnvironmentalScore >= c.cfg.ScoreThreshold {
			continue
		}
		if err := c.intervene(ctx, run, ":"+branch.input, branch.reading); err != nil {
			run.BranchFailures = append(run.BranchFailures,
				BranchFailure{Input: branch.input, Reason: err.Error()})
		}
	}

	if err := c.ensureCapacity(run); err != nil {
		return run, err
	}
	if successes == 0 {
		run.Error = "all branches failed"
		c.finishRun(run, StatusFailed)
		return run, nil
	}
	c.finishRun(run, StatusCompleted)
	return run, nil
}

// intervene runs the predict -> deploy tail of the pipeline for one reading,
// publishing the stage-transition messages.
func (c *Coordinator) intervene(ctx context.Context, run *WorkflowRun, suffix string, reading Reading) error {
	out, err := c.stage(ctx, run, "predict"+suffix, KindPredictor, reading, &reading)
	if err != nil {
		return err
	}
	prediction := out.(Prediction)
	c.publish(run, "predictor", "deployer", MsgPredictionReady, prediction)

	out, err = c.stage(ctx, run, "deploy"+suffix, KindDeployer, prediction, nil)
	if err != nil {
		return err
	}
	c.publish(run, "deployer", c.id, MsgDeployComplete, out.(Deployment))
	return nil
}

type branchResult struct {
	input   string
	reading Reading
	err     error
}

// collectAll fans the collector out over the inputs with a bounded worker
// pool. Results come back in input order; no two branches have any relative
// ordering guarantee while running.
func (c *Coordinator) collectAll(ctx context.Context, run *WorkflowRun, cities []string) []branchResult {
	workers := c.cfg.MaxWorkers
	if workers > len(cities) {
		workers = len(cities)
	}

	jobs := make(chan string)
	results := make(map[string]branchResult, len(cities))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for city := range jobs {
				branchCtx, cancel := context.WithTimeout(ctx, c.cfg.BranchTimeout)
				out, err := c.runAgent(branchCtx, KindCollector, city)
				cancel()

				result := branchResult{input: city, err: err}
				if err == nil {
					result.reading = out.(Reading)
				}
				mu.Lock()
				results[city] = result
				mu.Unlock()
			}
		}()
	}
	for _, city := range cities {
		jobs <- city
	}
	close(jobs)
	wg.Wait()

	ordered := make([]branchResult, 0, len(cities))
	for _, city := range cities {
		ordered = append(ordered, results[city])
	}
	return ordered
}

// absorbBranches turns branch results into stage results, messages and
// failure records. Returns the success count.
func (c *Coordinator) absorbBranches(run *WorkflowRun, branches []branchResult) int {
	collector, _ := c.registry.Get(KindCollector)
	successes := 0
	for _, branch := range branches {
		c.eval.RecordStage(c.id, branch.err == nil)
		if branch.err != nil {
			emit(c.sink, EventWorkflow, run.ID, map[string]any{
				"stage": "collect:" + branch.input,
				"event": "branch_failed",
				"error": branch.err.Error(),
			})
			run.BranchFailures = append(run.BranchFailures,
				BranchFailure{Input: branch.input, Reason: branch.err.Error()})
			c.publish(run, "collector", c.id, MsgBranchFailed,
				map[string]any{"input": branch.input, "reason": branch.err.Error()})
			continue
		}
		successes++
		stage := StageResult{
			Name:        "collect:" + branch.input,
			Input:       branch.input,
			Output:      branch.reading,
			StartedAt:   run.StartedAt,
			CompletedAt: time.Now(),
		}
		if collector != nil {
			stage.AgentID = collector.ID()
			eval := c.eval.EvaluateCollection(collector.ID(), branch.reading)
			stage.Evaluation = &eval
		}
		run.Stages = append(run.Stages, stage)
		c.publish(run, "collector", "predictor", MsgDataReady, branch.reading)
	}
	return successes
}

func (c *Coordinator) rank(run *WorkflowRun, branches []branchResult) {
	for _, branch := range branches {
		if branch.err != nil {
			continue
		}
		run.Rankings = append(run.Rankings, CityRanking{
			City:   branch.reading.City,
			Score:  branch.reading.EnvironmentalScore,
			AQI:    branch.reading.AQI,
			Status: StatusFor(branch.reading.EnvironmentalScore),
		})
	}
	sort.Slice(run.Rankings, func(i, j int) bool {
		if run.Rankings[i].Score != run.Rankings[j].Score {
			return run.Rankings[i].Score > run.Rankings[j].Score
		}
		return run.Rankings[i].City < run.Rankings[j].City
	})
}

// stage runs one agent with retries and records the completed stage with its
// evaluation. The failure event is emitted before the error propagates.
func (c *Coordinator) stage(ctx context.Context, run *WorkflowRun, name string, kind AgentKind, input any, reading *Reading) (any, error) {
	started := time.Now()
	emit(c.sink, EventWorkflow, run.ID, map[string]any{"stage": name, "event": "stage_started"})

	out, err := c.runAgent(ctx, kind, input)
	c.eval.RecordStage(c.id, err == nil)
	if err != nil {
		emit(c.sink, EventWorkflow, run.ID, map[string]any{
			"stage": name,
			"event": "stage_failed",
			"error": err.Error(),
		})
		return nil, err
	}

	agent, _ := c.registry.Get(kind)
	stage := StageResult{
		Name:        name,
		AgentID:     agent.ID(),
		Output:      out,
		StartedAt:   started,
		CompletedAt: time.Now(),
	}
	if input, ok := input.(string); ok {
		stage.Input = input
	}
	switch kind {
	case KindCollector:
		eval := c.eval.EvaluateCollection(agent.ID(), out.(Reading))
		stage.Evaluation = &eval
	case KindPredictor:
		if reading != nil {
			eval := c.eval.EvaluatePrediction(agent.ID(), out.(Prediction), *reading)
			stage.Evaluation = &eval
		}
	case KindDeployer:
		eval := c.eval.EvaluateDeployment(agent.ID(), out.(Deployment))
		stage.Evaluation = &eval
	}
	run.Stages = append(run.Stages, stage)
	emit(c.sink, EventWorkflow, run.ID, map[string]any{"stage": name, "event": "stage_completed"})
	return out, nil
}

// runAgent dispatches to the registered agent for a kind, retrying transient
// capability failures with backoff. Deadline expiry surfaces as ErrTimeout.
func (c *Coordinator) runAgent(ctx context.Context, kind AgentKind, input any) (any, error) {
	agent, err := c.registry.Get(kind)
	if err != nil {
		return nil, err
	}

	policy := RetryPolicy{MaxAttempts: c.cfg.RetryAttempts, Backoff: c.cfg.RetryBackoff}
	var out any
	err = policy.Do(ctx, func() error {
		var runErr error
		out, runErr = agent.Run(ctx, input)
		if runErr != nil && errors.Is(runErr, context.DeadlineExceeded) {
			runErr = fmt.Errorf("agent %s: %w", agent.ID(), ErrTimeout)
		}
		return runErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Coordinator) newRun(pattern WorkflowPattern) *WorkflowRun {
	run := &WorkflowRun{
		ID:        uuid.NewString(),
		Pattern:   pattern,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	emit(c.sink, EventWorkflow, run.ID, map[string]any{
		"event":   "run_started",
		"pattern": string(pattern),
	})
	return run
}

func (c *Coordinator) publish(run *WorkflowRun, sender, receiver string, t MessageType, payload any) {
	msg, err := NewAgentMessage(sender, receiver, t, payload)
	if err != nil {
		c.logger.Error("failed to build message", "type", string(t), "error", err)
		return
	}
	id, err := c.bus.Publish(run.ID, msg)
	if err != nil {
		c.logger.Error("failed to publish message", "type", string(t), "error", err)
		return
	}
	run.MessageIDs = append(run.MessageIDs, id)
}

// ensureCapacity triggers automatic compaction after a run's writes. A
// CapacityExceeded outcome fails the run: the caller must request a larger
// reduction.
func (c *Coordinator) ensureCapacity(run *WorkflowRun) error {
	err := c.bank.EnsureUnderCapacity(c.cfg.CompactionReduction)
	if err == nil {
		return nil
	}
	run.Error = err.Error()
	c.finishRun(run, StatusFailed)
	return err
}

func (c *Coordinator) failRun(run *WorkflowRun, stage string, err error) error {
	run.FailedStage = stage
	run.Error = err.Error()
	c.finishRun(run, StatusFailed)
	return err
}

func (c *Coordinator) stopLoop(run *WorkflowRun) {
	emit(c.sink, EventWorkflow, run.ID, map[string]any{
		"event":     "loop_stopped",
		"iteration": run.Iterations,
	})
	c.finishRun(run, StatusCompleted)
}

func (c *Coordinator) finishRun(run *WorkflowRun, status WorkflowStatus) {
	run.Status = status
	run.CompletedAt = time.Now()
	coordination := c.eval.EvaluateCoordination(c.id)
	run.Coordination = &coordination

	emit(c.sink, EventWorkflow, run.ID, map[string]any{
		"event":    "run_finished",
		"pattern":  string(run.Pattern),
		"status":   string(status),
		"stages":   len(run.Stages),
		"messages": len(run.MessageIDs),
	})

	if c.store != nil {
		if err := c.store.SaveRun(run); err != nil {
			c.logger.Error("failed to archive run", "run_id", run.ID, "error", err)
		}
		if err := c.store.SaveMessages(run.ID, c.bus.History(run.ID)); err != nil {
			c.logger.Error("failed to archive messages", "run_id", run.ID, "error", err)
		}
	}
}
