// Package ecoguardian - agent.go
// The closed set of agent capabilities and the registry the coordinator
// dispatches through.

package ecoguardian

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// AgentKind is the declared capability of an agent.
type AgentKind string

const (
	KindCollector   AgentKind = "collector"
	KindPredictor   AgentKind = "predictor"
	KindDeployer    AgentKind = "deployer"
	KindCoordinator AgentKind = "coordinator"
)

// Agent is an independently invokable unit of work. Run takes the typed input
// for its kind (a city name for collectors, a Reading for predictors, a
// Prediction for deployers) and returns the produced artifact.
type Agent interface {
	ID() string
	Kind() AgentKind
	Run(ctx context.Context, input any) (any, error)
}

// AgentInfo is a status snapshot for a registered agent.
type AgentInfo struct {
	ID   string    `json:"id"`
	Kind AgentKind `json:"kind"`
}

// Registry maps each capability kind to its implementation. One agent per
// kind; the coordinator never dispatches by reflection.
type Registry struct {
	mu     sync.RWMutex
	agents map[AgentKind]Agent
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		agents: make(map[AgentKind]Agent),
		logger: logger,
	}
}

// Register adds an agent. Registering a kind twice is an error.
func (r *Registry) Register(agent Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[agent.Kind()]; exists {
		return fmt.Errorf("agent kind %q already registered", agent.Kind())
	}
	r.agents[agent.Kind()] = agent
	r.logger.Info("agent registered", "agent_id", agent.ID(), "kind", string(agent.Kind()))
	return nil
}

// Get returns the agent for a kind, or ErrNotFound.
func (r *Registry) Get(kind AgentKind) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[kind]
	if !ok {
		return nil, fmt.Errorf("agent kind %q: %w", kind, ErrNotFound)
	}
	return agent, nil
}

// List returns registered agents sorted by kind.
func (r *Registry) List() []AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]AgentInfo, 0, len(r.agents))
	for _, agent := range r.agents {
		infos = append(infos, AgentInfo{ID: agent.ID(), Kind: agent.Kind()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Kind < infos[j].Kind })
	return infos
}
