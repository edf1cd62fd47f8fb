package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is implemented by component-level checkers (store, model
// provider, embedder).
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// ServiceHealthChecker folds component checkers into one service health
// flag. The service starts unhealthy until the first evaluation passes.
type ServiceHealthChecker struct {
	healthy atomic.Bool
	deps    []HealthChecker
	log     zerolog.Logger
}

func NewServiceHealthChecker(log zerolog.Logger, deps ...HealthChecker) *ServiceHealthChecker {
	return &ServiceHealthChecker{deps: deps, log: log}
}

// IsHealthy returns the cached service health.
func (h *ServiceHealthChecker) IsHealthy() bool { return h.healthy.Load() }

// failing returns the names of dependencies currently reporting unhealthy.
func (h *ServiceHealthChecker) failing() []string {
	var down []string
	for _, c := range h.deps {
		if !c.IsHealthy() {
			down = append(down, c.Name())
		}
	}
	return down
}

// Start re-evaluates dependency health on the given interval until ctx is
// done, logging each transition with the checkers that caused it.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		down := h.failing()
		was := h.healthy.Swap(len(down) == 0)
		switch {
		case was && len(down) > 0:
			h.log.Error().Strs("failing", down).Msg("service health degraded")
		case !was && len(down) == 0:
			h.log.Info().Msg("service healthy")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
