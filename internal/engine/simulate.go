package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/edgeview/internal/events"
	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/model"
)

// flipProbability is the chance per update tick that a random node changes
// status.
const flipProbability = 0.2

var simulatedStatuses = []model.Health{model.HealthOptimal, model.HealthWarning, model.HealthCritical}

func (e *Engine) onUpdateTick(time.Time) {
	if err := e.post(e.simulateStep); err != nil {
		e.log.Debug(context.Background(), "simulated update dropped", logging.Err(err))
	}
}

// simulateStep runs on the loop goroutine. It appends one random metric
// sample and sometimes degrades a node, which recovers RecoveryDelay later.
func (e *Engine) simulateStep() {
	ctx := context.Background()
	kinds := model.MetricKinds()
	kind := kinds[e.rng.IntN(len(kinds))]
	lo, hi := model.NominalRange(kind)
	e.apply(ctx, events.MetricUpdate{
		Metric: kind,
		Sample: model.Sample{Timestamp: e.clock.Now(), Value: lo + e.rng.Float64()*(hi-lo)},
	})

	if e.rng.Float64() >= flipProbability {
		return
	}
	status := simulatedStatuses[e.rng.IntN(len(simulatedStatuses))]
	nodes := e.store.Nodes()
	if len(nodes) == 0 {
		return
	}
	idx := e.rng.IntN(len(nodes))
	node := nodes[idx]
	e.apply(ctx, events.StatusUpdate(node.ID, status))
	if status == model.HealthOptimal {
		return
	}

	if _, err := e.tasks.After(e.cfg.RecoveryDelay, func(now time.Time) {
		decision := model.Decision{
			ID:          e.newID(),
			Timestamp:   now,
			Action:      fmt.Sprintf("Optimizing Node %d", idx+1),
			Description: fmt.Sprintf("Responding to %s status", status),
			Impact:      "Performance improved by 25%",
		}
		_ = e.post(func() {
			e.apply(ctx, events.DecisionLogged{Decision: decision})
			e.apply(ctx, events.StatusUpdate(node.ID, model.HealthOptimal))
		})
	}); err != nil {
		e.log.Debug(ctx, "recovery not scheduled", logging.String("node_id", node.ID), logging.Err(err))
	}
}
