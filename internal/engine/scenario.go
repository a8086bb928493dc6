package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/edgeview/internal/events"
	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/internal/scenario"
	"github.com/signalsfoundry/edgeview/internal/state"
	"github.com/signalsfoundry/edgeview/model"
)

// TriggerScenario records sc as the active scenario and schedules the
// response decision ScenarioDelay later. It returns once the trigger has
// been applied on the loop.
func (e *Engine) TriggerScenario(ctx context.Context, sc model.Scenario) (scenario.Ack, error) {
	if sc.ID == "" && sc.Name == "" {
		return scenario.Ack{Message: "scenario id is required"}, fmt.Errorf("%w: empty scenario", scenario.ErrUnknownScenario)
	}
	detached := context.WithoutCancel(ctx)

	var (
		ack      scenario.Ack
		applyErr error
	)
	err := e.call(ctx, func() {
		start := time.Now()
		if applyErr = e.store.ApplyScenarioTrigger(sc); applyErr != nil {
			e.observe(KindScenarioTrigger, string(state.OutcomeRejected), time.Since(start))
			return
		}
		e.observe(KindScenarioTrigger, string(state.OutcomeApplied), time.Since(start))
		if data, err := json.Marshal(sc); err == nil {
			e.publish(KindScenarioTrigger, state.OutcomeApplied, data)
		}

		if _, applyErr = e.tasks.After(e.cfg.ScenarioDelay, func(now time.Time) {
			e.respondToScenario(detached, sc, now)
		}); applyErr != nil {
			return
		}

		ack = scenario.Ack{
			Success:           true,
			Message:           fmt.Sprintf("Scenario %s triggered successfully", scenarioLabel(sc)),
			EstimatedDuration: 30 + e.rng.IntN(30),
		}
	})
	if err == nil {
		err = applyErr
	}
	if err != nil {
		if errors.Is(err, state.ErrDisposed) {
			err = ErrClosed
		}
		return scenario.Ack{Message: err.Error()}, err
	}

	e.log.Info(ctx, "scenario triggered",
		logging.String("scenario_id", sc.ID),
		logging.String("scenario_name", sc.Name),
		logging.Int("estimated_duration_s", ack.EstimatedDuration),
	)
	return ack, nil
}

// respondToScenario runs on the timer goroutine and hands the synthesized
// decision to the loop.
func (e *Engine) respondToScenario(ctx context.Context, sc model.Scenario, now time.Time) {
	label := displayName(sc)
	target := sc.Description
	if target == "" {
		target = label
	}
	decision := model.Decision{
		ID:          e.newID(),
		Timestamp:   now,
		Action:      "Responding to " + label,
		Description: "Optimizing network for " + target,
		Impact:      "Latency reduced by 18%",
	}
	if err := e.post(func() { e.apply(ctx, events.DecisionLogged{Decision: decision}) }); err != nil {
		e.log.Debug(ctx, "scenario response dropped", logging.String("scenario_id", sc.ID), logging.Err(err))
	}
}

func scenarioLabel(sc model.Scenario) string {
	if sc.ID != "" {
		return sc.ID
	}
	return sc.Name
}

// displayName prefers the scenario's name and falls back to its id.
func displayName(sc model.Scenario) string {
	if sc.Name != "" {
		return sc.Name
	}
	return sc.ID
}
