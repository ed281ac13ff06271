package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaiso/mlpipe/internal/container"
	"github.com/shaiso/mlpipe/internal/domain"
)

// startInference пересоздаёт inference worker и проверяет его готовность.
func (o *Orchestrator) startInference(ctx context.Context, state *RunState) error {
	if err := state.Advance(StateStartingInference); err != nil {
		return err
	}
	if err := o.update(domain.PhaseInference, domain.PhaseStatusRunning, "starting inference service"); err != nil {
		return err
	}

	name := o.cfg.InferenceContainer
	if err := o.engine.Remove(ctx, name); err != nil {
		// Конфликт имени проявится ниже, в StartService.
		o.logger.Warn("failed to remove previous inference worker", "container", name, "error", err)
	}

	netName := o.resolver.Resolve(ctx)
	port := o.cfg.InferencePort

	err := o.engine.StartService(ctx, container.ServiceSpec{
		Name:    name,
		Image:   o.cfg.Images.Inference,
		Network: netName,
		Volumes: o.volumes(),
		Ports:   map[int]int{port: port},
	})
	if err != nil {
		return o.failPhase(domain.PhaseInference, fmt.Errorf("start inference service: %w", err))
	}
	o.tracker.Logf(domain.LogLevelInfo, "inference service %s started on network %s", name, netName)

	if err := o.sleep(ctx, o.cfg.Timeouts.SettleDelay); err != nil {
		return o.failPhase(domain.PhaseInference, err)
	}

	message, err := o.checkReadiness(ctx)
	if err != nil {
		return o.failPhase(domain.PhaseInference, err)
	}
	if err := o.update(domain.PhaseInference, domain.PhaseStatusCompleted, message); err != nil {
		return err
	}
	return state.Advance(StateReady)
}

// checkReadiness — probe, при неудаче fallback на состояние worker'а.
func (o *Orchestrator) checkReadiness(ctx context.Context) (string, error) {
	port := o.cfg.InferencePort

	probeErr := o.prober.Probe(ctx)
	if probeErr == nil {
		return fmt.Sprintf("inference service running on port %d", port), nil
	}

	o.tracker.Logf(domain.LogLevelWarning, "inference probe failed: %v", probeErr)
	unavailable := &domain.ServiceUnavailableError{URL: o.prober.URL(), Err: probeErr}
	if !o.cfg.ProbeFallback {
		return "", unavailable
	}

	state, err := o.engine.State(ctx, o.cfg.InferenceContainer)
	if err != nil {
		o.logger.Warn("failed to read inference worker state", "error", err)
		return "", unavailable
	}
	if !strings.HasPrefix(state, container.StateUp) {
		return "", unavailable
	}

	o.tracker.Logf(domain.LogLevelInfo, "inference worker state: %s", state)
	return fmt.Sprintf("inference service starting on port %d", port), nil
}
