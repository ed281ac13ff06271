package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"

	"github.com/shaiso/mlpipe/internal/config"
	"github.com/shaiso/mlpipe/internal/domain"
	"github.com/shaiso/mlpipe/internal/telemetry"
)

// Имена stage'ей в журнале и метриках.
const (
	stageConversion = "conversion"
	stageCleaning   = "cleaning"
	stageTraining   = "training"
)

// DatasetFileEnv — параметр cleaning worker'а с именем входного CSV.
const DatasetFileEnv = "DATASET_FILE"

// execute — тело фонового run. Ничего не пробрасывает наружу: любая
// ошибка и panic становятся error фазы.
func (o *Orchestrator) execute(state *RunState) {
	logger := telemetry.WithRunID(o.logger, state.RunID().String())
	defer o.finish(state, logger)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline run panicked", "panic", r, "stack", string(debug.Stack()))
			o.fault(state, r, logger)
		}
	}()

	logger.Info("pipeline run started", "filename", state.Filename())

	err := o.runPipeline(telemetry.WithLogger(o.runCtx, logger), state)
	switch {
	case err == nil:
	case errors.Is(err, errHalted):
		logger.Warn("pipeline run halted", "reason", err)
		state.Fail()
	default:
		o.fault(state, err, logger)
	}
}

func (o *Orchestrator) runPipeline(ctx context.Context, state *RunState) error {
	if err := o.prepareInput(ctx, state); err != nil {
		return err
	}
	if err := o.clean(ctx, state); err != nil {
		return err
	}
	if err := o.train(ctx, state); err != nil {
		return err
	}
	return o.startInference(ctx, state)
}

// prepareInput переименовывает upload в каноническое имя и при
// необходимости конвертирует Excel в CSV.
func (o *Orchestrator) prepareInput(ctx context.Context, state *RunState) error {
	name := state.Filename()
	canonical := canonicalName(name)

	if !isExcel(name) {
		if err := o.rename(name, canonical); err != nil {
			return err
		}
		return o.update(domain.PhaseConversion, domain.PhaseStatusCompleted, "CSV upload, conversion not required")
	}

	if err := state.Advance(StateConverting); err != nil {
		return err
	}
	if err := o.update(domain.PhaseConversion, domain.PhaseStatusRunning, "converting Excel to CSV"); err != nil {
		return err
	}

	if err := o.rename(name, canonical); err != nil {
		return err
	}

	artifact := o.cfg.RawPath(config.CanonicalCSV)
	if err := removeStale(artifact); err != nil {
		return err
	}

	err := o.runStage(ctx, domain.PhaseConversion, domain.StageSpec{
		Name:         stageConversion,
		Image:        o.cfg.Images.Converter,
		Volumes:      o.volumes(),
		Timeout:      o.cfg.Timeouts.Conversion,
		ArtifactPath: artifact,
	})
	if err != nil {
		return err
	}
	return o.update(domain.PhaseConversion, domain.PhaseStatusCompleted, "Excel converted to CSV")
}

func (o *Orchestrator) clean(ctx context.Context, state *RunState) error {
	if err := state.Advance(StateCleaning); err != nil {
		return err
	}
	if err := o.update(domain.PhaseCleaning, domain.PhaseStatusRunning, "cleaning and transforming data"); err != nil {
		return err
	}

	if !domain.FileExists(o.cfg.RawPath(config.CanonicalCSV)) {
		return o.failPhase(domain.PhaseCleaning, fmt.Errorf("input %s not found", config.CanonicalCSV))
	}
	if err := o.cfg.EnsureDirs(); err != nil {
		return err
	}

	artifact := o.cfg.ProcessedPath(config.CleanedCSV)
	if err := removeStale(artifact); err != nil {
		return err
	}

	err := o.runStage(ctx, domain.PhaseCleaning, domain.StageSpec{
		Name:         stageCleaning,
		Image:        o.cfg.Images.Cleaning,
		Volumes:      o.volumes(),
		Env:          map[string]string{DatasetFileEnv: config.CanonicalCSV},
		Timeout:      o.cfg.Timeouts.Cleaning,
		ArtifactPath: artifact,
	})
	if err != nil {
		return err
	}
	return o.update(domain.PhaseCleaning, domain.PhaseStatusCompleted, "data cleaned and transformed")
}

func (o *Orchestrator) train(ctx context.Context, state *RunState) error {
	if err := state.Advance(StateTraining); err != nil {
		return err
	}
	if err := o.update(domain.PhaseTraining, domain.PhaseStatusRunning, "training model"); err != nil {
		return err
	}
	if err := o.cfg.EnsureDirs(); err != nil {
		return err
	}

	artifact := o.cfg.ModelPath(config.ModelFile)
	if err := removeStale(artifact); err != nil {
		return err
	}

	err := o.runStage(ctx, domain.PhaseTraining, domain.StageSpec{
		Name:         stageTraining,
		Image:        o.cfg.Images.Training,
		Volumes:      o.volumes(),
		Timeout:      o.cfg.Timeouts.Training,
		ArtifactPath: artifact,
	})
	if err != nil {
		return err
	}
	return o.update(domain.PhaseTraining, domain.PhaseStatusCompleted, "model trained")
}

// runStage запускает stage и записывает его вывод в журнал. Неуспех
// записывается в фазу и возвращается как errHalted.
func (o *Orchestrator) runStage(ctx context.Context, phase domain.Phase, spec domain.StageSpec) error {
	o.tracker.Logf(domain.LogLevelInfo, "running command: %s", o.stages.Describe(spec))

	res, err := o.stages.Run(ctx, spec)
	if err != nil {
		return o.failPhase(phase, err)
	}

	if out := strings.TrimSpace(res.Stdout); out != "" {
		o.tracker.Logf(domain.LogLevelInfo, "%s output: %s", spec.Name, out)
	}
	if res.Success {
		return nil
	}

	if errOut := strings.TrimSpace(res.Stderr); errOut != "" {
		o.tracker.Logf(domain.LogLevelError, "%s error: %s", spec.Name, errOut)
	}

	cause := res.Err()
	if res.TimedOut {
		cause = fmt.Errorf("%w after %s", cause, spec.Timeout)
	}
	return o.failPhase(phase, cause)
}

func (o *Orchestrator) volumes() []domain.VolumeMount {
	host, worker := o.cfg.DataVolume()
	return []domain.VolumeMount{{HostPath: host, ContainerPath: worker}}
}

// update — Update tracker'а. Отказ tracker'а здесь означает ошибку
// в самом оркестраторе.
func (o *Orchestrator) update(phase domain.Phase, status domain.PhaseStatus, message string) error {
	if err := o.tracker.Update(phase, status, message); err != nil {
		return fmt.Errorf("update %s to %s: %w", phase, status, err)
	}
	return nil
}

// failPhase переводит фазу в error и возвращает errHalted.
func (o *Orchestrator) failPhase(phase domain.Phase, cause error) error {
	if err := o.update(phase, domain.PhaseStatusError, cause.Error()); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s: %w", errHalted, phase, cause)
}

// fault записывает непредвиденную ошибку в первую незавершённую фазу.
func (o *Orchestrator) fault(state *RunState, cause any, logger *slog.Logger) {
	state.Fail()

	phase, ok := o.openPhase()
	f := &domain.OrchestrationFault{Phase: phase, Cause: cause}
	logger.Error("orchestration fault", "phase", phase, "error", f.Error())

	if ok && o.tracker.Update(phase, domain.PhaseStatusError, f.Error()) == nil {
		return
	}
	o.tracker.Log(domain.LogLevelError, f.Error())
}

// openPhase возвращает первую фазу, которая ещё не завершена.
func (o *Orchestrator) openPhase() (domain.Phase, bool) {
	status := o.tracker.Snapshot()
	for _, p := range domain.Phases {
		if !status.Phases[p].Status.IsTerminal() {
			return p, true
		}
	}
	return domain.PhaseIdle, false
}

// finish фиксирует итог run, пишет историю и освобождает run token.
func (o *Orchestrator) finish(state *RunState, logger *slog.Logger) {
	defer o.release(state)

	run := state.Finish(o.tracker.Snapshot())
	telemetry.RunsTotal.WithLabelValues(string(run.Status)).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := o.history.Update(ctx, &run); err != nil {
		logger.Warn("failed to update run history", "error", err)
	}

	logger.Info("pipeline run finished",
		"status", run.Status,
		"failed_phase", run.FailedPhase,
		"duration", run.Duration(),
	)
}

// rename приводит upload в raw/ к каноническому имени.
func (o *Orchestrator) rename(name, canonical string) error {
	if err := canonicalize(o.cfg.RawPath(name), o.cfg.RawPath(canonical)); err != nil {
		return o.failPhase(domain.PhaseConversion, fmt.Errorf("rename %s to %s: %w", name, canonical, err))
	}
	if name != canonical {
		o.tracker.Logf(domain.LogLevelInfo, "renamed %s to %s", name, canonical)
	}
	return nil
}

// canonicalize переименовывает src в dst, заменяя устаревший dst.
func canonicalize(src, dst string) error {
	if src == dst {
		if !domain.FileExists(src) {
			return fmt.Errorf("%s: %w", src, os.ErrNotExist)
		}
		return nil
	}
	if _, err := os.Stat(src); err != nil {
		return err
	}
	if err := removeStale(dst); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

// removeStale удаляет артефакт прошлого run, чтобы проверка артефакта
// относилась к текущему запуску.
func removeStale(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale %s: %w", path, err)
	}
	return nil
}
