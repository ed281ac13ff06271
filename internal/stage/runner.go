// Package stage выполняет один шаг pipeline в изолированном worker'е
// и проверяет, что шаг оставил ожидаемый артефакт.
//
// Успех stage = exit 0 И артефакт существует. Код завершения сам по
// себе ничего не доказывает: worker может выйти с 0, не записав файл.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/mlpipe/internal/container"
	"github.com/shaiso/mlpipe/internal/domain"
	"github.com/shaiso/mlpipe/internal/telemetry"
)

// Runner запускает stage через container.Engine.
type Runner struct {
	engine container.Engine
	logger *slog.Logger
	now    func() time.Time
}

// New создаёт Runner.
func New(engine container.Engine, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
}

// Describe возвращает команду запуска stage для журнала.
func (r *Runner) Describe(spec domain.StageSpec) string {
	return r.engine.Describe(processSpec(spec))
}

// Run выполняет stage.
//
// Ошибка возвращается только когда worker не удалось запустить;
// таймаут, ненулевой код и отсутствие артефакта отражаются в
// StageResult, а StageResult.Err() даёт типизированную причину.
func (r *Runner) Run(ctx context.Context, spec domain.StageSpec) (domain.StageResult, error) {
	logger := telemetry.WithStage(telemetry.LoggerOr(ctx, r.logger), spec.Name)

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	start := r.now()
	logger.Info("stage started", "image", spec.Image, "timeout", spec.Timeout)

	res, err := r.engine.RunOnce(runCtx, processSpec(spec))
	result := domain.StageResult{
		Stage:    spec.Name,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: r.now().Sub(start),
		Artifact: spec.ArtifactPath,
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			result.TimedOut = true
			r.observe(result, telemetry.OutcomeTimeout)
			logger.Warn("stage timed out", "duration", result.Duration)
			return result, nil
		}
		r.observe(result, telemetry.OutcomeStartFailed)
		logger.Error("stage failed to start", "error", err)
		return result, fmt.Errorf("stage %s: %w", spec.Name, err)
	}

	if res.ExitCode != 0 {
		r.observe(result, telemetry.OutcomeExitCode)
		logger.Warn("stage exited with non-zero code", "exit_code", res.ExitCode, "duration", result.Duration)
		return result, nil
	}

	exists := spec.ArtifactExists
	if exists == nil {
		exists = domain.FileExists
	}
	if spec.ArtifactPath != "" && !exists(spec.ArtifactPath) {
		result.ArtifactMissing = true
		r.observe(result, telemetry.OutcomeMissingArtifact)
		logger.Warn("stage exited cleanly but artifact is missing", "artifact", spec.ArtifactPath)
		return result, nil
	}

	result.Success = true
	r.observe(result, telemetry.OutcomeSuccess)
	logger.Info("stage completed", "duration", result.Duration)
	return result, nil
}

func (r *Runner) observe(result domain.StageResult, outcome string) {
	telemetry.StageDuration.WithLabelValues(result.Stage, outcome).Observe(result.Duration.Seconds())
}

func processSpec(spec domain.StageSpec) container.ProcessSpec {
	return container.ProcessSpec{
		Name:    containerName(spec.Name),
		Image:   spec.Image,
		Volumes: spec.Volumes,
		Env:     spec.Env,
	}
}

// containerName — префикс имени одноразового worker'а. Пустое имя stage
// оставляет выбор имени engine'у.
func containerName(stage string) string {
	if stage == "" {
		return ""
	}
	return fmt.Sprintf("mlpipe-%s-%d", stage, time.Now().UnixNano())
}
