package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/shaiso/mlpipe/internal/config"
	"github.com/shaiso/mlpipe/internal/container"
	"github.com/shaiso/mlpipe/internal/domain"
	"github.com/shaiso/mlpipe/internal/mq"
	"github.com/shaiso/mlpipe/internal/network"
	"github.com/shaiso/mlpipe/internal/repo"
	"github.com/shaiso/mlpipe/internal/stage"
	"github.com/shaiso/mlpipe/internal/telemetry"
	"github.com/shaiso/mlpipe/internal/tracker"
)

// historyTimeout — лимит на запись в историю после завершения run.
const historyTimeout = 5 * time.Second

// Prober — readiness probe inference worker'а.
type Prober interface {
	Probe(ctx context.Context) error
	URL() string
}

// RunStore — история запусков. Реализации: repo.RunRepo, repo.MemoryRunRepo.
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	Update(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, limit int) ([]domain.Run, error)
}

// Orchestrator ведёт запуски pipeline.
type Orchestrator struct {
	cfg      *config.Config
	tracker  *tracker.Tracker
	engine   container.Engine
	stages   *stage.Runner
	resolver *network.Resolver
	prober   Prober
	history  RunStore

	// MQ, опционально
	conn     *mq.Connection
	consumer *mq.Consumer

	// pool — один worker: run выполняется под надзором, не голой горутиной.
	pool *ants.Pool

	// active — run token. Не nil, пока выполняется run или очистка.
	active atomic.Pointer[RunState]

	// runCtx — контекст фоновых runs, отменяется в Stop.
	runCtx    context.Context
	cancelRun context.CancelFunc

	sleep func(ctx context.Context, d time.Duration) error

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — зависимости Orchestrator.
type Config struct {
	Settings *config.Config
	Tracker  *tracker.Tracker
	Engine   container.Engine
	Prober   Prober

	// History — nil означает in-memory историю.
	History RunStore

	// Conn — nil отключает очередь trigger'ов.
	Conn *mq.Connection

	Logger *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Settings == nil || cfg.Tracker == nil || cfg.Engine == nil || cfg.Prober == nil {
		return nil, errors.New("orchestrator: settings, tracker, engine and prober are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	history := cfg.History
	if history == nil {
		history = repo.NewMemoryRunRepo(0)
	}

	pool, err := ants.NewPool(1,
		// Submit ждёт, пока worker освободится после предыдущего run:
		// run token уже гарантирует, что ждать придётся мгновения.
		ants.WithMaxBlockingTasks(1),
		ants.WithPanicHandler(func(p any) {
			logger.Error("panic escaped pipeline run", "panic", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create run pool: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(context.Background())

	s := cfg.Settings
	return &Orchestrator{
		cfg:       s,
		tracker:   cfg.Tracker,
		engine:    cfg.Engine,
		stages:    stage.New(cfg.Engine, logger),
		resolver:  network.New(cfg.Engine, cfg.Tracker, s.NetworkFilter, s.NetworkDefault, logger),
		prober:    cfg.Prober,
		history:   history,
		conn:      cfg.Conn,
		pool:      pool,
		runCtx:    runCtx,
		cancelRun: cancelRun,
		sleep:     sleepContext,
		logger:    logger,
	}, nil
}

// Start запускает consumer очереди trigger'ов, если настроен RabbitMQ.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.conn == nil {
		o.logger.Info("orchestrator started, trigger queue disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.consumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueRunsTrigger),
		Handler:  o.handleRunTrigger,
		Types:    []mq.MessageType{mq.MessageTypeRunTrigger},
		Prefetch: 1,
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("trigger consumer error", "error", err)
		}
	}()

	o.logger.Info("orchestrator started", "queue", mq.QueueRunsTrigger)
	return nil
}

// Stop останавливает consumer и прерывает активный run.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.consumer != nil {
		o.consumer.Stop()
	}

	o.cancelRun()
	if err := o.pool.ReleaseTimeout(o.cfg.Timeouts.ShutdownWait); err != nil {
		o.logger.Warn("pipeline run did not finish before shutdown", "error", err)
	}

	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// Submit сохраняет загруженный файл в raw/ и запускает run в фоне.
//
// Возвращается сразу после постановки run. Ошибки: *domain.ValidationError
// для неподходящего файла, ErrRunAlreadyActive при активном run.
func (o *Orchestrator) Submit(ctx context.Context, filename string, src io.Reader) (*domain.Run, error) {
	name, err := ValidateUpload(filename)
	if err != nil {
		return nil, err
	}

	state, err := o.acquire(name)
	if err != nil {
		return nil, err
	}

	o.tracker.Reset()
	if err := o.saveUpload(name, src); err != nil {
		o.release(state)
		return nil, fmt.Errorf("save upload: %w", err)
	}

	return o.launch(ctx, state, fmt.Sprintf("file %s uploaded", name))
}

// SubmitExisting запускает run для файла, уже лежащего в raw/
// (trigger из очереди или CLI на той же машине).
func (o *Orchestrator) SubmitExisting(ctx context.Context, filename string) (*domain.Run, error) {
	name, err := ValidateUpload(filename)
	if err != nil {
		return nil, err
	}
	if !domain.FileExists(o.cfg.RawPath(name)) {
		return nil, &domain.ValidationError{Field: "filename", Reason: name + " not found in raw directory"}
	}

	state, err := o.acquire(name)
	if err != nil {
		return nil, err
	}

	o.tracker.Reset()
	return o.launch(ctx, state, fmt.Sprintf("file %s queued", name))
}

// acquire берёт run token.
func (o *Orchestrator) acquire(name string) (*RunState, error) {
	if o.IsStopped() {
		return nil, ErrOrchestratorStopped
	}

	state := NewRunState(domain.NewRun(name))
	if !o.active.CompareAndSwap(nil, state) {
		telemetry.RunsRejected.Inc()
		o.logger.Warn("pipeline trigger rejected, run already active", "filename", name)
		return nil, ErrRunAlreadyActive
	}
	return state, nil
}

func (o *Orchestrator) release(state *RunState) {
	o.active.CompareAndSwap(state, nil)
}

// launch отмечает upload и отдаёт run пулу.
func (o *Orchestrator) launch(ctx context.Context, state *RunState, message string) (*domain.Run, error) {
	logger := telemetry.WithRunID(o.logger, state.RunID().String())

	if err := o.tracker.Update(domain.PhaseUpload, domain.PhaseStatusCompleted, message); err != nil {
		o.release(state)
		return nil, fmt.Errorf("mark upload: %w", err)
	}
	if err := state.Advance(StateUploaded); err != nil {
		o.release(state)
		return nil, err
	}

	run := state.RunCopy()
	if err := o.history.Create(ctx, &run); err != nil {
		logger.Warn("failed to record run in history", "error", err)
	}

	if err := o.pool.Submit(func() { o.execute(state) }); err != nil {
		state.Fail()
		o.release(state)
		return nil, fmt.Errorf("%w: %v", ErrOrchestratorStopped, err)
	}

	logger.Info("pipeline run scheduled", "filename", run.Filename)
	return &run, nil
}

// saveUpload пишет файл через временный файл, чтобы в raw/ не оказалось
// частично записанного upload.
func (o *Orchestrator) saveUpload(name string, src io.Reader) error {
	if err := o.cfg.EnsureDirs(); err != nil {
		return err
	}

	dir := o.cfg.Path(config.DirRaw)
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close upload: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

// Clear останавливает inference worker, удаляет файлы данных и сбрасывает
// статус. Во время run запрещён.
func (o *Orchestrator) Clear(ctx context.Context) error {
	token := NewRunState(&domain.Run{})
	if !o.active.CompareAndSwap(nil, token) {
		return ErrRunAlreadyActive
	}
	defer o.release(token)

	if err := o.engine.Remove(ctx, o.cfg.InferenceContainer); err != nil {
		o.logger.Warn("failed to remove inference worker", "container", o.cfg.InferenceContainer, "error", err)
	}

	var errs []error
	removed := 0
	for _, d := range config.DataDirs {
		dir := o.cfg.Path(d)
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", d, err))
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				errs = append(errs, err)
				continue
			}
			removed++
		}
	}

	o.tracker.Reset()
	o.logger.Info("pipeline data cleared", "files_removed", removed)
	return errors.Join(errs...)
}

// Active возвращает выполняющийся run.
func (o *Orchestrator) Active() (*domain.Run, bool) {
	state := o.active.Load()
	if state == nil || state.RunID() == uuid.Nil {
		return nil, false
	}
	run := state.RunCopy()
	return &run, true
}

// Runs возвращает последние runs.
func (o *Orchestrator) Runs(ctx context.Context, limit int) ([]domain.Run, error) {
	return o.history.List(ctx, limit)
}

// Run возвращает run по ID.
func (o *Orchestrator) Run(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	run, err := o.history.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
