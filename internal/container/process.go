package container

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sort"
	"strings"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/shaiso/mlpipe/internal/domain"
)

// DataPathEnv — переменная, через которую process-worker получает data root.
// В docker-режиме её роль играет volume, смонтированный в /data.
const DataPathEnv = "DATA_PATH"

// PortEnv — порт, который должен слушать долгоживущий process-worker.
const PortEnv = "PORT"

// ProcessEngine запускает worker'ы локальными процессами.
//
// Образ сопоставляется с argv через commands. Сетей нет, ListNetworks
// возвращает пустой список, и resolver уходит на default.
type ProcessEngine struct {
	commands map[string][]string
	runner   commandRunner
	services cmap.ConcurrentMap[string, *service]
	logger   *slog.Logger
}

type service struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// NewProcessEngine создаёт engine. commands: образ -> argv.
func NewProcessEngine(commands map[string][]string, logger *slog.Logger) *ProcessEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessEngine{
		commands: commands,
		runner:   &execRunner{},
		services: cmap.New[*service](),
		logger:   logger,
	}
}

func (e *ProcessEngine) argv(image string) ([]string, error) {
	argv, ok := e.commands[image]
	if !ok || len(argv) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownImage, image)
	}
	return argv, nil
}

// processEnv собирает окружение worker'а: spec.Env и data root из первого volume.
func processEnv(volumes []domain.VolumeMount, env map[string]string) []string {
	out := make([]string, 0, len(env)+1)
	if len(volumes) > 0 {
		out = append(out, DataPathEnv+"="+volumes[0].HostPath)
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// RunOnce запускает процесс и ждёт завершения.
func (e *ProcessEngine) RunOnce(ctx context.Context, spec ProcessSpec) (ProcessResult, error) {
	argv, err := e.argv(spec.Image)
	if err != nil {
		return ProcessResult{ExitCode: -1}, fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	res, err := e.runner.Run(ctx, command{
		Name: argv[0],
		Args: argv[1:],
		Env:  processEnv(spec.Volumes, spec.Env),
	})
	result := ProcessResult{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, fmt.Errorf("%w: %s: %v", ErrStartFailed, spec.Image, err)
	}
	return result, nil
}

// StartService запускает процесс в фоне. Процесс живёт до Remove или Close.
func (e *ProcessEngine) StartService(_ context.Context, spec ServiceSpec) error {
	argv, err := e.argv(spec.Image)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	env := processEnv(spec.Volumes, spec.Env)
	if port, ok := servicePort(spec.Ports); ok {
		env = append(env, PortEnv+"="+strconv.Itoa(port))
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), env...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStartFailed, spec.Name, err)
	}

	svc := &service{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		close(svc.done)
		e.logger.Info("service process exited", "container", spec.Name, "error", err)
	}()

	e.services.Set(spec.Name, svc)
	e.logger.Info("service process started", "container", spec.Name, "pid", cmd.Process.Pid)
	return nil
}

// Remove убивает процесс сервиса и ждёт его завершения.
func (e *ProcessEngine) Remove(ctx context.Context, name string) error {
	svc, ok := e.services.Pop(name)
	if !ok {
		return nil
	}
	select {
	case <-svc.done:
		return nil
	default:
	}

	if err := svc.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill service %s: %w", name, err)
	}
	select {
	case <-svc.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State возвращает "Up ..." для живого процесса.
func (e *ProcessEngine) State(_ context.Context, name string) (string, error) {
	svc, ok := e.services.Get(name)
	if !ok {
		return "", nil
	}
	select {
	case <-svc.done:
		return "", nil
	default:
		return fmt.Sprintf("%s (pid %d)", StateUp, svc.cmd.Process.Pid), nil
	}
}

// ListNetworks — у локальных процессов сетей нет.
func (e *ProcessEngine) ListNetworks(context.Context, string) ([]string, error) {
	return nil, nil
}

// Ping всегда успешен: локальный runtime доступен, пока жив процесс.
func (e *ProcessEngine) Ping(context.Context) error {
	return nil
}

// Describe возвращает argv процесса.
func (e *ProcessEngine) Describe(spec ProcessSpec) string {
	argv, err := e.argv(spec.Image)
	if err != nil {
		return spec.Image
	}
	return strings.Join(argv, " ")
}

// Close останавливает все сервисы.
func (e *ProcessEngine) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()

	for _, name := range e.services.Keys() {
		if err := e.Remove(ctx, name); err != nil {
			e.logger.Warn("failed to stop service process", "container", name, "error", err)
		}
	}
}

// servicePort возвращает порт worker'а с наименьшим портом хоста.
func servicePort(ports map[int]int) (int, bool) {
	best, found := 0, false
	for hp := range ports {
		if !found || hp < best {
			best, found = hp, true
		}
	}
	return ports[best], found
}
