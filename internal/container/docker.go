package container

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/mlpipe/internal/domain"
)

const killTimeout = 10 * time.Second

// DockerEngine запускает worker'ы через docker CLI.
type DockerEngine struct {
	binary string
	runner commandRunner
	logger *slog.Logger
}

// NewDockerEngine создаёт engine. binary — путь к docker CLI, пустой — "docker".
func NewDockerEngine(binary string, logger *slog.Logger) *DockerEngine {
	if binary == "" {
		binary = "docker"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DockerEngine{
		binary: binary,
		runner: &execRunner{},
		logger: logger,
	}
}

// RunOnce выполняет `docker run --rm`.
//
// При отмене ctx клиент docker завершается, но контейнер продолжил бы
// работу, поэтому контейнер явно убивается по имени.
func (e *DockerEngine) RunOnce(ctx context.Context, spec ProcessSpec) (ProcessResult, error) {
	name := spec.Name
	if name == "" {
		name = "mlpipe-" + uuid.NewString()[:8]
	}

	args := []string{"run", "--rm", "--name", name}
	args = append(args, volumeArgs(spec.Volumes)...)
	args = append(args, envArgs(spec.Env)...)
	args = append(args, spec.Image)

	e.logger.Debug("docker run", "container", name, "args", strings.Join(args, " "))

	res, err := e.runner.Run(ctx, command{Name: e.binary, Args: args})
	result := ProcessResult{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	if err != nil {
		if ctx.Err() != nil {
			e.kill(name)
			return result, ctx.Err()
		}
		return result, fmt.Errorf("%w: %s: %v", ErrStartFailed, spec.Image, err)
	}
	return result, nil
}

// kill останавливает контейнер после отмены ctx. Ошибки только логируются.
func (e *DockerEngine) kill(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()

	res, err := e.runner.Run(ctx, command{Name: e.binary, Args: []string{"kill", name}})
	if err != nil || (res.ExitCode != 0 && !isNoSuchContainer(res.Stderr)) {
		e.logger.Warn("failed to kill container",
			"container", name,
			"exit_code", res.ExitCode,
			"stderr", strings.TrimSpace(res.Stderr),
			"error", err,
		)
	}
}

// StartService выполняет `docker run -d`.
func (e *DockerEngine) StartService(ctx context.Context, spec ServiceSpec) error {
	args := []string{"run", "-d", "--name", spec.Name}
	if spec.Network != "" {
		args = append(args, "--network", spec.Network)
	}
	args = append(args, volumeArgs(spec.Volumes)...)
	args = append(args, envArgs(spec.Env)...)

	hostPorts := make([]int, 0, len(spec.Ports))
	for hp := range spec.Ports {
		hostPorts = append(hostPorts, hp)
	}
	sort.Ints(hostPorts)
	for _, hp := range hostPorts {
		args = append(args, "-p", fmt.Sprintf("%d:%d", hp, spec.Ports[hp]))
	}
	args = append(args, spec.Image)

	res, err := e.runner.Run(ctx, command{Name: e.binary, Args: args})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStartFailed, spec.Name, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: %s: exit code %d: %s",
			ErrStartFailed, spec.Name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Remove выполняет `docker rm -f`.
func (e *DockerEngine) Remove(ctx context.Context, name string) error {
	res, err := e.runner.Run(ctx, command{Name: e.binary, Args: []string{"rm", "-f", name}})
	if err != nil {
		return fmt.Errorf("remove container %s: %w", name, err)
	}
	if res.ExitCode != 0 && !isNoSuchContainer(res.Stderr) {
		return fmt.Errorf("remove container %s: exit code %d: %s",
			name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// State выполняет `docker ps --filter name=^name$ --format {{.Status}}`.
func (e *DockerEngine) State(ctx context.Context, name string) (string, error) {
	res, err := e.runner.Run(ctx, command{Name: e.binary, Args: []string{
		"ps", "--filter", "name=^" + name + "$", "--format", "{{.Status}}",
	}})
	if err != nil {
		return "", fmt.Errorf("inspect container %s: %w", name, err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("inspect container %s: exit code %d: %s",
			name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	lines := splitLines(res.Stdout)
	if len(lines) == 0 {
		return "", nil
	}
	return lines[0], nil
}

// ListNetworks выполняет `docker network ls --filter name=filter`.
func (e *DockerEngine) ListNetworks(ctx context.Context, filter string) ([]string, error) {
	args := []string{"network", "ls", "--format", "{{.Name}}"}
	if filter != "" {
		args = append(args, "--filter", "name="+filter)
	}
	res, err := e.runner.Run(ctx, command{Name: e.binary, Args: args})
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("list networks: exit code %d: %s",
			res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return splitLines(res.Stdout), nil
}

// Ping проверяет, что docker daemon отвечает.
func (e *DockerEngine) Ping(ctx context.Context) error {
	res, err := e.runner.Run(ctx, command{Name: e.binary, Args: []string{
		"version", "--format", "{{.Server.Version}}",
	}})
	if err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("docker ping: exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func volumeArgs(volumes []domain.VolumeMount) []string {
	args := make([]string, 0, len(volumes)*2)
	for _, v := range volumes {
		args = append(args, "-v", v.HostPath+":"+v.ContainerPath)
	}
	return args
}

// envArgs возвращает -e флаги в стабильном порядке.
func envArgs(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, "-e", k+"="+env[k])
	}
	return args
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func isNoSuchContainer(stderr string) bool {
	return strings.Contains(stderr, "No such container")
}

// Describe возвращает строку команды для журнала pipeline.
func (e *DockerEngine) Describe(spec ProcessSpec) string {
	parts := []string{e.binary, "run", "--rm"}
	parts = append(parts, volumeArgs(spec.Volumes)...)
	parts = append(parts, envArgs(spec.Env)...)
	parts = append(parts, spec.Image)
	return strings.Join(parts, " ")
}
