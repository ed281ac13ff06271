package container

import (
	"context"
	"errors"
	"os/exec"

	"github.com/valyala/bytebufferpool"
)

// command — одна внешняя команда.
type command struct {
	Name string
	Args []string

	// Env — дополнительные переменные в формате KEY=VALUE.
	Env []string
}

// commandResult — вывод и код завершения команды.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner абстрагирует запуск процессов для тестов.
type commandRunner interface {
	Run(ctx context.Context, cmd command) (commandResult, error)
}

// execRunner запускает команды через os/exec.
type execRunner struct {
	// baseEnv — окружение, к которому добавляется command.Env. Nil — окружение процесса.
	baseEnv []string
}

// Run выполняет команду и возвращает stdout/stderr и код завершения.
//
// Ненулевой код завершения не является ошибкой: error возвращается,
// если процесс не стартовал или ctx отменён.
func (r *execRunner) Run(ctx context.Context, c command) (commandResult, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(append(cmd.Environ(), r.baseEnv...), c.Env...)
	}

	stdout := bytebufferpool.Get()
	stderr := bytebufferpool.Get()
	defer bytebufferpool.Put(stdout)
	defer bytebufferpool.Put(stderr)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	result := commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		return result, nil
	}

	result.ExitCode = -1
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, err
}
