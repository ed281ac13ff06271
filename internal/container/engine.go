// Package container запускает worker'ы pipeline в изолированной среде.
//
// Engine — абстракция над runtime: одноразовые stage-worker'ы
// (RunOnce) и долгоживущий inference worker (StartService). Две
// реализации:
//   - DockerEngine — docker CLI, как в docker-compose окружении;
//   - ProcessEngine — локальные процессы, для разработки без docker.
package container

import (
	"context"
	"errors"

	"github.com/shaiso/mlpipe/internal/domain"
)

// Ошибки engine.
var (
	// ErrStartFailed — worker не удалось запустить (нет бинаря, нет команды).
	ErrStartFailed = errors.New("worker start failed")

	// ErrUnknownImage — для образа не настроена команда (process backend).
	ErrUnknownImage = errors.New("unknown worker image")
)

// StateUp — префикс состояния запущенного worker'а.
const StateUp = "Up"

// ProcessSpec — одноразовый worker: запускается, отрабатывает, удаляется.
type ProcessSpec struct {
	// Name — имя экземпляра. Пустое — сгенерировать.
	Name    string
	Image   string
	Volumes []domain.VolumeMount
	Env     map[string]string
}

// ProcessResult — итог одноразового worker'а.
type ProcessResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ServiceSpec — долгоживущий worker.
type ServiceSpec struct {
	Name    string
	Image   string
	Network string
	Volumes []domain.VolumeMount
	Env     map[string]string

	// Ports — публикуемые порты: порт хоста -> порт worker'а.
	Ports map[int]int
}

// Engine — среда выполнения worker'ов.
type Engine interface {
	// RunOnce запускает worker и ждёт завершения. error возвращается
	// только если worker не стартовал или ctx отменён; ненулевой код
	// завершения — это ProcessResult.ExitCode.
	RunOnce(ctx context.Context, spec ProcessSpec) (ProcessResult, error)

	// StartService запускает долгоживущий worker в фоне.
	StartService(ctx context.Context, spec ServiceSpec) error

	// Remove останавливает и удаляет worker. Отсутствие worker'а — не ошибка.
	Remove(ctx context.Context, name string) error

	// State возвращает строку состояния worker'а ("Up 5 seconds")
	// или пустую строку, если он не запущен.
	State(ctx context.Context, name string) (string, error)

	// ListNetworks возвращает сети, имя которых содержит filter.
	ListNetworks(ctx context.Context, filter string) ([]string, error)

	// Ping проверяет доступность runtime.
	Ping(ctx context.Context) error

	// Describe возвращает человекочитаемую команду запуска для журнала.
	Describe(spec ProcessSpec) string
}
