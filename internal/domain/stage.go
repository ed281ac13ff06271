package domain

import (
	"os"
	"time"
)

// VolumeMount — привязка каталога хоста к каталогу внутри worker'а.
type VolumeMount struct {
	HostPath      string
	ContainerPath string
}

// StageSpec — описание запуска одного stage.
type StageSpec struct {
	// Name — имя stage (conversion, cleaning, training).
	Name string

	// Image — идентификатор образа worker'а.
	Image string

	// Volumes — привязки каталогов.
	Volumes []VolumeMount

	// Env — переменные окружения worker'а.
	Env map[string]string

	// Timeout — жёсткий лимит по wall-clock.
	Timeout time.Duration

	// ArtifactPath — путь к артефакту, который stage обязан создать.
	// Путь в файловой системе этого процесса (не worker'а).
	ArtifactPath string

	// ArtifactExists — предикат проверки артефакта. Nil — FileExists.
	ArtifactExists func(path string) bool
}

// StageResult — результат выполнения stage.
type StageResult struct {
	Stage    string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration

	// TimedOut — worker был остановлен по таймауту.
	TimedOut bool

	// Artifact — проверенный путь артефакта.
	Artifact string

	// ArtifactMissing — после завершения артефакт не найден.
	ArtifactMissing bool

	// Success — exit 0 и артефакт существует. Не копируется из ExitCode.
	Success bool
}

// Err возвращает типизированную ошибку неуспешного результата, nil при успехе.
func (r StageResult) Err() error {
	switch {
	case r.Success:
		return nil
	case r.TimedOut:
		return &StageTimeoutError{Stage: r.Stage}
	case r.ExitCode != 0:
		return &StageExecutionError{Stage: r.Stage, ExitCode: r.ExitCode, Stderr: r.Stderr}
	default:
		return &FilesystemContractError{Stage: r.Stage, Path: r.Artifact}
	}
}

// FileExists — предикат артефакта по умолчанию: обычный файл существует.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
