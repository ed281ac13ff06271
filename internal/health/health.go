// Package health — liveness и readiness проверки сервиса.
package health

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/shaiso/mlpipe/internal/config"
)

const (
	// maxGoroutines — порог liveness: больше горутин означает утечку.
	maxGoroutines = 10000

	engineTimeout = 5 * time.Second
)

// Pinger — среда выполнения worker'ов.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHandler создаёт healthcheck.Handler: LiveEndpoint и ReadyEndpoint
// монтируются сервером на /healthz и /readyz.
func NewHandler(cfg *config.Config, engine Pinger) healthcheck.Handler {
	h := healthcheck.NewHandler()

	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))

	// Пробный файл пишется в корень данных: raw/ очищается Clear и
	// читается SubmitExisting.
	h.AddReadinessCheck("data-writable", WritableCheck(cfg.DataPath))
	h.AddReadinessCheck("data-disk-space", DiskSpaceCheck(cfg.DataPath, cfg.MinFreeDiskMB))
	if engine != nil {
		h.AddReadinessCheck("container-engine", EngineCheck(engine, engineTimeout))
	}
	return h
}

// WritableCheck проверяет, что в dir можно создать файл.
func WritableCheck(dir string) healthcheck.Check {
	return func() error {
		f, err := os.CreateTemp(dir, ".healthcheck-*")
		if err != nil {
			return fmt.Errorf("data directory not writable: %w", err)
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	}
}

// DiskSpaceCheck требует не меньше minFreeMB свободного места на разделе path.
func DiskSpaceCheck(path string, minFreeMB uint64) healthcheck.Check {
	return func() error {
		usage, err := disk.Usage(path)
		if err != nil {
			return fmt.Errorf("disk usage %s: %w", path, err)
		}
		if free := usage.Free >> 20; free < minFreeMB {
			return fmt.Errorf("free disk space %d MB below %d MB", free, minFreeMB)
		}
		return nil
	}
}

// EngineCheck проверяет доступность runtime worker'ов.
func EngineCheck(engine Pinger, timeout time.Duration) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return engine.Ping(ctx)
	}
}
