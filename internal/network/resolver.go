// Package network определяет общую сеть runtime, к которой
// подключается inference worker.
package network

import (
	"context"
	"log/slog"

	"github.com/shaiso/mlpipe/internal/domain"
)

// Lister — источник списка сетей. Реализуется container.Engine.
type Lister interface {
	ListNetworks(ctx context.Context, filter string) ([]string, error)
}

// Journal — журнал pipeline, куда пишется предупреждение о fallback.
type Journal interface {
	Log(level domain.LogLevel, message string)
}

// Resolver ищет сеть по фильтру и возвращает default, если ничего не найдено.
type Resolver struct {
	lister   Lister
	journal  Journal
	filter   string
	fallback string
	logger   *slog.Logger
}

// New создаёт Resolver. journal может быть nil.
func New(lister Lister, journal Journal, filter, fallback string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		lister:   lister,
		journal:  journal,
		filter:   filter,
		fallback: fallback,
		logger:   logger,
	}
}

// Resolve возвращает первую сеть, совпавшую с фильтром, иначе default.
// Ошибка листинга тоже приводит к default.
func (r *Resolver) Resolve(ctx context.Context) string {
	networks, err := r.lister.ListNetworks(ctx, r.filter)
	if err != nil {
		r.logger.Warn("failed to list networks", "filter", r.filter, "error", err)
	}
	for _, n := range networks {
		if n != "" {
			r.logger.Debug("network resolved", "network", n)
			return n
		}
	}

	if r.journal != nil {
		r.journal.Log(domain.LogLevelWarning,
			"network matching "+r.filter+" not found, using default "+r.fallback)
	}
	r.logger.Warn("network not found, using default", "filter", r.filter, "network", r.fallback)
	return r.fallback
}
