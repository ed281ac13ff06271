package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/mlpipe/internal/domain"
)

// defaultMemoryCapacity — сколько runs хранит MemoryRunRepo.
const defaultMemoryCapacity = 100

// MemoryRunRepo — история runs в памяти процесса. Старые runs
// вытесняются при превышении capacity.
type MemoryRunRepo struct {
	mu       sync.RWMutex
	runs     map[uuid.UUID]domain.Run
	capacity int
}

// NewMemoryRunRepo создаёт репозиторий. capacity <= 0 — значение по умолчанию.
func NewMemoryRunRepo(capacity int) *MemoryRunRepo {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryRunRepo{
		runs:     make(map[uuid.UUID]domain.Run),
		capacity: capacity,
	}
}

// Create сохраняет копию run.
func (r *MemoryRunRepo) Create(_ context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[run.ID]; ok {
		return ErrAlreadyExists
	}
	r.runs[run.ID] = copyRun(run)
	r.evictLocked()
	return nil
}

// Update заменяет сохранённый run.
func (r *MemoryRunRepo) Update(_ context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[run.ID]; !ok {
		return ErrNotFound
	}
	r.runs[run.ID] = copyRun(run)
	return nil
}

// GetByID возвращает копию run.
func (r *MemoryRunRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyRun(&run)
	return &out, nil
}

// List возвращает последние runs, новые первыми.
func (r *MemoryRunRepo) List(_ context.Context, limit int) ([]domain.Run, error) {
	r.mu.RLock()
	runs := make([]domain.Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, copyRun(&run))
	}
	r.mu.RUnlock()

	sortNewestFirst(runs)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (r *MemoryRunRepo) evictLocked() {
	if len(r.runs) <= r.capacity {
		return
	}
	runs := make([]domain.Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	sortNewestFirst(runs)
	for _, run := range runs[r.capacity:] {
		delete(r.runs, run.ID)
	}
}

func sortNewestFirst(runs []domain.Run) {
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
}

func copyRun(run *domain.Run) domain.Run {
	out := *run
	if run.Phases != nil {
		out.Phases = make(map[domain.Phase]domain.PhaseState, len(run.Phases))
		for k, v := range run.Phases {
			out.Phases[k] = v
		}
	}
	return out
}
