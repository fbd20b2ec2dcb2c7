// Package memory is a process-local store.Repository. State is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nulzo/modelmart/internal/price"
	"github.com/nulzo/modelmart/internal/store"
	"github.com/nulzo/modelmart/internal/store/model"
)

type state struct {
	mu          sync.RWMutex
	nextID      int64
	deployments []model.Deployment
	audit       []model.AuditEvent
}

// Repository implements store.Repository on top of slices guarded by one lock.
type Repository struct {
	s *state
}

func NewRepository() *Repository {
	return &Repository{s: &state{nextID: 1}}
}

func (r *Repository) Deployments() store.DeploymentRepository {
	return &deploymentRepo{s: r.s}
}

func (r *Repository) Audit() store.AuditRepository {
	return &auditRepo{s: r.s}
}

// WithTx runs fn against the same repository. Writes inside fn are not rolled
// back on error; the memory store has no isolation to offer.
func (r *Repository) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	return fn(r)
}

func (r *Repository) Close() error {
	return nil
}

type deploymentRepo struct {
	s *state
}

func (r *deploymentRepo) Create(ctx context.Context, d *model.Deployment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d.ID = r.s.nextID
	r.s.nextID++
	r.s.deployments = append(r.s.deployments, *d)
	return nil
}

func (r *deploymentRepo) GetByID(ctx context.Context, id int64) (*model.Deployment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	// ids are assigned sequentially, so the slice is sorted by id
	i := sort.Search(len(r.s.deployments), func(i int) bool {
		return r.s.deployments[i].ID >= id
	})
	if i < len(r.s.deployments) && r.s.deployments[i].ID == id {
		d := r.s.deployments[i]
		return &d, nil
	}
	return nil, store.ErrNotFound
}

func (r *deploymentRepo) List(ctx context.Context, userID string) ([]model.Deployment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]model.Deployment, 0, len(r.s.deployments))
	for _, d := range r.s.deployments {
		if userID != "" && d.UserID != userID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *deploymentRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.deployments), nil
}

func (r *deploymentRepo) CountByChain(ctx context.Context) ([]model.ChainCount, error) {
	r.s.mu.RLock()
	counts := make(map[string]int)
	for _, d := range r.s.deployments {
		counts[d.Chain]++
	}
	r.s.mu.RUnlock()

	out := make([]model.ChainCount, 0, len(counts))
	for chain, n := range counts {
		out = append(out, model.ChainCount{Chain: chain, Deployments: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chain < out[j].Chain })
	return out, nil
}

func (r *deploymentRepo) VolumeSince(ctx context.Context, since time.Time) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var total int64
	for _, d := range r.s.deployments {
		if !d.DeployedAt.Before(since) {
			total = price.Add(total, d.PriceMicros)
		}
	}
	return total, nil
}

func (r *deploymentRepo) GetDailyStats(ctx context.Context, days int) ([]model.DailyStats, error) {
	now := time.Now().UTC()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)

	r.s.mu.RLock()
	buckets := make(map[string]*model.DailyStats)
	for _, d := range r.s.deployments {
		at := d.DeployedAt.UTC()
		if at.Before(cutoff) {
			continue
		}
		key := at.Format(time.DateOnly)
		b, ok := buckets[key]
		if !ok {
			b = &model.DailyStats{Date: key}
			buckets[key] = b
		}
		b.Deployments++
		b.VolumeMicros = price.Add(b.VolumeMicros, d.PriceMicros)
	}
	r.s.mu.RUnlock()

	out := make([]model.DailyStats, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

type auditRepo struct {
	s *state
}

func (r *auditRepo) Log(ctx context.Context, event *model.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *event)
	return nil
}

func (r *auditRepo) Recent(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := len(r.s.audit)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.AuditEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.s.audit[i])
	}
	return out, nil
}
