package store

import (
	"context"
	"errors"
	"time"

	"github.com/nulzo/modelmart/internal/store/model"
)

var ErrNotFound = errors.New("record not found")

// Repository is the main contract for the data layer.
type Repository interface {
	Deployments() DeploymentRepository
	Audit() AuditRepository

	// transaction support
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}

type DeploymentRepository interface {
	// Create appends d, assigning d.ID. Ids are strictly increasing.
	Create(ctx context.Context, d *model.Deployment) error
	// GetByID returns ErrNotFound when no record has the id.
	GetByID(ctx context.Context, id int64) (*model.Deployment, error)
	// List returns records in insertion order. An empty userID matches every owner.
	List(ctx context.Context, userID string) ([]model.Deployment, error)
	// Count returns the total number of records.
	Count(ctx context.Context) (int, error)
	// CountByChain returns per-chain totals ordered by chain name.
	CountByChain(ctx context.Context) ([]model.ChainCount, error)
	// VolumeSince sums PriceMicros of records deployed at or after since.
	VolumeSince(ctx context.Context, since time.Time) (int64, error)
	// GetDailyStats returns per-day totals for the last n days, newest first.
	GetDailyStats(ctx context.Context, days int) ([]model.DailyStats, error)
}

type AuditRepository interface {
	// Log records an audit event.
	Log(ctx context.Context, event *model.AuditEvent) error
	// Recent returns the last limit events, newest first.
	Recent(ctx context.Context, limit int) ([]model.AuditEvent, error)
}
