package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nulzo/modelmart/internal/price"
	"github.com/nulzo/modelmart/internal/store"
	"github.com/nulzo/modelmart/internal/store/model"
)

// DB defines the interface for database operations (satisfied by *sqlx.DB and *sqlx.Tx)
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SqliteRepository implements store.Repository
type SqliteRepository struct {
	db       *sqlx.DB // Required for starting new transactions
	executor DB       // Used for actual queries (can be *sqlx.DB or *sqlx.Tx)
}

func NewSqliteRepository(db *sqlx.DB) *SqliteRepository {
	return &SqliteRepository{
		db:       db,
		executor: db,
	}
}

func (r *SqliteRepository) Close() error {
	return r.db.Close()
}

func (r *SqliteRepository) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	txRepo := &SqliteRepository{
		db:       r.db,
		executor: tx,
	}

	if err := fn(txRepo); err != nil {
		// attempt rollback, but prioritize original error
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (r *SqliteRepository) Deployments() store.DeploymentRepository {
	return &deploymentRepo{db: r.executor}
}

func (r *SqliteRepository) Audit() store.AuditRepository {
	return &auditRepo{db: r.executor}
}

type deploymentRepo struct {
	db DB
}

func (r *deploymentRepo) Create(ctx context.Context, d *model.Deployment) error {
	query := `
	INSERT INTO deployments (model_id, user_id, chain, price, price_micros, transaction_hash, deployed_at)
	VALUES (:model_id, :user_id, :chain, :price, :price_micros, :transaction_hash, :deployed_at)`
	res, err := r.db.NamedExecContext(ctx, query, d)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = id
	return nil
}

func (r *deploymentRepo) GetByID(ctx context.Context, id int64) (*model.Deployment, error) {
	var d model.Deployment
	if err := r.db.GetContext(ctx, &d, `SELECT * FROM deployments WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *deploymentRepo) List(ctx context.Context, userID string) ([]model.Deployment, error) {
	deployments := []model.Deployment{}
	var err error
	if userID == "" {
		err = r.db.SelectContext(ctx, &deployments, `SELECT * FROM deployments ORDER BY id`)
	} else {
		err = r.db.SelectContext(ctx, &deployments, `SELECT * FROM deployments WHERE user_id = ? ORDER BY id`, userID)
	}
	return deployments, err
}

func (r *deploymentRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM deployments`)
	return n, err
}

func (r *deploymentRepo) CountByChain(ctx context.Context) ([]model.ChainCount, error) {
	counts := []model.ChainCount{}
	query := `SELECT chain, COUNT(*) AS deployments FROM deployments GROUP BY chain ORDER BY chain`
	err := r.db.SelectContext(ctx, &counts, query)
	return counts, err
}

func (r *deploymentRepo) VolumeSince(ctx context.Context, since time.Time) (int64, error) {
	// TOTAL never raises on integer overflow, unlike SUM
	var total float64
	query := `SELECT TOTAL(price_micros) FROM deployments WHERE deployed_at >= ?`
	if err := r.db.GetContext(ctx, &total, query, since.UTC()); err != nil {
		return 0, err
	}
	return price.FromTotal(total), nil
}

type dailyRow struct {
	Date        string  `db:"date"`
	Deployments int     `db:"deployments"`
	Volume      float64 `db:"volume_micros"`
}

func (r *deploymentRepo) GetDailyStats(ctx context.Context, days int) ([]model.DailyStats, error) {
	now := time.Now().UTC()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)

	var rows []dailyRow
	query := `
		SELECT
			DATE(deployed_at) AS date,
			COUNT(*) AS deployments,
			TOTAL(price_micros) AS volume_micros
		FROM deployments
		WHERE deployed_at >= ?
		GROUP BY date
		ORDER BY date DESC
	`
	if err := r.db.SelectContext(ctx, &rows, query, cutoff); err != nil {
		return nil, err
	}

	stats := make([]model.DailyStats, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, model.DailyStats{
			Date:         row.Date,
			Deployments:  row.Deployments,
			VolumeMicros: price.FromTotal(row.Volume),
		})
	}
	return stats, nil
}

type auditRepo struct {
	db DB
}

func (r *auditRepo) Log(ctx context.Context, event *model.AuditEvent) error {
	query := `
	INSERT INTO audit_events (id, actor_user_id, target_resource, action, details_json, ip_address, created_at)
	VALUES (:id, :actor_user_id, :target_resource, :action, :details_json, :ip_address, :created_at)`
	_, err := r.db.NamedExecContext(ctx, query, event)
	return err
}

func (r *auditRepo) Recent(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	events := []model.AuditEvent{}
	query := `SELECT * FROM audit_events ORDER BY created_at DESC, rowid DESC LIMIT ?`
	err := r.db.SelectContext(ctx, &events, query, limit)
	return events, err
}
