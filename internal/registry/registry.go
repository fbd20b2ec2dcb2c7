// Package registry records simulated model deployments and answers lookups by owner.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nulzo/modelmart/internal/analytics"
	"github.com/nulzo/modelmart/internal/price"
	"github.com/nulzo/modelmart/internal/store"
	"github.com/nulzo/modelmart/internal/store/cache"
	"github.com/nulzo/modelmart/internal/store/model"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrDeploymentNotFound = errors.New("deployment not found")
	// ErrIdempotencyConflict means an idempotency key was reused with a different payload.
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")
	// ErrIdempotencyInProgress means another request holding the same key has not finished yet.
	ErrIdempotencyInProgress = errors.New("idempotency key is already being processed")
)

// CreateDeployment is the input to Create. Nothing in it is validated here:
// the model id is not checked against the catalog and an unparseable price
// is stored with zero micros.
type CreateDeployment struct {
	ModelID string
	UserID  string
	Chain   string
	Price   string
}

// ChainResolver is satisfied by *chain.Directory.
type ChainResolver interface {
	Canonical(name string) string
	TransactionHash() (string, error)
}

// Service defines the deployment registry operations.
type Service interface {
	// Create records a deployment and returns it with its assigned id.
	Create(ctx context.Context, in CreateDeployment) (*model.Deployment, error)
	// CreateOnce is Create keyed by an idempotency key. A repeated key returns
	// the original record and replayed=true.
	CreateOnce(ctx context.Context, key string, in CreateDeployment) (d *model.Deployment, replayed bool, err error)
	// List returns deployments in insertion order, filtered by owner when userID is set.
	List(ctx context.Context, userID string) ([]model.Deployment, error)
	Get(ctx context.Context, id int64) (*model.Deployment, error)
}

type Options struct {
	IdempotencyTTL time.Duration
}

type service struct {
	logger   *zap.Logger
	repo     store.Repository
	chains   ChainResolver
	ingestor analytics.Ingestor
	cache    cache.CacheService
	opts     Options
	group    singleflight.Group
	now      func() time.Time
}

func NewService(logger *zap.Logger, repo store.Repository, chains ChainResolver, ingestor analytics.Ingestor, c cache.CacheService, opts Options) Service {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &service{
		logger:   logger,
		repo:     repo,
		chains:   chains,
		ingestor: ingestor,
		cache:    c,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *service) Create(ctx context.Context, in CreateDeployment) (*model.Deployment, error) {
	hash, err := s.chains.TransactionHash()
	if err != nil {
		return nil, err
	}

	micros, _ := price.ParseMicros(in.Price)

	d := &model.Deployment{
		ModelID:         in.ModelID,
		UserID:          in.UserID,
		Chain:           s.chains.Canonical(in.Chain),
		Price:           in.Price,
		PriceMicros:     micros,
		TransactionHash: hash,
		DeployedAt:      s.now().UTC(),
	}

	if err := s.repo.Deployments().Create(ctx, d); err != nil {
		return nil, fmt.Errorf("store deployment: %w", err)
	}

	s.logger.Info("Deployment recorded",
		zap.Int64("id", d.ID),
		zap.String("model_id", d.ModelID),
		zap.String("user_id", d.UserID),
		zap.String("chain", d.Chain),
		zap.String("tx", d.TransactionHash),
	)
	s.audit(d, "deployment.create")

	return d, nil
}

type idempotencyEntry struct {
	DeploymentID int64  `json:"deployment_id"`
	Fingerprint  string `json:"fingerprint"`
}

type onceResult struct {
	d        *model.Deployment
	replayed bool
}

func (s *service) CreateOnce(ctx context.Context, key string, in CreateDeployment) (*model.Deployment, bool, error) {
	if key == "" || s.cache == nil {
		d, err := s.Create(ctx, in)
		return d, false, err
	}

	fp := s.fingerprint(in)
	cacheKey := "idempotency:deployments:" + key

	// concurrent requests carrying the same key share one creation; only the
	// caller whose closure ran can have created the record
	executed := false
	v, err, _ := s.group.Do(cacheKey, func() (interface{}, error) {
		executed = true

		// the claim is what keeps other instances sharing the cache out
		claimed, err := s.cache.SetNX(ctx, cacheKey, idempotencyEntry{Fingerprint: fp}, s.opts.IdempotencyTTL)
		if err != nil {
			s.logger.Warn("Idempotency claim failed", zap.String("key", key), zap.Error(err))
			d, err := s.Create(ctx, in)
			if err != nil {
				return nil, err
			}
			return onceResult{d: d}, nil
		}
		if !claimed {
			return s.replay(ctx, cacheKey, fp)
		}

		d, err := s.Create(ctx, in)
		if err != nil {
			if derr := s.cache.Delete(ctx, cacheKey); derr != nil {
				s.logger.Warn("Idempotency claim release failed", zap.String("key", key), zap.Error(derr))
			}
			return nil, err
		}

		if err := s.cache.Set(ctx, cacheKey, idempotencyEntry{DeploymentID: d.ID, Fingerprint: fp}, s.opts.IdempotencyTTL); err != nil {
			s.logger.Warn("Idempotency cache write failed", zap.String("key", key), zap.Error(err))
		}
		return onceResult{d: d}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(onceResult)
	d := *res.d
	return &d, res.replayed || !executed, nil
}

// replay resolves a key someone else already claimed. A claim without a
// deployment id is still being created.
func (s *service) replay(ctx context.Context, cacheKey, fp string) (onceResult, error) {
	var entry idempotencyEntry
	err := s.cache.Get(ctx, cacheKey, &entry)
	if errors.Is(err, cache.ErrMiss) {
		// released or expired between the claim and the read
		return onceResult{}, ErrIdempotencyInProgress
	}
	if err != nil {
		return onceResult{}, fmt.Errorf("read idempotency entry: %w", err)
	}

	if entry.Fingerprint != fp {
		return onceResult{}, ErrIdempotencyConflict
	}
	if entry.DeploymentID == 0 {
		return onceResult{}, ErrIdempotencyInProgress
	}

	d, err := s.Get(ctx, entry.DeploymentID)
	if err != nil {
		return onceResult{}, err
	}
	return onceResult{d: d, replayed: true}, nil
}

func (s *service) List(ctx context.Context, userID string) ([]model.Deployment, error) {
	deployments, err := s.repo.Deployments().List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	if deployments == nil {
		deployments = []model.Deployment{}
	}
	return deployments, nil
}

func (s *service) Get(ctx context.Context, id int64) (*model.Deployment, error) {
	d, err := s.repo.Deployments().GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrDeploymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get deployment %d: %w", id, err)
	}
	return d, nil
}

func (s *service) audit(d *model.Deployment, action string) {
	if s.ingestor == nil {
		return
	}

	details, _ := json.Marshal(map[string]string{
		"model_id":         d.ModelID,
		"chain":            d.Chain,
		"price":            d.Price,
		"transaction_hash": d.TransactionHash,
	})

	s.ingestor.Log(&model.AuditEvent{
		ID:             uuid.NewString(),
		ActorUserID:    d.UserID,
		TargetResource: fmt.Sprintf("deployment/%d", d.ID),
		Action:         action,
		DetailsJSON:    string(details),
		CreatedAt:      d.DeployedAt,
	})
}

// fingerprint identifies a request by what it would store, so chain aliases
// and equivalent price spellings replay instead of conflicting.
func (s *service) fingerprint(in CreateDeployment) string {
	amount := in.Price
	if m, err := price.ParseMicros(in.Price); err == nil {
		amount = strconv.FormatInt(m, 10)
	}
	b, _ := json.Marshal([]string{in.ModelID, in.UserID, s.chains.Canonical(in.Chain), amount})
	return string(b)
}
