package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nulzo/modelmart/internal/chain"
	"github.com/nulzo/modelmart/internal/store/cache"
	"github.com/nulzo/modelmart/internal/store/memory"
	"github.com/nulzo/modelmart/internal/store/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockIngestor is a mock implementation of analytics.Ingestor
type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) Log(event *model.AuditEvent) { m.Called(event) }
func (m *MockIngestor) Start(ctx context.Context)   { m.Called(ctx) }
func (m *MockIngestor) Stop()                       { m.Called() }

func newTestService(t *testing.T, ing *MockIngestor) (Service, *memory.Repository) {
	t.Helper()
	chains, err := chain.NewDirectory(chain.Defaults)
	require.NoError(t, err)

	repo := memory.NewRepository()
	if ing == nil {
		ing = new(MockIngestor)
		ing.On("Log", mock.Anything).Return()
	}
	svc := NewService(zap.NewNop(), repo, chains, ing, cache.NewMemoryCache(), Options{IdempotencyTTL: time.Minute})
	return svc, repo
}

func TestCreateThenListByOwner(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	d, err := svc.Create(ctx, CreateDeployment{ModelID: "model-1", UserID: "0xabc", Chain: "Ethereum", Price: "2.5"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.ID)
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, d.TransactionHash)
	assert.Equal(t, int64(2_500_000), d.PriceMicros)
	assert.WithinDuration(t, time.Now(), d.DeployedAt, 5*time.Second)

	owned, err := svc.List(ctx, "0xabc")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "model-1", owned[0].ModelID)
}

func TestList_PreservesInsertionOrderAndFilters(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	for _, in := range []CreateDeployment{
		{ModelID: "1", UserID: "0xa", Chain: "Ethereum"},
		{ModelID: "2", UserID: "0xb", Chain: "Polygon"},
		{ModelID: "3", UserID: "0xa", Chain: "Solana"},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	owned, err := svc.List(ctx, "0xa")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, "1", owned[0].ModelID)
	assert.Equal(t, "3", owned[1].ModelID)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := svc.List(ctx, "0xnobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestCreate_DoesNotValidate(t *testing.T) {
	svc, _ := newTestService(t, nil)

	d, err := svc.Create(context.Background(), CreateDeployment{ModelID: "does-not-exist", UserID: "x", Chain: "Nowhere", Price: "free"})
	require.NoError(t, err)
	assert.Equal(t, "Nowhere", d.Chain)
	assert.Equal(t, "free", d.Price)
	assert.Zero(t, d.PriceMicros)
}

func TestCreate_CanonicalizesChainAlias(t *testing.T) {
	svc, _ := newTestService(t, nil)

	d, err := svc.Create(context.Background(), CreateDeployment{ModelID: "1", UserID: "x", Chain: "bsc"})
	require.NoError(t, err)
	assert.Equal(t, "Binance Smart Chain", d.Chain)
}

func TestCreate_EmitsAuditEvent(t *testing.T) {
	ing := new(MockIngestor)
	ing.On("Log", mock.MatchedBy(func(e *model.AuditEvent) bool {
		return e.Action == "deployment.create" && e.ActorUserID == "0xabc" && e.TargetResource == "deployment/1"
	})).Return().Once()

	svc, _ := newTestService(t, ing)
	_, err := svc.Create(context.Background(), CreateDeployment{ModelID: "1", UserID: "0xabc", Chain: "Ethereum"})
	require.NoError(t, err)

	ing.AssertExpectations(t)
}

func TestGet(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateDeployment{ModelID: "1", UserID: "x", Chain: "Ethereum"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.TransactionHash, got.TransactionHash)

	_, err = svc.Get(ctx, 99)
	assert.ErrorIs(t, err, ErrDeploymentNotFound)
}

func TestCreateOnce_ReplaysSameKey(t *testing.T) {
	svc, repo := newTestService(t, nil)
	ctx := context.Background()
	in := CreateDeployment{ModelID: "1", UserID: "0xabc", Chain: "Ethereum", Price: "2.5"}

	first, replayed, err := svc.CreateOnce(ctx, "key-1", in)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := svc.CreateOnce(ctx, "key-1", in)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.TransactionHash, second.TransactionHash)

	count, err := repo.Deployments().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateOnce_ConflictingPayload(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, _, err := svc.CreateOnce(ctx, "key-1", CreateDeployment{ModelID: "1", UserID: "0xabc", Chain: "Ethereum"})
	require.NoError(t, err)

	_, _, err = svc.CreateOnce(ctx, "key-1", CreateDeployment{ModelID: "2", UserID: "0xabc", Chain: "Ethereum"})
	assert.True(t, errors.Is(err, ErrIdempotencyConflict))
}

func TestCreateOnce_ConcurrentSameKeyCreatesOnce(t *testing.T) {
	svc, repo := newTestService(t, nil)
	ctx := context.Background()
	in := CreateDeployment{ModelID: "1", UserID: "0xabc", Chain: "Ethereum"}

	const n = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	ids := make(map[int64]int)
	fresh := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, replayed, err := svc.CreateOnce(ctx, "same", in)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[d.ID]++
			if !replayed {
				fresh++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, fresh)

	count, err := repo.Deployments().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateOnce_EmptyKeyAlwaysCreates(t *testing.T) {
	svc, repo := newTestService(t, nil)
	ctx := context.Background()
	in := CreateDeployment{ModelID: "1", UserID: "0xabc", Chain: "Ethereum"}

	_, _, err := svc.CreateOnce(ctx, "", in)
	require.NoError(t, err)
	_, _, err = svc.CreateOnce(ctx, "", in)
	require.NoError(t, err)

	count, err := repo.Deployments().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCreateOnce_EquivalentPayloadReplays(t *testing.T) {
	svc, repo := newTestService(t, nil)
	ctx := context.Background()

	first, _, err := svc.CreateOnce(ctx, "key-1", CreateDeployment{ModelID: "1", UserID: "0xabc", Chain: "Ethereum", Price: "2.5"})
	require.NoError(t, err)

	second, replayed, err := svc.CreateOnce(ctx, "key-1", CreateDeployment{ModelID: "1", UserID: "0xabc", Chain: "eth", Price: "2.50"})
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)

	count, err := repo.Deployments().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// two services sharing one cache and one store behave like two server instances
func newSharedServices(t *testing.T) (Service, Service, *memory.Repository, *cache.MemoryCache) {
	t.Helper()
	chains, err := chain.NewDirectory(chain.Defaults)
	require.NoError(t, err)

	ing := new(MockIngestor)
	ing.On("Log", mock.Anything).Return()
	repo := memory.NewRepository()
	c := cache.NewMemoryCache()
	opts := Options{IdempotencyTTL: time.Minute}
	return NewService(zap.NewNop(), repo, chains, ing, c, opts),
		NewService(zap.NewNop(), repo, chains, ing, c, opts),
		repo, c
}

func TestCreateOnce_SharedCacheAcrossInstances(t *testing.T) {
	a, b, repo, _ := newSharedServices(t)
	ctx := context.Background()
	in := CreateDeployment{ModelID: "1", UserID: "0xabc", Chain: "Ethereum", Price: "1"}

	first, replayed, err := a.CreateOnce(ctx, "key-1", in)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := b.CreateOnce(ctx, "key-1", in)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)

	count, err := repo.Deployments().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateOnce_KeyClaimedElsewhereIsInProgress(t *testing.T) {
	_, b, repo, c := newSharedServices(t)
	ctx := context.Background()
	in := CreateDeployment{ModelID: "1", UserID: "0xabc", Chain: "Ethereum", Price: "1"}

	// another instance holds the claim but has not stored its deployment yet
	ok, err := c.SetNX(ctx, "idempotency:deployments:key-1", idempotencyEntry{Fingerprint: b.(*service).fingerprint(in)}, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = b.CreateOnce(ctx, "key-1", in)
	assert.ErrorIs(t, err, ErrIdempotencyInProgress)

	_, _, err = b.CreateOnce(ctx, "key-1", CreateDeployment{ModelID: "2", UserID: "0xabc", Chain: "Ethereum"})
	assert.ErrorIs(t, err, ErrIdempotencyConflict)

	count, err := repo.Deployments().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

type failingChains struct{ ChainResolver }

func (failingChains) TransactionHash() (string, error) { return "", errors.New("entropy exhausted") }

func TestCreateOnce_FailedCreateReleasesKey(t *testing.T) {
	dir, err := chain.NewDirectory(chain.Defaults)
	require.NoError(t, err)
	c := cache.NewMemoryCache()
	ctx := context.Background()

	svc := NewService(zap.NewNop(), memory.NewRepository(), failingChains{dir}, nil, c, Options{})
	_, _, err = svc.CreateOnce(ctx, "key-1", CreateDeployment{ModelID: "1", UserID: "0xabc", Chain: "Ethereum"})
	require.Error(t, err)

	ok, err := c.SetNX(ctx, "idempotency:deployments:key-1", idempotencyEntry{}, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
