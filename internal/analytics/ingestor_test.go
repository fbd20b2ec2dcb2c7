package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nulzo/modelmart/internal/store/memory"
	"github.com/nulzo/modelmart/internal/store/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIngestor_FlushOnStop(t *testing.T) {
	repo := memory.NewRepository()
	ing := NewIngestor(zap.NewNop(), repo, IngestorOptions{BufferSize: 10, BatchSize: 100, FlushEvery: time.Hour})
	ing.Start(context.Background())

	for i := 0; i < 3; i++ {
		ing.Log(&model.AuditEvent{ID: fmt.Sprint(i), Action: "deployment.create"})
	}
	ing.Stop()

	events, err := repo.Audit().Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	// logging after stop is dropped, not a panic
	assert.NotPanics(t, func() { ing.Log(&model.AuditEvent{ID: "late"}) })
	assert.NotPanics(t, ing.Stop)
}

func TestIngestor_FlushOnBatchSize(t *testing.T) {
	repo := memory.NewRepository()
	ing := NewIngestor(zap.NewNop(), repo, IngestorOptions{BufferSize: 10, BatchSize: 2, FlushEvery: time.Hour})
	ing.Start(context.Background())
	defer ing.Stop()

	ing.Log(&model.AuditEvent{ID: "a"})
	ing.Log(&model.AuditEvent{ID: "b"})

	assert.Eventually(t, func() bool {
		events, _ := repo.Audit().Recent(context.Background(), 0)
		return len(events) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestIngestor_FlushOnContextCancel(t *testing.T) {
	repo := memory.NewRepository()
	ing := NewIngestor(zap.NewNop(), repo, IngestorOptions{BufferSize: 10, BatchSize: 100, FlushEvery: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	ing.Start(ctx)

	ing.Log(&model.AuditEvent{ID: "a"})
	cancel()

	assert.Eventually(t, func() bool {
		events, _ := repo.Audit().Recent(context.Background(), 0)
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestIngestor_DropsWhenFull(t *testing.T) {
	repo := memory.NewRepository()
	// not started: nothing drains the buffer
	ing := NewIngestor(zap.NewNop(), repo, IngestorOptions{BufferSize: 1, BatchSize: 1, FlushEvery: time.Hour})

	ing.Log(&model.AuditEvent{ID: "kept"})
	assert.NotPanics(t, func() { ing.Log(&model.AuditEvent{ID: "dropped"}) })
	ing.Stop()
}

func TestIngestor_LogAfterWorkerExitWritesThrough(t *testing.T) {
	repo := memory.NewRepository()
	ing := NewIngestor(zap.NewNop(), repo, IngestorOptions{BufferSize: 10, BatchSize: 100, FlushEvery: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	ing.Start(ctx)

	cancel()
	select {
	case <-ing.(*ingestor).done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit")
	}

	// an audit event raised while the server drains in-flight requests
	ing.Log(&model.AuditEvent{ID: "during-shutdown", Action: "deployment.create"})
	ing.Stop()

	events, err := repo.Audit().Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "during-shutdown", events[0].ID)
}
