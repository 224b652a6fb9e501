package app

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
		CartTTL:       time.Hour,
	}, quietLogger())
	require.NoError(t, err)

	assert.NotNil(t, deps.cartStore)
	assert.NotNil(t, deps.catalog)
	assert.NotNil(t, deps.outboxRepo)
	assert.NotNil(t, deps.idempotencyRepo)
	require.NotNil(t, deps.storageChecker)
	assert.NoError(t, deps.storageChecker.Check(context.Background()))
	assert.Empty(t, deps.jobs)
	assert.NoError(t, deps.closeFn())

	products, err := deps.catalog.List(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, products)
}

func TestInitRuntimeDependencies_EmptyDriverFallsBackToMemory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{}, quietLogger())
	require.NoError(t, err)
	assert.NotNil(t, deps.cartStore)
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, quietLogger())
	assert.Error(t, err)
}

func TestInitRuntimeDependencies_RedisUnavailable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := initRuntimeDependencies(ctx, Config{
		StorageDriver: StorageDriverRedis,
		RedisAddr:     "127.0.0.1:1",
	}, quietLogger())
	assert.Error(t, err)
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

type fakeStaleDeleter struct {
	calls  atomic.Int32
	before atomic.Value
	err    error
}

func (f *fakeStaleDeleter) DeleteStale(_ context.Context, before time.Time) (int, error) {
	f.calls.Add(1)
	f.before.Store(before)
	return 2, f.err
}

func TestRunSnapshotRetention(t *testing.T) {
	deleter := &fakeStaleDeleter{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		runSnapshotRetention(ctx, deleter, time.Hour, 10*time.Millisecond, quietLogger())
		close(done)
	}()

	require.Eventually(t, func() bool { return deleter.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	before, ok := deleter.before.Load().(time.Time)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), before, time.Minute)
}

func TestRunSnapshotRetention_ErrorsDoNotStopLoop(t *testing.T) {
	deleter := &fakeStaleDeleter{err: errors.New("db down")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runSnapshotRetention(ctx, deleter, time.Hour, 10*time.Millisecond, quietLogger())

	require.Eventually(t, func() bool { return deleter.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}
