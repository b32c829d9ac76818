package database_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatmap/internal/database"
	"heatmap/internal/events"
	"heatmap/internal/testsupport"
)

// trackedStore counts Close calls on top of a failing store.
type trackedStore struct {
	testsupport.FailingStore
	id     int32
	closed *atomic.Int32
}

func (s trackedStore) Close(ctx context.Context) error {
	s.closed.Add(1)
	return nil
}

func countingDialer(dials, closed *atomic.Int32, failFirst int32) database.Dialer {
	return func(ctx context.Context) (events.Store, error) {
		n := dials.Add(1)
		if n <= failFirst {
			return nil, errors.New("dial failed")
		}
		return trackedStore{id: n, closed: closed}, nil
	}
}

func TestDBManagerAcquire(t *testing.T) {
	ctx := context.Background()

	t.Run("warm acquire reuses the connection", func(t *testing.T) {
		var dials, closed atomic.Int32
		dm := database.NewDBManagerWithDialer(countingDialer(&dials, &closed, 0), testsupport.GetLogger())

		first, err := dm.Acquire(ctx)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := dm.Acquire(ctx)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
		assert.Equal(t, int32(1), dials.Load())
	})

	t.Run("reset forces a new connection", func(t *testing.T) {
		var dials, closed atomic.Int32
		dm := database.NewDBManagerWithDialer(countingDialer(&dials, &closed, 0), testsupport.GetLogger())

		first, err := dm.Acquire(ctx)
		require.NoError(t, err)
		require.NoError(t, dm.Reset(ctx))
		assert.Equal(t, int32(1), closed.Load())

		second, err := dm.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(2), dials.Load())
		assert.NotEqual(t, first.(trackedStore).id, second.(trackedStore).id)
	})

	t.Run("reset without a connection is a no-op", func(t *testing.T) {
		var dials, closed atomic.Int32
		dm := database.NewDBManagerWithDialer(countingDialer(&dials, &closed, 0), testsupport.GetLogger())

		require.NoError(t, dm.Reset(ctx))
		assert.Equal(t, int32(0), dials.Load())
		assert.Equal(t, int32(0), closed.Load())
	})

	t.Run("failed dial is not cached", func(t *testing.T) {
		var dials, closed atomic.Int32
		dm := database.NewDBManagerWithDialer(countingDialer(&dials, &closed, 1), testsupport.GetLogger())

		_, err := dm.Acquire(ctx)
		require.Error(t, err)

		store, err := dm.Acquire(ctx)
		require.NoError(t, err)
		assert.NotNil(t, store)
		assert.Equal(t, int32(2), dials.Load())
	})

	t.Run("concurrent cold acquires dial once", func(t *testing.T) {
		var dials atomic.Int32
		release := make(chan struct{})
		dm := database.NewDBManagerWithDialer(func(ctx context.Context) (events.Store, error) {
			dials.Add(1)
			<-release
			return testsupport.FailingStore{}, nil
		}, testsupport.GetLogger())

		const callers = 20
		var wg sync.WaitGroup
		errs := make(chan error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := dm.Acquire(ctx)
				errs <- err
			}()
		}

		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}
		assert.Equal(t, int32(1), dials.Load())
	})

	t.Run("cancelled caller does not abort the dial", func(t *testing.T) {
		var sawCancel atomic.Bool
		dm := database.NewDBManagerWithDialer(func(dialCtx context.Context) (events.Store, error) {
			sawCancel.Store(dialCtx.Err() != nil)
			return testsupport.FailingStore{}, nil
		}, testsupport.GetLogger())

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := dm.Acquire(cancelled)
		require.NoError(t, err)
		assert.False(t, sawCancel.Load())
	})
}

func TestDBManagerResetDuringDial(t *testing.T) {
	ctx := context.Background()

	var dials, closed atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	dm := database.NewDBManagerWithDialer(func(ctx context.Context) (events.Store, error) {
		n := dials.Add(1)
		if n == 1 {
			close(started)
			<-release
		}
		return trackedStore{id: n, closed: &closed}, nil
	}, testsupport.GetLogger())

	result := make(chan error, 1)
	go func() {
		_, err := dm.Acquire(ctx)
		result <- err
	}()

	<-started
	require.NoError(t, dm.Reset(ctx))
	close(release)

	assert.ErrorIs(t, <-result, database.ErrResetDuringDial)
	assert.Equal(t, int32(1), closed.Load())

	store, err := dm.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.(trackedStore).id)

	again, err := dm.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, store, again)
	assert.Equal(t, int32(2), dials.Load())
}

func TestDBManagerConnect(t *testing.T) {
	t.Run("sqlite store exposes its gorm connection", func(t *testing.T) {
		dm, store := testsupport.SetupTestDBManager(t)

		db, err := dm.Connect()
		require.NoError(t, err)
		assert.Same(t, store.DB(), db)
		assert.NotNil(t, dm.GetConnection())
	})

	t.Run("other stores are not relational", func(t *testing.T) {
		var dials, closed atomic.Int32
		dm := database.NewDBManagerWithDialer(countingDialer(&dials, &closed, 0), testsupport.GetLogger())

		_, err := dm.Connect()
		assert.ErrorIs(t, err, database.ErrNotRelational)
		assert.Nil(t, dm.GetConnection())
	})

	t.Run("dial failure surfaces", func(t *testing.T) {
		dm, _ := testsupport.FailingDBManager(t, errors.New("no servers"))

		_, err := dm.Connect()
		assert.EqualError(t, err, "no servers")
	})
}

func TestDBManagerPingAndMigrate(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy store", func(t *testing.T) {
		dm, _ := testsupport.SetupTestDBManager(t)

		assert.NoError(t, dm.Ping(ctx))
		assert.NoError(t, dm.MigrateDatabase(ctx))
	})

	t.Run("dial failure surfaces", func(t *testing.T) {
		dm, dials := testsupport.FailingDBManager(t, errors.New("no servers"))

		assert.Error(t, dm.Ping(ctx))
		assert.Error(t, dm.MigrateDatabase(ctx))
		assert.Equal(t, int32(2), dials.Load())
	})

	t.Run("close releases the connection", func(t *testing.T) {
		var dials, closed atomic.Int32
		dm := database.NewDBManagerWithDialer(countingDialer(&dials, &closed, 0), testsupport.GetLogger())

		_, err := dm.Acquire(ctx)
		require.NoError(t, err)
		require.NoError(t, dm.Close(ctx))
		assert.Equal(t, int32(1), closed.Load())
	})
}

func TestDialerForSQLite(t *testing.T) {
	cfg := testsupport.TestConfig()
	cfg.DatabasePath = t.TempDir()

	dm := database.NewDBManager(cfg, testsupport.GetLogger())
	t.Cleanup(func() { dm.Close(context.Background()) })

	ctx := context.Background()
	require.NoError(t, dm.MigrateDatabase(ctx))

	store, err := dm.Acquire(ctx)
	require.NoError(t, err)
	testsupport.CreateClicks(t, store, "site", "button#go", 2)

	rows, err := events.TopInteractions(ctx, store, "site", events.EventTypeClick, 10)
	require.NoError(t, err)
	assert.Equal(t, []events.PathCount{{Path: "button#go", Count: 2}}, rows)
}
