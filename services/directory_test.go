package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrowderSoup/taskdash/database"
)

// countingStore counts reads and can fail them.
type countingStore struct {
	database.Store
	reads atomic.Int32
	err   error
}

func (s *countingStore) Read(ctx context.Context, path string) (database.Snapshot, error) {
	s.reads.Add(1)
	if s.err != nil {
		return database.Snapshot{}, s.err
	}
	return s.Store.Read(ctx, path)
}

func TestDirectoryDisplayFallbacks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Write(ctx, database.UserPath("named"), database.UserRecord{Name: "Nia", Email: "nia@example.com"}))
	require.NoError(t, store.Write(ctx, database.UserPath("mailonly"), database.UserRecord{Email: "m@example.com"}))

	dir := NewDirectory(store, nil)

	p := dir.Resolve(ctx, "named")
	assert.Equal(t, "Nia", p.Display)
	require.NotNil(t, p.Raw)
	assert.Equal(t, "named", p.Raw.ID)

	assert.Equal(t, "m@example.com", dir.Resolve(ctx, "mailonly").Display)

	missing := dir.Resolve(ctx, "ghost")
	assert.Equal(t, "ghost", missing.Display)
	assert.Nil(t, missing.Raw)
}

func TestDirectoryResolvesOncePerID(t *testing.T) {
	base := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, base.Write(ctx, database.UserPath("u1"), database.UserRecord{Name: "Uma"}))
	store := &countingStore{Store: base}
	dir := NewDirectory(store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "Uma", dir.Resolve(ctx, "u1").Display)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), store.reads.Load())

	// later changes are not picked up
	require.NoError(t, base.Write(ctx, database.UserPath("u1"), database.UserRecord{Name: "Uma Renamed"}))
	assert.Equal(t, "Uma", dir.Resolve(ctx, "u1").Display)
	assert.Equal(t, int32(1), store.reads.Load())
}

func TestDirectoryCachesFailure(t *testing.T) {
	store := &countingStore{Store: newTestStore(t), err: assert.AnError}
	dir := NewDirectory(store, nil)

	assert.Equal(t, "u1", dir.Resolve(context.Background(), "u1").Display)
	store.err = nil
	assert.Equal(t, "u1", dir.Resolve(context.Background(), "u1").Display)
	assert.Equal(t, int32(1), store.reads.Load())
}
