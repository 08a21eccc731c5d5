package catalog

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presupuesto/internal/cache"
)

func product(code, name, price string, stock int) Product {
	return Product{Code: code, Name: name, Price: decimal.RequireFromString(price), Stock: stock}
}

func TestNewSnapshotFiltersAndSorts(t *testing.T) {
	snap := NewSnapshot([]Product{
		product("1", "zapato", "10", 1),
		product(" ", "sin codigo", "10", 1),
		product("2", "Negativo", "-1", 1),
		product("3", "Éxito", "5", 0),
		product("1", "duplicado", "99", 1),
		product("4", "ala", "1", -2),
		product(" 5 ", "  Banco  ", "3", 2),
	})
	require.Equal(t, 3, snap.Len())
	names := make([]string, 0, snap.Len())
	for _, p := range snap.Products() {
		names = append(names, p.Name)
	}
	require.Equal(t, []string{"Banco", "Éxito", "zapato"}, names)

	p, ok := snap.Lookup("5")
	require.True(t, ok)
	require.Equal(t, "Banco", p.Name)
	p, ok = snap.Lookup("1")
	require.True(t, ok)
	require.Equal(t, "zapato", p.Name)
}

func TestSnapshotSearch(t *testing.T) {
	snap := NewSnapshot([]Product{
		product("1", "Tornillo chico", "1", 1),
		product("2", "TORNILLO grande", "2", 1),
		product("3", "Tuerca", "3", 1),
	})
	require.Len(t, snap.Search("tornillo"), 2)
	require.Len(t, snap.Search("  "), 3)
	require.Empty(t, snap.Search("clavo"))

	var empty *Snapshot
	require.Empty(t, empty.Search("x"))
	require.Equal(t, 0, empty.Len())
}

func TestSnapshotProductsIsCopy(t *testing.T) {
	snap := NewSnapshot([]Product{product("1", "a", "1", 1)})
	items := snap.Products()
	items[0].Name = "mutated"
	p, _ := snap.Lookup("1")
	require.Equal(t, "a", p.Name)
}

func TestParseListParams(t *testing.T) {
	svc, err := NewService(ServiceConfig{Repository: NewMemoryRepository(), DefaultLimit: 20, MaxLimit: 50})
	require.NoError(t, err)

	params, err := svc.ParseListParams(url.Values{"q": {" clavo "}, "page": {"2"}, "limit": {"500"}})
	require.NoError(t, err)
	require.Equal(t, ListParams{Query: "clavo", Page: 2, Limit: 50}, params)

	params, err = svc.ParseListParams(url.Values{})
	require.NoError(t, err)
	require.Equal(t, 20, params.Limit)

	_, err = svc.ParseListParams(url.Values{"limit": {"abc"}})
	require.Error(t, err)
}

func TestListPastEnd(t *testing.T) {
	repo := NewMemoryRepository()
	require.NoError(t, repo.Save(context.Background(), []Product{product("1", "a", "1", 1)}))
	svc, err := NewService(ServiceConfig{Repository: repo})
	require.NoError(t, err)
	res, err := svc.List(context.Background(), ListParams{Page: 5, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, res.Items)
	require.Equal(t, 1, res.Total)
}

func TestReplaceRejectsEmptyCatalog(t *testing.T) {
	repo := NewMemoryRepository()
	require.NoError(t, repo.Save(context.Background(), []Product{product("1", "a", "1", 1)}))
	svc, err := NewService(ServiceConfig{Repository: repo})
	require.NoError(t, err)

	res, err := svc.Replace(context.Background(), []Product{product("", "x", "1", 1)}, "test")
	require.ErrorIs(t, err, ErrEmptyCatalog)
	require.Equal(t, 1, res.Rejected)

	stored, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

type countingRepo struct {
	MemoryRepository
	loads   atomic.Int32
	gate    chan struct{}
	started chan struct{}
}

func (c *countingRepo) Load(ctx context.Context) ([]Product, error) {
	c.loads.Add(1)
	if c.started != nil {
		select {
		case c.started <- struct{}{}:
		default:
		}
	}
	if c.gate != nil {
		<-c.gate
	}
	return c.MemoryRepository.Load(ctx)
}

func TestSnapshotCollapsesConcurrentLoads(t *testing.T) {
	repo := &countingRepo{gate: make(chan struct{})}
	svc, err := NewService(ServiceConfig{Repository: repo})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Snapshot(context.Background())
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(repo.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Less(t, repo.loads.Load(), int32(8))
}

func TestSnapshotSurvivesFirstCallerCancel(t *testing.T) {
	repo := &countingRepo{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	require.NoError(t, repo.Save(context.Background(), []Product{product("1", "a", "1", 1)}))
	svc, err := NewService(ServiceConfig{Repository: repo})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.Snapshot(ctx)
		first <- err
	}()
	<-repo.started

	second := make(chan *Snapshot, 1)
	go func() {
		snap, err := svc.Snapshot(context.Background())
		if err != nil {
			second <- nil
			return
		}
		second <- snap
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-first:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller still waiting")
	}

	close(repo.gate)
	select {
	case snap := <-second:
		require.NotNil(t, snap)
		require.Equal(t, 1, snap.Len())
	case <-time.After(time.Second):
		t.Fatal("second caller never returned")
	}
	require.Equal(t, int32(1), repo.loads.Load())
}

func TestSnapshotCachedUntilTTL(t *testing.T) {
	repo := &countingRepo{}
	require.NoError(t, repo.Save(context.Background(), []Product{product("1", "a", "1", 1)}))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc, err := NewService(ServiceConfig{
		Repository: repo,
		CacheTTL:   time.Minute,
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Get(ctx, "1")
		require.NoError(t, err)
		_, err = svc.List(ctx, ListParams{Page: 1, Limit: 10})
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), repo.loads.Load())

	_, err = svc.Replace(ctx, []Product{product("2", "b", "2", 1)}, "test")
	require.NoError(t, err)
	p, err := svc.Get(ctx, "2")
	require.NoError(t, err)
	require.Equal(t, "b", p.Name)
	_, err = svc.Get(ctx, "1")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, int32(1), repo.loads.Load())

	now = now.Add(2 * time.Minute)
	_, err = svc.Get(ctx, "2")
	require.NoError(t, err)
	require.Equal(t, int32(2), repo.loads.Load())
}

func TestSnapshotCacheDisabled(t *testing.T) {
	repo := &countingRepo{}
	require.NoError(t, repo.Save(context.Background(), []Product{product("1", "a", "1", 1)}))
	svc, err := NewService(ServiceConfig{Repository: repo, CacheTTL: -1})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.Snapshot(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, int32(3), repo.loads.Load())
}

func TestRedisRepositoryRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	keys := cache.Keys{Prefix: "test"}
	repo := RedisRepository{Store: cache.NewJSON(client, 0), Key: keys.Catalog()}
	ctx := context.Background()

	empty, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)

	require.NoError(t, repo.Save(ctx, []Product{product("7", "Martillo", "1234.56", 4)}))
	got, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Price.Equal(decimal.RequireFromString("1234.56")))
	require.True(t, mr.Exists(keys.Catalog()))
}
