package app_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"restaurant_offline/internal/app"
	"restaurant_offline/internal/domain"
)

func TestFetchAll_SeedsStoreOnceThenServesLocally(t *testing.T) {
	store := newMemStore()
	remote := sampleRemote()
	c := app.NewCatalogService(store, remote)
	ctx := context.Background()

	first, err := c.FetchAll(ctx)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(first) != 4 || store.puts != 4 {
		t.Fatalf("expected 4 restaurants stored individually, got %d (puts=%d)", len(first), store.puts)
	}

	remote.setErr(errOffline)
	second, err := c.FetchAll(ctx)
	if err != nil {
		t.Fatalf("second call should not touch the remote: %v", err)
	}
	if remote.count("list") != 1 {
		t.Fatalf("expected a single remote list, got %d", remote.count("list"))
	}
	if len(second) != len(first) || second[0].Name != first[0].Name {
		t.Fatalf("unexpected second result: %+v", second)
	}
}

func TestFetchAll_EmptyStoreOfflineIsUnavailable(t *testing.T) {
	remote := newFakeRemote()
	remote.err = errOffline
	c := app.NewCatalogService(newMemStore(), remote)

	if _, err := c.FetchAll(context.Background()); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestFetchAll_StoreFailureSurfaces(t *testing.T) {
	store := newMemStore()
	store.fail = errors.Join(domain.ErrStore, errBoom)
	c := app.NewCatalogService(store, sampleRemote())

	if _, err := c.FetchAll(context.Background()); !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func TestFetchAll_ConcurrentMissesCollapse(t *testing.T) {
	remote := sampleRemote()
	remote.block = make(chan struct{})
	c := app.NewCatalogService(newMemStore(), remote)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.FetchAll(context.Background()); err != nil {
				t.Errorf("err: %v", err)
			}
		}()
	}
	for remote.count("list") == 0 {
		// wait for the leader to reach the remote
	}
	close(remote.block)
	wg.Wait()
	if n := remote.count("list"); n > 8 || n < 1 {
		t.Fatalf("unexpected remote calls: %d", n)
	}
}

func TestFetchByID_CancelledCallerDoesNotFailOthers(t *testing.T) {
	remote := sampleRemote()
	remote.block = make(chan struct{})
	store := newMemStore()
	c := app.NewCatalogService(store, remote)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.FetchByID(leaderCtx, 2)
		leaderErr <- err
	}()
	for remote.count("get") == 0 {
		// wait for the leader to reach the remote
	}

	type result struct {
		r   domain.Restaurant
		err error
	}
	follower := make(chan result, 1)
	go func() {
		r, err := c.FetchByID(context.Background(), 2)
		follower <- result{r, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("leader: expected context.Canceled, got %v", err)
	}
	close(remote.block)

	got := <-follower
	if got.err != nil || got.r.Name != "Emily" {
		t.Fatalf("follower: %+v err=%v", got.r, got.err)
	}
	if n := remote.count("get"); n != 1 {
		t.Fatalf("expected one shared remote call, got %d", n)
	}
	if _, ok, _ := store.Get(context.Background(), 2); !ok {
		t.Fatal("shared load should still store the record")
	}
}

func TestFetchByID_StoreHitAndMiss(t *testing.T) {
	store := newMemStore(domain.Restaurant{ID: 1, Name: "Local copy"})
	remote := sampleRemote()
	c := app.NewCatalogService(store, remote)
	ctx := context.Background()

	r, err := c.FetchByID(ctx, 1)
	if err != nil || r.Name != "Local copy" {
		t.Fatalf("expected stored copy, got %+v err=%v", r, err)
	}
	if remote.count("get") != 0 {
		t.Fatalf("store hit must not call remote")
	}

	r, err = c.FetchByID(ctx, 2)
	if err != nil || r.Name != "Emily" {
		t.Fatalf("expected remote copy, got %+v err=%v", r, err)
	}
	if got := store.snapshot(2); got.Name != "Emily" || got.Reviews != nil {
		t.Fatalf("miss should be stored without reviews: %+v", got)
	}
}

func TestFetchByID_ErrorKinds(t *testing.T) {
	remote := sampleRemote()
	c := app.NewCatalogService(newMemStore(), remote)

	if _, err := c.FetchByID(context.Background(), 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	remote.setErr(errOffline)
	if _, err := c.FetchByID(context.Background(), 1); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestFetchReviews_FetchedOnceThenLocal(t *testing.T) {
	store := newMemStore()
	remote := sampleRemote()
	c := app.NewCatalogService(store, remote)
	ctx := context.Background()

	rs, err := c.FetchReviews(ctx, 1)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(rs) != 2 || rs[1].Rating != 5 || !rs[0].Synced || rs[0].Date != domain.FormatReviewDate(timeMs(1504095567183)) {
		t.Fatalf("unexpected reviews: %+v", rs)
	}

	remote.setErr(errOffline)
	again, err := c.FetchReviews(ctx, 1)
	if err != nil || !reflect.DeepEqual(rs, again) {
		t.Fatalf("second fetch should be served locally: %+v err=%v", again, err)
	}
	if remote.count("reviews") != 1 {
		t.Fatalf("reviews fetched %d times", remote.count("reviews"))
	}
}

func TestFetchReviews_EmptyListIsNotRefetched(t *testing.T) {
	store := newMemStore()
	remote := sampleRemote()
	c := app.NewCatalogService(store, remote)
	ctx := context.Background()

	rs, err := c.FetchReviews(ctx, 2)
	if err != nil || rs == nil || len(rs) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v err=%v", rs, err)
	}
	if _, err := c.FetchReviews(ctx, 2); err != nil {
		t.Fatalf("err: %v", err)
	}
	if remote.count("reviews") != 1 {
		t.Fatalf("empty list must count as fetched, got %d remote calls", remote.count("reviews"))
	}
}

func TestDerivedViews(t *testing.T) {
	c := app.NewCatalogService(newMemStore(), sampleRemote())
	ctx := context.Background()

	asian, _ := c.ByCuisine(ctx, "Asian")
	if len(asian) != 2 {
		t.Fatalf("expected 2 Asian, got %d", len(asian))
	}
	all, _ := c.ByCuisineAndNeighborhood(ctx, "all", "all")
	if len(all) != 4 {
		t.Fatalf("all/all should not filter, got %d", len(all))
	}
	bk, _ := c.ByNeighborhood(ctx, "Brooklyn")
	if len(bk) != 1 || bk[0].Name != "Emily" {
		t.Fatalf("unexpected Brooklyn: %+v", bk)
	}
	none, _ := c.ByCuisineAndNeighborhood(ctx, "Pizza", "Manhattan")
	if len(none) != 0 {
		t.Fatalf("expected none, got %+v", none)
	}

	hoods, _ := c.DistinctNeighborhoods(ctx)
	if !reflect.DeepEqual(hoods, []string{"Manhattan", "Brooklyn"}) {
		t.Fatalf("unexpected neighborhoods: %v", hoods)
	}
	cuisines, _ := c.DistinctCuisines(ctx)
	if !reflect.DeepEqual(cuisines, []string{"Asian", "Pizza", "American"}) {
		t.Fatalf("unexpected cuisines: %v", cuisines)
	}
}

func TestFetchAll_ReturnsCopies(t *testing.T) {
	c := app.NewCatalogService(newMemStore(), sampleRemote())
	a, _ := c.FetchAll(context.Background())
	a[0].Name = "mutated"
	b, _ := c.FetchAll(context.Background())
	if b[0].Name == "mutated" {
		t.Fatalf("callers must not alias stored values")
	}
}
