package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4mayz/MauNgekos-sub000/internal/connectivity"
	"github.com/m4mayz/MauNgekos-sub000/internal/db"
	"github.com/m4mayz/MauNgekos-sub000/internal/models"
	"github.com/m4mayz/MauNgekos-sub000/internal/remote"
	"github.com/m4mayz/MauNgekos-sub000/internal/remote/memory"
	"github.com/m4mayz/MauNgekos-sub000/internal/testutil"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingTelemetry struct {
	mu        sync.Mutex
	dropped   []string
	drains    int
	refreshes int
	failures  []string
}

func (r *recordingTelemetry) TrackQueueDrained(int, int, int, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drains++
}

func (r *recordingTelemetry) TrackMutationDropped(op, _ string, _ int, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, op)
}

func (r *recordingTelemetry) TrackFullRefresh(int, bool, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
}

func (r *recordingTelemetry) TrackFullRefreshFailed(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, stage)
}

type fixture struct {
	db     *db.DB
	store  *memory.Store
	net    *connectivity.Switch
	clock  *fakeClock
	tel    *recordingTelemetry
	engine *Engine
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()

	dir := t.TempDir()
	database, err := db.New(db.Config{
		Path:        filepath.Join(dir, "cache.db"),
		MetaPath:    filepath.Join(dir, "meta.json"),
		MaxIdleConn: 1,
		MaxOpenConn: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	f := &fixture{
		db:    database,
		store: memory.New(),
		net:   connectivity.NewSwitch(online),
		clock: &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		tel:   &recordingTelemetry{},
	}
	f.engine = New(database, remote.NewListings(f.store, nil), f.net,
		Config{RefreshInterval: 30 * time.Minute},
		WithClock(f.clock.Now), WithTelemetry(f.tel))
	t.Cleanup(f.engine.StopListener)
	return f
}

func (f *fixture) putListing(l *models.Listing) {
	f.store.Put(models.CollectionListings, l.ID, l.ToDocument())
}

func (f *fixture) enqueue(t *testing.T, op models.Operation, collection, id string, payload map[string]interface{}) *models.Mutation {
	t.Helper()
	m, err := f.db.EnqueueMutation(op, collection, id, payload)
	require.NoError(t, err)
	return m
}

func (f *fixture) pending(t *testing.T) []models.Mutation {
	t.Helper()
	items, err := f.db.ListPendingMutations()
	require.NoError(t, err)
	return items
}

func TestDrainQueue_Offline(t *testing.T) {
	f := newFixture(t, false)
	f.enqueue(t, models.OpDelete, models.CollectionListings, "kos-1", nil)

	res, err := f.engine.DrainQueue(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Offline)
	assert.Empty(t, f.store.Calls())
	assert.Len(t, f.pending(t), 1)
}

func TestDrainQueue_ReplaysInOrder(t *testing.T) {
	f := newFixture(t, true)
	f.putListing(testutil.Listing("kos-1", models.StatusApproved, 1))
	f.putListing(testutil.Listing("kos-2", models.StatusApproved, 2))
	f.store.Put(models.CollectionUsers, "user-1", map[string]interface{}{})

	f.enqueue(t, models.OpUpdate, models.CollectionListings, "kos-1", map[string]interface{}{models.FieldName: "Kos Baru"})
	f.enqueue(t, models.OpDelete, models.CollectionListings, "kos-2", nil)
	f.enqueue(t, models.OpSave, models.CollectionUsers, "user-1", map[string]interface{}{models.FieldListingID: "kos-1"})
	f.enqueue(t, models.OpUpdateStatus, models.CollectionListings, "kos-1", map[string]interface{}{models.FieldStatus: "rejected"})

	res, err := f.engine.DrainQueue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Replayed)
	assert.Zero(t, res.Failed)
	assert.Zero(t, res.Remaining)
	assert.Empty(t, f.pending(t))

	calls := f.store.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, memory.Call{Method: "update", Collection: models.CollectionListings, ID: "kos-1"}, calls[0])
	assert.Equal(t, memory.Call{Method: "delete", Collection: models.CollectionListings, ID: "kos-2"}, calls[1])
	assert.Equal(t, memory.Call{Method: "update", Collection: models.CollectionUsers, ID: "user-1"}, calls[2])
	assert.Equal(t, memory.Call{Method: "update", Collection: models.CollectionListings, ID: "kos-1"}, calls[3])

	doc := f.store.Doc(models.CollectionListings, "kos-1")
	assert.Equal(t, "Kos Baru", doc[models.FieldName])
	assert.Equal(t, "rejected", doc[models.FieldStatus])
	assert.Nil(t, f.store.Doc(models.CollectionListings, "kos-2"))
	assert.Equal(t, []interface{}{"kos-1"}, f.store.Doc(models.CollectionUsers, "user-1")[models.FieldFavorites])
	assert.Equal(t, 1, f.tel.drains)
}

func TestDrainQueue_FailureIsolated(t *testing.T) {
	f := newFixture(t, true)
	f.putListing(testutil.Listing("kos-1", models.StatusApproved, 1))
	f.putListing(testutil.Listing("kos-2", models.StatusApproved, 2))
	f.store.FailWhen(func(c memory.Call) error {
		if c.ID == "kos-1" {
			return remote.ErrUnavailable
		}
		return nil
	})

	bad := f.enqueue(t, models.OpUpdate, models.CollectionListings, "kos-1", map[string]interface{}{models.FieldName: "A"})
	f.enqueue(t, models.OpUpdate, models.CollectionListings, "kos-2", map[string]interface{}{models.FieldName: "B"})

	res, err := f.engine.DrainQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replayed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int64(1), res.Remaining)

	items := f.pending(t)
	require.Len(t, items, 1)
	assert.Equal(t, bad.ID, items[0].ID)
	assert.Equal(t, 1, items[0].RetryCount)
	assert.Contains(t, items[0].LastError, "unavailable")
	assert.Equal(t, "B", f.store.Doc(models.CollectionListings, "kos-2")[models.FieldName])
}

func TestDrainQueue_DropsAfterMaxRetries(t *testing.T) {
	f := newFixture(t, true)
	f.store.FailWhen(func(memory.Call) error { return remote.ErrUnavailable })
	f.enqueue(t, models.OpDelete, models.CollectionListings, "kos-1", nil)

	for i := 1; i <= 2; i++ {
		res, err := f.engine.DrainQueue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
		assert.Zero(t, res.Dropped)

		items := f.pending(t)
		require.Len(t, items, 1)
		assert.Equal(t, i, items[0].RetryCount)
	}

	res, err := f.engine.DrainQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Dropped)
	assert.Empty(t, f.pending(t))

	_, err = f.engine.DrainQueue(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.store.CallsOf("delete"), 3)
	assert.Equal(t, []string{"delete"}, f.tel.dropped)
}

func TestDrainQueue_DropsExhaustedWithoutReplay(t *testing.T) {
	f := newFixture(t, true)
	m := f.enqueue(t, models.OpDelete, models.CollectionListings, "kos-1", nil)
	for i := 0; i < models.MaxMutationRetries; i++ {
		require.NoError(t, f.db.RecordMutationFailure(m.ID, "timeout"))
	}

	res, err := f.engine.DrainQueue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Dropped)
	assert.Empty(t, f.store.Calls())
	assert.Empty(t, f.pending(t))
}

func TestDrainQueue_ReconcilesTempID(t *testing.T) {
	f := newFixture(t, true)
	f.store.Put(models.CollectionUsers, "user-1", map[string]interface{}{})

	local := testutil.Listing("temp_1700000000000", models.StatusPending, 1700000000000)
	require.NoError(t, f.db.UpsertListing(local))
	require.NoError(t, f.db.SaveFavorite("user-1", local.ID, f.clock.Now(), false))

	f.enqueue(t, models.OpCreate, models.CollectionListings, local.ID, local.ToDocument())
	f.enqueue(t, models.OpUpdate, models.CollectionListings, local.ID, map[string]interface{}{models.FieldName: "Kos Mawar"})
	f.enqueue(t, models.OpSave, models.CollectionUsers, "user-1", map[string]interface{}{models.FieldListingID: local.ID})

	res, err := f.engine.DrainQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Replayed)
	assert.Empty(t, f.pending(t))

	adds := f.store.CallsOf("add")
	require.Len(t, adds, 1)
	serverID := adds[0].ID

	gone, err := f.db.GetListing(local.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	cached, err := f.db.GetListing(serverID)
	require.NoError(t, err)
	require.NotNil(t, cached)

	assert.Equal(t, "Kos Mawar", f.store.Doc(models.CollectionListings, serverID)[models.FieldName])
	assert.Equal(t, []interface{}{serverID}, f.store.Doc(models.CollectionUsers, "user-1")[models.FieldFavorites])

	fav, err := f.db.GetFavorite("user-1", serverID)
	require.NoError(t, err)
	require.NotNil(t, fav)
	assert.True(t, fav.Synced)
}

func TestDrainQueue_UpdateOfUncreatedTempFails(t *testing.T) {
	f := newFixture(t, true)
	f.enqueue(t, models.OpUpdate, models.CollectionListings, "temp_1", map[string]interface{}{models.FieldName: "x"})

	res, err := f.engine.DrainQueue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, f.store.Calls())
}

func TestFullRefresh(t *testing.T) {
	f := newFixture(t, true)
	f.putListing(testutil.Listing("a", models.StatusApproved, 1))
	f.putListing(testutil.Listing("b", models.StatusApproved, 2))
	rereview := testutil.Listing("c", models.StatusPending, 3)
	rereview.PreviousStatus = models.StatusApproved
	f.putListing(rereview)
	f.putListing(testutil.Listing("d", models.StatusPending, 4))

	res, err := f.engine.FullRefresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Listings)
	assert.Equal(t, SkipNone, res.Skipped)

	cached, err := f.db.GetApprovedListings()
	require.NoError(t, err)
	require.Len(t, cached, 3)
	for _, l := range cached {
		assert.Equal(t, f.clock.Now().UnixMilli(), l.SyncedAt, l.ID)
	}

	missing, err := f.db.GetListing("d")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.True(t, f.db.Meta().LastFullSync().Equal(f.clock.Now()))
	assert.Equal(t, 1, f.tel.refreshes)
}

func TestFullRefresh_KeepsQueuedLocalChanges(t *testing.T) {
	f := newFixture(t, true)
	f.putListing(testutil.Listing("kos-1", models.StatusApproved, 1))
	f.putListing(testutil.Listing("kos-2", models.StatusApproved, 2))
	f.putListing(testutil.Listing("kos-3", models.StatusApproved, 3))

	// An offline rename of kos-1 and an offline delete of kos-2, not yet
	// replayed.
	edited := testutil.Listing("kos-1", models.StatusApproved, 1)
	edited.Name = "Kos Baru"
	require.NoError(t, f.db.UpsertListing(edited))
	f.enqueue(t, models.OpUpdate, models.CollectionListings, "kos-1", map[string]interface{}{models.FieldName: "Kos Baru"})
	f.enqueue(t, models.OpDelete, models.CollectionListings, "kos-2", nil)

	res, err := f.engine.FullRefresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Listings)
	assert.Equal(t, 2, res.Kept)

	got, err := f.db.GetListing("kos-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Kos Baru", got.Name)

	deleted, err := f.db.GetListing("kos-2")
	require.NoError(t, err)
	assert.Nil(t, deleted)

	fresh, err := f.db.GetListing("kos-3")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, f.clock.Now().UnixMilli(), fresh.SyncedAt)

	// Once the queue drains the next refresh takes the server copies.
	drained, err := f.engine.DrainQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, drained.Replayed)

	res, err = f.engine.FullRefresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Listings)
	assert.Zero(t, res.Kept)

	got, err = f.db.GetListing("kos-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Kos Baru", got.Name)
}

func TestFullRefresh_Throttle(t *testing.T) {
	f := newFixture(t, true)
	f.putListing(testutil.Listing("a", models.StatusApproved, 1))

	res, err := f.engine.FullRefresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Listings)
	queries := len(f.store.CallsOf("query"))

	f.clock.Advance(10 * time.Minute)
	res, err = f.engine.FullRefresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, SkipThrottled, res.Skipped)
	assert.Len(t, f.store.CallsOf("query"), queries)
	assert.False(t, f.engine.RefreshDue())

	res, err = f.engine.FullRefresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, SkipNone, res.Skipped)
	assert.Len(t, f.store.CallsOf("query"), 2*queries)

	f.clock.Advance(30 * time.Minute)
	assert.True(t, f.engine.RefreshDue())
	res, err = f.engine.FullRefresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, SkipNone, res.Skipped)
}

func TestFullRefresh_Offline(t *testing.T) {
	f := newFixture(t, false)

	res, err := f.engine.FullRefresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, SkipOffline, res.Skipped)
	assert.Empty(t, f.store.Calls())
	assert.True(t, f.db.Meta().LastFullSync().IsZero())
}

func TestFullRefresh_ErrorKeepsTimestamp(t *testing.T) {
	f := newFixture(t, true)
	f.store.FailWhen(func(memory.Call) error { return remote.ErrUnavailable })

	_, err := f.engine.FullRefresh(context.Background(), true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrUnavailable))
	assert.True(t, f.db.Meta().LastFullSync().IsZero())
	assert.Equal(t, []string{"fetch"}, f.tel.failures)

	status, err := f.engine.Status()
	require.NoError(t, err)
	assert.NotEmpty(t, status.LastRefreshError)
}

func TestFullRefresh_SingleFlight(t *testing.T) {
	f := newFixture(t, true)
	f.putListing(testutil.Listing("a", models.StatusApproved, 1))

	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	f.store.OnCall = func(ctx context.Context, c memory.Call) {
		if c.Method != "query" {
			return
		}
		entered <- struct{}{}
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.FullRefresh(context.Background(), true)
		done <- err
	}()
	<-entered

	res, err := f.engine.FullRefresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, SkipInProgress, res.Skipped)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, f.store.CallsOf("query"), 2)

	res, err = f.engine.FullRefresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, SkipNone, res.Skipped)
}

func TestListener(t *testing.T) {
	f := newFixture(t, false)
	f.putListing(testutil.Listing("kos-1", models.StatusApproved, 1))
	f.enqueue(t, models.OpUpdate, models.CollectionListings, "kos-1", map[string]interface{}{models.FieldName: "Kos Baru"})

	f.engine.StartListener(context.Background())
	f.engine.StartListener(context.Background())
	assert.Equal(t, 1, f.net.Subscribers())

	f.net.Set(false)
	f.engine.Wait()
	assert.Len(t, f.pending(t), 1)

	f.net.Set(true)
	f.engine.Wait()

	assert.Empty(t, f.pending(t))
	assert.False(t, f.db.Meta().LastFullSync().IsZero())
	assert.Equal(t, "Kos Baru", f.store.Doc(models.CollectionListings, "kos-1")[models.FieldName])
	cached, err := f.db.GetListing("kos-1")
	require.NoError(t, err)
	assert.NotNil(t, cached)

	status, err := f.engine.Status()
	require.NoError(t, err)
	assert.True(t, status.Listening)

	f.engine.StopListener()
	f.engine.StopListener()
	assert.Zero(t, f.net.Subscribers())

	f.enqueue(t, models.OpDelete, models.CollectionListings, "kos-1", nil)
	f.net.Set(true)
	f.engine.Wait()
	assert.Len(t, f.pending(t), 1)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, true)
	f.enqueue(t, models.OpDelete, models.CollectionListings, "kos-1", nil)

	status, err := f.engine.Status()
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.PendingMutations)
	assert.True(t, status.Online)
	assert.True(t, status.RefreshDue)
	assert.False(t, status.Refreshing)
	assert.False(t, status.Listening)

	_, err = f.engine.DrainQueue(context.Background())
	require.NoError(t, err)

	status, err = f.engine.Status()
	require.NoError(t, err)
	assert.Zero(t, status.PendingMutations)
	assert.Equal(t, 1, status.LastDrain.Replayed)
	assert.Equal(t, f.clock.Now(), status.LastDrainAt)
}
