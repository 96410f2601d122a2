package listings

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m4mayz/MauNgekos-sub000/internal/connectivity"
	"github.com/m4mayz/MauNgekos-sub000/internal/db"
	"github.com/m4mayz/MauNgekos-sub000/internal/models"
	"github.com/m4mayz/MauNgekos-sub000/internal/remote"
	"github.com/m4mayz/MauNgekos-sub000/internal/remote/memory"
	"github.com/m4mayz/MauNgekos-sub000/internal/testutil"
)

type countingTelemetry struct {
	mu     sync.Mutex
	writes []string
}

func (c *countingTelemetry) TrackOfflineWrite(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, op)
}

type fixture struct {
	db    *db.DB
	store *memory.Store
	net   *connectivity.Switch
	tel   *countingTelemetry
	now   time.Time
	svc   *Service
}

func newFixture(t *testing.T, online bool) *fixture {
	return newFixtureWithConfig(t, online, DefaultConfig())
}

func newFixtureWithConfig(t *testing.T, online bool, cfg Config) *fixture {
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
		tel:   &countingTelemetry{},
		now:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(database, remote.NewListings(f.store, nil), f.net, cfg,
		WithTelemetry(f.tel),
		WithClock(func() time.Time { return f.now }))
	t.Cleanup(f.svc.Wait)
	return f
}

// seed puts l in both the remote store and the cache.
func (f *fixture) seed(t *testing.T, l *models.Listing) {
	t.Helper()
	f.store.Put(models.CollectionListings, l.ID, l.ToDocument())
	require.NoError(t, f.db.UpsertListing(l))
}

func (f *fixture) cached(t *testing.T, id string) *models.Listing {
	t.Helper()
	l, err := f.db.GetListing(id)
	require.NoError(t, err)
	return l
}

func (f *fixture) pending(t *testing.T) []models.Mutation {
	t.Helper()
	items, err := f.db.ListPendingMutations()
	require.NoError(t, err)
	return items
}

func ids(listings []*models.Listing) []string {
	out := make([]string, 0, len(listings))
	for _, l := range listings {
		out = append(out, l.ID)
	}
	return out
}

func newDraft() *models.Listing {
	l := testutil.Listing("", models.StatusPending, 0)
	l.Name = "Kos Anggrek"
	return l
}
