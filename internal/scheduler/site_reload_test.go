package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/derefd/internal/logger"
	"github.com/MrSnakeDoc/derefd/internal/registry"
	"github.com/MrSnakeDoc/derefd/internal/site"
	"github.com/MrSnakeDoc/derefd/internal/sources/definitions"
	redisstore "github.com/MrSnakeDoc/derefd/internal/store/redis"
)

const twoSites = `sites:
  - id: entityhub
    hub: true
  - id: dbpedia
    ranking: 2
`

func writeSites(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write sites file: %v", err)
	}
}

func siteIDs(r *registry.Registry) []string {
	var ids []string
	for _, reg := range r.Lookup(site.CapabilitySite) {
		ids = append(ids, reg.Metadata().String(site.PropertySiteID))
	}
	return ids
}

func newTestReloader(t *testing.T, path string, store *redisstore.Store) (*SiteReloader, *registry.Registry) {
	t.Helper()
	r := registry.New()
	sr := NewSiteReloader(path, definitions.NewMapper(nil), r, store, logger.New("error", false), nil, time.Hour, make(chan struct{}, 1))
	return sr, r
}

func TestSiteReloaderReconciles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	writeSites(t, path, twoSites)

	sr, r := newTestReloader(t, path, nil)
	ctx := context.Background()
	require.NoError(t, sr.Reload(ctx))

	assert.Equal(t, []string{"dbpedia", "entityhub"}, siteIDs(r))
	assert.Len(t, r.Lookup(site.CapabilityEntityhub), 1)

	before := sr.Sites()
	require.NoError(t, sr.Reload(ctx))
	assert.Equal(t, before, sr.Sites(), "unchanged definitions keep their registration")

	writeSites(t, path, `sites:
  - id: dbpedia
    ranking: 7
  - id: geonames
`)
	require.NoError(t, sr.Reload(ctx))
	assert.ElementsMatch(t, []string{"dbpedia", "geonames"}, siteIDs(r))
	assert.Empty(t, r.Lookup(site.CapabilityEntityhub))
	assert.Equal(t, 7, r.Lookup(site.CapabilitySite)[0].Ranking())

	writeSites(t, path, "sites: [{type: memory}]\n")
	require.Error(t, sr.Reload(ctx))
	assert.Len(t, siteIDs(r), 2, "a broken file keeps the current sites")
}

func TestSiteReloaderAnnouncedSites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	writeSites(t, path, twoSites)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := redisstore.NewStore(client)

	sr, r := newTestReloader(t, path, store)
	ctx := context.Background()
	require.NoError(t, sr.Reload(ctx))

	err := sr.UpsertSite(ctx, definitions.SiteDefinition{ID: "dbpedia"})
	assert.True(t, errors.Is(err, ErrSiteConflict))

	err = sr.UpsertSite(ctx, definitions.SiteDefinition{ID: "bad", Type: "sparql"})
	assert.ErrorIs(t, err, definitions.ErrInvalidDefinition)

	require.NoError(t, sr.UpsertSite(ctx, definitions.SiteDefinition{ID: "wikidata", Ranking: 1}))
	assert.Contains(t, siteIDs(r), "wikidata")

	stored, err := store.GetAllSiteDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, definitions.TypeMemory, stored[0].Type)

	// a fresh reloader restores announced sites from redis
	sr2, r2 := newTestReloader(t, "", store)
	require.NoError(t, sr2.Start(ctx))
	defer sr2.Stop()
	assert.Equal(t, []string{"wikidata"}, siteIDs(r2))
	assert.Equal(t, SourceAnnounce, sr2.Sites()[0].Source)

	require.NoError(t, sr.RemoveSite(ctx, "wikidata"))
	assert.NotContains(t, siteIDs(r), "wikidata")
	assert.ErrorIs(t, sr.RemoveSite(ctx, "wikidata"), ErrUnknownSite)

	stored, err = store.GetAllSiteDefinitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSiteReloaderFileWinsOverAnnouncement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	writeSites(t, path, "sites: []\n")

	sr, r := newTestReloader(t, path, nil)
	ctx := context.Background()
	require.NoError(t, sr.Reload(ctx))
	require.NoError(t, sr.UpsertSite(ctx, definitions.SiteDefinition{ID: "dbpedia"}))

	writeSites(t, path, "sites: [{id: dbpedia, ranking: 3}]\n")
	require.NoError(t, sr.Reload(ctx))

	assert.Equal(t, []string{"dbpedia"}, siteIDs(r))
	sites := sr.Sites()
	require.Len(t, sites, 1)
	assert.Equal(t, SourceFile, sites[0].Source)
	assert.Equal(t, 3, sites[0].Ranking)
}

func TestSiteReloaderTriggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	writeSites(t, path, "sites: [{id: a}]\n")

	r := registry.New()
	trigger := make(chan struct{}, 1)
	sr := NewSiteReloader(path, definitions.NewMapper(nil), r, nil, logger.New("error", false), nil, time.Hour, trigger)
	sr.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sr.Start(ctx))
	defer sr.Stop()
	assert.Equal(t, []string{"a"}, siteIDs(r))

	writeSites(t, path, "sites: [{id: a}, {id: b}]\n")
	require.Eventually(t, func() bool { return len(siteIDs(r)) == 2 }, 3*time.Second, 20*time.Millisecond)

	sr.Stop()
	writeSites(t, path, "sites: [{id: c}]\n")
	require.NoError(t, sr.Reload(ctx))
	assert.Equal(t, []string{"c"}, siteIDs(r))
}

func TestSiteReloaderManualTrigger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sites.yaml")
	writeSites(t, path, "sites: [{id: a}]\n")

	r := registry.New()
	trigger := make(chan struct{}, 1)
	sr := NewSiteReloader(path, definitions.NewMapper(nil), r, nil, logger.New("error", false), nil, time.Hour, trigger)
	// keep file events from racing the manual trigger
	sr.debounce = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sr.Start(ctx))
	defer sr.Stop()

	writeSites(t, path, "sites: [{id: a}, {id: b}, {id: c}]\n")
	trigger <- struct{}{}
	require.Eventually(t, func() bool { return len(siteIDs(r)) == 3 }, 3*time.Second, 20*time.Millisecond)
}
