package registrar

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/derefd/internal/dereference"
	"github.com/MrSnakeDoc/derefd/internal/engine"
	"github.com/MrSnakeDoc/derefd/internal/ldpath"
	"github.com/MrSnakeDoc/derefd/internal/namespace"
	"github.com/MrSnakeDoc/derefd/internal/registry"
	"github.com/MrSnakeDoc/derefd/internal/site"
)

func publishSite(t *testing.T, r *registry.Registry, id string, hub bool) *registry.Registration {
	t.Helper()
	s := site.NewMemorySite(id, nil)
	reg, err := r.Register(site.Capabilities(hub), s, site.Metadata(s, 0))
	require.NoError(t, err)
	return reg
}

func engines(r *registry.Registry) []*registry.Registration {
	return r.Lookup(engine.CapabilityEnhancementEngine)
}

func TestActivateRequiresName(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "absent", cfg: Config{}},
		{name: "nil", cfg: Config{engine.PropertyName: nil}},
		{name: "empty", cfg: Config{engine.PropertyName: ""}},
		{name: "blank", cfg: Config{engine.PropertyName: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := New(registry.New(), nil, nil, nil)
			err := rr.Activate(tt.cfg)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, engine.PropertyName, cfgErr.Property)
			assert.False(t, rr.Active())
		})
	}
}

func TestParseRanking(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    int
		set     bool
		wantErr bool
	}{
		{name: "absent", in: nil},
		{name: "int", in: 5, want: 5, set: true},
		{name: "int64", in: int64(-7), want: -7, set: true},
		{name: "uint8", in: uint8(3), want: 3, set: true},
		{name: "float truncates", in: 2.9, want: 2, set: true},
		{name: "numeric string", in: "12", want: 12, set: true},
		{name: "padded string", in: " -4 ", want: -4, set: true},
		{name: "empty string", in: ""},
		{name: "non numeric", in: "high", wantErr: true},
		{name: "decimal string", in: "1.5", wantErr: true},
		{name: "unsupported type", in: []int{1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, set, err := parseRanking(tt.in)
			if tt.wantErr {
				var cfgErr *ConfigurationError
				require.True(t, errors.As(err, &cfgErr))
				assert.Equal(t, registry.PropertyServiceRanking, cfgErr.Property)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.set, set)
		})
	}
}

func TestActivateRejectsBadRanking(t *testing.T) {
	rr := New(registry.New(), nil, nil, nil)
	err := rr.Activate(Config{engine.PropertyName: "deref", registry.PropertyServiceRanking: "abc"})

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, registry.PropertyServiceRanking, cfgErr.Property)
	assert.False(t, rr.Active())
}

func TestActivateRejectsBadLDPath(t *testing.T) {
	rr := New(registry.New(), nil, nil, nil)
	err := rr.Activate(Config{
		engine.PropertyName:        "deref",
		dereference.PropertyLDPath: "name = a / b ;",
	})

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, dereference.PropertyLDPath, cfgErr.Property)
	assert.ErrorIs(t, err, ldpath.ErrUnsupported)
}

func TestPublishFollowsTrackedCount(t *testing.T) {
	r := registry.New()
	rr := New(r, namespace.New(), nil, nil)
	require.NoError(t, rr.Activate(Config{
		engine.PropertyName:             " deref ",
		registry.PropertyServiceRanking: "3",
	}))
	defer rr.Deactivate()

	assert.Nil(t, rr.Published())
	assert.Empty(t, engines(r))

	first := publishSite(t, r, "dbpedia", false)
	require.NotNil(t, rr.Published())
	assert.Equal(t, 1, rr.TrackedServiceCount())

	published := engines(r)
	require.Len(t, published, 1)
	md := published[0].Metadata()
	assert.Equal(t, "deref", md.String(engine.PropertyName))
	assert.Equal(t, 3, md.Ranking())
	assert.Equal(t, SiteAll, md.String(PropertySiteID))
	assert.True(t, published[0].HasCapability(engine.CapabilityServiceProperties))
	assert.Same(t, rr.Engine(), published[0].Service())

	require.NoError(t, first.Unregister())
	assert.Nil(t, rr.Published())
	assert.Empty(t, engines(r))
	assert.Equal(t, 0, rr.TrackedServiceCount())

	a := publishSite(t, r, "a", false)
	publishSite(t, r, "b", false)
	assert.Equal(t, 2, rr.TrackedServiceCount())
	assert.Len(t, engines(r), 1)

	require.NoError(t, a.Unregister())
	assert.Equal(t, 1, rr.TrackedServiceCount())
	assert.NotNil(t, rr.Published())
	assert.Len(t, engines(r), 1)
}

func TestExistingSitesPublishOnActivate(t *testing.T) {
	r := registry.New()
	publishSite(t, r, "dbpedia", false)

	rr := New(r, nil, nil, nil)
	require.NoError(t, rr.Activate(Config{engine.PropertyName: "deref"}))
	assert.NotNil(t, rr.Published())
	assert.Equal(t, []string{"dbpedia"}, rr.Sites())

	assert.ErrorIs(t, rr.Activate(Config{engine.PropertyName: "deref"}), ErrAlreadyActive)
	rr.Deactivate()
}

func TestSiteSelector(t *testing.T) {
	tests := []struct {
		name      string
		site      any
		wantSite  string
		published bool
	}{
		{name: "unset", site: nil, wantSite: SiteAll, published: true},
		{name: "empty", site: "", wantSite: SiteAll, published: true},
		{name: "star", site: "*", wantSite: SiteAll, published: true},
		{name: "entityhub", site: "EntityHub", wantSite: "EntityHub", published: true},
		{name: "local", site: "local", wantSite: "local", published: true},
		{name: "named present", site: "dbpedia", wantSite: "dbpedia", published: true},
		{name: "named absent", site: "geonames", wantSite: "geonames", published: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := registry.New()
			publishSite(t, r, "dbpedia", false)
			publishSite(t, r, "hub", true)

			rr := New(r, nil, nil, nil)
			cfg := Config{engine.PropertyName: "deref"}
			if tt.site != nil {
				cfg[PropertySiteID] = tt.site
			}
			require.NoError(t, rr.Activate(cfg))
			defer rr.Deactivate()

			assert.Equal(t, tt.wantSite, rr.SiteSelector())
			assert.Equal(t, tt.published, rr.Published() != nil)
		})
	}
}

func TestHubSelectorTracksOnlyHub(t *testing.T) {
	r := registry.New()
	publishSite(t, r, "dbpedia", false)

	rr := New(r, nil, nil, nil)
	require.NoError(t, rr.Activate(Config{engine.PropertyName: "deref", PropertySiteID: "entityhub"}))
	defer rr.Deactivate()
	assert.Nil(t, rr.Published())

	hub := publishSite(t, r, "hub", true)
	assert.NotNil(t, rr.Published())
	assert.Equal(t, 1, rr.TrackedServiceCount())

	require.NoError(t, hub.Unregister())
	assert.Nil(t, rr.Published())
}

func TestDeactivate(t *testing.T) {
	r := registry.New()
	backing := publishSite(t, r, "dbpedia", false)

	rr := New(r, nil, nil, nil)
	rr.Deactivate()

	require.NoError(t, rr.Activate(Config{engine.PropertyName: "deref"}))
	require.NotNil(t, rr.Published())

	rr.Deactivate()
	assert.False(t, rr.Active())
	assert.Nil(t, rr.Published())
	assert.Nil(t, rr.Engine())
	assert.Empty(t, engines(r))
	assert.Equal(t, 0, rr.TrackedServiceCount())
	rr.Deactivate()

	require.NoError(t, backing.Unregister())
	assert.Empty(t, engines(r))

	require.NoError(t, rr.Activate(Config{engine.PropertyName: "deref"}))
	assert.Nil(t, rr.Published())
	publishSite(t, r, "geonames", false)
	assert.NotNil(t, rr.Published())
	rr.Deactivate()
}

func TestModifiedIsNoop(t *testing.T) {
	r := registry.New()
	reg := publishSite(t, r, "dbpedia", false)

	rr := New(r, nil, nil, nil)
	require.NoError(t, rr.Activate(Config{engine.PropertyName: "deref"}))
	defer rr.Deactivate()

	before := rr.Published()
	require.NoError(t, r.SetMetadata(reg, registry.Metadata{site.PropertySiteID: "dbpedia", "x": 1}))
	assert.Same(t, before, rr.Published())
	assert.Equal(t, 1, rr.TrackedServiceCount())
}

func TestConcurrentSiteChurn(t *testing.T) {
	r := registry.New()
	rr := New(r, nil, nil, nil)
	require.NoError(t, rr.Activate(Config{engine.PropertyName: "deref"}))
	defer rr.Deactivate()

	const n = 40
	regs := make([]*registry.Registration, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := site.NewMemorySite("s", nil)
			reg, err := r.Register(site.Capabilities(false), s, site.Metadata(s, 0))
			if err != nil {
				t.Error(err)
				return
			}
			regs[i] = reg
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, rr.TrackedServiceCount())
	assert.Len(t, engines(r), 1)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(reg *registry.Registration) {
			defer wg.Done()
			if err := reg.Unregister(); err != nil {
				t.Error(err)
			}
		}(regs[i])
	}
	wg.Wait()

	assert.Equal(t, 0, rr.TrackedServiceCount())
	assert.Nil(t, rr.Published())
	assert.Empty(t, engines(r))
}

// gatedID blocks the first String call until release is closed.
type gatedID struct {
	first   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedID) String() string {
	if g.first.CompareAndSwap(false, true) {
		close(g.entered)
		<-g.release
	}
	return "other"
}

func TestReactivateIgnoresLateCallbacksOfClosedWatch(t *testing.T) {
	r := registry.New()
	publishSite(t, r, "dbpedia", false)

	cfg := Config{engine.PropertyName: "deref", PropertySiteID: "dbpedia"}
	rr := New(r, nil, nil, nil)
	require.NoError(t, rr.Activate(cfg))
	require.NotNil(t, rr.Published())

	// keep a goroutine delivering on the first watch
	gate := &gatedID{entered: make(chan struct{}), release: make(chan struct{})}
	registered := make(chan struct{})
	go func() {
		defer close(registered)
		s := site.NewMemorySite("gated", nil)
		if _, err := r.Register(site.Capabilities(false), s, registry.Metadata{site.PropertySiteID: gate}); err != nil {
			t.Error(err)
		}
	}()
	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("registration never reached the watch filter")
	}

	rr.Deactivate()
	require.NoError(t, rr.Activate(cfg))
	defer rr.Deactivate()
	require.Equal(t, 1, rr.TrackedServiceCount())
	require.NotNil(t, rr.Published())

	close(gate.release)
	<-registered

	assert.Equal(t, 1, rr.TrackedServiceCount())
	assert.NotNil(t, rr.Published())
	assert.Len(t, engines(r), 1)
}
