package dereference

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/derefd/internal/ldpath"
	"github.com/MrSnakeDoc/derefd/internal/namespace"
	"github.com/MrSnakeDoc/derefd/internal/registry"
	"github.com/MrSnakeDoc/derefd/internal/site"
)

const paris = "http://dbpedia.org/resource/Paris"

type countingCustomizer struct {
	mu      sync.Mutex
	added   int
	removed int
}

func (c *countingCustomizer) OnServiceAdded(*registry.Registration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added++
}

func (c *countingCustomizer) OnServiceModified(*registry.Registration) {}

func (c *countingCustomizer) OnServiceRemoved(*registry.Registration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed++
}

type failingSite struct{ id string }

func (f failingSite) ID() string { return f.id }
func (f failingSite) Lookup(context.Context, string, []string) (*site.Representation, error) {
	return nil, errors.New("connection refused")
}

func publish(t *testing.T, r *registry.Registry, s site.Site, hub bool, ranking int) *registry.Registration {
	t.Helper()
	reg, err := r.Register(site.Capabilities(hub), s, site.Metadata(s, ranking))
	require.NoError(t, err)
	return reg
}

func dbpedia() *site.MemorySite {
	return site.NewMemorySite("dbpedia", map[string]map[string][]string{
		paris: {
			namespace.RDFS + "label":   {"Paris"},
			namespace.RDFS + "comment": {"Capital of France"},
			namespace.Geo + "lat":      {"48.85"},
		},
	})
}

func TestSiteDereferencerTracksNamedSite(t *testing.T) {
	r := registry.New()
	c := &countingCustomizer{}
	d := NewSiteDereferencer(r, "dbpedia", c, nil)
	require.NoError(t, d.Open())
	assert.ErrorIs(t, d.Open(), ErrAlreadyOpen)

	_, err := d.Dereference(context.Background(), paris)
	assert.ErrorIs(t, err, ErrUnavailable)

	publish(t, r, site.NewMemorySite("geonames", nil), false, 0)
	assert.False(t, d.Available())

	reg := publish(t, r, dbpedia(), false, 0)
	assert.True(t, d.Available())
	assert.Equal(t, 1, c.added)
	assert.Equal(t, []string{"dbpedia"}, d.Sites())

	rep, err := d.Dereference(context.Background(), paris)
	require.NoError(t, err)
	assert.Equal(t, "dbpedia", rep.Site)
	assert.Len(t, rep.Fields, 3)

	require.NoError(t, reg.Unregister())
	assert.False(t, d.Available())
	assert.Equal(t, 1, c.removed)
	d.Close()
}

func TestHubDereferencerIgnoresPlainSites(t *testing.T) {
	r := registry.New()
	c := &countingCustomizer{}
	publish(t, r, dbpedia(), false, 0)
	publish(t, r, site.NewMemorySite("entityhub", nil), true, 0)

	d := NewHubDereferencer(r, c, nil)
	require.NoError(t, d.Open())
	assert.Equal(t, []string{"entityhub"}, d.Sites())
	assert.Equal(t, ModeHub, d.Mode())

	_, err := d.Dereference(context.Background(), paris)
	assert.ErrorIs(t, err, site.ErrEntityNotFound)

	d.Close()
	assert.Equal(t, 1, c.removed)
	d.Close()
}

func TestSitesDereferencerFirstHitWins(t *testing.T) {
	r := registry.New()
	d := NewSitesDereferencer(r, nil, nil)
	require.NoError(t, d.Open())
	defer d.Close()

	publish(t, r, failingSite{id: "broken"}, false, 10)
	publish(t, r, site.NewMemorySite("empty", nil), false, 5)
	publish(t, r, dbpedia(), false, 0)
	assert.Equal(t, []string{"broken", "empty", "dbpedia"}, d.Sites())

	rep, err := d.Dereference(context.Background(), paris)
	require.NoError(t, err)
	assert.Equal(t, "dbpedia", rep.Site)

	_, err = d.Dereference(context.Background(), "http://example.org/none")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site broken")
}

func TestDereferenceFieldSelection(t *testing.T) {
	r := registry.New()
	d := NewSitesDereferencer(r, nil, nil)
	d.SetNamespaces(namespace.New())
	d.SetDereferencedFields([]string{"rdfs:comment"})
	require.NoError(t, d.Open())
	defer d.Close()
	publish(t, r, dbpedia(), false, 0)

	rep, err := d.Dereference(context.Background(), paris)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{namespace.RDFS + "comment": {"Capital of France"}}, rep.Fields)

	program, err := ldpath.Parse("name = rdfs:label ; latitude = geo:lat :: xsd:double ;")
	require.NoError(t, err)
	d.SetLDPath(program)

	rep, err = d.Dereference(context.Background(), paris)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		namespace.RDFS + "comment": {"Capital of France"},
		"name":                     {"Paris"},
		"latitude":                 {"48.85"},
	}, rep.Fields)
}

func TestParseFieldsConfig(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    []string
		wantErr bool
	}{
		{name: "nil", in: nil, want: nil},
		{name: "comma string", in: "rdfs:comment, geo:lat,,", want: []string{"rdfs:comment", "geo:lat"}},
		{name: "string list", in: []string{" foaf:depiction "}, want: []string{"foaf:depiction"}},
		{name: "any list", in: []any{"geo:long"}, want: []string{"geo:long"}},
		{name: "bad item", in: []any{1}, wantErr: true},
		{name: "bad type", in: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFieldsConfig(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLDPathConfig(t *testing.T) {
	p, err := ParseLDPathConfig(nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = ParseLDPathConfig([]any{"@prefix ex : <http://example.org/> ;", "name = ex:name ;"})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "name", p.Mappings[0].Name)

	_, err = ParseLDPathConfig("name = a / b ;")
	assert.ErrorIs(t, err, ldpath.ErrUnsupported)

	_, err = ParseLDPathConfig(3.5)
	assert.Error(t, err)
}
