package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jofongang/World-Monitor/internal/model"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver("")
	require.NoError(t, err)
	return r
}

func TestResolveExplicitCountry(t *testing.T) {
	r := newTestResolver(t)

	loc := r.Resolve("Japan", "", "")
	assert.Equal(t, "Japan", loc.Country)
	assert.Equal(t, "East Asia", loc.Region)
	require.NotNil(t, loc.Lat)
	require.NotNil(t, loc.Lon)
}

func TestResolveAlias(t *testing.T) {
	r := newTestResolver(t)

	loc := r.Resolve("UK", "", "")
	assert.Equal(t, "United Kingdom", loc.Country)
	assert.Equal(t, "Europe", loc.Region)
}

func TestResolveUnknownCountryKeptVerbatim(t *testing.T) {
	r := newTestResolver(t)

	loc := r.Resolve("Atlantis", "Mythical", "")
	assert.Equal(t, "Atlantis", loc.Country)
	assert.Equal(t, "Mythical", loc.Region)
	assert.Nil(t, loc.Lat)
}

func TestResolveDetectsCountryFromText(t *testing.T) {
	r := newTestResolver(t)

	loc := r.Resolve("", "", "Explosion reported near Kyiv overnight")
	assert.Equal(t, "Ukraine", loc.Country)
	assert.Equal(t, "Europe", loc.Region)
}

func TestResolvePrefersLongerAlias(t *testing.T) {
	r := newTestResolver(t)

	loc := r.Resolve("", "", "Talks resume in South Korea this week")
	assert.Equal(t, "South Korea", loc.Country)
}

func TestResolveFallsBackToGlobal(t *testing.T) {
	r := newTestResolver(t)

	loc := r.Resolve("", "", "Nothing geographic in this sentence")
	assert.Equal(t, model.GlobalLabel, loc.Country)
	assert.Equal(t, model.GlobalLabel, loc.Region)
}

func TestResolveGlobalSentinelNotLookedUp(t *testing.T) {
	r := newTestResolver(t)

	loc := r.Resolve("Global", "", "Earthquake shakes Tokyo")
	assert.Equal(t, "Japan", loc.Country, "sentinel country should defer to text detection")
}

func TestNewResolverCustomTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "countries.yaml")
	custom := []byte(`countries:
  - country: Freedonia
    region: Testlands
    lat: 1.5
    lon: 2.5
    aliases: [fredonia]
`)
	require.NoError(t, os.WriteFile(path, custom, 0o600))

	r, err := NewResolver(path)
	require.NoError(t, err)

	loc := r.Resolve("Fredonia", "", "")
	assert.Equal(t, "Freedonia", loc.Country)
	assert.Equal(t, "Testlands", loc.Region)

	// The custom table replaces the default one entirely.
	loc = r.Resolve("Japan", "", "")
	assert.Equal(t, "Japan", loc.Country)
	assert.Nil(t, loc.Lat)
}

func TestNewResolverMissingFile(t *testing.T) {
	_, err := NewResolver(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
