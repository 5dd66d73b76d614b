package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("PAR1"), 0o644))
}

func TestDiscoverLayouts(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "building", "building.1.parquet"))
	touch(t, filepath.Join(dir, "trip.parquet"))
	touch(t, filepath.Join(dir, "zone_sf1.parquet"))
	// directory layout wins over single file
	touch(t, filepath.Join(dir, "driver", "driver.1.parquet"))
	touch(t, filepath.Join(dir, "driver.parquet"))

	paths, err := Discover(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "building"), paths["building"])
	assert.Equal(t, filepath.Join(dir, "trip.parquet"), paths["trip"])
	assert.Equal(t, filepath.Join(dir, "zone_sf1.parquet"), paths["zone"])
	assert.Equal(t, filepath.Join(dir, "driver"), paths["driver"])
	assert.Equal(t, []string{"customer", "vehicle"}, Missing(paths))

	assert.Equal(t, filepath.Join(dir, "building", "*.parquet"), Pattern(paths["building"]))
	assert.Equal(t, paths["trip"], Pattern(paths["trip"]))
}

func TestDiscoverEmpty(t *testing.T) {
	_, err := Discover(t.TempDir())
	assert.ErrorIs(t, err, ErrNoTables)
}

func TestDiscoverMissingDir(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
