package presets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playcue/backend/internal/physics"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestNewStoreSeedsStandardPreset(t *testing.T) {
	s := newTestStore(t)

	cfg, err := s.Get(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, physics.DefaultConfig(), cfg)
	assert.Equal(t, []string{DefaultName}, s.List())
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	cfg := physics.DefaultConfig()
	cfg.TableRestitution = 0.8
	cfg.RollingFriction = 0.08
	require.NoError(t, s.Save("fast-cloth", cfg))

	got, err := s.Get("fast-cloth")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	assert.Equal(t, []string{"fast-cloth", DefaultName}, s.List())
}

func TestSavedPresetSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	cfg := physics.DefaultConfig()
	cfg.PocketRadius = 0.07
	require.NoError(t, s.Save("buckets", cfg))

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	got, err := reopened.Get("buckets")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestBadNamesRejected(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"", "UPPER", "has space", "../escape", "dot.dot", "a/b"} {
		_, err := s.Get(name)
		assert.ErrorIs(t, err, ErrBadName, "get %q", name)
		assert.ErrorIs(t, s.Save(name, physics.DefaultConfig()), ErrBadName, "save %q", name)
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	s := newTestStore(t)
	cfg := physics.DefaultConfig()
	cfg.BallRestitution = 2.0

	err := s.Save("bouncy", cfg)
	require.Error(t, err)
	var ce *physics.ConfigError
	assert.ErrorAs(t, err, &ce)
	_, err = s.Get("bouncy")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReloadSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "negative.json"), []byte(`{"gravity": -1}`), 0o644))

	require.NoError(t, s.Reload())
	assert.Equal(t, []string{DefaultName}, s.List())

	_, err = s.Get("broken")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUnknownPreset(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
