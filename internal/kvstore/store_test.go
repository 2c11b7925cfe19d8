package kvstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

func TestPutGetDelete(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	var got sample
	require.ErrorIs(t, s.Get("session", &got), ErrNotFound)

	require.NoError(t, s.Put("session", sample{UserID: 7, Name: "ivan"}))
	require.NoError(t, s.Get("session", &got))
	assert.Equal(t, sample{UserID: 7, Name: "ivan"}, got)

	require.NoError(t, s.Delete("session"))
	require.NoError(t, s.Delete("session"))
	assert.ErrorIs(t, s.Get("session", &got), ErrNotFound)
}

func TestGetCorruptValue(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gameclock.json"), []byte("{not json"), 0o600))

	var got sample
	assert.ErrorIs(t, s.Get("gameclock", &got), ErrCorrupt)
}

func TestInvalidKey(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Put("../escape", sample{}))
	assert.Error(t, s.Get("", &sample{}))
}

func TestDefaultDirHonoursEnv(t *testing.T) {
	t.Setenv("BANKSIM_HOME", "/tmp/banksim-test-home")
	dir, err := DefaultDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/banksim-test-home", dir)
}
