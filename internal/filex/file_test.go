package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir_CreatesNestedAndIsIdempotent(t *testing.T) {
	tmp := t.TempDir()
	want := filepath.Join(tmp, "user_1", "nested")

	got, err := EnsureDir(want)
	require.NoError(t, err)
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	again, err := EnsureDir(want)
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestEnsureDir_FailsWhenParentIsFile(t *testing.T) {
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := EnsureDir(filepath.Join(blocker, "sub"))
	require.Error(t, err)
}

func TestRemoveIfExists(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "blob")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))

	require.NoError(t, RemoveIfExists(p))
	assert.NoFileExists(t, p)

	// second removal of a missing file is fine
	require.NoError(t, RemoveIfExists(p))
	require.NoError(t, RemoveIfExists(""))
}
