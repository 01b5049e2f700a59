package estimai

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTokenStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "token")
	st := NewFileTokenStore(path)

	// Empty before first save.
	token, err := st.Load()
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, st.Save("abc123"))

	token, err = st.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileTokenStore_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	st := NewFileTokenStore(path)

	require.NoError(t, st.Save("abc123"))
	require.NoError(t, st.Clear())

	token, err := st.Load()
	require.NoError(t, err)
	assert.Empty(t, token)

	// Clearing an already-empty store is not an error.
	require.NoError(t, st.Clear())
}

func TestFileTokenStore_TrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("  abc123\n"), 0o600))

	st := NewFileTokenStore(path)
	token, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
}
