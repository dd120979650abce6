package authflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestFileTokenStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens-github.json")
	store := NewFileTokenStoreWithPath(path)

	token := &oauth2.Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}
	require.NoError(t, store.Save(token))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, token.AccessToken, loaded.AccessToken)
	assert.Equal(t, token.RefreshToken, loaded.RefreshToken)
	assert.True(t, token.Expiry.Equal(loaded.Expiry))
}

func TestFileTokenStoreLoadMissing(t *testing.T) {
	store := NewFileTokenStoreWithPath(filepath.Join(t.TempDir(), "tokens-missing.json"))

	_, err := store.Load()
	assert.Error(t, err)
}

func TestFileTokenStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens-github.json")
	store := NewFileTokenStoreWithPath(path)

	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "access-1"}))
	require.NoError(t, store.Clear())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Clearing an already-empty store is not an error.
	assert.NoError(t, store.Clear())
}

func TestFileTokenStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens-github.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	store := NewFileTokenStoreWithPath(path)
	_, err := store.Load()
	assert.Error(t, err)
}
