package cli

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestToken_Keyring(t *testing.T) {
	keyring.MockInit()
	home := t.TempDir()

	token, err := getToken(home)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, saveToken(home, "abc"))
	token, err = getToken(home)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = os.Stat(tokenFilePath(home))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, deleteToken(home))
	token, err = getToken(home)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestToken_FileFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("no keychain"))
	t.Cleanup(keyring.MockInit)
	home := t.TempDir()

	require.NoError(t, saveToken(home, "abc"))
	b, err := os.ReadFile(tokenFilePath(home))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(b))

	token, err := getToken(home)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	require.NoError(t, deleteToken(home))
	_, err = os.Stat(tokenFilePath(home))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestToken_MigratesFile(t *testing.T) {
	keyring.MockInit()
	home := t.TempDir()
	require.NoError(t, saveTokenFile(home, "from-file\n"))

	token, err := getToken(home)
	require.NoError(t, err)
	assert.Equal(t, "from-file", token)

	_, err = os.Stat(tokenFilePath(home))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	stored, err := keyring.Get(keyringService, keyringUser)
	require.NoError(t, err)
	assert.Equal(t, "from-file", stored)
}

func TestReadToken(t *testing.T) {
	token, err := readToken(strings.NewReader("  abc \n"))
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	token, err = readToken(strings.NewReader("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)
}
