package filestore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-school-session/token"
	"github.com/jrsteele09/go-school-session/token/filestore"
	"github.com/jrsteele09/go-school-session/token/storetest"
	"github.com/stretchr/testify/require"
)

func TestPlainStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) token.Store {
		return filestore.New(filepath.Join(t.TempDir(), "nested", "credentials.json"))
	})
}

func TestEncryptedStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) token.Store {
		return filestore.New(filepath.Join(t.TempDir(), "credentials.json"), filestore.WithPassphrase("correct horse"))
	})
}

func TestSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	require.NoError(t, filestore.New(path).Set(ctx, storetest.Pair(7)))

	got, err := filestore.New(path).Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-7", got.AccessToken)
	require.Equal(t, "refresh-7", got.RefreshToken)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEncryptedFileHidesTokens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	s := filestore.New(path, filestore.WithPassphrase("correct horse"))
	require.NoError(t, s.Set(ctx, storetest.Pair(3)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "access-3")
	require.NotContains(t, string(raw), "refresh-3")

	t.Run("reopen with passphrase", func(t *testing.T) {
		got, err := filestore.New(path, filestore.WithPassphrase("correct horse")).Get(ctx)
		require.NoError(t, err)
		require.Equal(t, "access-3", got.AccessToken)
	})

	t.Run("no passphrase", func(t *testing.T) {
		_, err := filestore.New(path).Get(ctx)
		require.ErrorIs(t, err, filestore.ErrEncrypted)
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		_, err := filestore.New(path, filestore.WithPassphrase("battery staple")).Get(ctx)
		require.Error(t, err)
		require.Contains(t, err.Error(), "wrong passphrase")
	})
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := filestore.New(path).Get(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, token.ErrNoCredentials)
}
