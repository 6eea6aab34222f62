// Package storetest holds the behaviour every token.Store implementation
// must share. Store packages call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-school-session/token"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Pair builds a credential pair whose tokens share the suffix n, so a reader
// can tell whether both halves came from the same Set.
func Pair(n int) token.Credentials {
	return token.Credentials{
		AccessToken:  fmt.Sprintf("access-%d", n),
		RefreshToken: fmt.Sprintf("refresh-%d", n),
		TokenType:    "bearer",
		ExpiresIn:    3600,
		IssuedAt:     time.Date(2026, 1, 1, 0, 0, n%60, 0, time.UTC),
	}
}

func Run(t *testing.T, newStore func(t *testing.T) token.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx)
		require.ErrorIs(t, err, token.ErrNoCredentials)
	})

	t.Run("set then get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, Pair(1)))

		got, err := s.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, Pair(1).AccessToken, got.AccessToken)
		require.Equal(t, Pair(1).RefreshToken, got.RefreshToken)
		require.Equal(t, Pair(1).ExpiresIn, got.ExpiresIn)
		require.True(t, Pair(1).IssuedAt.Equal(got.IssuedAt))
	})

	t.Run("set replaces the whole pair", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, Pair(1)))
		require.NoError(t, s.Set(ctx, Pair(2)))

		got, err := s.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, "access-2", got.AccessToken)
		require.Equal(t, "refresh-2", got.RefreshToken)
	})

	t.Run("incomplete pair rejected", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, Pair(1)))

		err := s.Set(ctx, token.Credentials{AccessToken: "only-access"})
		require.ErrorIs(t, err, token.ErrIncompleteCredentials)

		got, err := s.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, "access-1", got.AccessToken)
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, Pair(1)))
		require.NoError(t, s.Clear(ctx))
		require.NoError(t, s.Clear(ctx))

		_, err := s.Get(ctx)
		require.ErrorIs(t, err, token.ErrNoCredentials)
	})

	t.Run("readers never see a mixed pair", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, Pair(0)))

		const writes = 100
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			for i := 1; i <= writes; i++ {
				if err := s.Set(gctx, Pair(i)); err != nil {
					return err
				}
			}
			return nil
		})
		for r := 0; r < 4; r++ {
			g.Go(func() error {
				for i := 0; i < writes; i++ {
					got, err := s.Get(gctx)
					if err != nil {
						return err
					}
					access := strings.TrimPrefix(got.AccessToken, "access-")
					refresh := strings.TrimPrefix(got.RefreshToken, "refresh-")
					if access != refresh {
						return fmt.Errorf("mixed pair: %s / %s", got.AccessToken, got.RefreshToken)
					}
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
	})
}
