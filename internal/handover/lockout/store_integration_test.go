//go:build integration

package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dErrors "petregistry/pkg/domain-errors"
	"petregistry/pkg/requestcontext"
	"petregistry/pkg/testutil/containers"
)

func TestBackends(t *testing.T) {
	pg := containers.Shared().Postgres(t)
	rd := containers.Shared().Redis(t)

	backends := map[string]func(t *testing.T) Store{
		"postgres": func(t *testing.T) Store {
			require.NoError(t, pg.Truncate(context.Background(), "otp_lockouts"))
			return NewPostgresStore(pg.DB)
		},
		"redis": func(t *testing.T) Store {
			require.NoError(t, rd.FlushAll(context.Background()))
			return NewRedisStore(rd.Client)
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("locks after max attempts and clears", func(t *testing.T) {
				g := NewGuard(open(t), Config{MaxAttempts: 3, Window: time.Minute, Duration: time.Minute})
				ctx := requestcontext.WithTime(context.Background(), time.Now())

				for i := 1; i <= 3; i++ {
					require.NoError(t, g.Check(ctx, "res-1"))
					locked, err := g.RecordFailure(ctx, "res-1")
					require.NoError(t, err)
					require.Equal(t, i == 3, locked)
				}
				err := g.Check(ctx, "res-1")
				require.True(t, dErrors.HasCode(err, dErrors.CodeLocked))
				require.NoError(t, g.Check(ctx, "res-2"))

				require.NoError(t, g.Clear(ctx, "res-1"))
				require.NoError(t, g.Check(ctx, "res-1"))
			})

			t.Run("missing key has no record", func(t *testing.T) {
				rec, err := open(t).Get(context.Background(), "nobody")
				require.NoError(t, err)
				require.Nil(t, rec)
			})

			t.Run("failures accumulate", func(t *testing.T) {
				s := open(t)
				now := time.Now()
				for i := 1; i <= 2; i++ {
					rec, err := s.RecordFailure(context.Background(), "res-3", now, time.Minute)
					require.NoError(t, err)
					require.Equal(t, i, rec.Failures)
				}
			})
		})
	}
}
