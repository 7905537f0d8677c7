package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/obrador-ops/obrador-ops/internal/shared"
)

type repoStub struct {
	operators map[string]*Operator
}

func (r *repoStub) FindByEmail(ctx context.Context, email string) (*Operator, error) {
	op, ok := r.operators[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return op, nil
}

func (r *repoStub) FindByID(ctx context.Context, id int64) (*Operator, error) {
	for _, op := range r.operators {
		if op.ID == id {
			return op, nil
		}
	}
	return nil, shared.ErrNotFound
}

func newTestService(t *testing.T) (*Service, *repoStub) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &repoStub{operators: map[string]*Operator{
		"ana@obrador.local": {ID: 1, Email: "ana@obrador.local", Name: "Ana", PasswordHash: string(hash), IsActive: true},
	}}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewService(repo, NewTokenStore(client, time.Hour)), repo
}

func TestLoginIssuesResolvableToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	op, token, err := svc.Login(ctx, "ana@obrador.local", "hunter2hunter2")
	require.NoError(t, err)
	require.Equal(t, int64(1), op.ID)
	require.NotEmpty(t, token)

	resolved, err := svc.ResolveToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "Ana", resolved.Name)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Login(ctx, "ana@obrador.local", "wrong-password")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@obrador.local", "hunter2hunter2")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	repo.operators["ana@obrador.local"].IsActive = false
	_, _, err = svc.Login(ctx, "ana@obrador.local", "hunter2hunter2")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, token, err := svc.Login(ctx, "ana@obrador.local", "hunter2hunter2")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, token))

	_, err = svc.ResolveToken(ctx, token)
	require.ErrorIs(t, err, ErrTokenUnknown)
}
