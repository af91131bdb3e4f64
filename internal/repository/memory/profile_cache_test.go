package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialhub-backend/internal/domain"
)

type countingSource struct {
	*Store
	calls int
}

func (c *countingSource) GetProfile(ctx context.Context, p domain.Principal) (*domain.Profile, error) {
	c.calls++
	return c.Store.GetProfile(ctx, p)
}

func TestProfileCache(t *testing.T) {
	store := NewStore()
	alice := domain.Principal{Kind: domain.PrincipalUser, ID: 1}
	store.PutProfile(&domain.Profile{Principal: alice, Name: "Alice", PushToken: "tok"})

	source := &countingSource{Store: store}
	c := NewProfileCache(source, time.Minute, 10)
	defer c.Close()
	ctx := context.Background()

	p, err := c.GetProfile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)

	p.Name = "mutated"
	p, err = c.GetProfile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, 1, source.calls)

	c.Invalidate(alice)
	_, err = c.GetProfile(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)

	_, err = c.GetProfile(ctx, domain.Principal{Kind: domain.PrincipalAdvertiser, ID: 5})
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}
