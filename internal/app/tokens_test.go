package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Buzzline/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestNewToken(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)
	assert.Len(t, a, TokenBytes*2)
	assert.NotEqual(t, a, b)
}

func TestMemoryTokens_ExpiryIsInclusive(t *testing.T) {
	clock := newFakeClock()
	tokens := NewMemoryTokens(clock.Now)
	ctx := context.Background()

	tok, exp, err := tokens.Mint(ctx, "room", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Minute), exp)

	clock.Advance(time.Minute)
	got, err := tokens.Validate(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("room"), got)

	clock.Advance(time.Nanosecond)
	_, err = tokens.Validate(ctx, tok)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	assert.ErrorIs(t, tokens.Redeem(ctx, tok, "room"), domain.ErrInvalidToken)
}

func TestMemoryTokens_RotationInvalidatesPrevious(t *testing.T) {
	tokens := NewMemoryTokens(nil)
	ctx := context.Background()

	first, _, err := tokens.Mint(ctx, "room", time.Hour)
	require.NoError(t, err)
	second, _, err := tokens.Mint(ctx, "room", time.Hour)
	require.NoError(t, err)

	_, err = tokens.Validate(ctx, first)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	_, err = tokens.Validate(ctx, second)
	assert.NoError(t, err)

	other, _, err := tokens.Mint(ctx, "other", time.Hour)
	require.NoError(t, err)
	_, err = tokens.Validate(ctx, second)
	assert.NoError(t, err, "minting for another room leaves this slot alone")
	_, err = tokens.Validate(ctx, other)
	assert.NoError(t, err)
}

func TestMemoryTokens_RedeemIsSingleUse(t *testing.T) {
	tokens := NewMemoryTokens(nil)
	ctx := context.Background()

	tok, _, err := tokens.Mint(ctx, "room", time.Hour)
	require.NoError(t, err)

	assert.ErrorIs(t, tokens.Redeem(ctx, tok, "elsewhere"), domain.ErrInvalidToken)
	require.NoError(t, tokens.Redeem(ctx, tok, "room"))
	assert.ErrorIs(t, tokens.Redeem(ctx, tok, "room"), domain.ErrInvalidToken)

	_, err = tokens.Validate(ctx, tok)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestMemoryTokens_ConcurrentRedeemHasOneWinner(t *testing.T) {
	tokens := NewMemoryTokens(nil)
	ctx := context.Background()
	tok, _, err := tokens.Mint(ctx, "room", time.Hour)
	require.NoError(t, err)

	var mu sync.Mutex
	wins := 0
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tokens.Redeem(ctx, tok, "room") == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryTokens_Revoke(t *testing.T) {
	tokens := NewMemoryTokens(nil)
	ctx := context.Background()
	tok, _, err := tokens.Mint(ctx, "room", time.Hour)
	require.NoError(t, err)

	require.NoError(t, tokens.Revoke(ctx, "room"))
	require.NoError(t, tokens.Revoke(ctx, "room"))
	_, err = tokens.Validate(ctx, tok)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	_, err = tokens.Validate(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}
