package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Buzzline/internal/domain"
)

// TokenBytes is the entropy of a join token.
const TokenBytes = 32

// TokenIssuer mints and checks join tokens. Each room has a single token
// slot: minting replaces the previous token, a successful join redeems it.
type TokenIssuer interface {
	Mint(ctx context.Context, roomID domain.RoomID, ttl time.Duration) (string, time.Time, error)
	// Validate is read-only; it reports the room the token is bound to.
	Validate(ctx context.Context, token string) (domain.RoomID, error)
	// Redeem consumes the token if it is the room's current, unexpired token.
	Redeem(ctx context.Context, token string, roomID domain.RoomID) error
	Revoke(ctx context.Context, roomID domain.RoomID) error
}

// NewToken returns a hex encoded random token.
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

type tokenEntry struct {
	roomID    domain.RoomID
	expiresAt time.Time
}

// MemoryTokens is an in-process TokenIssuer. Slots are keyed by room so
// unrelated rooms never contend.
type MemoryTokens struct {
	now    func() time.Time
	tokens sync.Map // token -> tokenEntry
	slots  sync.Map // domain.RoomID -> token
}

func NewMemoryTokens(now func() time.Time) *MemoryTokens {
	if now == nil {
		now = time.Now
	}
	return &MemoryTokens{now: now}
}

func (t *MemoryTokens) Mint(_ context.Context, roomID domain.RoomID, ttl time.Duration) (string, time.Time, error) {
	tok, err := NewToken()
	if err != nil {
		return "", time.Time{}, err
	}
	exp := t.now().Add(ttl)
	t.tokens.Store(tok, tokenEntry{roomID: roomID, expiresAt: exp})
	if old, loaded := t.slots.Swap(roomID, tok); loaded {
		t.tokens.Delete(old)
	}
	return tok, exp, nil
}

func (t *MemoryTokens) lookup(token string) (tokenEntry, bool) {
	v, ok := t.tokens.Load(token)
	if !ok {
		return tokenEntry{}, false
	}
	e := v.(tokenEntry)
	cur, ok := t.slots.Load(e.roomID)
	if !ok || cur.(string) != token {
		return tokenEntry{}, false
	}
	if t.now().After(e.expiresAt) {
		return tokenEntry{}, false
	}
	return e, true
}

func (t *MemoryTokens) Validate(_ context.Context, token string) (domain.RoomID, error) {
	e, ok := t.lookup(token)
	if !ok {
		return "", domain.ErrInvalidToken
	}
	return e.roomID, nil
}

func (t *MemoryTokens) Redeem(_ context.Context, token string, roomID domain.RoomID) error {
	e, ok := t.lookup(token)
	if !ok || e.roomID != roomID {
		return domain.ErrInvalidToken
	}
	if !t.slots.CompareAndDelete(roomID, token) {
		return domain.ErrInvalidToken
	}
	t.tokens.Delete(token)
	return nil
}

func (t *MemoryTokens) Revoke(_ context.Context, roomID domain.RoomID) error {
	if old, loaded := t.slots.LoadAndDelete(roomID); loaded {
		t.tokens.Delete(old)
	}
	return nil
}
