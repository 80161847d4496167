// Package redistokens keeps join-token slots in Redis so several signaling
// nodes share one token per room.
package redistokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/Buzzline/internal/app"
	"github.com/dkeye/Buzzline/internal/domain"
)

// KEYS[1] slot, KEYS[2] new token key; ARGV token, room, expiry (unix ms), token key prefix.
var mintScript = redis.NewScript(`
local old = redis.call('GET', KEYS[1])
if old then redis.call('DEL', ARGV[4] .. old) end
redis.call('SET', KEYS[2], ARGV[2], 'PXAT', ARGV[3])
redis.call('SET', KEYS[1], ARGV[1], 'PXAT', ARGV[3])
return 1
`)

// KEYS[1] token key, KEYS[2] slot; ARGV room, token.
var redeemScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then return 0 end
if redis.call('GET', KEYS[2]) ~= ARGV[2] then return 0 end
redis.call('DEL', KEYS[1], KEYS[2])
return 1
`)

// KEYS[1] slot; ARGV token key prefix.
var revokeScript = redis.NewScript(`
local old = redis.call('GET', KEYS[1])
if old then redis.call('DEL', ARGV[1] .. old) end
redis.call('DEL', KEYS[1])
return 1
`)

// Issuer implements app.TokenIssuer on Redis. A token key expires one
// millisecond after its expiry so the expiry instant itself is still valid.
type Issuer struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func New(rdb redis.UniversalClient, prefix string) *Issuer {
	return &Issuer{rdb: rdb, prefix: prefix, now: time.Now}
}

func (i *Issuer) tokenKey(token string) string        { return i.prefix + "token:" + token }
func (i *Issuer) slotKey(roomID domain.RoomID) string { return i.prefix + "slot:" + string(roomID) }

func (i *Issuer) Mint(ctx context.Context, roomID domain.RoomID, ttl time.Duration) (string, time.Time, error) {
	tok, err := app.NewToken()
	if err != nil {
		return "", time.Time{}, err
	}
	exp := i.now().Add(ttl)
	keys := []string{i.slotKey(roomID), i.tokenKey(tok)}
	if err := mintScript.Run(ctx, i.rdb, keys, tok, string(roomID), exp.UnixMilli()+1, i.prefix+"token:").Err(); err != nil {
		return "", time.Time{}, fmt.Errorf("redistokens: mint for %s: %w", roomID, err)
	}
	return tok, exp, nil
}

func (i *Issuer) Validate(ctx context.Context, token string) (domain.RoomID, error) {
	if token == "" {
		return "", domain.ErrInvalidToken
	}
	roomID, err := i.rdb.Get(ctx, i.tokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("redistokens: validate: %w", err)
	}
	cur, err := i.rdb.Get(ctx, i.slotKey(domain.RoomID(roomID))).Result()
	if errors.Is(err, redis.Nil) || (err == nil && cur != token) {
		return "", domain.ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("redistokens: validate: %w", err)
	}
	return domain.RoomID(roomID), nil
}

func (i *Issuer) Redeem(ctx context.Context, token string, roomID domain.RoomID) error {
	if token == "" {
		return domain.ErrInvalidToken
	}
	ok, err := redeemScript.Run(ctx, i.rdb, []string{i.tokenKey(token), i.slotKey(roomID)}, string(roomID), token).Int()
	if err != nil {
		return fmt.Errorf("redistokens: redeem: %w", err)
	}
	if ok != 1 {
		return domain.ErrInvalidToken
	}
	return nil
}

func (i *Issuer) Revoke(ctx context.Context, roomID domain.RoomID) error {
	if err := revokeScript.Run(ctx, i.rdb, []string{i.slotKey(roomID)}, i.prefix+"token:").Err(); err != nil {
		return fmt.Errorf("redistokens: revoke %s: %w", roomID, err)
	}
	return nil
}

var _ app.TokenIssuer = (*Issuer)(nil)
