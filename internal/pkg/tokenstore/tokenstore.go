package tokenstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	resetKeyPrefix   = "qaboard:reset:"
	revokedKeyPrefix = "qaboard:revoked:"
)

// ErrTokenInvalid 表示令牌不存在、已被使用或已过期。
var ErrTokenInvalid = errors.New("token invalid or expired")

// ResetTokens 管理一次性的找回密码令牌。
//
// 令牌明文只出现在发给用户的邮件里，Redis 中存的是其 SHA-256，
// GETDEL 保证每个令牌最多被消费一次。
type ResetTokens struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewResetTokens 创建找回密码令牌存储。ttl 为令牌有效期。
func NewResetTokens(rdb *redis.Client, ttl time.Duration) *ResetTokens {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ResetTokens{rdb: rdb, ttl: ttl}
}

// Issue 为指定用户签发一个新令牌并返回明文。
func (r *ResetTokens) Issue(ctx context.Context, userID uint) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reset token rand: %w", err)
	}
	token := hex.EncodeToString(buf)

	key := resetKeyPrefix + hashToken(token)
	if err := r.rdb.Set(ctx, key, strconv.FormatUint(uint64(userID), 10), r.ttl).Err(); err != nil {
		return "", fmt.Errorf("reset token set: %w", err)
	}
	return token, nil
}

// Consume 消费令牌并返回其对应的用户 ID。令牌随即失效。
func (r *ResetTokens) Consume(ctx context.Context, token string) (uint, error) {
	if token == "" {
		return 0, ErrTokenInvalid
	}
	key := resetKeyPrefix + hashToken(token)
	val, err := r.rdb.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrTokenInvalid
	}
	if err != nil {
		return 0, fmt.Errorf("reset token getdel: %w", err)
	}
	userID, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, ErrTokenInvalid
	}
	return uint(userID), nil
}

// RevocationList 记录已注销的 JWT，直到其自然过期。
type RevocationList struct {
	rdb *redis.Client
}

// NewRevocationList 创建注销令牌名单。
func NewRevocationList(rdb *redis.Client) *RevocationList {
	return &RevocationList{rdb: rdb}
}

// Revoke 将令牌加入名单，ttl 取令牌的剩余有效期。
func (r *RevocationList) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if r == nil || r.rdb == nil || token == "" {
		return nil
	}
	if ttl <= 0 {
		// 已过期的令牌本来就无法通过校验
		return nil
	}
	key := revokedKeyPrefix + hashToken(token)
	if err := r.rdb.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke set: %w", err)
	}
	return nil
}

// IsRevoked 判断令牌是否已注销。
func (r *RevocationList) IsRevoked(ctx context.Context, token string) (bool, error) {
	if r == nil || r.rdb == nil || token == "" {
		return false, nil
	}
	key := revokedKeyPrefix + hashToken(token)
	n, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("revoke exists: %w", err)
	}
	return n > 0, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
