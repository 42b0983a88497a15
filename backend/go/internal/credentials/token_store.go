package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Cirkle/backend/go/internal/models"
	"Cirkle/backend/go/pkg/logger"

	"github.com/go-redis/redis/v8"
	"golang.org/x/oauth2"
)

// DefaultKeyPrefix 是令牌在 Redis 中的键前缀，完整键为 prefix + userID。
const DefaultKeyPrefix = "cirkle:google_token:"

// 距离过期不足该时长时视为已过期，提前刷新。
const expirySkew = 30 * time.Second

// RedisTokenStore 按用户保存 Google Drive 的 OAuth 令牌，并在读取时按需刷新。
type RedisTokenStore struct {
	client    *redis.Client
	prefix    string
	refresher *Refresher
	logger    *logger.Logger
	now       func() time.Time
}

// Option 用于定制 RedisTokenStore。
type Option func(*RedisTokenStore)

// WithRefresher 启用过期令牌的自动刷新。
func WithRefresher(r *Refresher) Option {
	return func(s *RedisTokenStore) { s.refresher = r }
}

// WithLogger 设置日志记录器。
func WithLogger(l *logger.Logger) Option {
	return func(s *RedisTokenStore) { s.logger = l }
}

// WithKeyPrefix 覆盖默认的键前缀。
func WithKeyPrefix(prefix string) Option {
	return func(s *RedisTokenStore) { s.prefix = prefix }
}

// NewRedisTokenStore 创建一个 RedisTokenStore。
func NewRedisTokenStore(client *redis.Client, opts ...Option) *RedisTokenStore {
	s := &RedisTokenStore{
		client: client,
		prefix: DefaultKeyPrefix,
		logger: logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisTokenStore) key(userID string) string {
	return s.prefix + userID
}

// SaveToken 保存用户的令牌。新令牌没有 refresh token 时保留已有的值。
func (s *RedisTokenStore) SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("access token is required")
	}
	toSave := *tok
	if toSave.RefreshToken == "" {
		existing, err := s.load(ctx, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			toSave.RefreshToken = existing.RefreshToken
		}
	}

	data, err := json.Marshal(&toSave)
	if err != nil {
		return fmt.Errorf("序列化令牌失败: %w", err)
	}
	return s.client.Set(ctx, s.key(userID), data, 0).Err()
}

// DeleteToken 删除用户的令牌，例如用户撤销授权之后。
func (s *RedisTokenStore) DeleteToken(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.key(userID)).Err()
}

// Token 返回用户当前保存的令牌，不做刷新。不存在时返回 nil。
func (s *RedisTokenStore) Token(ctx context.Context, userID string) (*oauth2.Token, error) {
	return s.load(ctx, userID)
}

// AccessToken 返回一个可用的 access token。
// 令牌过期时尝试刷新；刷新失败视为没有令牌而不是错误，只有存储故障才返回 error。
func (s *RedisTokenStore) AccessToken(ctx context.Context, userID string) (string, bool, error) {
	tok, err := s.load(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if tok == nil || tok.AccessToken == "" {
		return "", false, nil
	}
	if !s.expired(tok) {
		return tok.AccessToken, true, nil
	}

	log := s.logger.WithField("user_id", userID)
	if tok.RefreshToken == "" || s.refresher == nil {
		log.Debug("Stored access token expired and cannot be refreshed")
		return "", false, nil
	}

	fresh, err := s.refresher.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		log.WithError(models.NewErrorInfo(err, "token_refresh_error")).Warn("Failed to refresh access token")
		return "", false, nil
	}
	if err := s.SaveToken(ctx, userID, fresh); err != nil {
		log.WithError(models.NewErrorInfo(err, "token_store_error")).Warn("Failed to persist refreshed access token")
	}
	return fresh.AccessToken, true, nil
}

// Refresh 强制刷新用户的令牌并保存结果。refreshToken 为空时使用已保存的值。
func (s *RedisTokenStore) Refresh(ctx context.Context, userID, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		existing, err := s.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		if existing == nil || existing.RefreshToken == "" {
			return nil, ErrNoRefreshToken
		}
		refreshToken = existing.RefreshToken
	}
	if s.refresher == nil {
		return nil, ErrRefreshNotConfigured
	}
	fresh, err := s.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if err := s.SaveToken(ctx, userID, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (s *RedisTokenStore) expired(tok *oauth2.Token) bool {
	if tok.Expiry.IsZero() {
		return false
	}
	return !s.now().Add(expirySkew).Before(tok.Expiry)
}

func (s *RedisTokenStore) load(ctx context.Context, userID string) (*oauth2.Token, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取令牌失败: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("解析令牌失败: %w", err)
	}
	return &tok, nil
}
