package credentials

import (
	"context"
	"errors"
	"fmt"

	"Cirkle/backend/go/internal/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var (
	// ErrNoRefreshToken 表示没有可用于刷新的 refresh token。
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrRefreshNotConfigured 表示服务端缺少 Google OAuth 客户端配置。
	ErrRefreshNotConfigured = errors.New("google oauth client is not configured")
)

// Refresher 使用 refresh token 向 Google 换取新的 access token。
type Refresher struct {
	config *oauth2.Config
}

// NewRefresher 根据配置创建 Refresher。tokenURL 为空时使用 Google 的默认地址。
func NewRefresher(cfg config.GoogleOAuthConfig, tokenURL string) *Refresher {
	endpoint := google.Endpoint
	if tokenURL != "" {
		endpoint.TokenURL = tokenURL
	}
	// 与网页端保持一致：client_id / client_secret 放在表单参数中。
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &Refresher{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
		},
	}
}

// Refresh 换取新的令牌。Google 不返回新的 refresh token 时沿用旧值。
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if r == nil || r.config.ClientID == "" || r.config.ClientSecret == "" {
		return nil, ErrRefreshNotConfigured
	}
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("刷新 Google 令牌失败: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}
