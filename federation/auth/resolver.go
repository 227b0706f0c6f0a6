package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/BaSui01/agentfed/config"
	"github.com/BaSui01/agentfed/types"
	"go.uber.org/zap"
)

var (
	// ErrUnauthenticated 凭证缺失或无法解析
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrCredentialNotFound 凭证存储中不存在该 keyId
	ErrCredentialNotFound = errors.New("auth: credential not found")
)

// Resolver 把 Bearer 凭证解析为调用方
type Resolver interface {
	Resolve(ctx context.Context, credential string) (types.Caller, error)
}

// ResolverFunc 函数适配器
type ResolverFunc func(ctx context.Context, credential string) (types.Caller, error)

// Resolve 实现 Resolver。
func (f ResolverFunc) Resolve(ctx context.Context, credential string) (types.Caller, error) {
	return f(ctx, credential)
}

// BearerToken 从 Authorization 头取出 Bearer 凭证。
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[7:])
	return token, token != ""
}

// Chain 按凭证格式分派：afk_ 前缀走 API Key，其余走 JWT。
type Chain struct {
	apiKeys *APIKeyResolver
	jwt     *JWTResolver
}

// Resolve 实现 Resolver。
func (c *Chain) Resolve(ctx context.Context, credential string) (types.Caller, error) {
	if strings.HasPrefix(credential, APIKeyPrefix) {
		if c.apiKeys == nil {
			return types.Caller{}, ErrUnauthenticated
		}
		return c.apiKeys.Resolve(ctx, credential)
	}
	if c.jwt == nil {
		return types.Caller{}, ErrUnauthenticated
	}
	return c.jwt.Resolve(ctx, credential)
}

// NewResolver 按配置组装凭证解析器。
func NewResolver(cfg config.AuthConfig, store CredentialStore, logger *zap.Logger) (*Chain, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chain{}
	if cfg.APIKeysEnabled {
		if store == nil {
			return nil, errors.New("auth: api keys enabled without a credential store")
		}
		c.apiKeys = NewAPIKeyResolver(store, logger)
	}
	if cfg.JWT.Secret != "" || cfg.JWT.PublicKey != "" {
		j, err := NewJWTResolver(cfg.JWT, logger)
		if err != nil {
			return nil, err
		}
		c.jwt = j
	}
	if c.apiKeys == nil && c.jwt == nil {
		return nil, errors.New("auth: no credential type enabled")
	}
	return c, nil
}
