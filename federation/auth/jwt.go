package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/BaSui01/agentfed/config"
	"github.com/BaSui01/agentfed/types"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Claims 联邦调用方 JWT 声明
type Claims struct {
	OrganizationID string `json:"org_id"`
	jwt.RegisteredClaims
}

// JWTResolver 校验 HS256/RS256 Bearer JWT
type JWTResolver struct {
	hmacSecret []byte
	rsaKey     *rsa.PublicKey
	parser     *jwt.Parser
	logger     *zap.Logger
}

// NewJWTResolver 创建 JWT 解析器。
func NewJWTResolver(cfg config.JWTConfig, logger *zap.Logger) (*JWTResolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &JWTResolver{
		hmacSecret: []byte(cfg.Secret),
		logger:     logger.With(zap.String("component", "jwt_auth")),
	}

	if cfg.PublicKey != "" {
		key, err := parseRSAPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		j.rsaKey = key
	}
	if len(j.hmacSecret) == 0 && j.rsaKey == nil {
		return nil, errors.New("auth: jwt requires a secret or a public key")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "RS256"}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	j.parser = jwt.NewParser(opts...)
	return j, nil
}

func parseRSAPublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("auth: failed to decode PEM block for RSA public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse RSA public key: %w", err)
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("auth: public key is not RSA")
	}
	return key, nil
}

func (j *JWTResolver) keyFunc(token *jwt.Token) (any, error) {
	switch token.Method.Alg() {
	case "HS256":
		if len(j.hmacSecret) == 0 {
			return nil, errors.New("HMAC secret not configured")
		}
		return j.hmacSecret, nil
	case "RS256":
		if j.rsaKey == nil {
			return nil, errors.New("RSA public key not configured")
		}
		return j.rsaKey, nil
	}
	return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
}

// Resolve 实现 Resolver。
func (j *JWTResolver) Resolve(_ context.Context, credential string) (types.Caller, error) {
	var claims Claims
	token, err := j.parser.ParseWithClaims(credential, &claims, j.keyFunc)
	if err != nil || !token.Valid {
		j.logger.Debug("JWT validation failed", zap.Error(err))
		return types.Caller{}, ErrUnauthenticated
	}
	if claims.OrganizationID == "" {
		return types.Caller{}, ErrUnauthenticated
	}

	keyID := claims.ID
	if keyID == "" {
		keyID = "jwt:" + claims.Subject
	}
	return types.Caller{
		OrganizationID: claims.OrganizationID,
		UserID:         claims.Subject,
		KeyID:          keyID,
	}, nil
}
