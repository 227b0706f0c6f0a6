package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/agentfed/types"
	"go.uber.org/zap"
)

// APIKeyPrefix API Key 前缀
const APIKeyPrefix = "afk_"

// Credential 落库的 API 凭证，只保存 secret 摘要。
type Credential struct {
	ID             string
	OrganizationID string
	UserID         string
	SecretHash     string
	Label          string
	RevokedAt      *time.Time
	CreatedAt      time.Time
}

// CredentialStore 凭证存储，不存在返回 ErrCredentialNotFound。
type CredentialStore interface {
	CredentialByID(ctx context.Context, id string) (*Credential, error)
}

// APIKeyResolver 解析 afk_ 凭证
type APIKeyResolver struct {
	store  CredentialStore
	logger *zap.Logger
	now    func() time.Time
}

// NewAPIKeyResolver 创建 API Key 解析器。
func NewAPIKeyResolver(store CredentialStore, logger *zap.Logger) *APIKeyResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIKeyResolver{
		store:  store,
		logger: logger.With(zap.String("component", "apikey_auth")),
		now:    time.Now,
	}
}

// Resolve 实现 Resolver。
func (a *APIKeyResolver) Resolve(ctx context.Context, credential string) (types.Caller, error) {
	keyID, secret, ok := ParseAPIKey(credential)
	if !ok {
		return types.Caller{}, ErrUnauthenticated
	}

	cred, err := a.store.CredentialByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return types.Caller{}, ErrUnauthenticated
		}
		return types.Caller{}, fmt.Errorf("load credential: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(HashSecret(secret)), []byte(cred.SecretHash)) != 1 {
		a.logger.Debug("api key secret mismatch", zap.String("key_id", keyID))
		return types.Caller{}, ErrUnauthenticated
	}
	if cred.RevokedAt != nil && !cred.RevokedAt.After(a.now()) {
		a.logger.Debug("revoked api key presented", zap.String("key_id", keyID))
		return types.Caller{}, ErrUnauthenticated
	}

	return types.Caller{
		OrganizationID: cred.OrganizationID,
		UserID:         cred.UserID,
		KeyID:          cred.ID,
	}, nil
}

// ParseAPIKey 拆分 afk_<keyId>_<secret>，secret 可以包含下划线。
func ParseAPIKey(token string) (keyID, secret string, ok bool) {
	if !strings.HasPrefix(token, APIKeyPrefix) {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(token, APIKeyPrefix), "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// HashSecret 返回 secret 的十六进制 SHA-256 摘要。
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// IssueAPIKey 生成新的 API Key，返回明文凭证与待落库的记录。
func IssueAPIKey(orgID, userID, label string) (string, *Credential, error) {
	if orgID == "" {
		return "", nil, errors.New("auth: organization id is required")
	}
	idBytes := make([]byte, 8)
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return "", nil, fmt.Errorf("generate key id: %w", err)
	}
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, fmt.Errorf("generate secret: %w", err)
	}

	keyID := hex.EncodeToString(idBytes)
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	cred := &Credential{
		ID:             keyID,
		OrganizationID: orgID,
		UserID:         userID,
		SecretHash:     HashSecret(secret),
		Label:          label,
		CreatedAt:      time.Now().UTC(),
	}
	return APIKeyPrefix + keyID + "_" + secret, cred, nil
}
