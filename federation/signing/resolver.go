package signing

import (
	"context"
	"crypto/ed25519"
	"errors"

	"go.uber.org/zap"
)

// KeyRef 公钥缓存的复合键
type KeyRef struct {
	OrgID   string
	Version int
}

// Status 单条消息的签名校验结果
type Status string

const (
	StatusVerified     Status = "verified"
	StatusInvalid      Status = "invalid"
	StatusUnverifiable Status = "unverifiable"
)

// Resolver 批次内的公钥解析器，不可跨请求复用。
type Resolver struct {
	store  KeyStore
	logger *zap.Logger
	cache  map[KeyRef]ed25519.PublicKey
}

// NewResolver 为一次批量验证创建解析器。
func NewResolver(store KeyStore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:  store,
		logger: logger,
		cache:  make(map[KeyRef]ed25519.PublicKey),
	}
}

// ResolvePublicKey 返回指定版本的公钥，不存在返回 false。
func (r *Resolver) ResolvePublicKey(ctx context.Context, orgID string, version int) (ed25519.PublicKey, bool) {
	ref := KeyRef{OrgID: orgID, Version: version}
	if pub, ok := r.cache[ref]; ok {
		return pub, pub != nil
	}

	raw, err := r.store.OrgPublicKey(ctx, orgID, version)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			// 查询失败只影响本条消息，不缓存
			r.logger.Warn("public key lookup failed",
				zap.String("organization_id", orgID),
				zap.Int("version", version),
				zap.Error(err),
			)
			return nil, false
		}
		r.cache[ref] = nil
		return nil, false
	}
	if len(raw) != ed25519.PublicKeySize {
		r.cache[ref] = nil
		return nil, false
	}
	pub := ed25519.PublicKey(raw)
	r.cache[ref] = pub
	return pub, true
}

// Check 校验消息签名。缺少签名、版本或公钥时为 unverifiable。
func (r *Resolver) Check(ctx context.Context, orgID string, version *int, content []byte, signature string) Status {
	if signature == "" || version == nil {
		return StatusUnverifiable
	}
	pub, ok := r.ResolvePublicKey(ctx, orgID, *version)
	if !ok {
		return StatusUnverifiable
	}
	if !Verify(content, signature, pub) {
		return StatusInvalid
	}
	return StatusVerified
}
