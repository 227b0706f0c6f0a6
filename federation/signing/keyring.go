package signing

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	ErrKeyNotFound = errors.New("signing: key not found")
	// ErrKeyExists 同一版本已被并发写入
	ErrKeyExists = errors.New("signing: key version exists")
)

// StoredKey 落库形式的组织密钥对，私钥已封装。
type StoredKey struct {
	OrganizationID   string
	Version          int
	PublicKey        []byte
	SealedPrivateKey string
	CreatedAt        time.Time
}

// KeyStore 组织密钥的持久化接口，版本不存在返回 ErrKeyNotFound。
type KeyStore interface {
	LatestOrgKey(ctx context.Context, orgID string) (*StoredKey, error)
	OrgPublicKey(ctx context.Context, orgID string, version int) ([]byte, error)
	CreateOrgKey(ctx context.Context, key *StoredKey) error
}

// Sealer 封装私钥材料
type Sealer interface {
	Seal(secret []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

// KeyPair 解封后的组织密钥对
type KeyPair struct {
	OrganizationID string
	Version        int
	Public         ed25519.PublicKey
	Private        ed25519.PrivateKey
	CreatedAt      time.Time
}

// Keyring 管理组织签名密钥的创建、轮换与签名
type Keyring struct {
	store  KeyStore
	sealer Sealer
	logger *zap.Logger
	now    func() time.Time
}

// NewKeyring 创建 Keyring。
func NewKeyring(store KeyStore, sealer Sealer, logger *zap.Logger) *Keyring {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Keyring{
		store:  store,
		sealer: sealer,
		logger: logger.With(zap.String("component", "keyring")),
		now:    time.Now,
	}
}

// Current 返回组织的最新密钥对，不存在时创建版本 1。
func (k *Keyring) Current(ctx context.Context, orgID string) (*KeyPair, error) {
	stored, err := k.store.LatestOrgKey(ctx, orgID)
	if errors.Is(err, ErrKeyNotFound) {
		pair, err := k.create(ctx, orgID, 1)
		if errors.Is(err, ErrKeyExists) {
			// 并发创建时以已落库的版本为准
			stored, err = k.store.LatestOrgKey(ctx, orgID)
			if err != nil {
				return nil, err
			}
			return k.unseal(stored)
		}
		return pair, err
	}
	if err != nil {
		return nil, fmt.Errorf("load org key: %w", err)
	}
	return k.unseal(stored)
}

// Rotate 生成新版本密钥对，旧版本保留。
func (k *Keyring) Rotate(ctx context.Context, orgID string) (*KeyPair, error) {
	next := 1
	stored, err := k.store.LatestOrgKey(ctx, orgID)
	switch {
	case err == nil:
		next = stored.Version + 1
	case !errors.Is(err, ErrKeyNotFound):
		return nil, fmt.Errorf("load org key: %w", err)
	}

	pair, err := k.create(ctx, orgID, next)
	if err != nil {
		return nil, err
	}
	k.logger.Info("org signing key rotated",
		zap.String("organization_id", orgID),
		zap.Int("version", next),
	)
	return pair, nil
}

// SignAs 以组织当前密钥签名，返回签名与密钥版本。
func (k *Keyring) SignAs(ctx context.Context, orgID string, content []byte) (string, int, error) {
	pair, err := k.Current(ctx, orgID)
	if err != nil {
		return "", 0, err
	}
	sig, err := Sign(content, pair.Private)
	if err != nil {
		return "", 0, err
	}
	return sig, pair.Version, nil
}

func (k *Keyring) create(ctx context.Context, orgID string, version int) (*KeyPair, error) {
	pub, priv, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	sealed, err := k.sealer.Seal(priv)
	if err != nil {
		return nil, fmt.Errorf("seal private key: %w", err)
	}

	now := k.now().UTC()
	if err := k.store.CreateOrgKey(ctx, &StoredKey{
		OrganizationID:   orgID,
		Version:          version,
		PublicKey:        pub,
		SealedPrivateKey: sealed,
		CreatedAt:        now,
	}); err != nil {
		return nil, err
	}
	return &KeyPair{OrganizationID: orgID, Version: version, Public: pub, Private: priv, CreatedAt: now}, nil
}

func (k *Keyring) unseal(stored *StoredKey) (*KeyPair, error) {
	priv, err := k.sealer.Open(stored.SealedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("open private key v%d: %w", stored.Version, err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidPrivateKey
	}
	return &KeyPair{
		OrganizationID: stored.OrganizationID,
		Version:        stored.Version,
		Public:         ed25519.PublicKey(stored.PublicKey),
		Private:        ed25519.PrivateKey(priv),
		CreatedAt:      stored.CreatedAt,
	}, nil
}
