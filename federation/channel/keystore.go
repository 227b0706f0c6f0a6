package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrKeyNotFound 协议尚未进入 ACTIVE，没有通道密钥。
var ErrKeyNotFound = errors.New("channel: key not found")

// KeySource 读取封装后的通道密钥，不存在时返回 ErrKeyNotFound。
type KeySource interface {
	LoadChannelKey(ctx context.Context, agreementID string) (string, error)
}

// KeyStore 通道密钥的进程级只读缓存
type KeyStore struct {
	source KeySource
	vault  *Vault
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]Key
	group singleflight.Group
}

// NewKeyStore 创建密钥缓存。
func NewKeyStore(source KeySource, vault *Vault, logger *zap.Logger) *KeyStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyStore{
		source: source,
		vault:  vault,
		logger: logger.With(zap.String("component", "channel_keystore")),
		cache:  make(map[string]Key),
	}
}

// GetChannelKey 返回协议的通道密钥。
func (s *KeyStore) GetChannelKey(ctx context.Context, agreementID string) (Key, error) {
	s.mu.RLock()
	key, ok := s.cache[agreementID]
	s.mu.RUnlock()
	if ok {
		return key, nil
	}

	v, err, _ := s.group.Do(agreementID, func() (any, error) {
		sealed, err := s.source.LoadChannelKey(ctx, agreementID)
		if err != nil {
			return nil, err
		}
		key, err := s.vault.Open(sealed)
		if err != nil {
			s.logger.Error("channel key cannot be opened", zap.String("agreement_id", agreementID), zap.Error(err))
			return nil, fmt.Errorf("open channel key: %w", err)
		}

		s.mu.Lock()
		s.cache[agreementID] = key
		s.mu.Unlock()
		return Key(key), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Key), nil
}
