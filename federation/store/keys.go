package store

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/BaSui01/agentfed/federation/signing"
)

// =============================================================================
// ✍️ 组织签名密钥
// =============================================================================

// LatestOrgKey 读取组织最新版本的密钥。
func (s *Store) LatestOrgKey(ctx context.Context, orgID string) (*signing.StoredKey, error) {
	var m orgKeyModel
	err := s.db(ctx).
		Where("organization_id = ?", orgID).
		Order("version DESC").
		First(&m).Error
	if err != nil {
		return nil, notFound(err, signing.ErrKeyNotFound)
	}
	return m.toStored()
}

// OrgPublicKey 读取指定历史版本的公钥。
func (s *Store) OrgPublicKey(ctx context.Context, orgID string, version int) ([]byte, error) {
	var m orgKeyModel
	err := s.db(ctx).
		Select("organization_id", "version", "public_key").
		Where("organization_id = ? AND version = ?", orgID, version).
		First(&m).Error
	if err != nil {
		return nil, notFound(err, signing.ErrKeyNotFound)
	}
	pub, err := base64.StdEncoding.DecodeString(m.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key %s v%d: %w", orgID, version, err)
	}
	return pub, nil
}

// CreateOrgKey 写入新版本密钥，版本已存在时返回 signing.ErrKeyExists。
func (s *Store) CreateOrgKey(ctx context.Context, key *signing.StoredKey) error {
	m := &orgKeyModel{
		OrganizationID:   key.OrganizationID,
		Version:          key.Version,
		PublicKey:        base64.StdEncoding.EncodeToString(key.PublicKey),
		SealedPrivateKey: key.SealedPrivateKey,
		CreatedAt:        utc(key.CreatedAt),
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	if err := s.db(ctx).Create(m).Error; err != nil {
		if isDuplicate(err) {
			return signing.ErrKeyExists
		}
		return fmt.Errorf("create org key: %w", err)
	}
	return nil
}

func (m *orgKeyModel) toStored() (*signing.StoredKey, error) {
	pub, err := base64.StdEncoding.DecodeString(m.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key %s v%d: %w", m.OrganizationID, m.Version, err)
	}
	return &signing.StoredKey{
		OrganizationID:   m.OrganizationID,
		Version:          m.Version,
		PublicKey:        pub,
		SealedPrivateKey: m.SealedPrivateKey,
		CreatedAt:        m.CreatedAt,
	}, nil
}
