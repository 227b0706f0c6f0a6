package store

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentfed/federation/audit"
	"github.com/BaSui01/agentfed/federation/auth"
)

// =============================================================================
// 🔐 API 凭证
// =============================================================================

// CreateCredential 写入凭证摘要。
func (s *Store) CreateCredential(ctx context.Context, c *auth.Credential) error {
	m := &credentialModel{
		ID:             c.ID,
		OrganizationID: c.OrganizationID,
		UserID:         c.UserID,
		SecretHash:     c.SecretHash,
		Label:          c.Label,
		CreatedAt:      utc(c.CreatedAt),
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	if err := s.db(ctx).Create(m).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// CredentialByID 读取凭证，实现 auth.CredentialStore。
func (s *Store) CredentialByID(ctx context.Context, id string) (*auth.Credential, error) {
	var m credentialModel
	if err := s.db(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, auth.ErrCredentialNotFound)
	}
	return &auth.Credential{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		UserID:         m.UserID,
		SecretHash:     m.SecretHash,
		Label:          m.Label,
		RevokedAt:      m.RevokedAt,
		CreatedAt:      m.CreatedAt,
	}, nil
}

// RevokeCredential 吊销凭证，已吊销的保持原吊销时间。
func (s *Store) RevokeCredential(ctx context.Context, id string) error {
	res := s.db(ctx).Model(&credentialModel{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", s.now())
	if res.Error != nil {
		return fmt.Errorf("revoke credential: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.CredentialByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// 📋 审计
// =============================================================================

// AppendAuditRecord 写入审计记录，实现 audit.RecordWriter。
func (s *Store) AppendAuditRecord(ctx context.Context, r audit.Record) error {
	m := &auditRecordModel{
		ID:          r.ID,
		Action:      r.Action,
		EntityType:  r.EntityType,
		EntityID:    r.EntityID,
		ActorOrgID:  r.ActorOrgID,
		ActorID:     r.ActorID,
		BeforeState: optionalString(r.BeforeState),
		AfterState:  optionalString(r.AfterState),
		CreatedAt:   utc(r.CreatedAt),
	}
	if err := s.db(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// AuditTrail 按时间返回实体的审计记录。
func (s *Store) AuditTrail(ctx context.Context, entityType, entityID string) ([]audit.Record, error) {
	var rows []auditRecordModel
	err := s.db(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load audit trail: %w", err)
	}
	out := make([]audit.Record, 0, len(rows))
	for _, m := range rows {
		r := audit.Record{
			ID:         m.ID,
			Action:     m.Action,
			EntityType: m.EntityType,
			EntityID:   m.EntityID,
			ActorOrgID: m.ActorOrgID,
			ActorID:    m.ActorID,
			CreatedAt:  m.CreatedAt,
		}
		if m.BeforeState != nil {
			r.BeforeState = *m.BeforeState
		}
		if m.AfterState != nil {
			r.AfterState = *m.AfterState
		}
		out = append(out, r)
	}
	return out, nil
}
