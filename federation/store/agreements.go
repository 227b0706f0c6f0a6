package store

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/agentfed/federation"
	"github.com/BaSui01/agentfed/federation/channel"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// =============================================================================
// 🤝 协议
// =============================================================================

// Transition 一次带期望源状态的状态迁移
type Transition struct {
	AgreementID string
	From        federation.Status
	To          federation.Status
	Reason      string
	At          time.Time
}

// ChannelKeyRecord 封装后的通道密钥
type ChannelKeyRecord struct {
	AgreementID string
	Cipher      string
	SealedKey   string
	CreatedAt   time.Time
}

// Activation 迁移到 ACTIVE 时一并写入的治理参数与 Exposure。
// ChannelKey 仅在首次激活时提供，已存在时保持原值。
type Activation struct {
	AgreementID string
	From        federation.Status
	Governance  federation.Governance
	ApprovedAt  time.Time
	Exposures   []federation.Exposure
	ChannelKey  *ChannelKeyRecord
}

// CreateAgreement 写入新协议。
func (s *Store) CreateAgreement(ctx context.Context, a *federation.Agreement) error {
	m := agreementFromDomain(a)
	m.CreatedAt = utc(m.CreatedAt)
	m.UpdatedAt = utc(m.UpdatedAt)
	if err := s.db(ctx).Create(m).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create agreement: %w", err)
	}
	return nil
}

// GetAgreement 按 ID 读取协议。
func (s *Store) GetAgreement(ctx context.Context, id string) (*federation.Agreement, error) {
	var m agreementModel
	if err := s.db(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return m.toDomain(), nil
}

// ListAgreements 列出组织参与的全部协议，新建的在前。
func (s *Store) ListAgreements(ctx context.Context, orgID string) ([]federation.Agreement, error) {
	var rows []agreementModel
	err := s.db(ctx).
		Where("initiator_org_id = ? OR responder_org_id = ?", orgID, orgID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	out := make([]federation.Agreement, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toDomain())
	}
	return out, nil
}

// FindActiveAgreement 查找两组织间的 ACTIVE 协议，与发起方向无关。
func (s *Store) FindActiveAgreement(ctx context.Context, orgA, orgB string) (*federation.Agreement, error) {
	var m agreementModel
	err := s.db(ctx).
		Where("status = ?", string(federation.StatusActive)).
		Where("(initiator_org_id = ? AND responder_org_id = ?) OR (initiator_org_id = ? AND responder_org_id = ?)",
			orgA, orgB, orgB, orgA).
		Order("approved_at DESC").
		First(&m).Error
	if err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return m.toDomain(), nil
}

// TransitionAgreement 条件更新状态，源状态已变化时返回 ErrConflict。
func (s *Store) TransitionAgreement(ctx context.Context, t Transition) error {
	return s.transition(s.db(ctx), t)
}

func (s *Store) transition(db *gorm.DB, t Transition) error {
	at := t.At
	if at.IsZero() {
		at = s.now()
	}
	res := db.Model(&agreementModel{}).
		Where("id = ? AND status = ?", t.AgreementID, string(t.From)).
		Updates(map[string]any{
			"status":        string(t.To),
			"status_reason": t.Reason,
			"updated_at":    utc(at),
		})
	if res.Error != nil {
		return fmt.Errorf("transition agreement: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// ActivateAgreement 在同一事务内写入治理参数、Exposure 与通道密钥并迁移到 ACTIVE。
func (s *Store) ActivateAgreement(ctx context.Context, act Activation) error {
	at := utc(act.ApprovedAt)
	if at.IsZero() {
		at = s.now()
	}
	gov := act.Governance

	return s.pm.WithTransactionRetry(ctx, activationRetries, func(tx *gorm.DB) error {
		res := tx.Model(&agreementModel{}).
			Where("id = ? AND status = ?", act.AgreementID, string(act.From)).
			Updates(map[string]any{
				"status":                 string(federation.StatusActive),
				"status_reason":          "",
				"max_requests_per_hour":  gov.MaxRequestsPerHour,
				"max_requests_per_day":   gov.MaxRequestsPerDay,
				"data_classification":    string(gov.DataClassification),
				"allow_file_transfer":    gov.AllowFileTransfer,
				"require_human_approval": gov.RequireHumanApproval,
				"block_excess_levels":    gov.BlockExcessLevels,
				"approved_at":            at,
				"updated_at":             at,
			})
		if res.Error != nil {
			return fmt.Errorf("activate agreement: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		for _, e := range act.Exposures {
			if e.ID == "" {
				e.ID = uuid.NewString()
			}
			m := &exposureModel{
				ID:            e.ID,
				AgreementID:   act.AgreementID,
				OwnerOrgID:    e.OwnerOrgID,
				AgentID:       e.AgentID,
				ExposedSkills: stringList(e.ExposedSkills),
				Enabled:       e.Enabled,
				CreatedAt:     at,
				UpdatedAt:     at,
			}
			// 重新审批时同一 Agent 的 Exposure 只更新技能与开关
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "agreement_id"}, {Name: "owner_org_id"}, {Name: "agent_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"exposed_skills", "enabled", "updated_at"}),
			}).Create(m).Error
			if err != nil {
				return fmt.Errorf("upsert exposure: %w", err)
			}
		}

		if act.ChannelKey != nil {
			k := &channelKeyModel{
				AgreementID: act.AgreementID,
				Cipher:      act.ChannelKey.Cipher,
				SealedKey:   act.ChannelKey.SealedKey,
				CreatedAt:   at,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(k).Error; err != nil {
				return fmt.Errorf("provision channel key: %w", err)
			}
		}

		s.logger.Debug("agreement activated",
			zap.String("agreement_id", act.AgreementID),
			zap.String("from", string(act.From)),
			zap.Int("exposures", len(act.Exposures)),
		)
		return nil
	})
}

// =============================================================================
// 🔑 通道密钥
// =============================================================================

// LoadChannelKey 读取封装后的通道密钥，实现 channel.KeySource。
func (s *Store) LoadChannelKey(ctx context.Context, agreementID string) (string, error) {
	rec, err := s.ChannelKey(ctx, agreementID)
	if err != nil {
		return "", err
	}
	return rec.SealedKey, nil
}

// ChannelKey 读取通道密钥记录。
func (s *Store) ChannelKey(ctx context.Context, agreementID string) (*ChannelKeyRecord, error) {
	var m channelKeyModel
	if err := s.db(ctx).Where("agreement_id = ?", agreementID).First(&m).Error; err != nil {
		return nil, notFound(err, channel.ErrKeyNotFound)
	}
	return &ChannelKeyRecord{
		AgreementID: m.AgreementID,
		Cipher:      m.Cipher,
		SealedKey:   m.SealedKey,
		CreatedAt:   m.CreatedAt,
	}, nil
}
