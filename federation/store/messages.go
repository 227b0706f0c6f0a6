package store

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/agentfed/federation"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// =============================================================================
// 📒 消息日志
// =============================================================================

// AppendMessage 追加一条消息，ID 与创建时间为空时自动补齐。
func (s *Store) AppendMessage(ctx context.Context, msg *federation.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.CreatedAt = utc(msg.CreatedAt)
	if err := s.db(ctx).Create(messageFromDomain(msg)).Error; err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListConversation 按创建时间返回会话内全部消息。
func (s *Store) ListConversation(ctx context.Context, agreementID, conversationID string) ([]federation.Message, error) {
	var rows []messageModel
	err := s.db(ctx).
		Where("agreement_id = ? AND conversation_id = ?", agreementID, conversationID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	out := make([]federation.Message, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// CountMessages 统计协议下的消息总数。
func (s *Store) CountMessages(ctx context.Context, agreementID string) (int64, error) {
	var n int64
	err := s.db(ctx).Model(&messageModel{}).Where("agreement_id = ?", agreementID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// CountNonBlocked 统计 since 之后未被拦截的消息数，实现 policy.VolumeCounter。
func (s *Store) CountNonBlocked(ctx context.Context, agreementID string, since time.Time) (int64, error) {
	var n int64
	err := s.db(ctx).Model(&messageModel{}).
		Where("agreement_id = ? AND created_at >= ? AND policy_result <> ?",
			agreementID, utc(since), string(federation.PolicyBlocked)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count non-blocked messages: %w", err)
	}
	return n, nil
}

// =============================================================================
// 🙋 人工审批
// =============================================================================

// HumanApproval 会话级人工审批记录
type HumanApproval struct {
	ID               string
	AgreementID      string
	ConversationID   string
	ApprovedByOrgID  string
	ApprovedByUserID string
	CreatedAt        time.Time
}

// RecordHumanApproval 记录会话审批，重复记录保持首次审批人。
func (s *Store) RecordHumanApproval(ctx context.Context, a *HumanApproval) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	m := &humanApprovalModel{
		ID:               a.ID,
		AgreementID:      a.AgreementID,
		ConversationID:   a.ConversationID,
		ApprovedByOrgID:  a.ApprovedByOrgID,
		ApprovedByUserID: a.ApprovedByUserID,
		CreatedAt:        utc(a.CreatedAt),
	}
	err := s.db(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "agreement_id"}, {Name: "conversation_id"}},
		DoNothing: true,
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("record human approval: %w", err)
	}
	return nil
}

// HasHumanApproval 会话是否已有人工审批，实现 policy.ApprovalLookup。
func (s *Store) HasHumanApproval(ctx context.Context, agreementID, conversationID string) (bool, error) {
	var n int64
	err := s.db(ctx).Model(&humanApprovalModel{}).
		Where("agreement_id = ? AND conversation_id = ?", agreementID, conversationID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("lookup human approval: %w", err)
	}
	return n > 0, nil
}
