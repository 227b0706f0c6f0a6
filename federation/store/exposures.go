package store

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentfed/federation"
)

// ListExposures 列出协议下全部 Exposure。
func (s *Store) ListExposures(ctx context.Context, agreementID string) ([]federation.Exposure, error) {
	var rows []exposureModel
	err := s.db(ctx).
		Where("agreement_id = ?", agreementID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list exposures: %w", err)
	}
	out := make([]federation.Exposure, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// GetExposure 按 ID 读取 Exposure。
func (s *Store) GetExposure(ctx context.Context, id string) (*federation.Exposure, error) {
	var m exposureModel
	if err := s.db(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	e := m.toDomain()
	return &e, nil
}

// FindExposure 查找协议下某组织对某 Agent 的 Exposure。
func (s *Store) FindExposure(ctx context.Context, agreementID, ownerOrgID, agentID string) (*federation.Exposure, error) {
	var m exposureModel
	err := s.db(ctx).
		Where("agreement_id = ? AND owner_org_id = ? AND agent_id = ?", agreementID, ownerOrgID, agentID).
		First(&m).Error
	if err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	e := m.toDomain()
	return &e, nil
}

// SetExposureEnabled 切换 Exposure 开关。
func (s *Store) SetExposureEnabled(ctx context.Context, id string, enabled bool) error {
	res := s.db(ctx).Model(&exposureModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"enabled": enabled, "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("set exposure enabled: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
