package store

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentfed/federation"
)

// =============================================================================
// 🏢 组织目录
// =============================================================================

// CreateOrganization 写入组织。
func (s *Store) CreateOrganization(ctx context.Context, org *federation.Organization) error {
	m := &organizationModel{ID: org.ID, Slug: org.Slug, Name: org.Name, CreatedAt: s.now()}
	if err := s.db(ctx).Create(m).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

// OrganizationBySlug 按 slug 查找组织。
func (s *Store) OrganizationBySlug(ctx context.Context, slug string) (*federation.Organization, error) {
	var m organizationModel
	if err := s.db(ctx).Where("slug = ?", slug).First(&m).Error; err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return &federation.Organization{ID: m.ID, Slug: m.Slug, Name: m.Name}, nil
}

// OrganizationByID 按 ID 查找组织。
func (s *Store) OrganizationByID(ctx context.Context, id string) (*federation.Organization, error) {
	var m organizationModel
	if err := s.db(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return &federation.Organization{ID: m.ID, Slug: m.Slug, Name: m.Name}, nil
}

// CreateAgent 写入 Agent。
func (s *Store) CreateAgent(ctx context.Context, a *federation.Agent) error {
	m := &agentModel{
		ID:             a.ID,
		OrganizationID: a.OrganizationID,
		Slug:           a.Slug,
		Name:           a.Name,
		Endpoint:       a.Endpoint,
		CreatedAt:      s.now(),
	}
	if err := s.db(ctx).Create(m).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

// AgentBySlug 在组织内按 slug 查找 Agent。
func (s *Store) AgentBySlug(ctx context.Context, orgID, slug string) (*federation.Agent, error) {
	var m agentModel
	if err := s.db(ctx).Where("organization_id = ? AND slug = ?", orgID, slug).First(&m).Error; err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return m.toDomain(), nil
}

// AgentByID 按 ID 查找 Agent。
func (s *Store) AgentByID(ctx context.Context, id string) (*federation.Agent, error) {
	var m agentModel
	if err := s.db(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return m.toDomain(), nil
}

func (m *agentModel) toDomain() *federation.Agent {
	return &federation.Agent{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		Slug:           m.Slug,
		Name:           m.Name,
		Endpoint:       m.Endpoint,
	}
}
