package agreement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BaSui01/agentfed/config"
	"github.com/BaSui01/agentfed/federation"
	"github.com/BaSui01/agentfed/federation/audit"
	"github.com/BaSui01/agentfed/federation/channel"
	"github.com/BaSui01/agentfed/federation/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Repository 生命周期管理依赖的持久化操作，由 *store.Store 实现。
type Repository interface {
	CreateAgreement(ctx context.Context, a *federation.Agreement) error
	GetAgreement(ctx context.Context, id string) (*federation.Agreement, error)
	ListAgreements(ctx context.Context, orgID string) ([]federation.Agreement, error)
	TransitionAgreement(ctx context.Context, t store.Transition) error
	ActivateAgreement(ctx context.Context, act store.Activation) error
	ListExposures(ctx context.Context, agreementID string) ([]federation.Exposure, error)
	GetExposure(ctx context.Context, id string) (*federation.Exposure, error)
	SetExposureEnabled(ctx context.Context, id string, enabled bool) error
	CountMessages(ctx context.Context, agreementID string) (int64, error)
	RecordHumanApproval(ctx context.Context, a *store.HumanApproval) error
	OrganizationByID(ctx context.Context, id string) (*federation.Organization, error)
	AgentByID(ctx context.Context, id string) (*federation.Agent, error)
}

// KeyMinter 生成并封存通道密钥，由 *channel.Vault 实现。
type KeyMinter interface {
	MintChannelKey() (channel.Key, string, error)
}

// Recorder 生命周期指标
type Recorder interface {
	RecordAgreementTransition(from, to string)
}

// CreateInput 新建协议参数
type CreateInput struct {
	InitiatorOrgID string
	ResponderOrgID string
	ActorUserID    string
}

// ApproveInput 审批与重新审批参数
type ApproveInput struct {
	ExposedAgentIDs      []string                  `json:"exposedAgentIds"`
	ExposedSkills        []string                  `json:"exposedSkills,omitempty"`
	MaxRequestsPerHour   int                       `json:"maxRequestsPerHour"`
	MaxRequestsPerDay    int                       `json:"maxRequestsPerDay"`
	DataClassification   federation.Classification `json:"dataClassification,omitempty"`
	AllowFileTransfer    bool                      `json:"allowFileTransfer"`
	RequireHumanApproval bool                      `json:"requireHumanApproval"`
	BlockExcessLevels    int                       `json:"blockExcessLevels,omitempty"`
}

func (in ApproveInput) governance() federation.Governance {
	return federation.Governance{
		MaxRequestsPerHour:   in.MaxRequestsPerHour,
		MaxRequestsPerDay:    in.MaxRequestsPerDay,
		DataClassification:   in.DataClassification,
		AllowFileTransfer:    in.AllowFileTransfer,
		RequireHumanApproval: in.RequireHumanApproval,
		BlockExcessLevels:    in.BlockExcessLevels,
	}
}

// Detail 协议详情，Exposure 按调用方拆分
type Detail struct {
	Agreement        *federation.Agreement `json:"agreement"`
	MyExposures      []federation.Exposure `json:"myExposures"`
	PartnerExposures []federation.Exposure `json:"partnerExposures"`
	MessageCount     int64                 `json:"messageCount"`
}

// Option 配置 Manager
type Option func(*Manager)

// WithApprovalPolicy 设置审批策略（config.ApprovalResponderOnly / config.ApprovalEitherParty）。
func WithApprovalPolicy(policy string) Option {
	return func(m *Manager) {
		if policy != "" {
			m.approvalPolicy = policy
		}
	}
}

// WithCipher 记录新通道密钥使用的算法。
func WithCipher(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.cipher = name
		}
	}
}

// WithAuditSink 设置审计落地。
func WithAuditSink(sink audit.Sink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.audit = sink
		}
	}
}

// WithRecorder 设置指标记录器。
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithClock 注入时钟，测试使用。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager 协议生命周期管理器
type Manager struct {
	repo           Repository
	keys           KeyMinter
	approvalPolicy string
	cipher         string
	audit          audit.Sink
	recorder       Recorder
	logger         *zap.Logger
	now            func() time.Time
}

// NewManager 创建生命周期管理器。
func NewManager(repo Repository, keys KeyMinter, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		repo:           repo,
		keys:           keys,
		approvalPolicy: config.ApprovalResponderOnly,
		cipher:         channel.AlgorithmAESGCM,
		audit:          audit.Nop{},
		logger:         logger.With(zap.String("component", "agreement_manager")),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// =============================================================================
// 🎯 查询
// =============================================================================

// Get 读取协议，调用方必须是协议一方。
func (m *Manager) Get(ctx context.Context, id, callerOrgID string) (*federation.Agreement, error) {
	a, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsParty(callerOrgID) {
		return nil, notAuthorized("organization is not a party to this agreement")
	}
	return a, nil
}

// List 列出组织参与的协议。
func (m *Manager) List(ctx context.Context, orgID string) ([]federation.Agreement, error) {
	out, err := m.repo.ListAgreements(ctx, orgID)
	if err != nil {
		return nil, internal(err)
	}
	return out, nil
}

// Detail 返回协议、双方 Exposure 与消息数。
func (m *Manager) Detail(ctx context.Context, id, callerOrgID string) (*Detail, error) {
	a, err := m.Get(ctx, id, callerOrgID)
	if err != nil {
		return nil, err
	}
	exposures, err := m.repo.ListExposures(ctx, id)
	if err != nil {
		return nil, internal(err)
	}
	count, err := m.repo.CountMessages(ctx, id)
	if err != nil {
		return nil, internal(err)
	}

	d := &Detail{
		Agreement:        a,
		MyExposures:      []federation.Exposure{},
		PartnerExposures: []federation.Exposure{},
		MessageCount:     count,
	}
	for _, e := range exposures {
		if e.OwnerOrgID == callerOrgID {
			d.MyExposures = append(d.MyExposures, e)
		} else {
			d.PartnerExposures = append(d.PartnerExposures, e)
		}
	}
	return d, nil
}

// =============================================================================
// 🔄 状态迁移
// =============================================================================

// Create 由发起方创建 PENDING 协议。
func (m *Manager) Create(ctx context.Context, in CreateInput) (*federation.Agreement, error) {
	initiator := strings.TrimSpace(in.InitiatorOrgID)
	responder := strings.TrimSpace(in.ResponderOrgID)
	if initiator == "" || responder == "" {
		return nil, invalidInput("initiator and responder organizations are required")
	}
	if initiator == responder {
		return nil, invalidInput("an organization cannot federate with itself")
	}
	if _, err := m.repo.OrganizationByID(ctx, responder); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("responder organization not found")
		}
		return nil, internal(err)
	}

	now := m.now()
	a := &federation.Agreement{
		ID:             uuid.NewString(),
		InitiatorOrgID: initiator,
		ResponderOrgID: responder,
		Status:         federation.StatusPending,
		Governance:     federation.Governance{DataClassification: federation.ClassificationInternal, BlockExcessLevels: federation.DefaultBlockExcessLevels},
		CreatedBy:      in.ActorUserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.repo.CreateAgreement(ctx, a); err != nil {
		return nil, internal(err)
	}

	m.logger.Info("agreement created",
		zap.String("agreement_id", a.ID),
		zap.String("initiator_org_id", initiator),
		zap.String("responder_org_id", responder),
	)
	m.emit(ctx, audit.Entry{
		Action:     audit.ActionAgreementCreated,
		EntityType: audit.EntityAgreement,
		EntityID:   a.ID,
		ActorOrgID: initiator,
		ActorID:    in.ActorUserID,
		After:      a,
	})
	return a, nil
}

// Approve 审批 PENDING 协议：创建 Exposure、设定治理参数、封存通道密钥并进入 ACTIVE。
func (m *Manager) Approve(ctx context.Context, id, actorOrgID, actorUserID string, in ApproveInput) (*federation.Agreement, error) {
	a, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsParty(actorOrgID) {
		return nil, notAuthorized("organization is not a party to this agreement")
	}
	if a.Status != federation.StatusPending {
		return nil, invalidState("only a PENDING agreement can be approved, current status is " + string(a.Status))
	}
	if err := m.authorizeApprover(a, actorOrgID); err != nil {
		return nil, err
	}

	gov, exposures, err := m.prepareActivation(ctx, a, actorOrgID, in)
	if err != nil {
		return nil, err
	}

	_, sealed, err := m.keys.MintChannelKey()
	if err != nil {
		return nil, internal(err)
	}

	err = m.repo.ActivateAgreement(ctx, store.Activation{
		AgreementID: a.ID,
		From:        federation.StatusPending,
		Governance:  gov,
		ApprovedAt:  m.now(),
		Exposures:   exposures,
		ChannelKey:  &store.ChannelKeyRecord{AgreementID: a.ID, Cipher: m.cipher, SealedKey: sealed},
	})
	if err != nil {
		return nil, m.transitionError(err)
	}
	return m.afterTransition(ctx, a, audit.ActionAgreementApproved, actorOrgID, actorUserID)
}

// Reactivate 以新的治理参数把 SUSPENDED 协议恢复为 ACTIVE，通道密钥保持不变。
func (m *Manager) Reactivate(ctx context.Context, id, actorOrgID, actorUserID string, in ApproveInput) (*federation.Agreement, error) {
	a, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsParty(actorOrgID) {
		return nil, notAuthorized("organization is not a party to this agreement")
	}
	if a.Status != federation.StatusSuspended {
		return nil, invalidState("only a SUSPENDED agreement can be reactivated, current status is " + string(a.Status))
	}
	if err := m.authorizeApprover(a, actorOrgID); err != nil {
		return nil, err
	}

	gov, exposures, err := m.prepareActivation(ctx, a, actorOrgID, in)
	if err != nil {
		return nil, err
	}

	err = m.repo.ActivateAgreement(ctx, store.Activation{
		AgreementID: a.ID,
		From:        federation.StatusSuspended,
		Governance:  gov,
		ApprovedAt:  m.now(),
		Exposures:   exposures,
	})
	if err != nil {
		return nil, m.transitionError(err)
	}
	return m.afterTransition(ctx, a, audit.ActionAgreementReactivated, actorOrgID, actorUserID)
}

// Suspend ACTIVE → SUSPENDED，必须给出原因。
func (m *Manager) Suspend(ctx context.Context, id, actorOrgID, actorUserID, reason string) (*federation.Agreement, error) {
	return m.transition(ctx, id, actorOrgID, actorUserID, reason, federation.StatusSuspended,
		audit.ActionAgreementSuspended, federation.StatusActive)
}

// Revoke ACTIVE | SUSPENDED → REVOKED，必须给出原因。
func (m *Manager) Revoke(ctx context.Context, id, actorOrgID, actorUserID, reason string) (*federation.Agreement, error) {
	return m.transition(ctx, id, actorOrgID, actorUserID, reason, federation.StatusRevoked,
		audit.ActionAgreementRevoked, federation.StatusActive, federation.StatusSuspended)
}

func (m *Manager) transition(ctx context.Context, id, actorOrgID, actorUserID, reason string,
	to federation.Status, action string, allowed ...federation.Status) (*federation.Agreement, error) {
	a, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsParty(actorOrgID) {
		return nil, notAuthorized("organization is not a party to this agreement")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalidInput("a reason is required")
	}
	if !statusIn(a.Status, allowed) {
		return nil, invalidState("cannot move agreement from " + string(a.Status) + " to " + string(to))
	}

	err = m.repo.TransitionAgreement(ctx, store.Transition{
		AgreementID: a.ID,
		From:        a.Status,
		To:          to,
		Reason:      reason,
		At:          m.now(),
	})
	if err != nil {
		return nil, m.transitionError(err)
	}
	return m.afterTransition(ctx, a, action, actorOrgID, actorUserID)
}

// =============================================================================
// 🧩 Exposure 与人工审批
// =============================================================================

// SetExposureEnabled 由 Exposure 所属组织切换开关。
func (m *Manager) SetExposureEnabled(ctx context.Context, exposureID, actorOrgID, actorUserID string, enabled bool) (*federation.Exposure, error) {
	e, err := m.repo.GetExposure(ctx, exposureID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("exposure not found")
		}
		return nil, internal(err)
	}
	if e.OwnerOrgID != actorOrgID {
		return nil, notAuthorized("only the owning organization can change an exposure")
	}
	a, err := m.load(ctx, e.AgreementID)
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() {
		return nil, invalidState("agreement is revoked")
	}

	if err := m.repo.SetExposureEnabled(ctx, exposureID, enabled); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("exposure not found")
		}
		return nil, internal(err)
	}
	before := *e
	e.Enabled = enabled
	e.UpdatedAt = m.now()

	m.emit(ctx, audit.Entry{
		Action:     audit.ActionExposureUpdated,
		EntityType: audit.EntityExposure,
		EntityID:   e.ID,
		ActorOrgID: actorOrgID,
		ActorID:    actorUserID,
		Before:     before,
		After:      e,
	})
	return e, nil
}

// RecordHumanApproval 记录会话的人工审批，满足 require_human_approval 治理规则。
func (m *Manager) RecordHumanApproval(ctx context.Context, id, conversationID, actorOrgID, actorUserID string) error {
	a, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if !a.IsParty(actorOrgID) {
		return notAuthorized("organization is not a party to this agreement")
	}
	if strings.TrimSpace(conversationID) == "" {
		return invalidInput("conversation id is required")
	}
	if a.Status.Terminal() {
		return invalidState("agreement is revoked")
	}

	err = m.repo.RecordHumanApproval(ctx, &store.HumanApproval{
		AgreementID:      a.ID,
		ConversationID:   conversationID,
		ApprovedByOrgID:  actorOrgID,
		ApprovedByUserID: actorUserID,
		CreatedAt:        m.now(),
	})
	if err != nil {
		return internal(err)
	}
	m.emit(ctx, audit.Entry{
		Action:     audit.ActionHumanApproval,
		EntityType: audit.EntityConversation,
		EntityID:   conversationID,
		ActorOrgID: actorOrgID,
		ActorID:    actorUserID,
		After:      map[string]string{"agreementId": a.ID, "conversationId": conversationID},
	})
	return nil
}

// =============================================================================
// 🔧 内部
// =============================================================================

func (m *Manager) load(ctx context.Context, id string) (*federation.Agreement, error) {
	a, err := m.repo.GetAgreement(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("agreement not found")
		}
		return nil, internal(err)
	}
	return a, nil
}

// authorizeApprover 在参与方与状态校验之后应用审批策略。
func (m *Manager) authorizeApprover(a *federation.Agreement, actorOrgID string) error {
	if m.approvalPolicy == config.ApprovalResponderOnly && actorOrgID != a.ResponderOrgID {
		return notAuthorized("only the responder organization can approve this agreement")
	}
	return nil
}

// prepareActivation 校验治理参数，并为审批方名下的 Agent 生成 Exposure。
func (m *Manager) prepareActivation(ctx context.Context, a *federation.Agreement, actorOrgID string, in ApproveInput) (federation.Governance, []federation.Exposure, error) {
	gov, err := in.governance().Normalize()
	if err != nil {
		return gov, nil, invalidInput(err.Error())
	}

	seen := make(map[string]bool, len(in.ExposedAgentIDs))
	exposures := make([]federation.Exposure, 0, len(in.ExposedAgentIDs))
	for _, agentID := range in.ExposedAgentIDs {
		agentID = strings.TrimSpace(agentID)
		if agentID == "" || seen[agentID] {
			continue
		}
		seen[agentID] = true

		agent, err := m.repo.AgentByID(ctx, agentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return gov, nil, invalidInput("unknown agent " + agentID)
			}
			return gov, nil, internal(err)
		}
		if agent.OrganizationID != actorOrgID {
			return gov, nil, notAuthorized("agent " + agentID + " does not belong to the approving organization")
		}
		exposures = append(exposures, federation.Exposure{
			ID:            uuid.NewString(),
			AgreementID:   a.ID,
			OwnerOrgID:    actorOrgID,
			AgentID:       agentID,
			ExposedSkills: in.ExposedSkills,
			Enabled:       true,
		})
	}
	return gov, exposures, nil
}

func (m *Manager) transitionError(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return conflict()
	}
	return internal(err)
}

// afterTransition 重新读取协议，上报指标与审计。
func (m *Manager) afterTransition(ctx context.Context, before *federation.Agreement, action, actorOrgID, actorUserID string) (*federation.Agreement, error) {
	after, err := m.load(ctx, before.ID)
	if err != nil {
		return nil, err
	}
	if m.recorder != nil {
		m.recorder.RecordAgreementTransition(string(before.Status), string(after.Status))
	}
	m.logger.Info("agreement transitioned",
		zap.String("agreement_id", after.ID),
		zap.String("from", string(before.Status)),
		zap.String("to", string(after.Status)),
		zap.String("actor_org_id", actorOrgID),
	)
	m.emit(ctx, audit.Entry{
		Action:     action,
		EntityType: audit.EntityAgreement,
		EntityID:   after.ID,
		ActorOrgID: actorOrgID,
		ActorID:    actorUserID,
		Before:     before,
		After:      after,
	})
	return after, nil
}

func (m *Manager) emit(ctx context.Context, e audit.Entry) {
	if e.At.IsZero() {
		e.At = m.now()
	}
	if err := m.audit.Record(ctx, e); err != nil {
		m.logger.Error("audit record failed",
			zap.String("action", e.Action),
			zap.String("entity_id", e.EntityID),
			zap.Error(err),
		)
	}
}

func statusIn(s federation.Status, set []federation.Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
