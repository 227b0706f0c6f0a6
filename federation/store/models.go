package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/agentfed/federation"
)

// stringList 以 JSON 文本存储的字符串集合
type stringList []string

// Value 实现 driver.Valuer。
func (l stringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner。
func (l *stringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("stringList: unsupported source %T", src)
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

type organizationModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Slug      string    `gorm:"column:slug"`
	Name      string    `gorm:"column:name"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (organizationModel) TableName() string { return "organizations" }

type agentModel struct {
	ID             string    `gorm:"column:id;primaryKey"`
	OrganizationID string    `gorm:"column:organization_id"`
	Slug           string    `gorm:"column:slug"`
	Name           string    `gorm:"column:name"`
	Endpoint       string    `gorm:"column:endpoint"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (agentModel) TableName() string { return "agents" }

type agreementModel struct {
	ID                   string     `gorm:"column:id;primaryKey"`
	InitiatorOrgID       string     `gorm:"column:initiator_org_id"`
	ResponderOrgID       string     `gorm:"column:responder_org_id"`
	Status               string     `gorm:"column:status"`
	MaxRequestsPerHour   int        `gorm:"column:max_requests_per_hour"`
	MaxRequestsPerDay    int        `gorm:"column:max_requests_per_day"`
	DataClassification   string     `gorm:"column:data_classification"`
	AllowFileTransfer    bool       `gorm:"column:allow_file_transfer"`
	RequireHumanApproval bool       `gorm:"column:require_human_approval"`
	BlockExcessLevels    int        `gorm:"column:block_excess_levels"`
	StatusReason         string     `gorm:"column:status_reason"`
	CreatedBy            string     `gorm:"column:created_by"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
	ApprovedAt           *time.Time `gorm:"column:approved_at"`
}

func (agreementModel) TableName() string { return "federation_agreements" }

func (m *agreementModel) toDomain() *federation.Agreement {
	return &federation.Agreement{
		ID:             m.ID,
		InitiatorOrgID: m.InitiatorOrgID,
		ResponderOrgID: m.ResponderOrgID,
		Status:         federation.Status(m.Status),
		Governance: federation.Governance{
			MaxRequestsPerHour:   m.MaxRequestsPerHour,
			MaxRequestsPerDay:    m.MaxRequestsPerDay,
			DataClassification:   federation.Classification(m.DataClassification),
			AllowFileTransfer:    m.AllowFileTransfer,
			RequireHumanApproval: m.RequireHumanApproval,
			BlockExcessLevels:    m.BlockExcessLevels,
		},
		StatusReason: m.StatusReason,
		CreatedBy:    m.CreatedBy,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		ApprovedAt:   m.ApprovedAt,
	}
}

func agreementFromDomain(a *federation.Agreement) *agreementModel {
	return &agreementModel{
		ID:                   a.ID,
		InitiatorOrgID:       a.InitiatorOrgID,
		ResponderOrgID:       a.ResponderOrgID,
		Status:               string(a.Status),
		MaxRequestsPerHour:   a.Governance.MaxRequestsPerHour,
		MaxRequestsPerDay:    a.Governance.MaxRequestsPerDay,
		DataClassification:   string(a.Governance.DataClassification),
		AllowFileTransfer:    a.Governance.AllowFileTransfer,
		RequireHumanApproval: a.Governance.RequireHumanApproval,
		BlockExcessLevels:    a.Governance.BlockExcessLevels,
		StatusReason:         a.StatusReason,
		CreatedBy:            a.CreatedBy,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
		ApprovedAt:           a.ApprovedAt,
	}
}

type exposureModel struct {
	ID            string     `gorm:"column:id;primaryKey"`
	AgreementID   string     `gorm:"column:agreement_id"`
	OwnerOrgID    string     `gorm:"column:owner_org_id"`
	AgentID       string     `gorm:"column:agent_id"`
	ExposedSkills stringList `gorm:"column:exposed_skills"`
	Enabled       bool       `gorm:"column:enabled"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

func (exposureModel) TableName() string { return "federation_exposures" }

func (m *exposureModel) toDomain() federation.Exposure {
	return federation.Exposure{
		ID:            m.ID,
		AgreementID:   m.AgreementID,
		OwnerOrgID:    m.OwnerOrgID,
		AgentID:       m.AgentID,
		ExposedSkills: []string(m.ExposedSkills),
		Enabled:       m.Enabled,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

type channelKeyModel struct {
	AgreementID string    `gorm:"column:agreement_id;primaryKey"`
	Cipher      string    `gorm:"column:cipher"`
	SealedKey   string    `gorm:"column:sealed_key"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (channelKeyModel) TableName() string { return "federation_channel_keys" }

type orgKeyModel struct {
	OrganizationID   string    `gorm:"column:organization_id;primaryKey"`
	Version          int       `gorm:"column:version;primaryKey;autoIncrement:false"`
	PublicKey        string    `gorm:"column:public_key"`
	SealedPrivateKey string    `gorm:"column:sealed_private_key"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

func (orgKeyModel) TableName() string { return "org_key_pairs" }

type messageModel struct {
	ID               string    `gorm:"column:id;primaryKey"`
	AgreementID      string    `gorm:"column:agreement_id"`
	ConversationID   string    `gorm:"column:conversation_id"`
	Direction        string    `gorm:"column:direction"`
	SourceOrgID      string    `gorm:"column:source_org_id"`
	SourceAgentSlug  string    `gorm:"column:source_agent_slug"`
	TargetOrgID      string    `gorm:"column:target_org_id"`
	TargetAgentSlug  string    `gorm:"column:target_agent_slug"`
	EncryptedContent string    `gorm:"column:encrypted_content"`
	ContentType      string    `gorm:"column:content_type"`
	SenderSignature  *string   `gorm:"column:sender_signature"`
	SenderKeyVersion *int      `gorm:"column:sender_key_version"`
	PolicyResult     string    `gorm:"column:policy_result"`
	PolicyDetails    string    `gorm:"column:policy_details"`
	LatencyMs        int64     `gorm:"column:latency_ms"`
	InputTokens      *int      `gorm:"column:input_tokens"`
	OutputTokens     *int      `gorm:"column:output_tokens"`
	CostUSD          *float64  `gorm:"column:cost_usd"`
	RunID            *string   `gorm:"column:run_id"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

func (messageModel) TableName() string { return "federation_messages" }

func (m *messageModel) toDomain() federation.Message {
	msg := federation.Message{
		ID:               m.ID,
		AgreementID:      m.AgreementID,
		ConversationID:   m.ConversationID,
		Direction:        federation.Direction(m.Direction),
		SourceOrgID:      m.SourceOrgID,
		SourceAgentSlug:  m.SourceAgentSlug,
		TargetOrgID:      m.TargetOrgID,
		TargetAgentSlug:  m.TargetAgentSlug,
		EncryptedContent: m.EncryptedContent,
		ContentType:      m.ContentType,
		SenderKeyVersion: m.SenderKeyVersion,
		PolicyResult:     federation.PolicyResult(m.PolicyResult),
		PolicyDetails:    []byte(m.PolicyDetails),
		LatencyMs:        m.LatencyMs,
		InputTokens:      m.InputTokens,
		OutputTokens:     m.OutputTokens,
		CostUSD:          m.CostUSD,
		CreatedAt:        m.CreatedAt,
	}
	if m.SenderSignature != nil {
		msg.SenderSignature = *m.SenderSignature
	}
	if m.RunID != nil {
		msg.RunID = *m.RunID
	}
	return msg
}

func messageFromDomain(msg *federation.Message) *messageModel {
	details := string(msg.PolicyDetails)
	if details == "" {
		details = "{}"
	}
	return &messageModel{
		ID:               msg.ID,
		AgreementID:      msg.AgreementID,
		ConversationID:   msg.ConversationID,
		Direction:        string(msg.Direction),
		SourceOrgID:      msg.SourceOrgID,
		SourceAgentSlug:  msg.SourceAgentSlug,
		TargetOrgID:      msg.TargetOrgID,
		TargetAgentSlug:  msg.TargetAgentSlug,
		EncryptedContent: msg.EncryptedContent,
		ContentType:      msg.ContentType,
		SenderSignature:  optionalString(msg.SenderSignature),
		SenderKeyVersion: msg.SenderKeyVersion,
		PolicyResult:     string(msg.PolicyResult),
		PolicyDetails:    details,
		LatencyMs:        msg.LatencyMs,
		InputTokens:      msg.InputTokens,
		OutputTokens:     msg.OutputTokens,
		CostUSD:          msg.CostUSD,
		RunID:            optionalString(msg.RunID),
		CreatedAt:        msg.CreatedAt,
	}
}

type humanApprovalModel struct {
	ID               string    `gorm:"column:id;primaryKey"`
	AgreementID      string    `gorm:"column:agreement_id"`
	ConversationID   string    `gorm:"column:conversation_id"`
	ApprovedByOrgID  string    `gorm:"column:approved_by_org_id"`
	ApprovedByUserID string    `gorm:"column:approved_by_user_id"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

func (humanApprovalModel) TableName() string { return "federation_human_approvals" }

type credentialModel struct {
	ID             string     `gorm:"column:id;primaryKey"`
	OrganizationID string     `gorm:"column:organization_id"`
	UserID         string     `gorm:"column:user_id"`
	SecretHash     string     `gorm:"column:secret_hash"`
	Label          string     `gorm:"column:label"`
	RevokedAt      *time.Time `gorm:"column:revoked_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
}

func (credentialModel) TableName() string { return "api_credentials" }

type auditRecordModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	Action      string    `gorm:"column:action"`
	EntityType  string    `gorm:"column:entity_type"`
	EntityID    string    `gorm:"column:entity_id"`
	ActorOrgID  string    `gorm:"column:actor_org_id"`
	ActorID     string    `gorm:"column:actor_id"`
	BeforeState *string   `gorm:"column:before_state"`
	AfterState  *string   `gorm:"column:after_state"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (auditRecordModel) TableName() string { return "audit_records" }

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
