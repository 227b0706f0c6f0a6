package federation

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// 🤝 Agreement
// =============================================================================

// Status 协议状态
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusRevoked   Status = "REVOKED"
)

// Terminal 报告状态是否为终态。
func (s Status) Terminal() bool { return s == StatusRevoked }

// Valid 报告是否为已知状态。
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusRevoked:
		return true
	}
	return false
}

// DefaultBlockExcessLevels 分级超出上限达到该级数时由 filtered 升级为 blocked。
const DefaultBlockExcessLevels = 2

// Governance 协议治理参数，仅在批准或重新批准时设置。
type Governance struct {
	MaxRequestsPerHour   int            `json:"maxRequestsPerHour"`
	MaxRequestsPerDay    int            `json:"maxRequestsPerDay"`
	DataClassification   Classification `json:"dataClassification"`
	AllowFileTransfer    bool           `json:"allowFileTransfer"`
	RequireHumanApproval bool           `json:"requireHumanApproval"`
	BlockExcessLevels    int            `json:"blockExcessLevels"`
}

// Normalize 补齐默认值并校验。
func (g Governance) Normalize() (Governance, error) {
	if g.MaxRequestsPerHour < 0 || g.MaxRequestsPerDay < 0 {
		return g, fmt.Errorf("request caps must not be negative")
	}
	if g.DataClassification == "" {
		g.DataClassification = ClassificationInternal
	}
	if !g.DataClassification.Valid() {
		return g, fmt.Errorf("unknown data classification %q", g.DataClassification)
	}
	if g.BlockExcessLevels <= 0 {
		g.BlockExcessLevels = DefaultBlockExcessLevels
	}
	return g, nil
}

// Agreement 两个组织之间的双边信任协议
type Agreement struct {
	ID             string     `json:"id"`
	InitiatorOrgID string     `json:"initiatorOrgId"`
	ResponderOrgID string     `json:"responderOrgId"`
	Status         Status     `json:"status"`
	Governance     Governance `json:"governance"`
	StatusReason   string     `json:"statusReason,omitempty"`
	CreatedBy      string     `json:"createdBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	ApprovedAt     *time.Time `json:"approvedAt,omitempty"`
}

// IsParty 报告组织是否为协议一方。
func (a *Agreement) IsParty(orgID string) bool {
	return orgID != "" && (orgID == a.InitiatorOrgID || orgID == a.ResponderOrgID)
}

// Partner 返回对方组织 ID，非协议方返回空串。
func (a *Agreement) Partner(orgID string) string {
	switch orgID {
	case a.InitiatorOrgID:
		return a.ResponderOrgID
	case a.ResponderOrgID:
		return a.InitiatorOrgID
	}
	return ""
}

// Exposure 协议下某组织开放给伙伴的 Agent
type Exposure struct {
	ID            string    `json:"id"`
	AgreementID   string    `json:"agreementId"`
	OwnerOrgID    string    `json:"ownerOrgId"`
	AgentID       string    `json:"agentId"`
	ExposedSkills []string  `json:"exposedSkills"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// AllowsSkill 空技能集合表示开放全部技能。
func (e *Exposure) AllowsSkill(skill string) bool {
	if len(e.ExposedSkills) == 0 || skill == "" {
		return true
	}
	for _, s := range e.ExposedSkills {
		if s == skill {
			return true
		}
	}
	return false
}

// =============================================================================
// 🏢 Directory
// =============================================================================

// Organization 目录中的组织
type Organization struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Agent 目录中的智能体
type Agent struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Slug           string `json:"slug"`
	Name           string `json:"name"`
	Endpoint       string `json:"endpoint,omitempty"`
}

// =============================================================================
// ✉️ Message
// =============================================================================

// Direction 消息方向
type Direction string

const (
	DirectionOutbound Direction = "OUTBOUND"
	DirectionInbound  Direction = "INBOUND"
)

// PolicyResult 策略结论
type PolicyResult string

const (
	PolicyApproved PolicyResult = "approved"
	PolicyFiltered PolicyResult = "filtered"
	PolicyBlocked  PolicyResult = "blocked"
)

// Message 消息日志行，创建后不可变。
type Message struct {
	ID               string       `json:"id"`
	AgreementID      string       `json:"agreementId"`
	ConversationID   string       `json:"conversationId"`
	Direction        Direction    `json:"direction"`
	SourceOrgID      string       `json:"sourceOrgId"`
	SourceAgentSlug  string       `json:"sourceAgentSlug"`
	TargetOrgID      string       `json:"targetOrgId"`
	TargetAgentSlug  string       `json:"targetAgentSlug"`
	EncryptedContent string       `json:"encryptedContent"`
	ContentType      string       `json:"contentType"`
	SenderSignature  string       `json:"senderSignature,omitempty"`
	SenderKeyVersion *int         `json:"senderKeyVersion,omitempty"`
	PolicyResult     PolicyResult `json:"policyResult"`
	PolicyDetails    []byte       `json:"policyDetails,omitempty"`
	LatencyMs        int64        `json:"latencyMs"`
	InputTokens      *int         `json:"inputTokens,omitempty"`
	OutputTokens     *int         `json:"outputTokens,omitempty"`
	CostUSD          *float64     `json:"costUsd,omitempty"`
	RunID            string       `json:"runId,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// =============================================================================
// 🏷️ Classification
// =============================================================================

// Classification 数据分级
type Classification string

const (
	ClassificationPublic       Classification = "public"
	ClassificationInternal     Classification = "internal"
	ClassificationConfidential Classification = "confidential"
	ClassificationRestricted   Classification = "restricted"
)

var classificationLevels = map[Classification]int{
	ClassificationPublic:       0,
	ClassificationInternal:     1,
	ClassificationConfidential: 2,
	ClassificationRestricted:   3,
}

// ParseClassification 大小写不敏感解析分级。
func ParseClassification(s string) (Classification, error) {
	c := Classification(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown data classification %q", s)
	}
	return c, nil
}

// Valid 报告是否为已知分级。
func (c Classification) Valid() bool {
	_, ok := classificationLevels[c]
	return ok
}

// Level 返回分级序号，未知分级视为最高级。
func (c Classification) Level() int {
	if l, ok := classificationLevels[c]; ok {
		return l
	}
	return classificationLevels[ClassificationRestricted]
}

// MaxClassification 返回较高的分级，空值被忽略。
func MaxClassification(a, b Classification) Classification {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case b.Level() > a.Level():
		return b
	}
	return a
}
