package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 审计动作
const (
	ActionAgreementCreated     = "federation.agreement.created"
	ActionAgreementApproved    = "federation.agreement.approved"
	ActionAgreementSuspended   = "federation.agreement.suspended"
	ActionAgreementRevoked     = "federation.agreement.revoked"
	ActionAgreementReactivated = "federation.agreement.reactivated"
	ActionExposureUpdated      = "federation.exposure.updated"
	ActionHumanApproval        = "federation.conversation.approved"
	ActionTaskSent             = "federation.task.sent"
	ActionTaskBlocked          = "federation.task.blocked"
	ActionCredentialIssued     = "federation.credential.issued"
	ActionCredentialRevoked    = "federation.credential.revoked"
	ActionKeyRotated           = "federation.key.rotated"
)

// 实体类型
const (
	EntityAgreement    = "agreement"
	EntityExposure     = "exposure"
	EntityConversation = "conversation"
	EntityMessage      = "message"
	EntityCredential   = "credential"
	EntityOrgKey       = "org_key"
)

// Entry 审计条目
type Entry struct {
	Action     string
	EntityType string
	EntityID   string
	ActorOrgID string
	ActorID    string
	Before     any
	After      any
	At         time.Time
}

// Sink 审计落地
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// Record 序列化后的审计条目
type Record struct {
	ID          string    `bson:"_id"`
	Action      string    `bson:"action"`
	EntityType  string    `bson:"entity_type"`
	EntityID    string    `bson:"entity_id"`
	ActorOrgID  string    `bson:"actor_org_id"`
	ActorID     string    `bson:"actor_id"`
	BeforeState string    `bson:"before_state,omitempty"`
	AfterState  string    `bson:"after_state,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

// NewRecord 把条目序列化为 Record。
func NewRecord(e Entry) (Record, error) {
	before, err := marshalState(e.Before)
	if err != nil {
		return Record{}, fmt.Errorf("marshal before state: %w", err)
	}
	after, err := marshalState(e.After)
	if err != nil {
		return Record{}, fmt.Errorf("marshal after state: %w", err)
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	return Record{
		ID:          uuid.NewString(),
		Action:      e.Action,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		ActorOrgID:  e.ActorOrgID,
		ActorID:     e.ActorID,
		BeforeState: before,
		AfterState:  after,
		CreatedAt:   at.UTC(),
	}, nil
}

func marshalState(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LogSink 以结构化日志输出审计条目
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink 创建日志审计落地。
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.With(zap.String("component", "audit"))}
}

// Record 实现 Sink。
func (s *LogSink) Record(_ context.Context, e Entry) error {
	rec, err := NewRecord(e)
	if err != nil {
		return err
	}
	s.logger.Info("audit",
		zap.String("audit_id", rec.ID),
		zap.String("action", rec.Action),
		zap.String("entity_type", rec.EntityType),
		zap.String("entity_id", rec.EntityID),
		zap.String("actor_org_id", rec.ActorOrgID),
		zap.String("actor_id", rec.ActorID),
		zap.String("before", rec.BeforeState),
		zap.String("after", rec.AfterState),
		zap.Time("at", rec.CreatedAt),
	)
	return nil
}

// RecordWriter 审计表写入接口
type RecordWriter interface {
	AppendAuditRecord(ctx context.Context, rec Record) error
}

// DatabaseSink 写入 audit_records 表
type DatabaseSink struct {
	writer RecordWriter
}

// NewDatabaseSink 创建数据库审计落地。
func NewDatabaseSink(writer RecordWriter) *DatabaseSink {
	return &DatabaseSink{writer: writer}
}

// Record 实现 Sink。
func (s *DatabaseSink) Record(ctx context.Context, e Entry) error {
	rec, err := NewRecord(e)
	if err != nil {
		return err
	}
	return s.writer.AppendAuditRecord(ctx, rec)
}

// Nop 丢弃所有条目
type Nop struct{}

// Record 实现 Sink。
func (Nop) Record(context.Context, Entry) error { return nil }
