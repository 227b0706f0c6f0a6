package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BaSui01/agentfed/federation"
	"github.com/BaSui01/agentfed/federation/channel"
	"github.com/BaSui01/agentfed/federation/policy"
	"github.com/BaSui01/agentfed/federation/signing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store 消息日志的持久化接口
type Store interface {
	AppendMessage(ctx context.Context, msg *federation.Message) error
	ListConversation(ctx context.Context, agreementID, conversationID string) ([]federation.Message, error)
}

// KeySource 协议通道密钥，由 *channel.KeyStore 实现。
type KeySource interface {
	GetChannelKey(ctx context.Context, agreementID string) (channel.Key, error)
}

// Signer 以组织当前密钥签名，由 *signing.Keyring 实现。
type Signer interface {
	SignAs(ctx context.Context, orgID string, content []byte) (string, int, error)
}

// Recorder 日志指标
type Recorder interface {
	RecordJournalEntry(direction, policyResult string)
	RecordSignatureVerification(status string)
}

// Exchange 一次交换的明文内容
type Exchange struct {
	Request  string `json:"request"`
	Response string `json:"response,omitempty"`
}

// Entry 待写入的交换
type Entry struct {
	AgreementID     string
	ConversationID  string
	SourceOrgID     string
	SourceAgentSlug string
	TargetOrgID     string
	TargetAgentSlug string
	ContentType     string
	Content         Exchange
	Decision        policy.Decision
	LatencyMs       int64
	InputTokens     *int
	OutputTokens    *int
	CostUSD         *float64
	RunID           string
}

// Option 配置 Journal
type Option func(*Journal)

// WithCipher 设置加密算法，默认 AES-256-GCM。
func WithCipher(c channel.Cipher) Option {
	return func(j *Journal) {
		if c != nil {
			j.cipher = c
		}
	}
}

// WithRecorder 设置指标记录器。
func WithRecorder(r Recorder) Option {
	return func(j *Journal) { j.recorder = r }
}

// Journal 加密签名的消息日志
type Journal struct {
	store    Store
	keys     KeySource
	signer   Signer
	pubkeys  signing.KeyStore
	cipher   channel.Cipher
	recorder Recorder
	logger   *zap.Logger
}

// New 创建 Journal。pubkeys 用于会话查看时解析历史公钥版本。
func New(store Store, keys KeySource, signer Signer, pubkeys signing.KeyStore, logger *zap.Logger, opts ...Option) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	cipher, _ := channel.NewCipher(channel.AlgorithmAESGCM)
	j := &Journal{
		store:   store,
		keys:    keys,
		signer:  signer,
		pubkeys: pubkeys,
		cipher:  cipher,
		logger:  logger.With(zap.String("component", "journal")),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Record 加密、签名并追加一条 OUTBOUND 消息。
func (j *Journal) Record(ctx context.Context, e Entry) (*federation.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(e.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal exchange: %w", err)
	}
	key, err := j.keys.GetChannelKey(ctx, e.AgreementID)
	if err != nil {
		return nil, fmt.Errorf("channel key: %w", err)
	}
	payload, err := j.cipher.Encrypt(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt exchange: %w", err)
	}
	signature, version, err := j.signer.SignAs(ctx, e.SourceOrgID, plaintext)
	if err != nil {
		return nil, fmt.Errorf("sign exchange: %w", err)
	}
	details, err := e.Decision.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal policy details: %w", err)
	}

	msg := &federation.Message{
		ID:               uuid.NewString(),
		AgreementID:      e.AgreementID,
		ConversationID:   e.ConversationID,
		Direction:        federation.DirectionOutbound,
		SourceOrgID:      e.SourceOrgID,
		SourceAgentSlug:  e.SourceAgentSlug,
		TargetOrgID:      e.TargetOrgID,
		TargetAgentSlug:  e.TargetAgentSlug,
		EncryptedContent: payload.Encode(),
		ContentType:      contentTypeOrDefault(e.ContentType),
		SenderSignature:  signature,
		SenderKeyVersion: &version,
		PolicyResult:     e.Decision.Result,
		PolicyDetails:    details,
		LatencyMs:        e.LatencyMs,
		InputTokens:      e.InputTokens,
		OutputTokens:     e.OutputTokens,
		CostUSD:          e.CostUSD,
		RunID:            e.RunID,
	}

	// 调用方已放弃请求时不留下消息
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := j.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	if j.recorder != nil {
		j.recorder.RecordJournalEntry(string(msg.Direction), string(msg.PolicyResult))
	}
	j.logger.Debug("message journaled",
		zap.String("message_id", msg.ID),
		zap.String("agreement_id", msg.AgreementID),
		zap.String("conversation_id", msg.ConversationID),
		zap.String("policy_result", string(msg.PolicyResult)),
	)
	return msg, nil
}

func contentTypeOrDefault(ct string) string {
	if ct == "" {
		return "text/plain"
	}
	return ct
}

// =============================================================================
// 🔍 会话查看
// =============================================================================

// MessageView 解密并校验后的消息
type MessageView struct {
	ID                string                  `json:"id"`
	Direction         federation.Direction    `json:"direction"`
	SourceOrgID       string                  `json:"sourceOrgId"`
	SourceAgentSlug   string                  `json:"sourceAgentSlug,omitempty"`
	TargetOrgID       string                  `json:"targetOrgId"`
	TargetAgentSlug   string                  `json:"targetAgentSlug,omitempty"`
	ContentType       string                  `json:"contentType"`
	Content           *Exchange               `json:"content"`
	SignatureVerified bool                    `json:"signatureVerified"`
	SignatureStatus   signing.Status          `json:"signatureStatus"`
	SenderKeyVersion  *int                    `json:"senderKeyVersion,omitempty"`
	PolicyResult      federation.PolicyResult `json:"policyResult"`
	PolicyDetails     json.RawMessage         `json:"policyDetails,omitempty"`
	LatencyMs         int64                   `json:"latencyMs"`
	InputTokens       *int                    `json:"inputTokens,omitempty"`
	OutputTokens      *int                    `json:"outputTokens,omitempty"`
	CostUSD           *float64                `json:"costUsd,omitempty"`
	RunID             string                  `json:"runId,omitempty"`
	CreatedAt         string                  `json:"createdAt"`
}

// PolicyBreakdown 各处置结果的消息数
type PolicyBreakdown struct {
	Approved int `json:"approved"`
	Filtered int `json:"filtered"`
	Blocked  int `json:"blocked"`
}

// Summary 会话汇总
type Summary struct {
	MessageCount          int             `json:"messageCount"`
	TotalCostUSD          float64         `json:"totalCostUsd"`
	DurationMs            int64           `json:"durationMs"`
	PolicyBreakdown       PolicyBreakdown `json:"policyBreakdown"`
	AllSignaturesVerified bool            `json:"allSignaturesVerified"`
}

// Conversation 会话查看结果
type Conversation struct {
	AgreementID    string        `json:"agreementId"`
	ConversationID string        `json:"conversationId"`
	Messages       []MessageView `json:"messages"`
	Summary        Summary       `json:"summary"`
}

// Conversation 返回会话内全部消息，逐条解密与验签，单条失败不影响其余消息。
func (j *Journal) Conversation(ctx context.Context, agreementID, conversationID string) (*Conversation, error) {
	msgs, err := j.store.ListConversation(ctx, agreementID, conversationID)
	if err != nil {
		return nil, err
	}

	var key channel.Key
	if len(msgs) > 0 {
		key, err = j.keys.GetChannelKey(ctx, agreementID)
		if err != nil && !errors.Is(err, channel.ErrKeyNotFound) {
			return nil, fmt.Errorf("channel key: %w", err)
		}
	}

	// 公钥缓存只在本批次内有效
	resolver := signing.NewResolver(j.pubkeys, j.logger)

	out := &Conversation{
		AgreementID:    agreementID,
		ConversationID: conversationID,
		Messages:       make([]MessageView, 0, len(msgs)),
		Summary:        Summary{MessageCount: len(msgs), AllSignaturesVerified: true},
	}
	for i := range msgs {
		view := j.inspect(ctx, resolver, key, &msgs[i])
		out.Messages = append(out.Messages, view)

		s := &out.Summary
		if view.CostUSD != nil {
			s.TotalCostUSD += *view.CostUSD
		}
		s.DurationMs += view.LatencyMs
		switch view.PolicyResult {
		case federation.PolicyApproved:
			s.PolicyBreakdown.Approved++
		case federation.PolicyFiltered:
			s.PolicyBreakdown.Filtered++
		case federation.PolicyBlocked:
			s.PolicyBreakdown.Blocked++
		}
		if !view.SignatureVerified {
			s.AllSignaturesVerified = false
		}
	}
	return out, nil
}

func (j *Journal) inspect(ctx context.Context, resolver *signing.Resolver, key channel.Key, msg *federation.Message) MessageView {
	view := MessageView{
		ID:               msg.ID,
		Direction:        msg.Direction,
		SourceOrgID:      msg.SourceOrgID,
		SourceAgentSlug:  msg.SourceAgentSlug,
		TargetOrgID:      msg.TargetOrgID,
		TargetAgentSlug:  msg.TargetAgentSlug,
		ContentType:      msg.ContentType,
		SignatureStatus:  signing.StatusUnverifiable,
		SenderKeyVersion: msg.SenderKeyVersion,
		PolicyResult:     msg.PolicyResult,
		LatencyMs:        msg.LatencyMs,
		InputTokens:      msg.InputTokens,
		OutputTokens:     msg.OutputTokens,
		CostUSD:          msg.CostUSD,
		RunID:            msg.RunID,
		CreatedAt:        msg.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if json.Valid(msg.PolicyDetails) {
		view.PolicyDetails = json.RawMessage(msg.PolicyDetails)
	}

	plaintext, ok := j.open(key, msg.EncryptedContent)
	if ok {
		var ex Exchange
		if err := json.Unmarshal(plaintext, &ex); err == nil {
			view.Content = &ex
		}
		view.SignatureStatus = resolver.Check(ctx, msg.SourceOrgID, msg.SenderKeyVersion, plaintext, msg.SenderSignature)
	} else {
		j.logger.Warn("message content cannot be decrypted",
			zap.String("message_id", msg.ID),
			zap.String("agreement_id", msg.AgreementID),
		)
	}
	view.SignatureVerified = view.SignatureStatus == signing.StatusVerified

	if j.recorder != nil {
		j.recorder.RecordSignatureVerification(string(view.SignatureStatus))
	}
	return view
}

func (j *Journal) open(key channel.Key, encoded string) ([]byte, bool) {
	if key == nil {
		return nil, false
	}
	payload, ok := channel.DecodePayload(encoded)
	if !ok {
		return nil, false
	}
	return channel.Decrypt(payload, key)
}
