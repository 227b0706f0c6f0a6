package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/agentfed/federation"
	"go.uber.org/zap"
)

// 规则名称
const (
	RuleHumanApproval  = "human_approval"
	RuleClassification = "data_classification"
	RuleFileTransfer   = "file_transfer"
	RuleHourlyVolume   = "hourly_volume"
	RuleDailyVolume    = "daily_volume"
)

// ApprovalLookup 查询会话是否已有人工审批
type ApprovalLookup interface {
	HasHumanApproval(ctx context.Context, agreementID, conversationID string) (bool, error)
}

// VolumeCounter 统计协议自 since 起的非 blocked 消息数
type VolumeCounter interface {
	CountNonBlocked(ctx context.Context, agreementID string, since time.Time) (int64, error)
}

// Exchange 待评估的一次交换
type Exchange struct {
	AgreementID            string
	ConversationID         string
	Content                string
	ContentType            string
	DeclaredClassification federation.Classification
}

// Violation 单条规则的降级原因
type Violation struct {
	Rule    string                  `json:"rule"`
	Result  federation.PolicyResult `json:"result"`
	Message string                  `json:"message"`
}

// Details 策略结论明细，随消息持久化。
type Details struct {
	Violations    []Violation               `json:"violations,omitempty"`
	DetectedLevel federation.Classification `json:"detectedLevel,omitempty"`
	Ceiling       federation.Classification `json:"ceiling,omitempty"`
	Findings      []Finding                 `json:"findings,omitempty"`
	HourlyCount   *int64                    `json:"hourlyCount,omitempty"`
	DailyCount    *int64                    `json:"dailyCount,omitempty"`
}

// Decision 策略结论
type Decision struct {
	Result  federation.PolicyResult `json:"result"`
	Details Details                 `json:"details"`
}

// Reason 返回人类可读的降级原因。
func (d Decision) Reason() string {
	msgs := make([]string, 0, len(d.Details.Violations))
	for _, v := range d.Details.Violations {
		msgs = append(msgs, v.Message)
	}
	return strings.Join(msgs, "; ")
}

// Marshal 序列化明细以便落库。
func (d Decision) Marshal() ([]byte, error) {
	return json.Marshal(d.Details)
}

// Recorder 策略结论指标
type Recorder interface {
	RecordPolicyDecision(result string)
}

// Engine 治理策略引擎
type Engine struct {
	approvals  ApprovalLookup
	volume     VolumeCounter
	classifier Classifier
	recorder   Recorder
	logger     *zap.Logger
	now        func() time.Time
}

// Option 引擎选项
type Option func(*Engine)

// WithClassifier 替换分级检测器。
func WithClassifier(c Classifier) Option { return func(e *Engine) { e.classifier = c } }

// WithRecorder 设置指标记录器。
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

// WithClock 注入时钟。
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine 创建策略引擎。
func NewEngine(approvals ApprovalLookup, volume VolumeCounter, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	classifier, _ := NewRegexClassifier(nil)
	e := &Engine{
		approvals:  approvals,
		volume:     volume,
		classifier: classifier,
		logger:     logger.With(zap.String("component", "policy")),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate 评估一次交换。返回错误仅表示依赖查询失败。
func (e *Engine) Evaluate(ctx context.Context, ex Exchange, gov federation.Governance) (Decision, error) {
	d := Decision{Result: federation.PolicyApproved}

	if err := e.checkHumanApproval(ctx, ex, gov, &d); err != nil {
		return Decision{}, err
	}
	if d.Result != federation.PolicyBlocked {
		e.checkClassification(ex, gov, &d)
	}
	if d.Result != federation.PolicyBlocked {
		if err := e.checkVolume(ctx, ex, gov, &d); err != nil {
			return Decision{}, err
		}
	}

	if e.recorder != nil {
		e.recorder.RecordPolicyDecision(string(d.Result))
	}
	if d.Result != federation.PolicyApproved {
		e.logger.Info("exchange downgraded by policy",
			zap.String("agreement_id", ex.AgreementID),
			zap.String("conversation_id", ex.ConversationID),
			zap.String("result", string(d.Result)),
			zap.String("reason", d.Reason()),
		)
	}
	return d, nil
}

func (e *Engine) checkHumanApproval(ctx context.Context, ex Exchange, gov federation.Governance, d *Decision) error {
	if !gov.RequireHumanApproval {
		return nil
	}
	ok, err := e.approvals.HasHumanApproval(ctx, ex.AgreementID, ex.ConversationID)
	if err != nil {
		return fmt.Errorf("lookup human approval: %w", err)
	}
	if !ok {
		d.downgrade(RuleHumanApproval, federation.PolicyBlocked,
			"agreement requires human approval and none is recorded for this conversation")
	}
	return nil
}

func (e *Engine) checkClassification(ex Exchange, gov federation.Governance, d *Decision) {
	if !isText(ex.ContentType) && !gov.AllowFileTransfer {
		d.downgrade(RuleFileTransfer, federation.PolicyBlocked,
			fmt.Sprintf("content type %q is a file transfer, which the agreement does not allow", ex.ContentType))
		return
	}

	detected, findings := e.classifier.Classify(ex.Content)
	detected = federation.MaxClassification(detected, ex.DeclaredClassification)

	ceiling := gov.DataClassification
	if ceiling == "" {
		ceiling = federation.ClassificationInternal
	}
	d.Details.DetectedLevel = detected
	d.Details.Ceiling = ceiling
	d.Details.Findings = findings

	excess := detected.Level() - ceiling.Level()
	if excess <= 0 {
		return
	}
	threshold := gov.BlockExcessLevels
	if threshold <= 0 {
		threshold = federation.DefaultBlockExcessLevels
	}
	if excess >= threshold {
		d.downgrade(RuleClassification, federation.PolicyBlocked,
			fmt.Sprintf("content classified %s exceeds the %s ceiling by %d levels", detected, ceiling, excess))
		return
	}
	d.downgrade(RuleClassification, federation.PolicyFiltered,
		fmt.Sprintf("content classified %s exceeds the %s ceiling", detected, ceiling))
}

func (e *Engine) checkVolume(ctx context.Context, ex Exchange, gov federation.Governance, d *Decision) error {
	now := e.now()
	windows := []struct {
		rule  string
		limit int
		span  time.Duration
		label string
		out   **int64
	}{
		{RuleHourlyVolume, gov.MaxRequestsPerHour, time.Hour, "hourly", &d.Details.HourlyCount},
		{RuleDailyVolume, gov.MaxRequestsPerDay, 24 * time.Hour, "daily", &d.Details.DailyCount},
	}
	for _, w := range windows {
		if w.limit <= 0 {
			continue
		}
		n, err := e.volume.CountNonBlocked(ctx, ex.AgreementID, now.Add(-w.span))
		if err != nil {
			return fmt.Errorf("count %s volume: %w", w.label, err)
		}
		count := n
		*w.out = &count
		if n >= int64(w.limit) {
			d.downgrade(w.rule, federation.PolicyBlocked,
				fmt.Sprintf("%s request cap of %d reached", w.label, w.limit))
			return nil
		}
	}
	return nil
}

func (d *Decision) downgrade(rule string, result federation.PolicyResult, msg string) {
	d.Details.Violations = append(d.Details.Violations, Violation{Rule: rule, Result: result, Message: msg})
	if severity(result) > severity(d.Result) {
		d.Result = result
	}
}

func severity(r federation.PolicyResult) int {
	switch r {
	case federation.PolicyBlocked:
		return 2
	case federation.PolicyFiltered:
		return 1
	}
	return 0
}

func isText(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return true
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return strings.HasPrefix(ct, "text/") || ct == "application/json"
}
