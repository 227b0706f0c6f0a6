package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/agentfed/federation"
	"github.com/BaSui01/agentfed/federation/audit"
	"github.com/BaSui01/agentfed/federation/invoke"
	"github.com/BaSui01/agentfed/federation/journal"
	"github.com/BaSui01/agentfed/federation/policy"
	"github.com/BaSui01/agentfed/federation/store"
	"github.com/BaSui01/agentfed/internal/telemetry"
	"github.com/BaSui01/agentfed/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// sendTask 执行 tasks/send：目标解析 → 协议 → 策略 → 调用 → 落库 → 审计。
func (g *Gateway) sendTask(ctx context.Context, caller types.Caller, c sendTaskCall) (*TaskResult, *RPCError) {
	logger := g.logger.With(
		zap.String("caller_org_id", caller.OrganizationID),
		zap.String("target_org", c.TargetOrgSlug),
		zap.String("target_agent", c.TargetAgentSlug),
	)

	// 目标组织
	org, err := g.deps.Directory.OrganizationBySlug(ctx, c.TargetOrgSlug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, rpcError(CodeInvalidParams, "target organization not found")
		}
		return nil, internalError(logger, "resolve organization", err)
	}

	// ACTIVE 协议，与发起方向无关
	agreement, err := g.deps.Agreements.FindActiveAgreement(ctx, caller.OrganizationID, org.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, appError("no active federation agreement")
		}
		return nil, internalError(logger, "resolve agreement", err)
	}
	logger = logger.With(zap.String("agreement_id", agreement.ID))
	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.AttrAgreementID.String(agreement.ID),
		telemetry.AttrTargetOrg.String(org.ID),
	)

	// 目标 Agent 必须在协议下开放且启用
	agent, err := g.deps.Directory.AgentBySlug(ctx, org.ID, c.TargetAgentSlug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, appError("agent %s is not exposed under this agreement", c.TargetAgentSlug)
		}
		return nil, internalError(logger, "resolve agent", err)
	}
	exposure, err := g.deps.Agreements.FindExposure(ctx, agreement.ID, org.ID, agent.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, appError("agent %s is not exposed under this agreement", c.TargetAgentSlug)
		}
		return nil, internalError(logger, "resolve exposure", err)
	}
	if !exposure.Enabled {
		return nil, appError("agent %s is disabled under this agreement", c.TargetAgentSlug)
	}
	if !exposure.AllowsSkill(c.Skill) {
		return nil, appError("skill %s is not exposed for agent %s", c.Skill, c.TargetAgentSlug)
	}

	conversationID := c.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	contentType := c.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}

	// 策略
	decision, err := g.deps.Policy.Evaluate(ctx, policy.Exchange{
		AgreementID:            agreement.ID,
		ConversationID:         conversationID,
		Content:                c.Message,
		ContentType:            contentType,
		DeclaredClassification: c.DataClassification,
	}, agreement.Governance)
	if err != nil {
		return nil, internalError(logger, "evaluate policy", err)
	}

	entry := journal.Entry{
		AgreementID:     agreement.ID,
		ConversationID:  conversationID,
		SourceOrgID:     caller.OrganizationID,
		TargetOrgID:     org.ID,
		TargetAgentSlug: agent.Slug,
		ContentType:     contentType,
		Content:         journal.Exchange{Request: c.Message},
		Decision:        decision,
	}

	if decision.Result == federation.PolicyBlocked {
		msg, err := g.deps.Journal.Record(ctx, entry)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			return nil, internalError(logger, "journal blocked exchange", err)
		}
		g.emit(ctx, caller, audit.ActionTaskBlocked, msg)
		logger.Info("federated task blocked by policy", zap.String("reason", decision.Reason()))
		return nil, appError("blocked by federation policy: %s", decision.Reason())
	}

	// 调用目标 Agent
	start := g.now()
	res, err := g.deps.Invoker.Invoke(ctx, invoke.Request{
		CallerOrgID:    caller.OrganizationID,
		TargetOrgID:    org.ID,
		AgentID:        agent.ID,
		AgentSlug:      agent.Slug,
		Endpoint:       agent.Endpoint,
		ConversationID: conversationID,
		Message:        c.Message,
	})
	latency := g.now().Sub(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		logger.Warn("agent invocation failed", zap.Error(err))
		return nil, appError("agent invocation failed")
	}

	entry.Content.Response = res.Text
	entry.LatencyMs = latency.Milliseconds()
	entry.InputTokens = res.InputTokens
	entry.OutputTokens = res.OutputTokens
	entry.CostUSD = res.CostUSD
	entry.RunID = res.RunID

	msg, err := g.deps.Journal.Record(ctx, entry)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, internalError(logger, "journal exchange", err)
	}
	g.emit(ctx, caller, audit.ActionTaskSent, msg)
	g.recordUsage(org.ID, res)

	logger.Info("federated task completed",
		zap.String("message_id", msg.ID),
		zap.String("policy_result", string(decision.Result)),
		zap.Duration("latency", latency),
	)

	return &TaskResult{
		ID:             msg.ID,
		ConversationID: conversationID,
		Status:         TaskStatus{State: "completed"},
		Artifacts:      []Artifact{{Parts: []Part{{Type: "text", Text: res.Text}}}},
		Metadata: TaskMetadata{
			AgreementID:  agreement.ID,
			PolicyResult: decision.Result,
			LatencyMs:    entry.LatencyMs,
			InputTokens:  res.InputTokens,
			OutputTokens: res.OutputTokens,
			CostUSD:      res.CostUSD,
		},
	}, nil
}

func (g *Gateway) emit(ctx context.Context, caller types.Caller, action string, msg *federation.Message) {
	err := g.deps.Audit.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: audit.EntityMessage,
		EntityID:   msg.ID,
		ActorOrgID: caller.OrganizationID,
		ActorID:    caller.UserID,
		After: map[string]any{
			"agreementId":    msg.AgreementID,
			"conversationId": msg.ConversationID,
			"targetOrgId":    msg.TargetOrgID,
			"targetAgent":    msg.TargetAgentSlug,
			"policyResult":   msg.PolicyResult,
		},
		At: time.Now().UTC(),
	})
	if err != nil {
		g.logger.Error("audit record failed", zap.String("action", action), zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func (g *Gateway) recordUsage(targetOrg string, res *invoke.Result) {
	if g.deps.Metrics == nil {
		return
	}
	var in, out int
	var cost float64
	if res.InputTokens != nil {
		in = *res.InputTokens
	}
	if res.OutputTokens != nil {
		out = *res.OutputTokens
	}
	if res.CostUSD != nil {
		cost = *res.CostUSD
	}
	g.deps.Metrics.RecordInvocationUsage(targetOrg, in, out, cost)
}
