package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BaSui01/agentfed/federation"
	"github.com/BaSui01/agentfed/federation/agreement"
	"github.com/BaSui01/agentfed/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🤝 Federation Agreement Handler
// =============================================================================

// 协议操作
const (
	ActionApprove    = "approve"
	ActionSuspend    = "suspend"
	ActionRevoke     = "revoke"
	ActionReactivate = "reactivate"
)

// AgreementService 协议管理，由 *agreement.Manager 实现。
type AgreementService interface {
	Get(ctx context.Context, id, callerOrgID string) (*federation.Agreement, error)
	List(ctx context.Context, orgID string) ([]federation.Agreement, error)
	Detail(ctx context.Context, id, callerOrgID string) (*agreement.Detail, error)
	Create(ctx context.Context, in agreement.CreateInput) (*federation.Agreement, error)
	Approve(ctx context.Context, id, actorOrgID, actorUserID string, in agreement.ApproveInput) (*federation.Agreement, error)
	Reactivate(ctx context.Context, id, actorOrgID, actorUserID string, in agreement.ApproveInput) (*federation.Agreement, error)
	Suspend(ctx context.Context, id, actorOrgID, actorUserID, reason string) (*federation.Agreement, error)
	Revoke(ctx context.Context, id, actorOrgID, actorUserID, reason string) (*federation.Agreement, error)
	SetExposureEnabled(ctx context.Context, exposureID, actorOrgID, actorUserID string, enabled bool) (*federation.Exposure, error)
	RecordHumanApproval(ctx context.Context, id, conversationID, actorOrgID, actorUserID string) error
}

// CreateAgreementRequest 创建协议请求
type CreateAgreementRequest struct {
	ResponderOrgID string `json:"responderOrgId"`
}

// AgreementActionRequest 协议操作请求
type AgreementActionRequest struct {
	Action   string                  `json:"action"`
	Reason   string                  `json:"reason,omitempty"`
	Approval *agreement.ApproveInput `json:"approval,omitempty"`
}

// UpdateExposureRequest Exposure 开关请求
type UpdateExposureRequest struct {
	Enabled *bool `json:"enabled"`
}

// AgreementHandler 协议管理处理器
type AgreementHandler struct {
	service AgreementService
	logger  *zap.Logger
}

// NewAgreementHandler 创建协议管理处理器
func NewAgreementHandler(service AgreementService, logger *zap.Logger) *AgreementHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgreementHandler{
		service: service,
		logger:  logger.With(zap.String("handler", "agreement")),
	}
}

// Register 注册路由
func (h *AgreementHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/federation/agreements", h.HandleList)
	mux.HandleFunc("POST /api/v1/federation/agreements", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/federation/agreements/{id}", h.HandleDetail)
	mux.HandleFunc("POST /api/v1/federation/agreements/{id}/actions", h.HandleAction)
	mux.HandleFunc("POST /api/v1/federation/agreements/{id}/conversations/{cid}/approval", h.HandleHumanApproval)
	mux.HandleFunc("PATCH /api/v1/federation/exposures/{id}", h.HandleUpdateExposure)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleList 列出调用方组织参与的协议
// @Router /api/v1/federation/agreements [get]
func (h *AgreementHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r, h.logger)
	if !ok {
		return
	}
	list, err := h.service.List(r.Context(), caller.OrganizationID)
	if err != nil {
		WriteAppError(w, err, h.logger)
		return
	}
	if list == nil {
		list = []federation.Agreement{}
	}
	WriteSuccess(w, list)
}

// HandleCreate 以调用方组织为发起方创建协议
// @Router /api/v1/federation/agreements [post]
func (h *AgreementHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r, h.logger)
	if !ok {
		return
	}
	var req CreateAgreementRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.ResponderOrgID) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "responderOrgId is required", h.logger)
		return
	}

	a, err := h.service.Create(r.Context(), agreement.CreateInput{
		InitiatorOrgID: caller.OrganizationID,
		ResponderOrgID: req.ResponderOrgID,
		ActorUserID:    caller.UserID,
	})
	if err != nil {
		WriteAppError(w, err, h.logger)
		return
	}
	WriteCreated(w, a)
}

// HandleDetail 协议详情：状态、治理参数、双方 Exposure、消息数
// @Router /api/v1/federation/agreements/{id} [get]
func (h *AgreementHandler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r, h.logger)
	if !ok {
		return
	}
	d, err := h.service.Detail(r.Context(), r.PathValue("id"), caller.OrganizationID)
	if err != nil {
		WriteAppError(w, err, h.logger)
		return
	}
	WriteSuccess(w, d)
}

// HandleAction 执行 approve / suspend / revoke / reactivate
// @Router /api/v1/federation/agreements/{id}/actions [post]
func (h *AgreementHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r, h.logger)
	if !ok {
		return
	}
	var req AgreementActionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	id := r.PathValue("id")
	ctx := r.Context()
	var (
		a   *federation.Agreement
		err error
	)
	switch req.Action {
	case ActionApprove, ActionReactivate:
		if req.Approval == nil {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "approval is required for "+req.Action, h.logger)
			return
		}
		if req.Action == ActionApprove {
			a, err = h.service.Approve(ctx, id, caller.OrganizationID, caller.UserID, *req.Approval)
		} else {
			a, err = h.service.Reactivate(ctx, id, caller.OrganizationID, caller.UserID, *req.Approval)
		}
	case ActionSuspend:
		a, err = h.service.Suspend(ctx, id, caller.OrganizationID, caller.UserID, req.Reason)
	case ActionRevoke:
		a, err = h.service.Revoke(ctx, id, caller.OrganizationID, caller.UserID, req.Reason)
	default:
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "unknown action "+strings.TrimSpace(req.Action), h.logger)
		return
	}
	if err != nil {
		WriteAppError(w, err, h.logger)
		return
	}

	h.logger.Info("agreement action applied",
		zap.String("agreement_id", id),
		zap.String("action", req.Action),
		zap.String("actor_org_id", caller.OrganizationID),
		zap.String("status", string(a.Status)),
	)
	WriteSuccess(w, a)
}

// HandleUpdateExposure 启用或停用本组织的 Exposure
// @Router /api/v1/federation/exposures/{id} [patch]
func (h *AgreementHandler) HandleUpdateExposure(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r, h.logger)
	if !ok {
		return
	}
	var req UpdateExposureRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Enabled == nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "enabled is required", h.logger)
		return
	}

	e, err := h.service.SetExposureEnabled(r.Context(), r.PathValue("id"), caller.OrganizationID, caller.UserID, *req.Enabled)
	if err != nil {
		WriteAppError(w, err, h.logger)
		return
	}
	WriteSuccess(w, e)
}

// HandleHumanApproval 记录会话的人工审批
// @Router /api/v1/federation/agreements/{id}/conversations/{cid}/approval [post]
func (h *AgreementHandler) HandleHumanApproval(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r, h.logger)
	if !ok {
		return
	}
	id, cid := r.PathValue("id"), r.PathValue("cid")
	if err := h.service.RecordHumanApproval(r.Context(), id, cid, caller.OrganizationID, caller.UserID); err != nil {
		WriteAppError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{
		"agreementId":    id,
		"conversationId": cid,
	})
}
