package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/agentfed/federation/audit"
	"github.com/BaSui01/agentfed/federation/auth"
	"github.com/BaSui01/agentfed/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🔑 API Credential Handler
// =============================================================================

// CredentialStore API 凭证存储，由 *store.Store 实现。
type CredentialStore interface {
	CreateCredential(ctx context.Context, c *auth.Credential) error
	CredentialByID(ctx context.Context, id string) (*auth.Credential, error)
	RevokeCredential(ctx context.Context, id string) error
}

// IssueCredentialRequest 签发凭证请求
type IssueCredentialRequest struct {
	Label string `json:"label"`
}

// credentialResponse 凭证响应，Token 仅在签发时返回一次
type credentialResponse struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	UserID         string     `json:"userId,omitempty"`
	Label          string     `json:"label,omitempty"`
	Token          string     `json:"token,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
}

func toCredentialResponse(c *auth.Credential) credentialResponse {
	return credentialResponse{
		ID:             c.ID,
		OrganizationID: c.OrganizationID,
		UserID:         c.UserID,
		Label:          c.Label,
		CreatedAt:      c.CreatedAt,
		RevokedAt:      c.RevokedAt,
	}
}

// CredentialHandler 凭证签发与吊销
type CredentialHandler struct {
	store  CredentialStore
	audit  audit.Sink
	logger *zap.Logger
}

// NewCredentialHandler 创建凭证处理器
func NewCredentialHandler(store CredentialStore, sink audit.Sink, logger *zap.Logger) *CredentialHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	return &CredentialHandler{
		store:  store,
		audit:  sink,
		logger: logger.With(zap.String("handler", "credential")),
	}
}

// Register 注册路由
func (h *CredentialHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/federation/credentials", h.HandleIssue)
	mux.HandleFunc("DELETE /api/v1/federation/credentials/{id}", h.HandleRevoke)
}

// HandleIssue 为调用方组织签发新 API Key
// @Router /api/v1/federation/credentials [post]
func (h *CredentialHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r, h.logger)
	if !ok {
		return
	}
	var req IssueCredentialRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	token, cred, err := auth.IssueAPIKey(caller.OrganizationID, caller.UserID, strings.TrimSpace(req.Label))
	if err != nil {
		WriteAppError(w, err, h.logger)
		return
	}
	if err := h.store.CreateCredential(r.Context(), cred); err != nil {
		WriteAppError(w, err, h.logger)
		return
	}
	h.record(r.Context(), audit.ActionCredentialIssued, caller, cred)

	resp := toCredentialResponse(cred)
	resp.Token = token
	WriteCreated(w, resp)
}

// HandleRevoke 吊销本组织的凭证，重复吊销视为成功
// @Router /api/v1/federation/credentials/{id} [delete]
func (h *CredentialHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r, h.logger)
	if !ok {
		return
	}
	id := r.PathValue("id")

	cred, err := h.store.CredentialByID(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	// 他组织的凭证按不存在处理
	if cred.OrganizationID != caller.OrganizationID {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "credential not found", h.logger)
		return
	}
	if err := h.store.RevokeCredential(r.Context(), id); err != nil {
		h.writeLookupError(w, err)
		return
	}
	revoked, err := h.store.CredentialByID(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	h.record(r.Context(), audit.ActionCredentialRevoked, caller, revoked)
	WriteSuccess(w, toCredentialResponse(revoked))
}

func (h *CredentialHandler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrCredentialNotFound) {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "credential not found", h.logger)
		return
	}
	WriteAppError(w, err, h.logger)
}

func (h *CredentialHandler) record(ctx context.Context, action string, caller types.Caller, c *auth.Credential) {
	err := h.audit.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: audit.EntityCredential,
		EntityID:   c.ID,
		ActorOrgID: caller.OrganizationID,
		ActorID:    caller.UserID,
		After:      toCredentialResponse(c),
		At:         time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("audit record failed", zap.String("action", action), zap.String("credential_id", c.ID), zap.Error(err))
	}
}
