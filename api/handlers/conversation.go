package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/agentfed/federation"
	"github.com/BaSui01/agentfed/federation/journal"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 Conversation Inspection Handler
// =============================================================================

// PartyChecker 校验调用方是否为协议一方
type PartyChecker interface {
	Get(ctx context.Context, id, callerOrgID string) (*federation.Agreement, error)
}

// ConversationReader 读取解密并验签后的会话，由 *journal.Journal 实现。
type ConversationReader interface {
	Conversation(ctx context.Context, agreementID, conversationID string) (*journal.Conversation, error)
}

// ConversationHandler 会话查看处理器
type ConversationHandler struct {
	parties PartyChecker
	reader  ConversationReader
	logger  *zap.Logger
}

// NewConversationHandler 创建会话查看处理器
func NewConversationHandler(parties PartyChecker, reader ConversationReader, logger *zap.Logger) *ConversationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationHandler{
		parties: parties,
		reader:  reader,
		logger:  logger.With(zap.String("handler", "conversation")),
	}
}

// Register 注册路由
func (h *ConversationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/federation/agreements/{id}/conversations/{cid}", h.HandleGet)
}

// HandleGet 返回会话消息与汇总
// @Router /api/v1/federation/agreements/{id}/conversations/{cid} [get]
func (h *ConversationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r, h.logger)
	if !ok {
		return
	}
	id, cid := r.PathValue("id"), r.PathValue("cid")

	if _, err := h.parties.Get(r.Context(), id, caller.OrganizationID); err != nil {
		WriteAppError(w, err, h.logger)
		return
	}

	conv, err := h.reader.Conversation(r.Context(), id, cid)
	if err != nil {
		WriteAppError(w, err, h.logger)
		return
	}
	WriteSuccess(w, conv)
}
