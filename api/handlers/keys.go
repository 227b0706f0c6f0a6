package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/BaSui01/agentfed/federation/audit"
	"github.com/BaSui01/agentfed/federation/signing"
	"github.com/BaSui01/agentfed/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🔏 Signing Key Handler
// =============================================================================

// KeyRotator 组织签名密钥轮换，由 *signing.Keyring 实现。
type KeyRotator interface {
	Rotate(ctx context.Context, orgID string) (*signing.KeyPair, error)
}

// keyResponse 轮换结果，仅含公钥
type keyResponse struct {
	OrganizationID string    `json:"organizationId"`
	Version        int       `json:"version"`
	PublicKey      string    `json:"publicKey"`
	CreatedAt      time.Time `json:"createdAt"`
}

// KeyHandler 签名密钥管理
type KeyHandler struct {
	rotator KeyRotator
	audit   audit.Sink
	logger  *zap.Logger
}

// NewKeyHandler 创建签名密钥处理器
func NewKeyHandler(rotator KeyRotator, sink audit.Sink, logger *zap.Logger) *KeyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	return &KeyHandler{
		rotator: rotator,
		audit:   sink,
		logger:  logger.With(zap.String("handler", "keys")),
	}
}

// Register 注册路由
func (h *KeyHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/federation/keys/rotate", h.HandleRotate)
}

// HandleRotate 为调用方组织生成新版本签名密钥，旧版本继续用于验签
// @Router /api/v1/federation/keys/rotate [post]
func (h *KeyHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r, h.logger)
	if !ok {
		return
	}

	pair, err := h.rotator.Rotate(r.Context(), caller.OrganizationID)
	if err != nil {
		WriteAppError(w, err, h.logger)
		return
	}

	resp := keyResponse{
		OrganizationID: pair.OrganizationID,
		Version:        pair.Version,
		PublicKey:      base64.StdEncoding.EncodeToString(pair.Public),
		CreatedAt:      pair.CreatedAt,
	}
	h.record(r.Context(), caller, resp)
	WriteCreated(w, resp)
}

func (h *KeyHandler) record(ctx context.Context, caller types.Caller, k keyResponse) {
	err := h.audit.Record(ctx, audit.Entry{
		Action:     audit.ActionKeyRotated,
		EntityType: audit.EntityOrgKey,
		EntityID:   k.OrganizationID,
		ActorOrgID: caller.OrganizationID,
		ActorID:    caller.UserID,
		After:      k,
		At:         time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("audit record failed", zap.String("action", audit.ActionKeyRotated), zap.Int("version", k.Version), zap.Error(err))
	}
}
