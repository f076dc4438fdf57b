package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Mesh/internal/adapters/signal"
	"github.com/dkeye/Mesh/internal/app/orch"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type sessionHandlers struct {
	store core.SessionStore
	orch  *orch.Orchestrator
}

func (h *sessionHandlers) list(c *gin.Context) {
	recs, err := h.store.List(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("list sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot list sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": recs})
}

func (h *sessionHandlers) create(c *gin.Context) {
	var req core.NewSession
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session"})
		return
	}
	if req.Owner == "" {
		req.Owner = c.GetString(clientTokenKey)
	}
	rec, err := h.store.Create(c.Request.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *sessionHandlers) get(c *gin.Context) {
	code, ok := codeParam(c)
	if !ok {
		return
	}
	rec, err := h.store.GetByCode(c.Request.Context(), code)
	if !h.check(c, err) {
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *sessionHandlers) activate(c *gin.Context) {
	code, ok := codeParam(c)
	if !ok {
		return
	}
	rec, err := h.store.Activate(c.Request.Context(), code)
	if !h.check(c, err) {
		return
	}
	c.JSON(http.StatusOK, rec)
}

// participants reports the runtime view, which may differ from the persisted counter.
func (h *sessionHandlers) participants(c *gin.Context) {
	code, ok := codeParam(c)
	if !ok {
		return
	}
	members := h.orch.Registry.Members(code)
	c.JSON(http.StatusOK, gin.H{"code": code, "participants": members, "count": len(members)})
}

func (h *sessionHandlers) rememberName(c *gin.Context) {
	var req struct {
		DisplayName string `json:"displayName" binding:"required,max=36"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid display name"})
		return
	}
	sess := sessions.Default(c)
	sess.Set(signal.SessionKeyDisplayName, req.DisplayName)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save cookie session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot save"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"displayName": req.DisplayName})
}

func (h *sessionHandlers) check(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, core.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Msg("session store")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session store failure"})
	}
	return false
}

func codeParam(c *gin.Context) (domain.SessionCode, bool) {
	code, err := domain.NormalizeSessionCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session code"})
		return "", false
	}
	return code, true
}
