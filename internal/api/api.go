package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/chatquota/internal/apperr"
	"github.com/wuwenbin0122/chatquota/internal/models"
	"github.com/wuwenbin0122/chatquota/internal/utils"
)

// ChatService is the chat orchestrator as seen by the HTTP layer.
type ChatService interface {
	SubmitTurn(ctx context.Context, displayName, text string) (string, error)
	History(ctx context.Context, displayName string, lastN int) ([]models.ChatEntry, error)
	TodayStatus(ctx context.Context, displayName string) (*models.ChatStatus, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	chat   ChatService
	store  Pinger
	logger *zap.Logger
}

func NewHandler(chat ChatService, store Pinger, logger *zap.Logger) *Handler {
	return &Handler{chat: chat, store: store, logger: utils.OrNop(logger)}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/get_ai_chat_response", h.handleChatResponse)
	v1.GET("/get_user_chat_history", h.handleChatHistory)
	v1.GET("/get_chat_status_today", h.handleChatStatusToday)
}

type chatRequest struct {
	Message  string `json:"message"`
	UserName string `json:"user_name"`
}

func (h *Handler) handleChatResponse(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("invalid payload", err))
		return
	}

	reply, err := h.chat.SubmitTurn(c.Request.Context(), req.UserName, req.Message)
	if err != nil {
		if reply != "" && errors.Is(err, apperr.ErrStoreUnavailable) {
			h.logger.Warn("reply generated but not stored",
				zap.String("request_id", requestID(c)),
				zap.Error(err),
			)
			writeErrorWith(c, err, gin.H{"response": reply})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": reply})
}

func (h *Handler) handleChatHistory(c *gin.Context) {
	userName := c.Query("user_name")
	if strings.TrimSpace(userName) == "" {
		writeError(c, apperr.Validation("user_name is required", nil))
		return
	}

	raw, ok := c.GetQuery("last_n")
	if !ok {
		writeError(c, apperr.Validation("last_n is required", nil))
		return
	}
	lastN, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		writeError(c, apperr.Validation("last_n must be an integer", err))
		return
	}

	entries, err := h.chat.History(c.Request.Context(), userName, lastN)
	if err != nil {
		writeError(c, err)
		return
	}
	if entries == nil {
		entries = []models.ChatEntry{}
	}

	c.JSON(http.StatusOK, entries)
}

func (h *Handler) handleChatStatusToday(c *gin.Context) {
	userName := c.Query("user_name")
	if strings.TrimSpace(userName) == "" {
		writeError(c, apperr.Validation("user_name is required", nil))
		return
	}

	status, err := h.chat.TodayStatus(c.Request.Context(), userName)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if h.store != nil {
		if err := h.store.Ping(c.Request.Context()); err != nil {
			h.logger.Warn("health check: store unreachable", zap.Error(err))
			body["status"] = "degraded"
			body["store"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}

	c.JSON(http.StatusOK, body)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotAuthorized:
		return http.StatusUnauthorized
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUpstream:
		return http.StatusBadGateway
	case apperr.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	writeErrorWith(c, err, nil)
}

func writeErrorWith(c *gin.Context, err error, extra gin.H) {
	kind := apperr.KindOf(err)
	body := gin.H{
		"error":   string(kind),
		"message": apperr.MessageOf(err),
	}
	for k, v := range extra {
		body[k] = v
	}

	_ = c.Error(err)
	c.JSON(statusFor(kind), body)
}
