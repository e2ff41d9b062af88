package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/oaknational/oak-ai-lesson-assistant/internal/domain/chat"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/ctxutil"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/dbctx"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/protocol"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/safety"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/services"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/sse"
)

type ChatHandler struct {
	log   *logger.Logger
	chats services.ChatService
	gen   services.GenerationService
}

func NewChatHandler(log *logger.Logger, chats services.ChatService, gen services.GenerationService) *ChatHandler {
	return &ChatHandler{
		log:   log.With("handler", "ChatHandler"),
		chats: chats,
		gen:   gen,
	}
}

type chatRequest struct {
	ChatID   string          `json:"chatId"`
	Messages []types.Message `json:"messages"`
}

// POST /api/chat
// Runs one generation turn and streams protocol documents back.
func (h *ChatHandler) Generate(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	writer, err := sse.NewWriter(c.Writer, h.log)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "streaming_unsupported", err)
		return
	}
	defer writer.Close()

	runErr := h.gen.Stream(c.Request.Context(), services.GenerationRequest{
		ChatID:   req.ChatID,
		UserID:   rd.UserID,
		Messages: req.Messages,
	}, writer.Send)
	if runErr == nil {
		return
	}

	// The stream is already open at HTTP 200, so failures after this
	// point travel inside the protocol. Only the document shape varies
	// by error class.
	h.sendTerminal(writer, runErr)
}

// sendTerminal maps the error taxonomy onto terminal protocol documents.
// The client never sees a raw error string for a distinguished condition.
func (h *ChatHandler) sendTerminal(writer *sse.Writer, runErr error) {
	var rateErr *services.RateLimitExceededError
	var threatErr *safety.ThreatDetectionError
	var bannedErr *safety.UserBannedError
	var authErr *services.AuthenticationError

	switch {
	case errors.As(runErr, &bannedErr):
		h.send(writer, protocol.NewActionDocument(protocol.ActionShowAccountLocked))
	case errors.As(runErr, &threatErr):
		h.send(writer, protocol.NewErrorDocument("threat",
			"I cannot help with that request. Please use Aila to plan lessons."))
	case errors.As(runErr, &rateErr):
		h.send(writer, protocol.NewErrorDocument("rate_limit", rateErr.UserMessage()))
	case errors.As(runErr, &authErr):
		// Authentication failed after the stream opened; nothing more
		// specific can be said safely.
		h.send(writer, protocol.NewErrorDocument("auth", "Unauthorized"))
	default:
		h.log.Error("generation run failed", "error", runErr.Error())
		h.send(writer, protocol.NewErrorDocument("unknown",
			"Sorry, an error occurred. Please try again."))
	}
}

func (h *ChatHandler) send(writer *sse.Writer, doc *protocol.Document) {
	if err := writer.Send(doc); err != nil {
		h.log.Debug("client gone before terminal document", "error", err.Error())
	}
}

// GET /api/chats
func (h *ChatHandler) ListChats(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	sessions, err := h.chats.ListForUser(dbctx.New(c.Request.Context()), rd.UserID, 50)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"chats": sessions})
}

// GET /api/chats/:id
func (h *ChatHandler) GetChat(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	sess, out, err := h.chats.LoadOrCreate(dbctx.New(c.Request.Context()), c.Param("id"), rd.UserID)
	if err != nil {
		var authErr *services.AuthenticationError
		if errors.As(err, &authErr) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		RespondError(c, http.StatusInternalServerError, "load_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"id":         sess.ID,
		"title":      sess.Title,
		"messages":   out.Messages,
		"lessonPlan": out.LessonPlan,
	})
}

// DELETE /api/chats/:id
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	if err := h.chats.Delete(dbctx.New(c.Request.Context()), c.Param("id"), rd.UserID); err != nil {
		var authErr *services.AuthenticationError
		if errors.As(err, &authErr) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		RespondError(c, http.StatusInternalServerError, "delete_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}
