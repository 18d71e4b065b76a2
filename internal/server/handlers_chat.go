package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"scoopai/backend/internal/llm"
	"scoopai/backend/internal/store"
	"scoopai/backend/internal/thinking"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// sseAnswer is the terminal frame of a chat stream, after the thinking
// events.
type sseAnswer struct {
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	SessionID string    `json:"session_id"`
	Model     string    `json:"model"`
	Usage     llm.Usage `json:"usage"`
}

type sseError struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

func (a *App) chat(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload chatRequest
	if !mustJSON(c, &payload) {
		return
	}
	message := strings.TrimSpace(payload.Message)
	if message == "" {
		writeError(c, http.StatusBadRequest, "message is required")
		return
	}

	result, err := a.runChat(c.Request.Context(), userID, payload.SessionID, message, nil)
	if err != nil {
		a.writeChatError(c, err)
		return
	}

	response := gin.H{
		"session_id":  result.SessionID,
		"new_session": result.NewSession,
		"answer":      result.Answer,
		"model":       result.Model,
		"usage":       result.Usage,
		"analysis":    result.Analysis,
	}
	if result.Search != nil {
		response["search"] = result.Search
	}
	c.JSON(http.StatusOK, response)
}

func (a *App) streamChat(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload chatRequest
	if !mustJSON(c, &payload) {
		return
	}
	message := strings.TrimSpace(payload.Message)
	if message == "" {
		writeError(c, http.StatusBadRequest, "message is required")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	send := func(payload string) {
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
		c.Writer.Flush()
	}

	manager := thinking.NewManager(a.thinkStrategy, nil)
	for _, ev := range manager.InitialEvents(message) {
		send(ev.SSEData())
	}

	result, err := a.runChat(c.Request.Context(), userID, payload.SessionID, message,
		&thinkingEmitter{manager: manager, send: send})
	if err != nil {
		a.log.Error("chat stream failed", zap.String("user_id", userID), zap.Error(err))
		send(mustMarshalFrame(sseError{Type: "error", Detail: "AI provider request failed"}))
		return
	}

	if ev := manager.CompletionEvent(); ev != nil {
		send(ev.SSEData())
	}
	send(mustMarshalFrame(sseAnswer{
		Type:      "answer",
		Content:   result.Answer,
		SessionID: result.SessionID,
		Model:     result.Model,
		Usage:     result.Usage,
	}))
}

func mustMarshalFrame(frame any) string {
	raw, err := json.Marshal(frame)
	if err != nil {
		return `{"type":"error","detail":"encoding failed"}`
	}
	return string(raw)
}

func (a *App) listChatSessions(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit := 0
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	sessions, err := a.conversations.UserSessions(c.Request.Context(), userID, limit)
	if err != nil {
		a.log.Error("session list failed", zap.String("user_id", userID), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to load chat sessions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (a *App) getChatMessages(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		writeError(c, http.StatusBadRequest, "session_id is required")
		return
	}

	turns, err := a.conversations.SessionHistory(c.Request.Context(), userID, sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		writeError(c, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		a.log.Error("session load failed",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
			zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to load chat messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   turns,
	})
}

func (a *App) deleteChatSession(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		writeError(c, http.StatusBadRequest, "session_id is required")
		return
	}

	err := a.conversations.ClearSession(c.Request.Context(), userID, sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		writeError(c, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		a.log.Error("session delete failed",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
			zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to delete chat session")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "deleted",
		"session_id": sessionID,
	})
}

func (a *App) writeChatError(c *gin.Context, err error) {
	lowered := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(lowered, "gemini_api_key is not configured"):
		writeError(c, http.StatusServiceUnavailable, "AI provider is not configured: set GEMINI_API_KEY")
		return
	case strings.Contains(lowered, "context deadline exceeded"):
		writeError(c, http.StatusBadGateway, "AI provider request timed out")
		return
	case strings.Contains(lowered, "gemini"):
		writeError(c, http.StatusBadGateway, "AI provider request failed")
		return
	}
	a.log.Error("chat failed unclassified", zap.Error(err))
	writeError(c, http.StatusInternalServerError, "Failed to execute chat")
}
