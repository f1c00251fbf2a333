package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepmind/prepmind-backend/internal/logger"
	"github.com/prepmind/prepmind-backend/internal/services"
)

var errMissingIdentity = errors.New("missing request identity")

type ChatHandler struct {
	log *logger.Logger
	svc services.RetrievalService
}

func NewChatHandler(log *logger.Logger, svc services.RetrievalService) *ChatHandler {
	return &ChatHandler{
		log: log.With("handler", "ChatHandler"),
		svc: svc,
	}
}

type chatRequest struct {
	Query     string `json:"query"`
	Subject   string `json:"subject"`
	SessionID string `json:"session_id"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := h.svc.GenerateChatResponse(c.Request.Context(), req.Query, req.Subject, req.SessionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

type searchRequest struct {
	Query   string `json:"query"`
	Subject string `json:"subject"`
	TopK    int    `json:"top_k"`
}

type searchResult struct {
	SourceFile string `json:"source_file"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

func (h *ChatHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	chunks, err := h.svc.SearchSimilar(c.Request.Context(), req.Query, req.Subject, req.TopK)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	results := make([]searchResult, 0, len(chunks))
	for _, ch := range chunks {
		results = append(results, searchResult{
			SourceFile: ch.SourceFile,
			ChunkIndex: ch.Index,
			Text:       ch.Text,
		})
	}
	RespondOK(c, gin.H{"results": results})
}

func (h *ChatHandler) ClearCache(c *gin.Context) {
	if err := h.svc.ClearCache(c.Request.Context()); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"cleared": true})
}
