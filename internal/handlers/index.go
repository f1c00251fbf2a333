package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prepmind/prepmind-backend/internal/indexer"
	"github.com/prepmind/prepmind-backend/internal/logger"
)

type IndexHandler struct {
	log *logger.Logger
	svc indexer.Service
}

func NewIndexHandler(log *logger.Logger, svc indexer.Service) *IndexHandler {
	return &IndexHandler{
		log: log.With("handler", "IndexHandler"),
		svc: svc,
	}
}

func forceParam(c *gin.Context) bool {
	v := strings.ToLower(strings.TrimSpace(c.Query("force")))
	return v == "1" || v == "true"
}

func (h *IndexHandler) Reindex(c *gin.Context) {
	subject := c.Param("subject")
	result, err := h.svc.IndexSubject(c.Request.Context(), subject, forceParam(c))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

func (h *IndexHandler) ReindexAll(c *gin.Context) {
	results, err := h.svc.IndexAllSubjects(c.Request.Context(), forceParam(c))
	if err != nil {
		// Partial results still go back so the caller sees how far it got.
		c.JSON(http.StatusInternalServerError, gin.H{
			"results": results,
			"error":   gin.H{"message": err.Error(), "code": "indexing_failed"},
		})
		return
	}
	RespondOK(c, gin.H{"results": results})
}

func (h *IndexHandler) Status(c *gin.Context) {
	statuses, err := h.svc.Status(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"subjects": statuses})
}
