package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepmind/prepmind-backend/internal/gateway"
	"github.com/prepmind/prepmind-backend/internal/logger"
)

type GatewayHandler struct {
	log *logger.Logger
	gw  *gateway.Gateway
}

func NewGatewayHandler(log *logger.Logger, gw *gateway.Gateway) *GatewayHandler {
	return &GatewayHandler{
		log: log.With("handler", "GatewayHandler"),
		gw:  gw,
	}
}

func (h *GatewayHandler) Health(c *gin.Context) {
	report := h.gw.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if !report.Ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
