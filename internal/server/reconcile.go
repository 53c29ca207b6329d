package server

import (
	"net/http"

	reconciledomain "github.com/PresidentofMexico/openai-usage-metrics/internal/reconcile/domain"
	"github.com/gin-gonic/gin"
)

// RunReconciliation validates persisted usage and returns the report.
// With ?format=text the human-readable rendering is returned instead of
// JSON.
func (s *Server) RunReconciliation(c *gin.Context) {
	var req reconciledomain.RunRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	report, err := s.reconcilesvc.Run(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, report.Render())
		return
	}
	c.JSON(http.StatusOK, report)
}
