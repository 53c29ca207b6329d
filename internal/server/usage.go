package server

import (
	"net/http"

	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListUsage(c *gin.Context) {
	var req usagedomain.ListUsageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.usagesvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) RollupByDepartment(c *gin.Context) {
	var req usagedomain.RollupRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	rows, err := s.usagesvc.RollupByDepartment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rollup": rows})
}

func (s *Server) RollupByMonth(c *gin.Context) {
	var req usagedomain.RollupRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	rows, err := s.usagesvc.RollupByMonth(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rollup": rows})
}

func (s *Server) RollupByWeek(c *gin.Context) {
	var req usagedomain.RollupRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	rows, err := s.usagesvc.RollupByWeek(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rollup": rows})
}
