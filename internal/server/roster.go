package server

import (
	"bytes"
	"net/http"

	identityservice "github.com/PresidentofMexico/openai-usage-metrics/internal/identity/service"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/format"
	"github.com/gin-gonic/gin"
)

// UploadRoster replaces the employee roster wholesale from an uploaded
// file and rebuilds the identity index.
func (s *Server) UploadRoster(c *gin.Context) {
	_, content, err := readUpload(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	table, err := format.ParseTable(bytes.NewReader(content))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	employees, err := identityservice.ParseRoster(table)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	loaded, err := s.identitysvc.ReplaceRoster(c.Request.Context(), employees)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"employees": loaded})
}

func (s *Server) RosterStats(c *gin.Context) {
	stats, err := s.identitysvc.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) ListUnidentified(c *gin.Context) {
	rows, err := s.identitysvc.ListUnidentified(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unidentified": rows})
}
