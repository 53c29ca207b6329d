package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListSourceFiles(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	files, err := s.archive.List(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source_files": files})
}

// GetSourceFile returns archive metadata, or the decompressed original
// bytes with ?raw=true.
func (s *Server) GetSourceFile(c *gin.Context) {
	file, raw, err := s.archive.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if c.Query("raw") == "true" {
		c.Header("Content-Disposition", "attachment; filename=\""+file.FileName+"\"")
		c.Data(http.StatusOK, "text/csv", raw)
		return
	}
	c.JSON(http.StatusOK, file)
}
