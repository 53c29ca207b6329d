package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxUploadBytes caps export uploads. Vendor exports are small CSVs; a
// larger body is almost certainly the wrong file.
const maxUploadBytes = 32 << 20

func readUpload(c *gin.Context) (string, []byte, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return "", nil, newValidationError("file", "missing_file", "multipart field 'file' is required")
	}
	if fileHeader.Size > maxUploadBytes {
		return "", nil, newValidationError("file", "file_too_large", "file exceeds the upload limit")
	}

	f, err := fileHeader.Open()
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return "", nil, err
	}
	if int64(len(content)) > maxUploadBytes {
		return "", nil, newValidationError("file", "file_too_large", "file exceeds the upload limit")
	}
	return fileHeader.Filename, content, nil
}

// DetectFormat classifies an uploaded export without writing anything.
func (s *Server) DetectFormat(c *gin.Context) {
	_, content, err := readUpload(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cls, err := s.pipeline.Detect(c.Request.Context(), content)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cls)
}

// PreviewIngest runs the full pipeline up to the supersession preview so
// the caller can see what a confirmed ingest would replace.
func (s *Server) PreviewIngest(c *gin.Context) {
	fileName, content, err := readUpload(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.pipeline.ProcessFile(c.Request.Context(), fileName, content, false)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// IngestFile commits an upload: supersession plus insert plus archival.
func (s *Server) IngestFile(c *gin.Context) {
	fileName, content, err := readUpload(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.pipeline.ProcessFile(c.Request.Context(), fileName, content, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
