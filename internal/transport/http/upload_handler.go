package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/talkroom/talkroom-server/internal/proto"
	"github.com/talkroom/talkroom-server/internal/upload"
)

// UploadHandlers provides the attachment upload endpoint.
type UploadHandlers struct {
	uploads *upload.Service
	log     *zerolog.Logger
}

// NewUploadHandlers creates a new upload handlers instance.
func NewUploadHandlers(uploads *upload.Service, logger *zerolog.Logger) *UploadHandlers {
	return &UploadHandlers{
		uploads: uploads,
		log:     logger,
	}
}

// Upload accepts one multipart file and returns the metadata the client
// attaches to a message:send event.
// POST /api/upload
func (h *UploadHandlers) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file field is required"})
		return
	}

	meta, err := h.uploads.Save(header)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrFileTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file exceeds 5 MiB limit"})
		case errors.Is(err, upload.ErrDisallowedType):
			c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{Error: "file type not allowed"})
		default:
			h.log.Error().Err(err).Str("filename", header.Filename).Msg("failed to store upload")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, proto.FileData{
		URL:  meta.URL,
		Name: meta.Name,
		Size: meta.Size,
		Type: meta.MimeType,
	})
}
