package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/blackroom/relay/internal/blob"
	"github.com/blackroom/relay/internal/core"
	"github.com/blackroom/relay/internal/proto"
)

// UploadHandlers provides HTTP handlers for blob upload and download.
type UploadHandlers struct {
	ingestor    *core.Ingestor
	blobs       *blob.Store
	defaultRoom string
	log         *zerolog.Logger
}

// NewUploadHandlers creates a new upload handlers instance.
func NewUploadHandlers(ingestor *core.Ingestor, blobs *blob.Store, defaultRoom string, logger *zerolog.Logger) *UploadHandlers {
	return &UploadHandlers{
		ingestor:    ingestor,
		blobs:       blobs,
		defaultRoom: defaultRoom,
		log:         logger,
	}
}

// UploadResponse carries the message id and object key of a stored upload.
type UploadResponse struct {
	OK        bool   `json:"ok"`
	ID        int64  `json:"id"`
	ObjectKey string `json:"object_key"`
	Category  string `json:"category,omitempty"`
}

// Voice stores a recorded voice note and broadcasts a "voice" message
// referencing it.
// POST /upload/voice
func (h *UploadHandlers) Voice(c *gin.Context) {
	fileHeader, raw, ok := h.readUpload(c)
	if !ok {
		return
	}

	key, err := h.blobs.PutAudio(raw, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to store voice blob")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	msg, ok := h.ingestUpload(c, core.IngestInput{
		ContentType: proto.ContentTypeVoice,
		FileRef:     key,
	})
	if !ok {
		return
	}

	c.JSON(http.StatusOK, UploadResponse{OK: true, ID: msg, ObjectKey: key})
}

// Blob stores a generic upload (image, video, document), classifies it for
// the timeline and broadcasts a message carrying the original filename.
// POST /upload/blob
func (h *UploadHandlers) Blob(c *gin.Context) {
	fileHeader, raw, ok := h.readUpload(c)
	if !ok {
		return
	}

	declaredType := fileHeader.Header.Get("Content-Type")

	key, err := h.blobs.PutBlob(raw, declaredType, fileHeader.Filename)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to store blob")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	category := blob.Classify(declaredType)

	msg, ok := h.ingestUpload(c, core.IngestInput{
		ContentType: category,
		Content:     fileHeader.Filename,
		FileRef:     key,
		Mime:        declaredType,
	})
	if !ok {
		return
	}

	c.JSON(http.StatusOK, UploadResponse{OK: true, ID: msg, ObjectKey: key, Category: category})
}

// ServeAudio streams a stored voice note.
// GET /files/audio/:key
func (h *UploadHandlers) ServeAudio(c *gin.Context) {
	h.serve(c, h.blobs.OpenAudio)
}

// ServeBlob streams a stored generic blob.
// GET /files/blob/:key
func (h *UploadHandlers) ServeBlob(c *gin.Context) {
	h.serve(c, h.blobs.OpenBlob)
}

// readUpload pulls the multipart file out of the request and rejects empty
// payloads before anything is stored.
func (h *UploadHandlers) readUpload(c *gin.Context) (*multipart.FileHeader, []byte, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file is required"})
		return nil, nil, false
	}

	f, err := fileHeader.Open()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to open upload")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, nil, false
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read upload")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, nil, false
	}

	if len(raw) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty file"})
		return nil, nil, false
	}

	return fileHeader, raw, true
}

// ingestUpload fills the form fields shared by both upload endpoints and
// runs the common pipeline. Returns the assigned message id.
func (h *UploadHandlers) ingestUpload(c *gin.Context, in core.IngestInput) (int64, bool) {
	in.Room = c.PostForm("room")
	if in.Room == "" {
		in.Room = h.defaultRoom
	}
	in.Fingerprint = c.PostForm("fingerprint")
	in.Label = c.PostForm("label")
	in.RemoteAddr = c.ClientIP()
	in.UserAgent = c.Request.UserAgent()

	msg, _, err := h.ingestor.Ingest(c.Request.Context(), in)
	if err != nil {
		h.log.Error().Err(err).Str("room", in.Room).Msg("failed to ingest upload")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return 0, false
	}

	return msg.ID, true
}

// serve streams a blob with a content type derived from the key extension.
// Path-traversal keys are rejected before the store touches the filesystem.
func (h *UploadHandlers) serve(c *gin.Context, open func(key string) (*os.File, string, error)) {
	key := c.Param("key")

	f, contentType, err := open(key)
	if err != nil {
		switch {
		case errors.Is(err, blob.ErrInvalidKey):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid object key"})
		case errors.Is(err, blob.ErrNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
		default:
			h.log.Error().Err(err).Str("key", key).Msg("failed to open blob")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("failed to stat blob")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.DataFromReader(http.StatusOK, info.Size(), contentType, f, map[string]string{
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", key),
	})
}
