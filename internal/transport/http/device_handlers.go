package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/blackroom/relay/internal/core"
)

// DeviceHandlers provides HTTP handlers for device identity endpoints.
type DeviceHandlers struct {
	resolver *core.IdentityResolver
	log      *zerolog.Logger
}

// NewDeviceHandlers creates a new device handlers instance.
func NewDeviceHandlers(resolver *core.IdentityResolver, logger *zerolog.Logger) *DeviceHandlers {
	return &DeviceHandlers{
		resolver: resolver,
		log:      logger,
	}
}

// DeviceUpsertRequest represents the device upsert request body. Both fields
// are optional; the fingerprint is the strong identifier.
type DeviceUpsertRequest struct {
	Fingerprint string `json:"fingerprint"`
	Label       string `json:"label" binding:"omitempty,max=120"`
}

// DeviceUpsertResponse represents the resolved device.
type DeviceUpsertResponse struct {
	OK       bool    `json:"ok"`
	DeviceID int64   `json:"device_id"`
	Label    *string `json:"label"`
	IPLast   *string `json:"ip_last"`
}

// Upsert resolves or registers the calling device.
// POST /device/upsert
func (h *DeviceHandlers) Upsert(c *gin.Context) {
	var req DeviceUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid device upsert request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	dev, err := h.resolver.Resolve(c.Request.Context(), core.ResolveInput{
		Fingerprint: req.Fingerprint,
		Label:       req.Label,
		RemoteAddr:  c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to resolve device")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, DeviceUpsertResponse{
		OK:       true,
		DeviceID: dev.ID,
		Label:    optionalString(dev.Label),
		IPLast:   optionalString(dev.IPLast),
	})
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
