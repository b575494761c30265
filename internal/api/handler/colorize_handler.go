package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/colorize-be/internal/api/dto"
	"github.com/cuongbtq/colorize-be/internal/colorize"
	"github.com/cuongbtq/colorize-be/internal/domain"
	"github.com/cuongbtq/colorize-be/internal/ephemeral"
	"github.com/cuongbtq/colorize-be/internal/identity"
	"github.com/cuongbtq/colorize-be/internal/lifecycle"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ColorizeHandler handles colorize-related HTTP requests
type ColorizeHandler struct {
	logger         *slog.Logger
	tracker        RequestTracker
	ephemeral      EphemeralColorizer
	maxUploadBytes int64
}

// NewColorizeHandler creates a new ColorizeHandler instance
func NewColorizeHandler(deps *Dependencies) *ColorizeHandler {
	return &ColorizeHandler{
		logger:         deps.Logger,
		tracker:        deps.Tracker,
		ephemeral:      deps.Ephemeral,
		maxUploadBytes: deps.MaxUploadBytes,
	}
}

// Upload handles POST /colorize/upload
// Stores the original and starts the background colorization.
func (h *ColorizeHandler) Upload(c *gin.Context) {
	img, err := readImage(c, h.maxUploadBytes)
	if err != nil {
		h.rejectUpload(c, err)
		return
	}

	var form dto.UploadForm
	if err := c.ShouldBind(&form); err != nil {
		respondError(c, http.StatusUnprocessableEntity, "user_id is required")
		return
	}

	caller := identity.Resolve(identity.Input{
		FormUserID:    form.UserID,
		FormEmail:     form.UserEmail,
		Authorization: c.GetHeader("Authorization"),
		UserAgent:     c.Request.UserAgent(),
	})

	req, err := h.tracker.Submit(c.Request.Context(), lifecycle.SubmitInput{
		UserID:    form.UserID,
		UserEmail: form.UserEmail,
		Platform:  caller.Platform,
		Image:     img.data,
	})
	if err != nil {
		respondInternal(c, h.logger, "Failed to submit colorize request", err,
			slog.String("user_id", form.UserID),
		)
		return
	}

	c.JSON(http.StatusOK, dto.NewColorizeResponse(req))
}

// Status handles GET /colorize/status/:request_id
func (h *ColorizeHandler) Status(c *gin.Context) {
	requestID := c.Param("request_id")

	// ids are always UUIDs, anything else cannot exist
	if _, err := uuid.Parse(requestID); err != nil {
		respondError(c, http.StatusNotFound, notFoundDetail(requestID))
		return
	}

	req, err := h.tracker.Get(c.Request.Context(), requestID)
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			respondError(c, http.StatusNotFound, notFoundDetail(requestID))
			return
		}
		respondInternal(c, h.logger, "Failed to get colorize request", err,
			slog.String("request_id", requestID),
		)
		return
	}

	c.JSON(http.StatusOK, dto.NewColorizeResponse(req))
}

// Ephemeral handles POST /colorize/ephemeral
// Colorizes synchronously and returns both images without storing anything.
func (h *ColorizeHandler) Ephemeral(c *gin.Context) {
	img, err := readImage(c, h.maxUploadBytes)
	if err != nil {
		h.rejectUpload(c, err)
		return
	}

	var form dto.EphemeralForm
	if err := c.ShouldBind(&form); err != nil {
		respondError(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result, err := h.ephemeral.Colorize(c.Request.Context(), ephemeral.Input{
		Image:       img.data,
		ContentType: img.contentType,
		Caller: identity.Input{
			FormUserID:    form.UserID,
			FormEmail:     form.UserEmail,
			FormPlatform:  form.Platform,
			Authorization: c.GetHeader("Authorization"),
			UserAgent:     c.Request.UserAgent(),
		},
	})
	if err != nil {
		h.rejectColorization(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.EphemeralResponse{
		OriginalBase64:  result.OriginalBase64,
		ColorizedBase64: result.ColorizedBase64,
		ExpiresIn:       int64(result.ExpiresIn.Seconds()),
	})
}

func (h *ColorizeHandler) rejectUpload(c *gin.Context, err error) {
	if status, ok := uploadErrorStatus(err); ok {
		respondError(c, status, err.Error())
		return
	}
	respondInternal(c, h.logger, "Failed to read upload", err)
}

// rejectColorization reports input problems as 400 and model failures as 500,
// both with the user-facing message.
func (h *ColorizeHandler) rejectColorization(c *gin.Context, err error) {
	var cerr *colorize.Error
	if !errors.As(err, &cerr) {
		respondInternal(c, h.logger, "Ephemeral colorization failed", err)
		return
	}

	h.logger.Warn("Ephemeral colorization failed",
		slog.String("kind", cerr.Kind.String()),
		slog.String("error", cerr.Detail()),
	)

	switch cerr.Kind {
	case colorize.KindInvalidImageFormat, colorize.KindCorruptImage:
		respondError(c, http.StatusBadRequest, cerr.Error())
	default:
		respondError(c, http.StatusInternalServerError, cerr.Error())
	}
}

func notFoundDetail(id string) string {
	return "Request with ID " + id + " not found"
}
