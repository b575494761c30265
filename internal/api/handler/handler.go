package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/cuongbtq/colorize-be/internal/api/dto"
	"github.com/cuongbtq/colorize-be/internal/domain"
	"github.com/cuongbtq/colorize-be/internal/ephemeral"
	"github.com/cuongbtq/colorize-be/internal/lifecycle"
	"github.com/gin-gonic/gin"
)

// InternalErrorMessage is the only detail clients see for unclassified failures.
const InternalErrorMessage = "Internal server error. Please try again later."

// multipartOverhead is the room left for form fields and part headers on top
// of the file size limit.
const multipartOverhead = 1 << 20

// RequestTracker is the persistent flow used by the colorize handlers.
type RequestTracker interface {
	Submit(ctx context.Context, in lifecycle.SubmitInput) (*domain.ColorizeRequest, error)
	Get(ctx context.Context, id string) (*domain.ColorizeRequest, error)
}

// EphemeralColorizer is the no-persistence flow.
type EphemeralColorizer interface {
	Colorize(ctx context.Context, in ephemeral.Input) (*ephemeral.Result, error)
}

// StatsProvider serves aggregate usage figures.
type StatsProvider interface {
	Snapshot(ctx context.Context) (*domain.Stats, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// AppInfo identifies the running service.
type AppInfo struct {
	Name        string
	Version     string
	Environment string
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	Tracker        RequestTracker
	Ephemeral      EphemeralColorizer
	Stats          StatsProvider
	Database       HealthChecker
	App            AppInfo
	MaxUploadBytes int64
}

func respondError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Detail: detail})
}

// respondInternal logs err with the request context and replies with the
// generic 500 body.
func respondInternal(c *gin.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	_ = c.Error(err)
	logger.Error(msg, append(attrs,
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
	)...)
	respondError(c, http.StatusInternalServerError, InternalErrorMessage)
}

var (
	errFileRequired = errors.New("file is required")
	errNotAnImage   = errors.New("File must be an image")
	errTooLarge     = errors.New("File is too large")
)

// upload is one validated image from a multipart form.
type upload struct {
	data        []byte
	contentType string
}

// readImage loads the "file" part, enforcing the image content type and the
// size limit.
func readImage(c *gin.Context, maxBytes int64) (*upload, error) {
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errTooLarge
		}
		return nil, errFileRequired
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, errNotAnImage
	}
	if maxBytes > 0 && header.Size > maxBytes {
		return nil, errTooLarge
	}

	data, err := readPart(header)
	if err != nil {
		return nil, err
	}
	return &upload{data: data, contentType: contentType}, nil
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, errFileRequired
	}
	return data, nil
}

// uploadErrorStatus maps readImage failures to a status code.
func uploadErrorStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, errFileRequired):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, errNotAnImage), errors.Is(err, errTooLarge):
		return http.StatusBadRequest, true
	}
	return 0, false
}
