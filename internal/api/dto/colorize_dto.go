package dto

import (
	"time"

	"github.com/cuongbtq/colorize-be/internal/domain"
)

// UploadForm is the non-file part of POST /colorize/upload.
type UploadForm struct {
	UserID    string `form:"user_id" binding:"required"`
	UserEmail string `form:"user_email"`
}

// EphemeralForm is the non-file part of POST /colorize/ephemeral.
type EphemeralForm struct {
	Platform  string `form:"platform"`
	UserID    string `form:"user_id"`
	UserEmail string `form:"user_email"`
}

// ColorizeResponse is the projection of a colorize request record.
type ColorizeResponse struct {
	RequestID    string     `json:"request_id"`
	Status       string     `json:"status"`
	OriginalURL  *string    `json:"original_url"`
	ColorizedURL *string    `json:"colorized_url"`
	ErrorMessage *string    `json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// NewColorizeResponse projects req for clients.
func NewColorizeResponse(req *domain.ColorizeRequest) ColorizeResponse {
	resp := ColorizeResponse{
		RequestID:    req.ID,
		Status:       string(req.Status),
		ColorizedURL: req.ColorizedURL,
		ErrorMessage: req.ErrorMessage,
		CreatedAt:    req.CreatedAt,
		CompletedAt:  req.CompletedAt,
	}
	if req.OriginalURL != "" {
		url := req.OriginalURL
		resp.OriginalURL = &url
	}
	return resp
}

// EphemeralResponse carries both images in-band. ExpiresIn is in seconds.
type EphemeralResponse struct {
	OriginalBase64  string `json:"original_base64"`
	ColorizedBase64 string `json:"colorized_base64"`
	ExpiresIn       int64  `json:"expires_in"`
}

// StatsResponse is the aggregate snapshot.
type StatsResponse struct {
	TotalUsers    int64  `json:"total_users"`
	TotalMemories int64  `json:"total_memories"`
	LastUpdated   string `json:"last_updated"`
}

// NewStatsResponse formats s for clients.
func NewStatsResponse(s *domain.Stats) StatsResponse {
	return StatsResponse{
		TotalUsers:    s.TotalUsers,
		TotalMemories: s.TotalMemories,
		LastUpdated:   s.LastUpdated.UTC().Format(time.RFC3339),
	}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
