package domain

import "time"

// Event sources.
const (
	SourceEphemeral  = "ephemeral"
	SourcePersistent = "persistent"
)

// Platforms reported by clients or derived from the User-Agent.
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformMacOS   = "macos"
	PlatformWindows = "windows"
	PlatformDesktop = "desktop"
	PlatformUnknown = "unknown"
)

// ColorizeEvent is one anonymous analytics row.
type ColorizeEvent struct {
	UserID    *string   `db:"user_id"`
	UserEmail *string   `db:"user_email"`
	Platform  string    `db:"platform"`
	Source    string    `db:"source"`
	CreatedAt time.Time `db:"created_at"`
}

// Stats is the aggregate snapshot served by the stats endpoint.
type Stats struct {
	TotalUsers    int64     `json:"total_users"`
	TotalMemories int64     `json:"total_memories"`
	LastUpdated   time.Time `json:"last_updated"`
}
