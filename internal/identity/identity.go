// Package identity resolves who is calling and from which platform. Token
// claims are decoded without signature verification and are only used to
// attribute anonymous analytics; they never grant access to anything.
package identity

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mileusna/useragent"

	"github.com/cuongbtq/colorize-be/internal/domain"
)

// Claims are the identity fields read from a bearer token.
type Claims struct {
	UserID string
	Email  string
}

// Input carries everything a caller may tell us about itself.
type Input struct {
	FormUserID    string
	FormEmail     string
	FormPlatform  string
	Authorization string
	UserAgent     string
}

// Identity is the resolved caller. Empty fields mean unknown.
type Identity struct {
	UserID   string
	Email    string
	Platform string
}

// Resolve applies form-over-token precedence for identity and
// form-over-user-agent precedence for platform.
func Resolve(in Input) Identity {
	id := Identity{
		UserID: strings.TrimSpace(in.FormUserID),
		Email:  strings.TrimSpace(in.FormEmail),
	}

	if id.UserID == "" || id.Email == "" {
		if claims, ok := ParseClaims(in.Authorization); ok {
			if id.UserID == "" {
				id.UserID = claims.UserID
			}
			if id.Email == "" {
				id.Email = claims.Email
			}
		}
	}

	id.Platform = strings.ToLower(strings.TrimSpace(in.FormPlatform))
	if id.Platform == "" {
		id.Platform = DetectPlatform(in.UserAgent)
	}
	return id
}

// ParseClaims decodes sub and email from an Authorization header value
// without verifying the signature.
func ParseClaims(authorization string) (Claims, bool) {
	raw := strings.TrimSpace(authorization)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return Claims{}, false
	}

	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mc); err != nil {
		return Claims{}, false
	}

	claims := Claims{
		UserID: stringClaim(mc, "sub"),
		Email:  stringClaim(mc, "email"),
	}
	if claims.Email == "" {
		if meta, ok := mc["user_metadata"].(map[string]any); ok {
			claims.Email = stringClaim(meta, "email")
		}
	}
	return claims, claims.UserID != "" || claims.Email != ""
}

// DetectPlatform classifies a User-Agent header. Tablets count as mobile.
func DetectPlatform(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return domain.PlatformUnknown
	}

	parsed := useragent.Parse(ua)
	switch {
	case parsed.OS == "" && parsed.Name == "":
		return domain.PlatformUnknown
	case parsed.Mobile || parsed.Tablet:
		if parsed.OS == useragent.Android {
			return domain.PlatformAndroid
		}
		return domain.PlatformIOS
	case parsed.OS == useragent.MacOS:
		return domain.PlatformMacOS
	case parsed.OS == useragent.Windows:
		return domain.PlatformWindows
	default:
		return domain.PlatformDesktop
	}
}

func stringClaim(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return strings.TrimSpace(v)
}
