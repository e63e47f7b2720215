// Package validation provides input validation middleware for the Playguard API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (64KB). Session traffic is
// tiny; anything bigger is abuse.
const MaxRequestSize = 64 << 10

var (
	// gameIDRegex validates game identifiers: short lowercase slugs.
	gameIDRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,31}$`)
	// sessionIDRegex validates session identifiers: 32 lowercase hex chars.
	sessionIDRegex = regexp.MustCompile(`^[a-f0-9]{32}$`)
	// actionTypeRegex validates action type names (jump, shoot, lane_left).
	actionTypeRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,63}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// ValidGameID checks if a string is a well-formed game identifier. Whether
// the game is actually whitelisted is the registry's call, not this one.
func ValidGameID(id string) bool {
	return gameIDRegex.MatchString(id)
}

// ValidSessionID checks if a string has the shape of a session identifier.
func ValidSessionID(id string) bool {
	return sessionIDRegex.MatchString(id)
}

// ValidActionType checks if a string is a well-formed action type name.
func ValidActionType(t string) bool {
	return actionTypeRegex.MatchString(t)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// SessionIDParamMiddleware validates the :id URL parameter on routes that
// use it. Rejecting malformed IDs early keeps junk out of the registry map
// lookups and out of the logs.
func SessionIDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id != "" && !ValidSessionID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_session_id",
				"message": "session id must be 32 lowercase hex characters",
			})
			return
		}
		c.Next()
	}
}
