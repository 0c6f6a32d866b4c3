package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/flashsale/internal/callerctx"
)

const headerAuthorization = "authorization"

// ResolveCaller attaches the session's user to the request context when the
// authorization header carries a known login token. Unknown tokens are
// treated as anonymous.
func (s *Server) ResolveCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(headerAuthorization))
		token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
		if token == "" {
			c.Next()
			return
		}

		caller, err := s.sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, callerctx.ErrSessionNotFound) {
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			c.Next()
			return
		}

		c.Request = c.Request.WithContext(callerctx.WithUserID(c.Request.Context(), caller.ID))
		c.Next()
	}
}

func (s *Server) CallerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := callerctx.UserIDFromContext(c.Request.Context()); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}
