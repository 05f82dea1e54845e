package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/gin-gonic/gin"
)

const (
	MsgNotLoggedIn       = "You are not logged in! Please log in to get access."
	MsgInvalidToken      = "Invalid token! Please login again."
	MsgTokenExpired      = "Token has expired. Please login again."
	MsgUserGone          = "The user belonging to this token does no longer exist."
	MsgPasswordChanged   = "User recently changed password! Please log in again."
	MsgNoPermission      = "You do not have permission to perform this action."
	MsgEmailNotVerified  = "Your email address is not verified."
	msgUnknownAuthedUser = "No authenticated user on request."
)

// TokenVerifier checks a session token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// IdentityLoader resolves the user a token was issued for. A missing user
// is reported as common.ErrorNotFound.
type IdentityLoader interface {
	Identity(ctx context.Context, id string) (*models.User, error)
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, common.BearerPrefix) {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// Protect admits requests carrying a valid, current session token and
// attaches the user to the request context.
func Protect(v TokenVerifier, users IdentityLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader(common.AuthorizationHeaderName))
		if token == "" {
			fail(c, common.Unauthenticated(MsgNotLoggedIn, nil))
			return
		}

		claims, err := v.Verify(token)
		if err != nil {
			if errors.Is(err, common.ErrTokenExpired) {
				fail(c, common.Unauthenticated(MsgTokenExpired, err))
				return
			}
			fail(c, common.Unauthenticated(MsgInvalidToken, err))
			return
		}

		ctx := c.Request.Context()
		user, err := users.Identity(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				fail(c, common.Unauthenticated(MsgUserGone, common.ErrUserNotFound))
				return
			}
			fail(c, err)
			return
		}

		if user.PasswordChangedAfter(claims.IssuedAtUnix()) {
			fail(c, common.Unauthenticated(MsgPasswordChanged, common.ErrPasswordChangedAfterTokenIssue))
			return
		}

		c.Request = c.Request.WithContext(WithUser(ctx, user))
		c.Next()
	}
}

// RestrictTo admits only users whose role is one of roles. It must run
// after Protect.
func RestrictTo(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c.Request.Context())
		if !ok || !u.HasRole(roles...) {
			fail(c, common.Forbidden(MsgNoPermission))
			return
		}
		c.Next()
	}
}

// Verified admits only users who confirmed their email address. It must
// run after Protect.
func Verified() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c.Request.Context())
		if !ok || !u.IsVerified {
			fail(c, common.Forbidden(MsgEmailNotVerified))
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

func mustUser(c *gin.Context) (*models.User, bool) {
	u, ok := CurrentUser(c.Request.Context())
	if !ok {
		fail(c, common.Unauthenticated(msgUnknownAuthedUser, nil))
	}
	return u, ok
}
