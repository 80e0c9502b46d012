package rest

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/dmitrijs2005/vaultbox/internal/logging"
	"github.com/dmitrijs2005/vaultbox/internal/server/auditlog"
	"github.com/dmitrijs2005/vaultbox/internal/server/auth"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
	"github.com/gin-gonic/gin"
)

const (
	userKey   = "user"
	fileIDKey = "fileID"
)

// TokenVerifier checks session and media tokens.
type TokenVerifier interface {
	VerifySession(token string) (*auth.Claims, error)
	VerifyMedia(token string, fileID int64) (*auth.Claims, error)
}

// requireSession authenticates the request with the Bearer token from the
// Authorization header. No token is 401, a rejected token is 403.
func requireSession(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := tokens.VerifySession(bearerToken(c.GetHeader(common.AuthorizationHeaderName)))
		if err != nil {
			abortWithError(c, FromServiceError(err, "Authentication failed"))
			return
		}
		c.Set(userKey, claims.User())
		c.Next()
	}
}

// requireMedia authenticates media requests by the ?token= query parameter.
// The token must have been minted for the file named by the :id segment.
func requireMedia(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := fileIDParam(c)
		if !ok {
			return
		}
		claims, err := tokens.VerifyMedia(c.Query(common.MediaTokenQueryParam), id)
		if err != nil {
			abortWithError(c, FromServiceError(err, "Authentication failed"))
			return
		}
		c.Set(userKey, claims.User())
		c.Set(fileIDKey, id)
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// fileIDParam parses :id, aborting with 400 when it is not a positive integer.
func fileIDParam(c *gin.Context) (int64, bool) {
	if v, ok := c.Get(fileIDKey); ok {
		return v.(int64), true
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, NewBadRequestError("Invalid file id"))
		return 0, false
	}
	return id, true
}

func currentUser(c *gin.Context) models.User {
	return c.MustGet(userKey).(models.User)
}

// clientInfo stores the caller's address and agent for audit entries.
func clientInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auditlog.WithClient(c.Request.Context(), auditlog.Client{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func requestLogger(l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		}
		if u, ok := c.Get(userKey); ok {
			args = append(args, "user_id", u.(models.User).ID)
		}
		l.Info(c.Request.Context(), "request", args...)
	}
}

// recoverer turns handler panics into a 500. http.ErrAbortHandler is
// re-raised so net/http drops the connection, which is how a stream that
// fails after its headers were sent is reported to the client.
func recoverer(l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			l.Error(c.Request.Context(), "handler panic", "panic", p, "path", c.FullPath())
			if !c.Writer.Written() {
				abortWithError(c, NewInternalServerError("Internal server error"))
			}
		}()
		c.Next()
	}
}
