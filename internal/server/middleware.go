package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/caseline/internal/authorization"
	obscontext "github.com/smallbiznis/caseline/internal/observability/context"
	"github.com/smallbiznis/caseline/internal/observability/logger"
	"github.com/smallbiznis/caseline/internal/principal"
	"go.uber.org/zap"
)

const (
	uploadRate  = 0.2
	uploadBurst = 10
)

// AuthRequired resolves the bearer token or session cookie into a principal
// on the request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, principal.ErrUnauthenticated)
			return
		}

		ctx := c.Request.Context()
		p, err := s.authsvc.Authenticate(ctx, token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx = principal.WithPrincipal(ctx, p)
		ctx = obscontext.WithActor(ctx, "user", p.UserID.String())
		ctx = obscontext.WithClient(ctx, c.ClientIP(), c.Request.UserAgent())
		if p.HasAccount() {
			ctx = obscontext.WithAccountID(ctx, p.AccountID.String())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) SuperuserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal.FromContext(c.Request.Context())
		if !ok || !p.IsSuperuser {
			AbortWithError(c, authorization.ErrForbidden)
			return
		}
		c.Next()
	}
}

// UploadRateLimit throttles bulk uploads per user. Without redis it is a no-op.
func (s *Server) UploadRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.uploadLimiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		p, _ := principal.FromContext(ctx)
		res, err := s.uploadLimiter.Allow(ctx, "caseline:upload:"+p.UserID.String(), uploadRate, uploadBurst)
		if err != nil {
			logger.FromContext(ctx).Warn("upload rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			retry := int(res.RetryAfter / time.Second)
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
