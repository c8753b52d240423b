package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/frostclub/internal/audit/domain"
	authdomain "github.com/smallbiznis/frostclub/internal/auth/domain"
	obscontext "github.com/smallbiznis/frostclub/internal/observability/context"
	obslogger "github.com/smallbiznis/frostclub/internal/observability/logger"
	profiledomain "github.com/smallbiznis/frostclub/internal/profile/domain"
	"github.com/smallbiznis/frostclub/internal/ratelimit"
	"go.uber.org/zap"
)

const contextProfileKey = "profile"

// OptionalAuth resolves the caller's profile when a valid bearer token is
// present. Missing or unusable tokens continue anonymously.
func (s *Server) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if bearerToken(c) == "" {
			c.Next()
			return
		}
		if err := s.authenticate(c); err != nil {
			obslogger.FromContext(c.Request.Context()).Debug("ignoring unusable access token", zap.Error(err))
		}
		c.Next()
	}
}

// AuthRequired rejects requests without a verified profile.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authenticate(c); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// AdminRequired authorizes (profile, object, action) through casbin. It must
// run after AuthRequired.
func (s *Server) AdminRequired(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, ok := profileFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), profile.ID, profile.IsAdmin, object, action); err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), string(auditdomain.ActorTypeAdmin), profile.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) authenticate(c *gin.Context) error {
	token := bearerToken(c)
	if token == "" {
		return authdomain.ErrUnauthenticated
	}

	ctx := c.Request.Context()
	principal, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return err
	}
	profile, err := s.profileSvc.ResolveAuthenticated(ctx, principal)
	if err != nil {
		return err
	}

	ctx = authdomain.WithPrincipal(ctx, principal)
	ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeUser), profile.ID)
	c.Request = c.Request.WithContext(ctx)
	c.Set(contextProfileKey, profile)
	return nil
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func profileFromContext(c *gin.Context) (*profiledomain.Profile, bool) {
	value, ok := c.Get(contextProfileKey)
	if !ok {
		return nil, false
	}
	profile, ok := value.(*profiledomain.Profile)
	return profile, ok && profile != nil
}

// viewerTier is the caller's tier, empty for anonymous requests.
func viewerTier(c *gin.Context) string {
	if profile, ok := profileFromContext(c); ok {
		return profile.Tier
	}
	return ""
}

// CheckoutRateLimit applies the per-client token bucket to checkout endpoints.
func (s *Server) CheckoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.limiter.AllowCheckout(ctx, c.ClientIP())
		if err != nil {
			// fail open; redis trouble must not block purchases
			obslogger.FromContext(ctx).Warn("checkout rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			s.obsMetrics.RecordRateLimitDenied(ctx, c.FullPath())
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(max(1, int(math.Ceil(result.RetryAfter.Seconds())))))
			}
			AbortWithError(c, ratelimit.ErrRateLimited)
			return
		}
		c.Next()
	}
}

func healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
