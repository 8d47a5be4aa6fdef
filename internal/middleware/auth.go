package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/kmohamed-dz/abcher/internal/identity"
	"github.com/kmohamed-dz/abcher/pkg/jwtutil"
	"github.com/kmohamed-dz/abcher/pkg/logger"
	"github.com/kmohamed-dz/abcher/prometheus"
)

// AuthMiddleware validates the Bearer token issued by the external auth
// provider and attaches the resulting identity to the request context,
// where the resolver picks it up.
func AuthMiddleware(jwt *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				prometheus.RecordOnboardingError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordOnboardingError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			claims, err := jwt.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid JWT token", zap.Error(err))
				prometheus.RecordOnboardingError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			ident := &identity.Identity{
				ID:       claims.Subject,
				Email:    claims.Email,
				FullName: claims.FullName,
			}
			ctx := identity.NewContext(c.Request().Context(), ident)
			c.SetRequest(c.Request().WithContext(ctx))

			log.Debug("Request authenticated",
				zap.String("identity_id", ident.ID),
				zap.String("email", ident.Email))

			return next(c)
		}
	}
}
