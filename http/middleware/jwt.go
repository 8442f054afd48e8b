package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tnqbao/gau-ml-service/config"
	"github.com/tnqbao/gau-ml-service/infra"
	"github.com/tnqbao/gau-ml-service/utils"
)

// AuthMiddleware resolves the caller from a JWT. When authService is nil the
// token is only verified locally against the shared secret.
func AuthMiddleware(authService *infra.AuthorizationService, config *config.EnvConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := utils.ExtractToken(c)

		if tokenStr == "" {
			tokenStr = c.Query("access_token")
		}

		if tokenStr == "" {
			utils.JSON401(c, "Authorization token is required")
			c.Abort()
			return
		}

		if authService != nil {
			if err := authService.CheckAccessToken(c.Request.Context(), tokenStr); err != nil {
				utils.JSON401(c, "Invalid or expired token")
				c.Abort()
				return
			}
		}

		parsedToken, err := utils.ParseToken(tokenStr, config)
		if err != nil || !parsedToken.Valid {
			utils.JSON401(c, "Invalid token")
			c.Abort()
			return
		}

		claims, ok := parsedToken.Claims.(jwt.MapClaims)
		if !ok {
			utils.JSON401(c, "Invalid token claims")
			c.Abort()
			return
		}

		if err := utils.InjectClaimsToContext(c, claims); err != nil {
			utils.JSON401(c, "Invalid claims")
			c.Abort()
			return
		}

		c.Next()
	}
}
