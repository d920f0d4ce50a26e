package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/fitcoach/internal/models"
	"github.com/yoockh/fitcoach/internal/utils"
)

// RequireRole lets the request through only when JWTAuth stored one of the
// allowed fitcoach roles ("user", "admin") under "role".
func RequireRole(allowed ...models.UserRole) gin.HandlerFunc {
	allow := make(map[models.UserRole]bool, len(allowed))
	for _, r := range allowed {
		allow[r] = true
	}

	return func(c *gin.Context) {
		role, _ := c.Get("role")
		s, _ := role.(string)
		if !allow[models.UserRole(s)] {
			forbid(c)
			return
		}
		c.Next()
	}
}

// RequireAdmin guards the /admin routes.
func RequireAdmin() gin.HandlerFunc { return RequireRole(models.RoleAdmin) }

func forbid(c *gin.Context) {
	err := utils.E(utils.CodeForbidden, "RequireRole", "insufficient role", nil)
	c.AbortWithStatusJSON(utils.HTTPStatus(err), gin.H{
		"code":    utils.CodeForbidden,
		"message": err.(*utils.AppError).Message,
	})
}
