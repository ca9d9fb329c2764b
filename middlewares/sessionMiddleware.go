package middlewares

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware resolves the caller's tenant and identity from request
// headers into the request context. Every model call downstream scopes its
// queries by the business id set here.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId := c.Request.Header.Get("X-Business-Id")
		if businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-Business-Id header"})
			c.Abort()
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		if userName := c.Request.Header.Get("X-User-Name"); userName != "" {
			ctx = utils.SetUserNameInContext(ctx, userName)
		}
		if userId := c.Request.Header.Get("X-User-Id"); userId != "" {
			if id, err := strconv.Atoi(userId); err == nil {
				ctx = utils.SetUserIdInContext(ctx, id)
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
