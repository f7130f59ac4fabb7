package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/scanmark/scanmark/internal/auth"
	"github.com/scanmark/scanmark/internal/models"
	"github.com/scanmark/scanmark/internal/proto"
	"gorm.io/gorm"
)

const userKey = "scanmark.user"

// requireAuth resolves the "Authorization: Token <t>" header to a user
// and stores it on the request context.
func requireAuth(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.UserForToken(gdb, bearerToken(c))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// requireManager refuses users without admin privileges. Must run after
// requireAuth.
func requireManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentUser(c).Privileged() {
			writeErr(c, proto.Errf(proto.NoPermission, "manager role required"))
			return
		}
		c.Next()
	}
}

// requireScanner refuses users who may not mutate bundles. Must run
// after requireAuth.
func requireScanner() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentUser(c).CanScan() {
			writeErr(c, proto.Errf(proto.NoPermission, "scanner role required"))
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(userKey).(*models.User)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Token "); ok {
		return token
	}
	return ""
}
