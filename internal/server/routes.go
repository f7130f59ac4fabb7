package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/scanmark/scanmark/internal/config"
	"github.com/scanmark/scanmark/internal/notify"
	"github.com/scanmark/scanmark/internal/proto"
	"gorm.io/gorm"
)

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, gdb *gorm.DB, cfg *config.Config, notifier *notify.Notifier) {
	// Unauthenticated surface.
	router.GET("/info/apiversion", handleInfo())
	router.POST("/auth/login", handleLogin(gdb))
	router.POST("/auth/clear", handleClear(gdb))

	authed := router.Group("", requireAuth(gdb))
	authed.DELETE("/auth/logout", handleLogout(gdb))

	// Task claim protocol.
	authed.GET("/tasks/next", handleNextTask(gdb))
	authed.PATCH("/tasks/:code/claim", handleClaim(gdb))
	authed.POST("/tasks/:code/submit", handleSubmit(gdb, cfg, notifier))
	authed.PATCH("/tasks/:code/abandon", handleAbandon(gdb))
	authed.PUT("/tasks/:code/tags", handleAddTag(gdb))
	authed.DELETE("/tasks/:code/tags/:tag", handleRemoveTag(gdb))
	authed.GET("/progress", handleProgress(gdb, cfg))

	manager := authed.Group("", requireManager())
	manager.PATCH("/tasks/:code/reset", handleReset(gdb))
	manager.PATCH("/tasks/:code/reassign", handleReassign(gdb))

	// Bundle staging. Reading is open to any authenticated user;
	// mutation needs the scanner role.
	authed.GET("/bundles", handleBundleList(gdb))
	authed.GET("/bundles/:id", handleBundleGet(gdb))

	scanner := authed.Group("", requireScanner())
	scanner.POST("/bundles", handleBundleCreate(gdb))
	scanner.PATCH("/bundles/:id/qr_complete", handleQRComplete(gdb))
	scanner.PATCH("/bundles/:id/lock", handleBundleLock(gdb))
	scanner.PATCH("/bundles/:id/unlock", handleBundleUnlock(gdb))
	scanner.POST("/bundles/:id/push", handleBundlePush(gdb, cfg, notifier))
	scanner.PATCH("/bundles/:id/pages/:order/knowify", handleKnowify(gdb))
	scanner.PATCH("/bundles/:id/pages/:order/extralise", handleExtralise(gdb))
	scanner.PATCH("/bundles/:id/pages/:order/discard", handleDiscard(gdb))
	scanner.PATCH("/bundles/:id/pages/:order/unknowify", handleUnknowify(gdb))
	scanner.PATCH("/bundles/:id/pages/:order/rotate", handleRotate(gdb))
	scanner.POST("/bundles/:id/discard_unknowns", handleDiscardUnknowns(gdb))
	scanner.POST("/bundles/:id/unknowify_discards", handleUnknowifyDiscards(gdb))
}

// clientVersion reads the protocol version the client negotiated, for
// rendering version-gated wire shapes. Absent or malformed headers fall
// back to the server's own version.
func clientVersion(c *gin.Context) int {
	v, err := strconv.Atoi(c.GetHeader("X-API-Version"))
	if err != nil || !proto.VersionSupported(v) {
		return proto.APIVersion
	}
	return v
}

// taskCodeParams extracts (paper, question) from the :code route param.
func taskCodeParams(c *gin.Context) (int, int, error) {
	return proto.ParseTaskCode(c.Param("code"))
}
