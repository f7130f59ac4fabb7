package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/scanmark/scanmark/internal/bundle"
	"github.com/scanmark/scanmark/internal/config"
	"github.com/scanmark/scanmark/internal/notify"
	"github.com/scanmark/scanmark/internal/proto"
	"gorm.io/gorm"
)

func handleBundleCreate(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req proto.BundleCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErr(c, proto.Errf(proto.ValidationFailed, "malformed bundle request"))
			return
		}
		b, err := bundle.Create(gdb, bundle.CreateOpts{
			Slug:        req.Slug,
			Owner:       currentUser(c).Username,
			ContentHash: req.ContentHash,
			Pages:       req.Pages,
		})
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, bundle.Summary(b))
	}
}

func handleBundleList(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		bundles, err := bundle.List(gdb)
		if err != nil {
			writeErr(c, err)
			return
		}
		replies := make([]*proto.BundleReply, 0, len(bundles))
		for i := range bundles {
			replies = append(replies, bundle.Summary(&bundles[i]))
		}
		c.JSON(http.StatusOK, replies)
	}
}

func handleBundleGet(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, err := bundle.Get(gdb, c.Param("id"))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, bundle.Summary(b))
	}
}

func handleQRComplete(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := bundle.SetQRReadComplete(gdb, c.Param("id")); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleBundleLock(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := bundle.Lock(gdb, c.Param("id"), currentUser(c).Username); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleBundleUnlock(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := bundle.Unlock(gdb, c.Param("id"), currentUser(c).Username); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleBundlePush(gdb *gorm.DB, cfg *config.Config, notifier *notify.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		username := currentUser(c).Username
		reply, err := bundle.Push(gdb, cfg, id, username)
		if err != nil {
			writeErr(c, err)
			return
		}

		if b, err := bundle.Get(gdb, id); err == nil {
			notifier.BundlePushed(c.Request.Context(), b.Slug, username, reply)
		}
		c.JSON(http.StatusOK, reply)
	}
}

func handleKnowify(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, ok := orderParam(c)
		if !ok {
			return
		}
		var req proto.KnowifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErr(c, proto.Errf(proto.ValidationFailed, "malformed knowify request"))
			return
		}
		err := bundle.Knowify(gdb, currentUser(c).Username, c.Param("id"), order,
			req.PaperNumber, req.PageNumber, req.Version)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleExtralise(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, ok := orderParam(c)
		if !ok {
			return
		}
		var req proto.ExtraliseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErr(c, proto.Errf(proto.ValidationFailed, "malformed extralise request"))
			return
		}
		err := bundle.Extralise(gdb, currentUser(c).Username, c.Param("id"), order,
			req.PaperNumber, req.QuestionIndexes)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleDiscard(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, ok := orderParam(c)
		if !ok {
			return
		}
		var req proto.DiscardRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				writeErr(c, proto.Errf(proto.ValidationFailed, "malformed discard request"))
				return
			}
		}
		if err := bundle.Discard(gdb, currentUser(c).Username, c.Param("id"), order, req.Reason); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleUnknowify(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, ok := orderParam(c)
		if !ok {
			return
		}
		if err := bundle.Unknowify(gdb, currentUser(c).Username, c.Param("id"), order); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleRotate(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, ok := orderParam(c)
		if !ok {
			return
		}
		var req proto.RotateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErr(c, proto.Errf(proto.ValidationFailed, "malformed rotate request"))
			return
		}
		if err := bundle.SetRotation(gdb, currentUser(c).Username, c.Param("id"), order, req.Rotation); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleDiscardUnknowns(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req proto.DiscardRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				writeErr(c, proto.Errf(proto.ValidationFailed, "malformed discard request"))
				return
			}
		}
		converted, err := bundle.DiscardAllUnknowns(gdb, currentUser(c).Username, c.Param("id"), req.Reason)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, proto.BulkReply{Converted: converted})
	}
}

func handleUnknowifyDiscards(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		converted, err := bundle.UnknowifyAllDiscards(gdb, currentUser(c).Username, c.Param("id"))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, proto.BulkReply{Converted: converted})
	}
}

// orderParam parses the :order route param, writing the error response
// itself when malformed.
func orderParam(c *gin.Context) (int, bool) {
	order, err := strconv.Atoi(c.Param("order"))
	if err != nil {
		writeErr(c, proto.Errf(proto.ValidationFailed, "malformed page order %q", c.Param("order")))
		return 0, false
	}
	return order, true
}
