package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/scanmark/scanmark/internal/config"
	"github.com/scanmark/scanmark/internal/notify"
	"github.com/scanmark/scanmark/internal/proto"
	"github.com/scanmark/scanmark/internal/task"
	"gorm.io/gorm"
)

func handleNextTask(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := strconv.Atoi(c.Query("q"))
		if err != nil {
			writeErr(c, proto.Errf(proto.ValidationFailed, "query parameter q is required"))
			return
		}
		filters := task.NextFilters{
			QuestionIndex: q,
			Version:       intQuery(c, "version"),
			MinPaper:      intQuery(c, "min_paper"),
			MaxPaper:      intQuery(c, "max_paper"),
		}
		if tags := c.Query("tags"); tags != "" {
			filters.PreferredTags = strings.Split(tags, ",")
		}

		t, err := task.RequestNext(gdb, filters)
		if err != nil {
			writeErr(c, err)
			return
		}
		if t == nil {
			c.JSON(http.StatusOK, proto.NextTaskReply{Found: false})
			return
		}
		c.JSON(http.StatusOK, proto.NextTaskReply{
			Found:    true,
			TaskCode: proto.TaskCode(clientVersion(c), t.PaperNumber, t.QuestionIndex),
		})
	}
}

func handleClaim(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		paper, q, err := taskCodeParams(c)
		if err != nil {
			writeErr(c, err)
			return
		}
		version, err := strconv.Atoi(c.Query("version"))
		if err != nil {
			writeErr(c, proto.Errf(proto.ValidationFailed, "query parameter version is required"))
			return
		}

		t, err := task.Claim(gdb, currentUser(c).Username, paper, q, version)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, task.ClaimReply(clientVersion(c), t))
	}
}

// handleSubmit accepts the multipart submission: a "meta" JSON field
// plus an optional "image" file part. When the image travels along, its
// content hash overrides whatever the metadata claims.
func handleSubmit(gdb *gorm.DB, cfg *config.Config, notifier *notify.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		paper, q, err := taskCodeParams(c)
		if err != nil {
			writeErr(c, err)
			return
		}

		metaRaw := c.PostForm("meta")
		if metaRaw == "" {
			writeErr(c, proto.Errf(proto.ValidationFailed, "missing meta part"))
			return
		}
		var meta proto.SubmitMeta
		if err := json.Unmarshal([]byte(metaRaw), &meta); err != nil {
			writeErr(c, proto.Errf(proto.ValidationFailed, "malformed meta part"))
			return
		}

		imageHash := meta.ImageHash
		if file, err := c.FormFile("image"); err == nil {
			imageHash, err = hashUpload(file)
			if err != nil {
				writeErr(c, proto.Errf(proto.ValidationFailed, "unreadable image part"))
				return
			}
		}

		ids := proto.DecodeRubricIDs(meta.RubricIDs)
		if ids == nil {
			ids = []string{}
		}
		rubricJSON, err := json.Marshal(ids)
		if err != nil {
			writeErr(c, err)
			return
		}

		username := currentUser(c).Username
		snapshot, err := task.Submit(gdb, username, paper, q, task.SubmitOpts{
			Score:          meta.Score,
			MarkingSeconds: meta.MarkingSeconds,
			IntegrityToken: meta.IntegrityToken,
			Annotation:     meta.Annotation,
			RubricIDs:      string(rubricJSON),
			ImageHash:      imageHash,
			Quota:          cfg.Marking.Quota,
		})
		if err != nil {
			if proto.IsKind(err, proto.QuotaExceeded) {
				notifier.QuotaReached(c.Request.Context(), username, cfg.Marking.Quota)
			}
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, snapshot)
	}
}

func handleAbandon(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		paper, q, err := taskCodeParams(c)
		if err != nil {
			writeErr(c, err)
			return
		}
		if err := task.Abandon(gdb, currentUser(c).Username, paper, q); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleReset(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		paper, q, err := taskCodeParams(c)
		if err != nil {
			writeErr(c, err)
			return
		}
		if err := task.Reset(gdb, paper, q); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleReassign(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		paper, q, err := taskCodeParams(c)
		if err != nil {
			writeErr(c, err)
			return
		}
		var req proto.ReassignRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.NewOwner == "" {
			writeErr(c, proto.Errf(proto.ValidationFailed, "new_owner is required"))
			return
		}
		if err := task.Reassign(gdb, paper, q, req.NewOwner); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleAddTag(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		paper, q, err := taskCodeParams(c)
		if err != nil {
			writeErr(c, err)
			return
		}
		var req proto.TagRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Tag == "" {
			writeErr(c, proto.Errf(proto.ValidationFailed, "tag is required"))
			return
		}
		if err := task.AddTag(gdb, paper, q, req.Tag); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleRemoveTag(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		paper, q, err := taskCodeParams(c)
		if err != nil {
			writeErr(c, err)
			return
		}
		if err := task.RemoveTag(gdb, paper, q, c.Param("tag")); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleProgress(gdb *gorm.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := strconv.Atoi(c.Query("q"))
		if err != nil {
			writeErr(c, proto.Errf(proto.ValidationFailed, "query parameter q is required"))
			return
		}
		snapshot, err := task.Progress(gdb, currentUser(c).Username, q, intQuery(c, "version"), cfg.Marking.Quota)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, snapshot)
	}
}

// intQuery parses an optional integer query parameter, 0 when absent or
// malformed.
func intQuery(c *gin.Context, name string) int {
	v, _ := strconv.Atoi(c.Query(name))
	return v
}

// hashUpload content-addresses an uploaded file part.
func hashUpload(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
