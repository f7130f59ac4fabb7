package task

import (
	"fmt"
	"time"

	"github.com/scanmark/scanmark/internal/db"
	"github.com/scanmark/scanmark/internal/models"
	"github.com/scanmark/scanmark/internal/proto"
	"gorm.io/gorm"
)

// NextFilters narrows the pool RequestNext draws from. QuestionIndex is
// mandatory; Version 0 means any; paper bounds of 0 mean unbounded.
// PreferredTags bias the choice without excluding untagged tasks.
type NextFilters struct {
	QuestionIndex int
	Version       int
	PreferredTags []string
	MinPaper      int
	MaxPaper      int
}

// RequestNext returns some ToDo task matching the filters, preferring
// tagged matches, or nil when the pool is empty. It does not claim.
func RequestNext(gdb *gorm.DB, f NextFilters) (*models.Task, error) {
	if f.QuestionIndex <= 0 {
		return nil, fmt.Errorf("task: question index is required")
	}

	base := func() *gorm.DB {
		q := gdb.Model(&models.Task{}).
			Where("status = ? AND question_index = ?", models.TaskToDo, f.QuestionIndex)
		if f.Version > 0 {
			q = q.Where("version = ?", f.Version)
		}
		if f.MinPaper > 0 {
			q = q.Where("paper_number >= ?", f.MinPaper)
		}
		if f.MaxPaper > 0 {
			q = q.Where("paper_number <= ?", f.MaxPaper)
		}
		return q
	}

	// First pass: restrict to tasks carrying a preferred tag.
	if len(f.PreferredTags) > 0 {
		taggedSub := gdb.Table("task_tags").
			Select("task_tags.task_id").
			Where("task_tags.tag IN ?", f.PreferredTags)

		var tagged models.Task
		result := base().Where("id IN (?)", taggedSub).
			Order("paper_number ASC").Limit(1).Find(&tagged)
		if result.Error != nil {
			return nil, fmt.Errorf("task: request next (tagged): %w", result.Error)
		}
		if result.RowsAffected > 0 {
			return &tagged, nil
		}
	}

	var t models.Task
	result := base().Order("paper_number ASC").Limit(1).Find(&t)
	if result.Error != nil {
		return nil, fmt.Errorf("task: request next: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &t, nil
}

// Claim atomically transitions a ToDo task to Out with the caller as
// owner, provided the task is still ToDo and its content version matches
// expectedVersion. Uses SELECT ... FOR UPDATE so concurrent claimers
// serialize on the row; exactly one wins, the rest get AlreadyClaimed.
func Claim(gdb *gorm.DB, username string, paperNumber, questionIndex, expectedVersion int) (*models.Task, error) {
	if username == "" {
		return nil, fmt.Errorf("task: username is required")
	}

	var claimed models.Task
	err := gdb.Transaction(func(tx *gorm.DB) error {
		result := db.LockForUpdate(tx).
			Where("paper_number = ? AND question_index = ?", paperNumber, questionIndex).
			Limit(1).Find(&claimed)
		if result.Error != nil {
			return fmt.Errorf("task: find (%d, %d): %w", paperNumber, questionIndex, result.Error)
		}
		if result.RowsAffected == 0 {
			return proto.Errf(proto.NoSuchTask, "no task for paper %d question %d", paperNumber, questionIndex)
		}

		if claimed.Version != expectedVersion {
			return proto.Errf(proto.VersionMismatch,
				"task %s is at version %d, caller expected %d",
				proto.TaskCode(proto.APIVersion, paperNumber, questionIndex), claimed.Version, expectedVersion)
		}
		if claimed.Status != models.TaskToDo {
			owner := "nobody"
			if claimed.Owner != nil {
				owner = *claimed.Owner
			}
			return proto.Errf(proto.AlreadyClaimed, "task held by %s", owner)
		}

		now := time.Now()
		if err := tx.Model(&models.Task{}).Where("id = ?", claimed.ID).Updates(map[string]interface{}{
			"status":     models.TaskOut,
			"owner":      username,
			"claimed_at": now,
		}).Error; err != nil {
			return fmt.Errorf("task: claim (%d, %d): %w", paperNumber, questionIndex, err)
		}
		claimed.Status = models.TaskOut
		claimed.Owner = &username
		claimed.ClaimedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Load tags and images outside the lock for the claim reply.
	if err := gdb.Preload("Tags").Preload("Images").First(&claimed, claimed.ID).Error; err != nil {
		return nil, fmt.Errorf("task: reload claimed task: %w", err)
	}
	return &claimed, nil
}

// ClaimReply renders a claimed task for the wire at the given protocol
// version.
func ClaimReply(v int, t *models.Task) *proto.ClaimReply {
	return &proto.ClaimReply{
		TaskCode:       proto.TaskCode(v, t.PaperNumber, t.QuestionIndex),
		Version:        t.Version,
		IntegrityToken: t.IntegrityToken,
		Tags:           tagNames(t),
		Images:         imageMetas(t),
	}
}

// Abandon returns a task its owner no longer wants to Out→ToDo without
// marking it, clearing ownership. The integrity token is left alone: the
// content the next claimer sees is unchanged.
func Abandon(gdb *gorm.DB, username string, paperNumber, questionIndex int) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		var t models.Task
		result := db.LockForUpdate(tx).
			Where("paper_number = ? AND question_index = ?", paperNumber, questionIndex).
			Limit(1).Find(&t)
		if result.Error != nil {
			return fmt.Errorf("task: find (%d, %d): %w", paperNumber, questionIndex, result.Error)
		}
		if result.RowsAffected == 0 {
			return proto.Errf(proto.NoSuchTask, "no task for paper %d question %d", paperNumber, questionIndex)
		}
		if t.Status != models.TaskOut || t.Owner == nil || *t.Owner != username {
			return proto.Errf(proto.TaskChanged, "task is not out to %s", username)
		}

		if err := tx.Model(&models.Task{}).Where("id = ?", t.ID).Updates(map[string]interface{}{
			"status":     models.TaskToDo,
			"owner":      nil,
			"claimed_at": nil,
		}).Error; err != nil {
			return fmt.Errorf("task: abandon (%d, %d): %w", paperNumber, questionIndex, err)
		}
		return nil
	})
}
