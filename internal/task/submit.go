package task

import (
	"fmt"
	"time"

	"github.com/scanmark/scanmark/internal/db"
	"github.com/scanmark/scanmark/internal/models"
	"github.com/scanmark/scanmark/internal/proto"
	"gorm.io/gorm"
)

// SubmitOpts carries the artifact metadata for closing a task. The
// annotated image itself is stored by the caller (content-addressed);
// only its hash lands here.
type SubmitOpts struct {
	Score          float64
	MarkingSeconds int
	IntegrityToken string
	Annotation     string
	RubricIDs      string // JSON list
	ImageHash      string
	Quota          int // per-user completion cap, 0 = unlimited
}

// Submit transitions Out→Complete for the caller's task, guarded by the
// integrity token handed out at claim time. All checks and the flip
// happen in one transaction so a concurrent admin reset either lands
// before (IntegrityConflict/TaskChanged here) or after (reset wins over
// a completed task), never interleaved.
func Submit(gdb *gorm.DB, username string, paperNumber, questionIndex int, opts SubmitOpts) (*proto.ProgressSnapshot, error) {
	var t models.Task
	err := gdb.Transaction(func(tx *gorm.DB) error {
		result := db.LockForUpdate(tx).
			Where("paper_number = ? AND question_index = ?", paperNumber, questionIndex).
			Limit(1).Find(&t)
		if result.Error != nil {
			return fmt.Errorf("task: find (%d, %d): %w", paperNumber, questionIndex, result.Error)
		}
		if result.RowsAffected == 0 {
			return proto.Errf(proto.TaskDeleted, "task for paper %d question %d no longer exists", paperNumber, questionIndex)
		}

		if t.Owner == nil || *t.Owner != username {
			return proto.Errf(proto.TaskChanged, "task is no longer owned by %s", username)
		}
		if t.IntegrityToken != opts.IntegrityToken {
			return proto.Errf(proto.IntegrityConflict, "task content changed since claim")
		}

		if opts.Quota > 0 {
			marked, err := markedBy(tx, username, 0, 0)
			if err != nil {
				return err
			}
			if int(marked) >= opts.Quota {
				return proto.Errf(proto.QuotaExceeded, "user %s reached quota of %d", username, opts.Quota)
			}
		}

		var editions int64
		if err := tx.Model(&models.TaskAnnotation{}).Where("task_id = ?", t.ID).Count(&editions).Error; err != nil {
			return fmt.Errorf("task: count annotations: %w", err)
		}
		annotation := models.TaskAnnotation{
			TaskID:         t.ID,
			Owner:          username,
			Edition:        int(editions) + 1,
			Score:          opts.Score,
			MarkingSeconds: opts.MarkingSeconds,
			Annotation:     opts.Annotation,
			RubricIDs:      opts.RubricIDs,
			ImageHash:      opts.ImageHash,
		}
		if err := tx.Create(&annotation).Error; err != nil {
			return fmt.Errorf("task: store annotation: %w", err)
		}

		// Complete tasks carry no owner; who marked them lives on the
		// annotation rows.
		now := time.Now()
		if err := tx.Model(&models.Task{}).Where("id = ?", t.ID).Updates(map[string]interface{}{
			"status":          models.TaskComplete,
			"owner":           nil,
			"score":           opts.Score,
			"marking_seconds": opts.MarkingSeconds,
			"marked_at":       now,
		}).Error; err != nil {
			return fmt.Errorf("task: complete (%d, %d): %w", paperNumber, questionIndex, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return Progress(gdb, username, t.QuestionIndex, t.Version, opts.Quota)
}

// Progress computes the marking snapshot for a (question, version) pool
// plus the caller's own counts. Version 0 means all versions.
func Progress(gdb *gorm.DB, username string, questionIndex, version, quota int) (*proto.ProgressSnapshot, error) {
	pool := func() *gorm.DB {
		q := gdb.Model(&models.Task{}).Where("question_index = ?", questionIndex)
		if version > 0 {
			q = q.Where("version = ?", version)
		}
		return q
	}

	var total, marked, userClaimed int64
	if err := pool().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("task: progress total: %w", err)
	}
	if err := pool().Where("status = ?", models.TaskComplete).Count(&marked).Error; err != nil {
		return nil, fmt.Errorf("task: progress marked: %w", err)
	}
	if err := pool().Where("status = ? AND owner = ?", models.TaskOut, username).Count(&userClaimed).Error; err != nil {
		return nil, fmt.Errorf("task: progress claimed by %s: %w", username, err)
	}
	userMarked, err := markedBy(gdb, username, questionIndex, version)
	if err != nil {
		return nil, err
	}

	return &proto.ProgressSnapshot{
		TotalTasks:  int(total),
		TotalMarked: int(marked),
		UserClaimed: int(userClaimed),
		UserMarked:  int(userMarked),
		QuotaLimit:  quota,
	}, nil
}

// markedBy counts the Complete tasks whose current (highest-edition)
// annotation belongs to username. questionIndex and version narrow the
// pool; zero means all.
func markedBy(tx *gorm.DB, username string, questionIndex, version int) (int64, error) {
	q := tx.Model(&models.TaskAnnotation{}).
		Joins("JOIN tasks ON tasks.id = task_annotations.task_id").
		Where("tasks.status = ?", models.TaskComplete).
		Where("task_annotations.owner = ?", username).
		Where("task_annotations.edition = (SELECT MAX(a2.edition) FROM task_annotations a2 WHERE a2.task_id = task_annotations.task_id)")
	if questionIndex > 0 {
		q = q.Where("tasks.question_index = ?", questionIndex)
	}
	if version > 0 {
		q = q.Where("tasks.version = ?", version)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("task: count marked by %s: %w", username, err)
	}
	return n, nil
}
