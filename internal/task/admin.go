package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/scanmark/scanmark/internal/db"
	"github.com/scanmark/scanmark/internal/models"
	"github.com/scanmark/scanmark/internal/proto"
	"gorm.io/gorm"
)

// Reset returns a task to ToDo from any state, clearing owner and score
// and rotating the integrity token so an in-flight submission from the
// old claimer is refused. Privilege is enforced by the caller.
func Reset(gdb *gorm.DB, paperNumber, questionIndex int) error {
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

		if err := tx.Model(&models.Task{}).Where("id = ?", t.ID).Updates(map[string]interface{}{
			"status":          models.TaskToDo,
			"owner":           nil,
			"score":           nil,
			"marking_seconds": 0,
			"claimed_at":      nil,
			"marked_at":       nil,
			"integrity_token": uuid.NewString(),
		}).Error; err != nil {
			return fmt.Errorf("task: reset (%d, %d): %w", paperNumber, questionIndex, err)
		}
		return nil
	})
}

// Reassign hands an Out task to a different owner, rotating the
// integrity token so the previous owner's submission is refused.
// Privilege is enforced by the caller.
func Reassign(gdb *gorm.DB, paperNumber, questionIndex int, newOwner string) error {
	if newOwner == "" {
		return fmt.Errorf("task: new owner is required")
	}
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
		if t.Status != models.TaskOut {
			return proto.Errf(proto.TaskChanged, "task is %s, only out tasks can be reassigned", t.Status)
		}

		now := time.Now()
		if err := tx.Model(&models.Task{}).Where("id = ?", t.ID).Updates(map[string]interface{}{
			"owner":           newOwner,
			"claimed_at":      now,
			"integrity_token": uuid.NewString(),
		}).Error; err != nil {
			return fmt.Errorf("task: reassign (%d, %d): %w", paperNumber, questionIndex, err)
		}
		return nil
	})
}

// SweepStaleClaims returns every task that has been Out longer than ttl
// to ToDo, rotating integrity tokens. Returns how many were swept.
func SweepStaleClaims(gdb *gorm.DB, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-ttl)

	var stale []models.Task
	if err := gdb.Where("status = ? AND claimed_at < ?", models.TaskOut, cutoff).Find(&stale).Error; err != nil {
		return 0, fmt.Errorf("task: find stale claims: %w", err)
	}

	swept := 0
	for _, t := range stale {
		err := gdb.Model(&models.Task{}).Where("id = ? AND status = ?", t.ID, models.TaskOut).Updates(map[string]interface{}{
			"status":          models.TaskToDo,
			"owner":           nil,
			"claimed_at":      nil,
			"integrity_token": uuid.NewString(),
		}).Error
		if err != nil {
			return swept, fmt.Errorf("task: sweep task %d: %w", t.ID, err)
		}
		swept++
	}
	return swept, nil
}
