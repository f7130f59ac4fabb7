// Package task implements the server side of the task claim protocol:
// the ToDo/Out/Complete lifecycle for (paper, question) units of work,
// with optimistic-concurrency guards.
package task

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/scanmark/scanmark/internal/models"
	"github.com/scanmark/scanmark/internal/proto"
	"gorm.io/gorm"
)

// Get retrieves a task by (paper, question), preloading tags and images.
func Get(gdb *gorm.DB, paperNumber, questionIndex int) (*models.Task, error) {
	var t models.Task
	err := gdb.Preload("Tags").Preload("Images").
		Where("paper_number = ? AND question_index = ?", paperNumber, questionIndex).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, proto.Errf(proto.NoSuchTask, "no task for paper %d question %d", paperNumber, questionIndex)
		}
		return nil, fmt.Errorf("task: get (%d, %d): %w", paperNumber, questionIndex, err)
	}
	return &t, nil
}

// Ensure creates the task row for (paper, question) at the given content
// version if it does not already exist, returning it either way. Used by
// the bundle push to materialize papers.
func Ensure(tx *gorm.DB, paperNumber, questionIndex, version int) (*models.Task, bool, error) {
	var t models.Task
	err := tx.Where("paper_number = ? AND question_index = ?", paperNumber, questionIndex).First(&t).Error
	if err == nil {
		return &t, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("task: ensure (%d, %d): %w", paperNumber, questionIndex, err)
	}

	t = models.Task{
		PaperNumber:    paperNumber,
		QuestionIndex:  questionIndex,
		Status:         models.TaskToDo,
		Version:        version,
		IntegrityToken: uuid.NewString(),
	}
	if err := tx.Create(&t).Error; err != nil {
		return nil, false, fmt.Errorf("task: create (%d, %d): %w", paperNumber, questionIndex, err)
	}
	return &t, true, nil
}

// AddTag attaches a tag to a task, idempotently.
func AddTag(gdb *gorm.DB, paperNumber, questionIndex int, tag string) error {
	if tag == "" {
		return fmt.Errorf("task: tag is required")
	}
	t, err := Get(gdb, paperNumber, questionIndex)
	if err != nil {
		return err
	}
	for _, existing := range t.Tags {
		if existing.Tag == tag {
			return nil
		}
	}
	if err := gdb.Create(&models.TaskTag{TaskID: t.ID, Tag: tag}).Error; err != nil {
		return fmt.Errorf("task: tag (%d, %d) %q: %w", paperNumber, questionIndex, tag, err)
	}
	return nil
}

// RemoveTag detaches a tag from a task; removing an absent tag is a
// no-op.
func RemoveTag(gdb *gorm.DB, paperNumber, questionIndex int, tag string) error {
	t, err := Get(gdb, paperNumber, questionIndex)
	if err != nil {
		return err
	}
	if err := gdb.Where("task_id = ? AND tag = ?", t.ID, tag).Delete(&models.TaskTag{}).Error; err != nil {
		return fmt.Errorf("task: untag (%d, %d) %q: %w", paperNumber, questionIndex, tag, err)
	}
	return nil
}

// tagNames flattens a task's tag rows.
func tagNames(t *models.Task) []string {
	names := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		names = append(names, tag.Tag)
	}
	return names
}

// imageMetas renders a task's images for the wire.
func imageMetas(t *models.Task) []proto.ImageMeta {
	metas := make([]proto.ImageMeta, 0, len(t.Images))
	for _, img := range t.Images {
		metas = append(metas, proto.ImageMeta{
			ID:       fmt.Sprintf("img-%d", img.ID),
			Hash:     img.ImageHash,
			Rotation: img.Rotation,
			Extra:    img.Extra,
		})
	}
	return metas
}
