package models

import "time"

// Task statuses. Out requires a non-nil Owner; Complete a non-nil Score.
const (
	TaskToDo     = "todo"
	TaskOut      = "out"
	TaskComplete = "complete"
)

// Task is one (paper, question) unit of marking work.
type Task struct {
	ID             uint    `gorm:"primaryKey;autoIncrement"`
	PaperNumber    int     `gorm:"uniqueIndex:idx_paper_question;not null"`
	QuestionIndex  int     `gorm:"uniqueIndex:idx_paper_question;not null"`
	Status         string  `gorm:"size:16;default:todo;index"`
	Owner          *string `gorm:"size:64"`
	Version        int     `gorm:"default:1"`
	IntegrityToken string  `gorm:"size:64;not null"`
	Score          *float64
	MarkingSeconds int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClaimedAt      *time.Time
	MarkedAt       *time.Time

	Tags   []TaskTag   `gorm:"foreignKey:TaskID"`
	Images []TaskImage `gorm:"foreignKey:TaskID"`
}

// TaskTag attaches a free-form marking tag to a task.
type TaskTag struct {
	TaskID uint   `gorm:"primaryKey;autoIncrement:false"`
	Tag    string `gorm:"primaryKey;size:64"`
}

// TaskImage references one page image a task's marker must see. Extra
// images come from extra pages rather than the paper's fixed layout.
type TaskImage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	TaskID    uint   `gorm:"index;not null"`
	ImageHash string `gorm:"size:128;not null"`
	Rotation  int
	Extra     bool `gorm:"default:false"`
}

// TaskAnnotation is one submitted marking of a task. Editions count up;
// the latest edition is the task's current marking.
type TaskAnnotation struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	TaskID         uint   `gorm:"index;not null"`
	Owner          string `gorm:"size:64;not null"`
	Edition        int
	Score          float64
	MarkingSeconds int
	Annotation     string `gorm:"type:text"`
	RubricIDs      string `gorm:"type:json"`
	ImageHash      string `gorm:"size:128"`
	CreatedAt      time.Time
}
