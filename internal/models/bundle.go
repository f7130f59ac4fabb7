package models

import "time"

// Bundle page statuses. A page's payload columns depend on its status:
// Known pages carry (paper, page, version), Extra pages (paper,
// question list), Discard pages a reason. Error pages carry the read
// failure in the reason column and can only be discarded.
const (
	PageUnknown = "unknown"
	PageKnown   = "known"
	PageExtra   = "extra"
	PageDiscard = "discard"
	PageError   = "error"
)

// Bundle is one uploaded stack of scanned pages staged for
// classification and eventual push into the task pool.
type Bundle struct {
	ID             string `gorm:"primaryKey;size:36"`
	Slug           string `gorm:"size:128;not null"`
	Owner          string `gorm:"size:64;not null"`
	ContentHash    string `gorm:"size:128;uniqueIndex;not null"`
	PageCount      int
	QRReadComplete bool    `gorm:"default:false"`
	Pushed         bool    `gorm:"default:false"`
	PushLockedBy   *string `gorm:"size:64"`
	PushedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Pages []BundlePage `gorm:"foreignKey:BundleID"`
}

// Locked reports whether anyone holds the push-lock.
func (b *Bundle) Locked() bool {
	return b.PushLockedBy != nil
}

// LockedByOther reports whether someone other than username holds the
// push-lock.
func (b *Bundle) LockedByOther(username string) bool {
	return b.PushLockedBy != nil && *b.PushLockedBy != username
}

// BundlePage is one scanned page within a bundle.
type BundlePage struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	BundleID     string `gorm:"uniqueIndex:idx_bundle_order;size:36;not null"`
	OrderIndex   int    `gorm:"uniqueIndex:idx_bundle_order;not null"`
	Status       string `gorm:"size:16;default:unknown;index"`
	ImageHash    string `gorm:"size:128;not null"`
	Rotation     int
	PaperNumber  *int
	PageNumber   *int
	Version      *int
	QuestionList string `gorm:"type:json"`
	Reason       string `gorm:"size:255"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PaperPage is a production page slot filled by a pushed Known page.
type PaperPage struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	PaperNumber int    `gorm:"uniqueIndex:idx_paper_page;not null"`
	PageNumber  int    `gorm:"uniqueIndex:idx_paper_page;not null"`
	Version     int    `gorm:"default:1"`
	ImageHash   string `gorm:"size:128;not null"`
	Rotation    int
	BundleID    string `gorm:"size:36;index"`
	CreatedAt   time.Time
}
