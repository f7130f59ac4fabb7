// Package bundle implements the staging area for scanned pages: bundle
// lifecycle, the page classification state machine, push-locking and
// the push into the production task pool.
package bundle

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/scanmark/scanmark/internal/db"
	"github.com/scanmark/scanmark/internal/models"
	"github.com/scanmark/scanmark/internal/proto"
	"gorm.io/gorm"
)

// CreateOpts holds parameters for registering an uploaded bundle.
type CreateOpts struct {
	Slug           string
	Owner          string
	ContentHash    string
	Pages          []proto.BundlePageCreate
	QRReadComplete bool
}

// Create registers a bundle and its page scaffold. Pages start Unknown,
// except pages the scanner's reader failed on, which start Error; the
// QR reader's classifications arrive as ordinary page transitions
// afterwards. A bundle with the same content hash is refused.
func Create(gdb *gorm.DB, opts CreateOpts) (*models.Bundle, error) {
	if opts.Slug == "" {
		return nil, fmt.Errorf("bundle: slug is required")
	}
	if opts.Owner == "" {
		return nil, fmt.Errorf("bundle: owner is required")
	}
	if opts.ContentHash == "" {
		return nil, fmt.Errorf("bundle: content hash is required")
	}
	if len(opts.Pages) == 0 {
		return nil, fmt.Errorf("bundle: at least one page is required")
	}

	var count int64
	if err := gdb.Model(&models.Bundle{}).Where("content_hash = ?", opts.ContentHash).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("bundle: check content hash: %w", err)
	}
	if count > 0 {
		return nil, proto.Errf(proto.ValidationFailed, "bundle with hash %s already uploaded", opts.ContentHash)
	}

	b := models.Bundle{
		ID:             uuid.NewString(),
		Slug:           opts.Slug,
		Owner:          opts.Owner,
		ContentHash:    opts.ContentHash,
		PageCount:      len(opts.Pages),
		QRReadComplete: opts.QRReadComplete,
	}

	err := gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&b).Error; err != nil {
			return fmt.Errorf("bundle: create: %w", err)
		}
		for _, pc := range opts.Pages {
			page := models.BundlePage{
				BundleID:   b.ID,
				OrderIndex: pc.OrderIndex,
				Status:     models.PageUnknown,
				ImageHash:  pc.ImageHash,
				Rotation:   pc.Rotation,
			}
			if pc.ReadError != "" {
				page.Status = models.PageError
				page.Reason = pc.ReadError
			}
			if err := tx.Create(&page).Error; err != nil {
				return fmt.Errorf("bundle: create page %d: %w", pc.OrderIndex, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Get retrieves a bundle by id, preloading pages.
func Get(gdb *gorm.DB, id string) (*models.Bundle, error) {
	var b models.Bundle
	if err := gdb.Preload("Pages").Where("id = ?", id).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, proto.Errf(proto.NoSuchBundle, "no bundle %s", id)
		}
		return nil, fmt.Errorf("bundle: get %s: %w", id, err)
	}
	return &b, nil
}

// List returns all bundles, oldest first, pages preloaded.
func List(gdb *gorm.DB) ([]models.Bundle, error) {
	var bundles []models.Bundle
	if err := gdb.Preload("Pages").Order("created_at ASC").Find(&bundles).Error; err != nil {
		return nil, fmt.Errorf("bundle: list: %w", err)
	}
	return bundles, nil
}

// Summary renders a bundle and its page-state census for the wire.
func Summary(b *models.Bundle) *proto.BundleReply {
	states := map[string]int{}
	for _, p := range b.Pages {
		states[p.Status]++
	}
	reply := &proto.BundleReply{
		ID:             b.ID,
		Slug:           b.Slug,
		Owner:          b.Owner,
		PageCount:      b.PageCount,
		QRReadComplete: b.QRReadComplete,
		Pushed:         b.Pushed,
		PageStates:     states,
	}
	if b.PushLockedBy != nil {
		reply.LockedBy = *b.PushLockedBy
	}
	return reply
}

// SetQRReadComplete records that the QR/content reading pass finished.
func SetQRReadComplete(gdb *gorm.DB, id string) error {
	result := gdb.Model(&models.Bundle{}).Where("id = ?", id).Update("qr_read_complete", true)
	if result.Error != nil {
		return fmt.Errorf("bundle: set qr read complete on %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return proto.Errf(proto.NoSuchBundle, "no bundle %s", id)
	}
	return nil
}

// Lock takes the push-lock on a bundle for an operator, freezing it
// against scanner mutation. Re-locking a bundle you already hold is a
// no-op; a lock held by anyone else refuses.
func Lock(gdb *gorm.DB, id, username string) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		b, err := lockRow(tx, id)
		if err != nil {
			return err
		}
		if b.Pushed {
			return proto.Errf(proto.BundlePushed, "bundle %s is pushed", id)
		}
		if b.LockedByOther(username) {
			return proto.Errf(proto.BundleLocked, "bundle %s locked by %s", id, *b.PushLockedBy)
		}
		if b.PushLockedBy != nil {
			return nil
		}
		if err := tx.Model(&models.Bundle{}).Where("id = ?", id).Update("push_locked_by", username).Error; err != nil {
			return fmt.Errorf("bundle: lock %s: %w", id, err)
		}
		return nil
	})
}

// Unlock releases the push-lock. Only the holder may release it; a push
// is permanent and its lock cannot be lifted.
func Unlock(gdb *gorm.DB, id, username string) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		b, err := lockRow(tx, id)
		if err != nil {
			return err
		}
		if b.Pushed {
			return proto.Errf(proto.BundlePushed, "bundle %s is pushed", id)
		}
		if b.PushLockedBy == nil {
			return nil
		}
		if b.LockedByOther(username) {
			return proto.Errf(proto.BundleLocked, "bundle %s locked by %s", id, *b.PushLockedBy)
		}
		if err := tx.Model(&models.Bundle{}).Where("id = ?", id).Update("push_locked_by", nil).Error; err != nil {
			return fmt.Errorf("bundle: unlock %s: %w", id, err)
		}
		return nil
	})
}

// lockRow loads a bundle row under FOR UPDATE within tx.
func lockRow(tx *gorm.DB, id string) (*models.Bundle, error) {
	var b models.Bundle
	result := db.LockForUpdate(tx).Where("id = ?", id).Limit(1).Find(&b)
	if result.Error != nil {
		return nil, fmt.Errorf("bundle: find %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, proto.Errf(proto.NoSuchBundle, "no bundle %s", id)
	}
	return &b, nil
}
