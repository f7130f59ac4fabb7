package bundle

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/scanmark/scanmark/internal/config"
	"github.com/scanmark/scanmark/internal/models"
	"github.com/scanmark/scanmark/internal/proto"
	"github.com/scanmark/scanmark/internal/task"
	"gorm.io/gorm"
)

// Push promotes a bundle's pages into production: every Known page
// becomes a PaperPage and an image on each task its page serves, every
// Extra page an extra image on its listed tasks, and the bundle is
// permanently push-locked. The whole promotion runs in one transaction;
// a validation failure promotes nothing.
func Push(gdb *gorm.DB, cfg *config.Config, bundleID, username string) (*proto.PushReply, error) {
	var reply proto.PushReply

	err := gdb.Transaction(func(tx *gorm.DB) error {
		b, err := lockRow(tx, bundleID)
		if err != nil {
			return err
		}
		if b.Pushed {
			return proto.Errf(proto.BundlePushed, "bundle %s already pushed", bundleID)
		}
		if b.LockedByOther(username) {
			return proto.Errf(proto.BundleLocked, "bundle %s locked by %s", bundleID, *b.PushLockedBy)
		}
		if !b.QRReadComplete {
			return proto.Errf(proto.ValidationFailed, "bundle %s has not finished QR reading", bundleID)
		}

		var pages []models.BundlePage
		if err := tx.Where("bundle_id = ?", bundleID).Order("order_index ASC").Find(&pages).Error; err != nil {
			return fmt.Errorf("bundle: load pages of %s: %w", bundleID, err)
		}

		// Every page must be classified before anything is promoted.
		var unready []int
		for _, p := range pages {
			if p.Status == models.PageUnknown || p.Status == models.PageError {
				unready = append(unready, p.OrderIndex)
			}
		}
		if len(unready) > 0 {
			return &proto.Error{
				Kind:  proto.ValidationFailed,
				Msg:   fmt.Sprintf("bundle %s has %d unclassified pages", bundleID, len(unready)),
				Pages: unready,
			}
		}

		papers := map[int]bool{}
		for _, p := range pages {
			switch p.Status {
			case models.PageKnown:
				if err := pushKnownPage(tx, cfg, bundleID, &p, &reply); err != nil {
					return err
				}
				papers[*p.PaperNumber] = true
			case models.PageExtra:
				if err := pushExtraPage(tx, bundleID, &p, &reply); err != nil {
					return err
				}
				papers[*p.PaperNumber] = true
			}
		}
		reply.PapersTouched = len(papers)

		now := time.Now()
		err = tx.Model(&models.Bundle{}).Where("id = ?", bundleID).Updates(map[string]interface{}{
			"pushed":         true,
			"push_locked_by": username,
			"pushed_at":      now,
		}).Error
		if err != nil {
			return fmt.Errorf("bundle: mark %s pushed: %w", bundleID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// pushKnownPage materializes the production slot for one Known page and
// attaches its image to every task whose question includes the page.
func pushKnownPage(tx *gorm.DB, cfg *config.Config, bundleID string, p *models.BundlePage, reply *proto.PushReply) error {
	var taken int64
	err := tx.Model(&models.PaperPage{}).
		Where("paper_number = ? AND page_number = ?", *p.PaperNumber, *p.PageNumber).
		Count(&taken).Error
	if err != nil {
		return fmt.Errorf("bundle: check production slot: %w", err)
	}
	if taken > 0 {
		return &proto.Error{
			Kind:  proto.ValidationFailed,
			Msg:   fmt.Sprintf("paper %d page %d already scanned in production", *p.PaperNumber, *p.PageNumber),
			Pages: []int{p.OrderIndex},
		}
	}

	pp := models.PaperPage{
		PaperNumber: *p.PaperNumber,
		PageNumber:  *p.PageNumber,
		Version:     *p.Version,
		ImageHash:   p.ImageHash,
		Rotation:    p.Rotation,
		BundleID:    bundleID,
	}
	if err := tx.Create(&pp).Error; err != nil {
		return fmt.Errorf("bundle: create paper page (%d, %d): %w", *p.PaperNumber, *p.PageNumber, err)
	}

	for _, q := range cfg.QuestionsForPage(*p.PageNumber) {
		t, created, err := task.Ensure(tx, *p.PaperNumber, q, *p.Version)
		if err != nil {
			return err
		}
		if created {
			reply.TasksCreated++
		}
		img := models.TaskImage{TaskID: t.ID, ImageHash: p.ImageHash, Rotation: p.Rotation}
		if err := tx.Create(&img).Error; err != nil {
			return fmt.Errorf("bundle: attach image to task (%d, %d): %w", *p.PaperNumber, q, err)
		}
	}
	return nil
}

// pushExtraPage attaches one Extra page's image to every task in its
// question list, materializing tasks as needed.
func pushExtraPage(tx *gorm.DB, bundleID string, p *models.BundlePage, reply *proto.PushReply) error {
	questions, err := QuestionList(p)
	if err != nil {
		return err
	}
	for _, q := range questions {
		t, created, err := task.Ensure(tx, *p.PaperNumber, q, 1)
		if err != nil {
			return err
		}
		if created {
			reply.TasksCreated++
		}
		img := models.TaskImage{TaskID: t.ID, ImageHash: p.ImageHash, Rotation: p.Rotation, Extra: true}
		if err := tx.Create(&img).Error; err != nil {
			return fmt.Errorf("bundle: attach extra image to task (%d, %d): %w", *p.PaperNumber, q, err)
		}
		reply.ExtrasAdded++
	}
	return nil
}

// QuestionList decodes an Extra page's bound question indexes.
func QuestionList(p *models.BundlePage) ([]int, error) {
	if p.QuestionList == "" {
		return nil, nil
	}
	var questions []int
	if err := json.Unmarshal([]byte(p.QuestionList), &questions); err != nil {
		return nil, fmt.Errorf("bundle: decode question list of page %d: %w", p.OrderIndex, err)
	}
	return questions, nil
}
