package bundle

import (
	"encoding/json"
	"fmt"

	"github.com/scanmark/scanmark/internal/models"
	"github.com/scanmark/scanmark/internal/proto"
	"gorm.io/gorm"
)

// legalFrom maps each page transition to the statuses it may start from.
var legalFrom = map[string][]string{
	models.PageKnown:   {models.PageUnknown},
	models.PageExtra:   {models.PageUnknown},
	models.PageDiscard: {models.PageUnknown, models.PageKnown, models.PageExtra, models.PageError},
	models.PageUnknown: {models.PageKnown, models.PageExtra, models.PageDiscard},
}

// Knowify binds an Unknown page to a fixed (paper, page, version) slot.
// The slot must not already be claimed by another page of the same
// bundle.
func Knowify(gdb *gorm.DB, username, bundleID string, orderIndex, paperNumber, pageNumber, version int) error {
	if paperNumber <= 0 || pageNumber <= 0 || version <= 0 {
		return fmt.Errorf("bundle: paper, page and version must be positive")
	}
	return gdb.Transaction(func(tx *gorm.DB) error {
		page, err := mutablePage(tx, bundleID, orderIndex, username)
		if err != nil {
			return err
		}
		if err := checkTransition(page, models.PageKnown); err != nil {
			return err
		}

		var conflict int64
		err = tx.Model(&models.BundlePage{}).
			Where("bundle_id = ? AND status = ? AND paper_number = ? AND page_number = ? AND id <> ?",
				bundleID, models.PageKnown, paperNumber, pageNumber, page.ID).
			Count(&conflict).Error
		if err != nil {
			return fmt.Errorf("bundle: check slot (%d, %d): %w", paperNumber, pageNumber, err)
		}
		if conflict > 0 {
			return proto.Errf(proto.SlotConflict,
				"paper %d page %d already filled by another page of bundle %s", paperNumber, pageNumber, bundleID)
		}

		return updatePage(tx, page.ID, map[string]interface{}{
			"status":        models.PageKnown,
			"paper_number":  paperNumber,
			"page_number":   pageNumber,
			"version":       version,
			"question_list": "",
			"reason":        "",
		})
	})
}

// Extralise binds an Unknown page as extra material for one or more
// questions of a paper.
func Extralise(gdb *gorm.DB, username, bundleID string, orderIndex, paperNumber int, questions []int) error {
	if paperNumber <= 0 {
		return fmt.Errorf("bundle: paper number must be positive")
	}
	if len(questions) == 0 {
		return fmt.Errorf("bundle: at least one question index is required")
	}
	list, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("bundle: marshal question list: %w", err)
	}
	return gdb.Transaction(func(tx *gorm.DB) error {
		page, err := mutablePage(tx, bundleID, orderIndex, username)
		if err != nil {
			return err
		}
		if err := checkTransition(page, models.PageExtra); err != nil {
			return err
		}
		return updatePage(tx, page.ID, map[string]interface{}{
			"status":        models.PageExtra,
			"paper_number":  paperNumber,
			"page_number":   nil,
			"version":       nil,
			"question_list": string(list),
			"reason":        "",
		})
	})
}

// Discard removes a page from consideration without deleting the image.
func Discard(gdb *gorm.DB, username, bundleID string, orderIndex int, reason string) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		page, err := mutablePage(tx, bundleID, orderIndex, username)
		if err != nil {
			return err
		}
		if err := checkTransition(page, models.PageDiscard); err != nil {
			return err
		}
		return updatePage(tx, page.ID, map[string]interface{}{
			"status":        models.PageDiscard,
			"paper_number":  nil,
			"page_number":   nil,
			"version":       nil,
			"question_list": "",
			"reason":        reason,
		})
	})
}

// Unknowify reverts a classified page to Unknown, clearing any bound
// slot or question data. Error pages are not revertible.
func Unknowify(gdb *gorm.DB, username, bundleID string, orderIndex int) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		page, err := mutablePage(tx, bundleID, orderIndex, username)
		if err != nil {
			return err
		}
		if err := checkTransition(page, models.PageUnknown); err != nil {
			return err
		}
		return updatePage(tx, page.ID, map[string]interface{}{
			"status":        models.PageUnknown,
			"paper_number":  nil,
			"page_number":   nil,
			"version":       nil,
			"question_list": "",
			"reason":        "",
		})
	})
}

// SetRotation sets a page's rotation, in degrees, multiple of 90.
func SetRotation(gdb *gorm.DB, username, bundleID string, orderIndex, rotation int) error {
	if rotation%90 != 0 {
		return proto.Errf(proto.ValidationFailed, "rotation %d is not a multiple of 90", rotation)
	}
	return gdb.Transaction(func(tx *gorm.DB) error {
		page, err := mutablePage(tx, bundleID, orderIndex, username)
		if err != nil {
			return err
		}
		return updatePage(tx, page.ID, map[string]interface{}{"rotation": ((rotation % 360) + 360) % 360})
	})
}

// DiscardAllUnknowns discards every Unknown page of a bundle. Each page
// converts in its own transaction; a failure part-way leaves earlier
// conversions in place, and the operation is safe to re-run.
func DiscardAllUnknowns(gdb *gorm.DB, username, bundleID, reason string) (int, error) {
	orders, err := pageOrders(gdb, bundleID, models.PageUnknown)
	if err != nil {
		return 0, err
	}
	converted := 0
	for _, order := range orders {
		if err := Discard(gdb, username, bundleID, order, reason); err != nil {
			return converted, err
		}
		converted++
	}
	return converted, nil
}

// UnknowifyAllDiscards reverts every Discard page of a bundle to
// Unknown, per-page like DiscardAllUnknowns.
func UnknowifyAllDiscards(gdb *gorm.DB, username, bundleID string) (int, error) {
	orders, err := pageOrders(gdb, bundleID, models.PageDiscard)
	if err != nil {
		return 0, err
	}
	converted := 0
	for _, order := range orders {
		if err := Unknowify(gdb, username, bundleID, order); err != nil {
			return converted, err
		}
		converted++
	}
	return converted, nil
}

// mutablePage loads a page after confirming its bundle accepts mutation
// from this user: not pushed, not push-locked by someone else.
func mutablePage(tx *gorm.DB, bundleID string, orderIndex int, username string) (*models.BundlePage, error) {
	b, err := lockRow(tx, bundleID)
	if err != nil {
		return nil, err
	}
	if b.Pushed {
		return nil, proto.Errf(proto.BundlePushed, "bundle %s is pushed, pages are immutable", bundleID)
	}
	if b.LockedByOther(username) {
		return nil, proto.Errf(proto.BundleLocked, "bundle %s locked by %s", bundleID, *b.PushLockedBy)
	}

	var page models.BundlePage
	result := tx.Where("bundle_id = ? AND order_index = ?", bundleID, orderIndex).Limit(1).Find(&page)
	if result.Error != nil {
		return nil, fmt.Errorf("bundle: find page %d of %s: %w", orderIndex, bundleID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, proto.Errf(proto.NoSuchBundle, "no page %d in bundle %s", orderIndex, bundleID)
	}
	return &page, nil
}

func checkTransition(page *models.BundlePage, to string) error {
	for _, from := range legalFrom[to] {
		if page.Status == from {
			return nil
		}
	}
	return proto.Errf(proto.InvalidTransition, "page %d is %s, cannot become %s", page.OrderIndex, page.Status, to)
}

func updatePage(tx *gorm.DB, pageID uint, updates map[string]interface{}) error {
	if err := tx.Model(&models.BundlePage{}).Where("id = ?", pageID).Updates(updates).Error; err != nil {
		return fmt.Errorf("bundle: update page %d: %w", pageID, err)
	}
	return nil
}

func pageOrders(gdb *gorm.DB, bundleID, status string) ([]int, error) {
	var orders []int
	err := gdb.Model(&models.BundlePage{}).
		Where("bundle_id = ? AND status = ?", bundleID, status).
		Order("order_index ASC").
		Pluck("order_index", &orders).Error
	if err != nil {
		return nil, fmt.Errorf("bundle: list %s pages of %s: %w", status, bundleID, err)
	}
	return orders, nil
}
