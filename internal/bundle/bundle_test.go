package bundle

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/scanmark/scanmark/internal/config"
	"github.com/scanmark/scanmark/internal/models"
	"github.com/scanmark/scanmark/internal/proto"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(&models.Bundle{}, &models.BundlePage{}, &models.PaperPage{},
		&models.Task{}, &models.TaskTag{}, &models.TaskImage{}, &models.TaskAnnotation{})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Marking: config.MarkingConfig{
			Questions: []config.QuestionConfig{
				{Index: 1, Pages: []int{2, 3}},
				{Index: 2, Pages: []int{4}},
			},
		},
	}
}

// newBundle creates a bundle with n pages, QR reading already complete.
func newBundle(t *testing.T, db *gorm.DB, n int) *models.Bundle {
	t.Helper()
	pages := make([]proto.BundlePageCreate, n)
	for i := range pages {
		pages[i] = proto.BundlePageCreate{OrderIndex: i + 1, ImageHash: hashFor(t, i)}
	}
	b, err := Create(db, CreateOpts{
		Slug:           "midterm-box1",
		Owner:          "scan1",
		ContentHash:    "sha-" + uuid.NewString(),
		Pages:          pages,
		QRReadComplete: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return b
}

func hashFor(t *testing.T, i int) string {
	return "img-" + t.Name() + "-" + string(rune('a'+i))
}

func pageStatus(t *testing.T, db *gorm.DB, bundleID string, order int) models.BundlePage {
	t.Helper()
	var p models.BundlePage
	if err := db.Where("bundle_id = ? AND order_index = ?", bundleID, order).First(&p).Error; err != nil {
		t.Fatalf("load page %d: %v", order, err)
	}
	return p
}

func TestCreate_Validation(t *testing.T) {
	db := openTestDB(t)
	page := []proto.BundlePageCreate{{OrderIndex: 1, ImageHash: "h"}}

	cases := []CreateOpts{
		{Owner: "s", ContentHash: "h", Pages: page},
		{Slug: "s", ContentHash: "h", Pages: page},
		{Slug: "s", Owner: "s", Pages: page},
		{Slug: "s", Owner: "s", ContentHash: "h"},
	}
	for i, opts := range cases {
		if _, err := Create(db, opts); err == nil {
			t.Errorf("case %d: Create succeeded with missing field", i)
		}
	}
}

func TestCreate_DuplicateHash(t *testing.T) {
	db := openTestDB(t)
	opts := CreateOpts{
		Slug: "box", Owner: "scan1", ContentHash: "samehash",
		Pages: []proto.BundlePageCreate{{OrderIndex: 1, ImageHash: "h"}},
	}
	if _, err := Create(db, opts); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, err := Create(db, opts)
	if proto.KindOf(err) != proto.ValidationFailed {
		t.Errorf("duplicate upload: kind = %q, want validation_failed", proto.KindOf(err))
	}
}

func TestKnowify_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	b := newBundle(t, db, 3)

	before := pageStatus(t, db, b.ID, 1)

	if err := Knowify(db, "scan1", b.ID, 1, 17, 2, 1); err != nil {
		t.Fatalf("Knowify: %v", err)
	}
	known := pageStatus(t, db, b.ID, 1)
	if known.Status != models.PageKnown || *known.PaperNumber != 17 || *known.PageNumber != 2 || *known.Version != 1 {
		t.Errorf("after knowify: %+v", known)
	}

	if err := Unknowify(db, "scan1", b.ID, 1); err != nil {
		t.Fatalf("Unknowify: %v", err)
	}
	after := pageStatus(t, db, b.ID, 1)
	if after.Status != models.PageUnknown {
		t.Errorf("status after unknowify = %q", after.Status)
	}
	if after.PaperNumber != nil || after.PageNumber != nil || after.Version != nil {
		t.Errorf("payload not cleared: %+v", after)
	}
	if after.ImageHash != before.ImageHash || after.Rotation != before.Rotation {
		t.Error("unknowify disturbed the image fields")
	}
}

func TestKnowify_SlotConflict(t *testing.T) {
	db := openTestDB(t)
	b := newBundle(t, db, 2)

	if err := Knowify(db, "scan1", b.ID, 1, 17, 2, 1); err != nil {
		t.Fatalf("first Knowify: %v", err)
	}
	err := Knowify(db, "scan1", b.ID, 2, 17, 2, 1)
	if proto.KindOf(err) != proto.SlotConflict {
		t.Errorf("kind = %q, want slot_conflict", proto.KindOf(err))
	}

	// The losing page is untouched.
	if got := pageStatus(t, db, b.ID, 2); got.Status != models.PageUnknown {
		t.Errorf("loser page status = %q, want unknown", got.Status)
	}
}

func TestTransitions_Illegal(t *testing.T) {
	db := openTestDB(t)
	b := newBundle(t, db, 2)

	if err := Knowify(db, "scan1", b.ID, 1, 17, 2, 1); err != nil {
		t.Fatalf("Knowify: %v", err)
	}

	// Known → Known and Known → Extra are not legal.
	if err := Knowify(db, "scan1", b.ID, 1, 18, 2, 1); proto.KindOf(err) != proto.InvalidTransition {
		t.Errorf("knowify known page: kind = %q", proto.KindOf(err))
	}
	if err := Extralise(db, "scan1", b.ID, 1, 18, []int{1}); proto.KindOf(err) != proto.InvalidTransition {
		t.Errorf("extralise known page: kind = %q", proto.KindOf(err))
	}
	// Unknown → Unknown is not legal either.
	if err := Unknowify(db, "scan1", b.ID, 2); proto.KindOf(err) != proto.InvalidTransition {
		t.Errorf("unknowify unknown page: kind = %q", proto.KindOf(err))
	}
	// Known → Discard is.
	if err := Discard(db, "scan1", b.ID, 1, "crossed out"); err != nil {
		t.Errorf("discard known page: %v", err)
	}
}

func TestExtralise(t *testing.T) {
	db := openTestDB(t)
	b := newBundle(t, db, 1)

	if err := Extralise(db, "scan1", b.ID, 1, 17, []int{1, 2}); err != nil {
		t.Fatalf("Extralise: %v", err)
	}
	p := pageStatus(t, db, b.ID, 1)
	if p.Status != models.PageExtra || *p.PaperNumber != 17 {
		t.Errorf("after extralise: %+v", p)
	}
	questions, err := QuestionList(&p)
	if err != nil {
		t.Fatalf("QuestionList: %v", err)
	}
	if !reflect.DeepEqual(questions, []int{1, 2}) {
		t.Errorf("questions = %v, want [1 2]", questions)
	}

	if err := Extralise(db, "scan1", b.ID, 1, 17, nil); err == nil {
		t.Error("Extralise with no questions succeeded")
	}
}

func TestSetRotation(t *testing.T) {
	db := openTestDB(t)
	b := newBundle(t, db, 1)

	if err := SetRotation(db, "scan1", b.ID, 1, 37); proto.KindOf(err) != proto.ValidationFailed {
		t.Errorf("non-right-angle rotation: kind = %q", proto.KindOf(err))
	}
	if err := SetRotation(db, "scan1", b.ID, 1, -90); err != nil {
		t.Fatalf("SetRotation(-90): %v", err)
	}
	if p := pageStatus(t, db, b.ID, 1); p.Rotation != 270 {
		t.Errorf("rotation = %d, want 270", p.Rotation)
	}
}

func TestLock_Exclusion(t *testing.T) {
	db := openTestDB(t)
	b := newBundle(t, db, 2)

	if err := Lock(db, b.ID, "alice"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	// Re-lock by holder is a no-op.
	if err := Lock(db, b.ID, "alice"); err != nil {
		t.Errorf("re-lock by holder: %v", err)
	}
	// Another user can neither lock nor mutate.
	if err := Lock(db, b.ID, "bob"); proto.KindOf(err) != proto.BundleLocked {
		t.Errorf("lock by other: kind = %q", proto.KindOf(err))
	}
	if err := Knowify(db, "bob", b.ID, 1, 17, 2, 1); proto.KindOf(err) != proto.BundleLocked {
		t.Errorf("mutate while locked: kind = %q", proto.KindOf(err))
	}
	if err := Unlock(db, b.ID, "bob"); proto.KindOf(err) != proto.BundleLocked {
		t.Errorf("unlock by other: kind = %q", proto.KindOf(err))
	}

	// The holder may keep working.
	if err := Knowify(db, "alice", b.ID, 1, 17, 2, 1); err != nil {
		t.Errorf("holder mutate: %v", err)
	}
	if err := Unlock(db, b.ID, "alice"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := Knowify(db, "bob", b.ID, 2, 17, 3, 1); err != nil {
		t.Errorf("mutate after unlock: %v", err)
	}
}

func TestPush_ValidationNamesPages(t *testing.T) {
	db := openTestDB(t)
	b := newBundle(t, db, 10)

	// Classify 8 of 10 pages; orders 9 and 10 stay Unknown.
	for i := 1; i <= 8; i++ {
		if err := Knowify(db, "scan1", b.ID, i, i, 2, 1); err != nil {
			t.Fatalf("Knowify page %d: %v", i, err)
		}
	}

	_, err := Push(db, testConfig(), b.ID, "scan1")
	if proto.KindOf(err) != proto.ValidationFailed {
		t.Fatalf("kind = %q, want validation_failed", proto.KindOf(err))
	}
	var pe *proto.Error
	if !errors.As(err, &pe) {
		t.Fatalf("error %v is not a *proto.Error", err)
	}
	if !reflect.DeepEqual(pe.Pages, []int{9, 10}) {
		t.Errorf("offending pages = %v, want [9 10]", pe.Pages)
	}

	// Nothing moved: bundle unpushed, all page states intact, no tasks.
	got, _ := Get(db, b.ID)
	if got.Pushed {
		t.Error("bundle marked pushed after failed validation")
	}
	for i := 1; i <= 8; i++ {
		if p := pageStatus(t, db, b.ID, i); p.Status != models.PageKnown {
			t.Errorf("page %d status = %q", i, p.Status)
		}
	}
	var tasks int64
	db.Model(&models.Task{}).Count(&tasks)
	if tasks != 0 {
		t.Errorf("tasks created despite failed push: %d", tasks)
	}
}

func TestPush_Promotes(t *testing.T) {
	db := openTestDB(t)
	b := newBundle(t, db, 4)

	// Paper 17: page 2 (Q1), page 4 (Q2); one extra for Q1; one discard.
	if err := Knowify(db, "scan1", b.ID, 1, 17, 2, 1); err != nil {
		t.Fatalf("Knowify: %v", err)
	}
	if err := Knowify(db, "scan1", b.ID, 2, 17, 4, 1); err != nil {
		t.Fatalf("Knowify: %v", err)
	}
	if err := Extralise(db, "scan1", b.ID, 3, 17, []int{1}); err != nil {
		t.Fatalf("Extralise: %v", err)
	}
	if err := Discard(db, "scan1", b.ID, 4, "blank"); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	reply, err := Push(db, testConfig(), b.ID, "scan1")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if reply.PapersTouched != 1 || reply.TasksCreated != 2 || reply.ExtrasAdded != 1 {
		t.Errorf("reply = %+v", reply)
	}

	got, _ := Get(db, b.ID)
	if !got.Pushed || got.PushLockedBy == nil {
		t.Error("pushed bundle not locked")
	}

	var paperPages int64
	db.Model(&models.PaperPage{}).Where("paper_number = 17").Count(&paperPages)
	if paperPages != 2 {
		t.Errorf("paper pages = %d, want 2", paperPages)
	}

	var q1 models.Task
	if err := db.Preload("Images").Where("paper_number = 17 AND question_index = 1").First(&q1).Error; err != nil {
		t.Fatalf("load Q1 task: %v", err)
	}
	// Q1 gets the fixed page plus the extra image.
	if len(q1.Images) != 2 {
		t.Errorf("Q1 images = %d, want 2", len(q1.Images))
	}

	// A pushed bundle refuses everything.
	if _, err := Push(db, testConfig(), b.ID, "scan1"); proto.KindOf(err) != proto.BundlePushed {
		t.Errorf("second push: kind = %q", proto.KindOf(err))
	}
	if err := Unknowify(db, "scan1", b.ID, 1); proto.KindOf(err) != proto.BundlePushed {
		t.Errorf("mutate after push: kind = %q", proto.KindOf(err))
	}
	if err := Lock(db, b.ID, "scan1"); proto.KindOf(err) != proto.BundlePushed {
		t.Errorf("lock after push: kind = %q", proto.KindOf(err))
	}
}

func TestPush_RefusedByOthersLock(t *testing.T) {
	db := openTestDB(t)
	b := newBundle(t, db, 1)
	if err := Knowify(db, "scan1", b.ID, 1, 17, 2, 1); err != nil {
		t.Fatalf("Knowify: %v", err)
	}
	if err := Lock(db, b.ID, "reviewer"); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if _, err := Push(db, testConfig(), b.ID, "scan1"); proto.KindOf(err) != proto.BundleLocked {
		t.Errorf("push against lock: kind = %q", proto.KindOf(err))
	}
	// The lock holder can push.
	if _, err := Push(db, testConfig(), b.ID, "reviewer"); err != nil {
		t.Errorf("holder push: %v", err)
	}
}

func TestPush_RequiresQRComplete(t *testing.T) {
	db := openTestDB(t)
	b, err := Create(db, CreateOpts{
		Slug: "box", Owner: "scan1", ContentHash: "qrhash",
		Pages: []proto.BundlePageCreate{{OrderIndex: 1, ImageHash: "h"}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := Knowify(db, "scan1", b.ID, 1, 17, 2, 1); err != nil {
		t.Fatalf("Knowify: %v", err)
	}

	if _, err := Push(db, testConfig(), b.ID, "scan1"); proto.KindOf(err) != proto.ValidationFailed {
		t.Errorf("push before qr complete: kind = %q", proto.KindOf(err))
	}
	if err := SetQRReadComplete(db, b.ID); err != nil {
		t.Fatalf("SetQRReadComplete: %v", err)
	}
	if _, err := Push(db, testConfig(), b.ID, "scan1"); err != nil {
		t.Errorf("push after qr complete: %v", err)
	}
}

func TestPush_ProductionSlotTaken(t *testing.T) {
	db := openTestDB(t)
	first := newBundle(t, db, 1)
	if err := Knowify(db, "scan1", first.ID, 1, 17, 2, 1); err != nil {
		t.Fatalf("Knowify: %v", err)
	}
	if _, err := Push(db, testConfig(), first.ID, "scan1"); err != nil {
		t.Fatalf("first push: %v", err)
	}

	second := newBundle(t, db, 1)
	if err := Knowify(db, "scan1", second.ID, 1, 17, 2, 1); err != nil {
		t.Fatalf("Knowify: %v", err)
	}
	_, err := Push(db, testConfig(), second.ID, "scan1")
	if proto.KindOf(err) != proto.ValidationFailed {
		t.Errorf("slot collision push: kind = %q", proto.KindOf(err))
	}
	got, _ := Get(db, second.ID)
	if got.Pushed {
		t.Error("second bundle marked pushed despite collision")
	}
}

func TestErrorPage_BlocksPushUntilDiscarded(t *testing.T) {
	db := openTestDB(t)
	b, err := Create(db, CreateOpts{
		Slug: "box", Owner: "scan1", ContentHash: "errhash",
		Pages: []proto.BundlePageCreate{
			{OrderIndex: 1, ImageHash: "h1"},
			{OrderIndex: 2, ImageHash: "h2", ReadError: "unreadable QR corner"},
		},
		QRReadComplete: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	p := pageStatus(t, db, b.ID, 2)
	if p.Status != models.PageError || p.Reason != "unreadable QR corner" {
		t.Fatalf("error page = %+v", p)
	}

	if err := Knowify(db, "scan1", b.ID, 1, 17, 2, 1); err != nil {
		t.Fatalf("Knowify: %v", err)
	}

	// Error pages block the push and are named in the failure.
	_, err = Push(db, testConfig(), b.ID, "scan1")
	var pe *proto.Error
	if !errors.As(err, &pe) || pe.Kind != proto.ValidationFailed {
		t.Fatalf("push with error page: %v", err)
	}
	if !reflect.DeepEqual(pe.Pages, []int{2}) {
		t.Errorf("offending pages = %v, want [2]", pe.Pages)
	}

	// An error page cannot be classified, only discarded.
	if err := Knowify(db, "scan1", b.ID, 2, 17, 3, 1); proto.KindOf(err) != proto.InvalidTransition {
		t.Errorf("knowify error page: kind = %q", proto.KindOf(err))
	}
	if err := Unknowify(db, "scan1", b.ID, 2); proto.KindOf(err) != proto.InvalidTransition {
		t.Errorf("unknowify error page: kind = %q", proto.KindOf(err))
	}
	if err := Discard(db, "scan1", b.ID, 2, "scanner failure"); err != nil {
		t.Fatalf("Discard error page: %v", err)
	}

	if _, err := Push(db, testConfig(), b.ID, "scan1"); err != nil {
		t.Errorf("push after discarding error page: %v", err)
	}
}

func TestBulkOperations(t *testing.T) {
	db := openTestDB(t)
	b := newBundle(t, db, 4)
	if err := Knowify(db, "scan1", b.ID, 1, 17, 2, 1); err != nil {
		t.Fatalf("Knowify: %v", err)
	}

	converted, err := DiscardAllUnknowns(db, "scan1", b.ID, "unreadable")
	if err != nil {
		t.Fatalf("DiscardAllUnknowns: %v", err)
	}
	if converted != 3 {
		t.Errorf("converted = %d, want 3", converted)
	}
	if p := pageStatus(t, db, b.ID, 1); p.Status != models.PageKnown {
		t.Error("bulk discard touched the known page")
	}

	converted, err = UnknowifyAllDiscards(db, "scan1", b.ID)
	if err != nil {
		t.Fatalf("UnknowifyAllDiscards: %v", err)
	}
	if converted != 3 {
		t.Errorf("converted = %d, want 3", converted)
	}

	// Re-running with nothing to do converts zero.
	if converted, err := UnknowifyAllDiscards(db, "scan1", b.ID); err != nil || converted != 0 {
		t.Errorf("re-run = (%d, %v), want (0, nil)", converted, err)
	}
}

func TestSummary(t *testing.T) {
	db := openTestDB(t)
	b := newBundle(t, db, 3)
	if err := Knowify(db, "scan1", b.ID, 1, 17, 2, 1); err != nil {
		t.Fatalf("Knowify: %v", err)
	}
	if err := Discard(db, "scan1", b.ID, 2, "blank"); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	got, err := Get(db, b.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	reply := Summary(got)
	want := map[string]int{"known": 1, "discard": 1, "unknown": 1}
	if !reflect.DeepEqual(reply.PageStates, want) {
		t.Errorf("page states = %v, want %v", reply.PageStates, want)
	}
	if reply.PageCount != 3 || reply.Pushed {
		t.Errorf("summary = %+v", reply)
	}
}
