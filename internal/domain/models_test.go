package domain

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Merchant{}).TableName():       "merchants",
		(AuthToken{}).TableName():      "auth_tokens",
		(RefundRequest{}).TableName():  "refund_requests",
		(RefundNote{}).TableName():     "refund_notes",
		(RefundTimeline{}).TableName(): "refund_timeline",
		(Idempotency{}).TableName():    "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(All()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range All() {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&RefundRequest{}, "ux_refund_order") {
		t.Fatalf("expected unique index ux_refund_order")
	}
	if !m.HasIndex(&RefundTimeline{}, "idx_timeline_refund") {
		t.Fatalf("expected index idx_timeline_refund")
	}

	now := time.Now().UTC()
	r := &RefundRequest{ID: "r1", OrderID: "o1", OrderNumber: "1001", MerchantID: "m1", Status: StatusPending, Source: SourceDashboard, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("insert refund: %v", err)
	}
	if err := db.Create(&RefundNote{ID: "n1", RefundRequestID: "r1", Content: "x", CreatedBy: "admin", CreatedAt: now}).Error; err != nil {
		t.Fatalf("insert note: %v", err)
	}
	if err := db.Create(&RefundTimeline{ID: "t1", RefundRequestID: "r1", EventType: EventCreated, Description: "d", CreatedBy: "admin", CreatedAt: now}).Error; err != nil {
		t.Fatalf("insert timeline: %v", err)
	}

	// Second refund for the same order violates the unique index.
	dup := &RefundRequest{ID: "r2", OrderID: "o1", OrderNumber: "1001", MerchantID: "m2", Status: StatusPending, Source: SourcePortal}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation on order_id")
	}

	// Unknown status rejected by the check constraint.
	bad := &RefundRequest{ID: "r3", OrderID: "o3", OrderNumber: "1003", MerchantID: "m1", Status: "archived", Source: SourceDashboard}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected check constraint failure for status")
	}

	// Cascade delete removes notes and timeline.
	if err := db.Delete(&RefundRequest{}, "id = ?", "r1").Error; err != nil {
		t.Fatalf("delete refund: %v", err)
	}
	var n int64
	db.Model(&RefundNote{}).Count(&n)
	if n != 0 {
		t.Fatalf("notes not cascaded, count=%d", n)
	}
	db.Model(&RefundTimeline{}).Count(&n)
	if n != 0 {
		t.Fatalf("timeline not cascaded, count=%d", n)
	}
}

func TestImagesRoundTrip(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&RefundRequest{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	withImgs := &RefundRequest{ID: "a", OrderID: "oa", OrderNumber: "1", MerchantID: "m", Status: StatusPending, Source: SourcePortal,
		Images: EncodeImages([]string{"https://cdn/x.jpg", "https://cdn/y.jpg"})}
	noImgs := &RefundRequest{ID: "b", OrderID: "ob", OrderNumber: "2", MerchantID: "m", Status: StatusPending, Source: SourcePortal}
	if err := db.Create(withImgs).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Create(noImgs).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	var got RefundRequest
	if err := db.First(&got, "id = ?", "a").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if imgs := got.ImageList(); len(imgs) != 2 || imgs[1] != "https://cdn/y.jpg" {
		t.Fatalf("images = %#v", imgs)
	}
	var empty RefundRequest
	if err := db.First(&empty, "id = ?", "b").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if empty.ImageList() != nil {
		t.Fatalf("expected nil images, got %#v", empty.ImageList())
	}
	if EncodeImages(nil) != nil {
		t.Fatalf("EncodeImages(nil) should be nil")
	}
}

func TestAuthTokenExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	if (AuthToken{}).Expired(now) {
		t.Fatalf("token without expiry must not be expired")
	}
	if !(AuthToken{ExpiresAt: &past}).Expired(now) {
		t.Fatalf("past expiry must be expired")
	}
	if (AuthToken{ExpiresAt: &future}).Expired(now) {
		t.Fatalf("future expiry must not be expired")
	}
}

func TestRefundJSONShape(t *testing.T) {
	reason := "damaged_product"
	r := RefundRequest{ID: "r1", OrderID: "o1", OrderNumber: "1001", Status: StatusPending, Source: SourcePortal, Reason: &reason}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	for _, k := range []string{"orderId", "orderNumber", "status", "reason", "trackingNumber", "source"} {
		if _, ok := m[k]; !ok {
			t.Fatalf("missing key %q in %s", k, b)
		}
	}
	if m["trackingNumber"] != nil {
		t.Fatalf("trackingNumber should be null, got %v", m["trackingNumber"])
	}
}
