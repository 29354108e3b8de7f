package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-refund-backend/internal/auth"
	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/gateway"
	"github.com/tbourn/go-refund-backend/internal/notify"
	"github.com/tbourn/go-refund-backend/internal/repo"
)

var testIdentity = auth.Identity{MerchantID: "m1", AuthorizedAppID: "app1"}

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeResolver hands out one gateway for every merchant.
type fakeResolver struct {
	gw  gateway.Gateway
	err error
}

func (f fakeResolver) ForMerchant(context.Context, string) (gateway.Gateway, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.gw, nil
}

func (f fakeResolver) ForApp(context.Context, string) (gateway.Gateway, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.gw, nil
}

// failingOrders wraps a gateway and fails GetOrder for selected ids.
type failingOrders struct {
	gateway.Gateway
	fail    map[string]error
	listErr error
}

func (f failingOrders) GetOrder(ctx context.Context, id string) (*gateway.Order, error) {
	if err, ok := f.fail[id]; ok {
		return nil, err
	}
	return f.Gateway.GetOrder(ctx, id)
}

func (f failingOrders) ListOrders(ctx context.Context, q gateway.OrderQuery) ([]gateway.Order, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Gateway.ListOrders(ctx, q)
}

func seedRefund(t *testing.T, db *gorm.DB, r domain.RefundRequest) *domain.RefundRequest {
	t.Helper()
	if r.Status == "" {
		r.Status = domain.StatusPending
	}
	if r.Source == "" {
		r.Source = domain.SourceDashboard
	}
	if r.MerchantID == "" {
		r.MerchantID = testIdentity.MerchantID
	}
	if r.OrderNumber == "" {
		r.OrderNumber = r.OrderID
	}
	if err := repo.CreateRefund(context.Background(), db, &r); err != nil {
		t.Fatalf("seed refund %s: %v", r.OrderID, err)
	}
	return &r
}

func seedMerchant(t *testing.T, db *gorm.DB, id, appID string, created time.Time) {
	t.Helper()
	m := &domain.Merchant{ID: id, AuthorizedAppID: appID, PortalEnabled: true, CreatedAt: created}
	if err := repo.CreateMerchant(context.Background(), db, m); err != nil {
		t.Fatalf("seed merchant: %v", err)
	}
}

func eventData(t *testing.T, ev domain.RefundTimeline) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(ev.EventData, &m); err != nil {
		t.Fatalf("event data: %v", err)
	}
	return m
}

func strPtr(s string) *string { return &s }

// recordingNotifier captures notices.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.RefundNotice
	err     error
}

func (r *recordingNotifier) RefundSubmitted(_ context.Context, n notify.RefundNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return r.err
}

// memImages is an ImageStore returning predictable references.
type memImages struct {
	mu   sync.Mutex
	puts []string
	err  error
}

func (m *memImages) Put(_ context.Context, prefix, contentType string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	ref := fmt.Sprintf("https://cdn.test/%s/%d.%s", prefix, len(m.puts), strings.TrimPrefix(contentType, "image/"))
	m.puts = append(m.puts, ref)
	return ref, nil
}
