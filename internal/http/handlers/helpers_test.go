package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-refund-backend/internal/auth"
	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/gateway"
	"github.com/tbourn/go-refund-backend/internal/http/middleware"
	"github.com/tbourn/go-refund-backend/internal/portal"
	"github.com/tbourn/go-refund-backend/internal/repo"
	"github.com/tbourn/go-refund-backend/internal/services"
)

var testIdentity = auth.Identity{MerchantID: "m1", AuthorizedAppID: "app1"}

// ---------- test DB + shims ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:refund_handlers_%s?mode=memory&cache=shared", uuid.NewString())
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
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fixtureResolver serves the same fixture gateway for every merchant.
type fixtureResolver struct{ gw gateway.Gateway }

func (f fixtureResolver) ForMerchant(context.Context, string) (gateway.Gateway, error) {
	return f.gw, nil
}

func (f fixtureResolver) ForApp(context.Context, string) (gateway.Gateway, error) {
	return f.gw, nil
}

// Minimal shim implementing services.MerchantRepo using the repo package.
type testMerchantRepo struct{}

func (testMerchantRepo) GetMerchantByApp(ctx context.Context, db *gorm.DB, appID string) (*domain.Merchant, error) {
	return repo.GetMerchantByApp(ctx, db, appID)
}

func (testMerchantRepo) CreateMerchant(ctx context.Context, db *gorm.DB, m *domain.Merchant) error {
	return repo.CreateMerchant(ctx, db, m)
}

func (testMerchantRepo) UpdateMerchantSettings(ctx context.Context, db *gorm.DB, id string, url *string, enabled bool) error {
	return repo.UpdateMerchantSettings(ctx, db, id, url, enabled)
}

// ---------- environment ----------

type testEnv struct {
	db      *gorm.DB
	fixture *gateway.Fixture
	h       *Handlers
	router  *gin.Engine
}

// newTestEnv wires real services over SQLite and the fixture gateway, with
// one merchant (testIdentity) installed.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	if err := repo.CreateMerchant(context.Background(), db, &domain.Merchant{
		ID: testIdentity.MerchantID, AuthorizedAppID: testIdentity.AuthorizedAppID, PortalEnabled: true,
	}); err != nil {
		t.Fatalf("seed merchant: %v", err)
	}

	fx := gateway.NewFixture(time.Now())
	resolver := fixtureResolver{gw: fx}
	refunds := services.NewRefundService(db, resolver)
	reads := services.NewReadService(db, resolver, 4)
	portalSvc := services.NewPortalService(db, resolver, refunds, portal.NewMemoryStore(30*time.Minute), nil, nil)
	merchants := services.NewMerchantService(db, testMerchantRepo{}, resolver)
	idem := services.NewIdempotencyService(db, time.Hour)

	h := New(refunds, reads, portalSvc, merchants, idem)
	return &testEnv{db: db, fixture: fx, h: h, router: newTestRouter(h, idem, auth.StaticAuthenticator{Identity: testIdentity})}
}

// newTestRouter mirrors the production route table without the ambient
// middleware that is tested elsewhere.
func newTestRouter(h *Handlers, idem *services.IdempotencyService, a auth.Authenticator) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())

	var lookup middleware.IdempotencyLookup
	if idem != nil {
		lookup = idem.Lookup
	}

	api := r.Group("/api/v1", middleware.RequireMerchant(a), middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, lookup))
	api.GET("/refunds", h.ListRefunds)
	api.POST("/refunds", h.CreateRefund)
	api.POST("/refunds/create-from-order", h.CreateRefundFromOrder)
	api.GET("/refunds/stats", h.RefundStats)
	api.GET("/refunds/export", h.ExportRefunds)
	api.GET("/refunds/:id", h.GetRefund)
	api.PATCH("/refunds/:id", h.UpdateRefund)
	api.POST("/refunds/:id/approve", h.ApproveRefund)
	api.GET("/refunds/:id/notes", h.ListNotes)
	api.POST("/refunds/:id/notes", h.AddNote)
	api.GET("/refunds/:id/timeline", h.ListTimeline)
	api.GET("/timeline", h.RecentTimeline)
	api.GET("/orders", h.ListOrders)
	api.GET("/orders/refund-candidates", h.ListRefundCandidates)
	api.GET("/merchant", h.GetMerchant)
	api.GET("/settings", h.GetSettings)
	api.PATCH("/settings", h.UpdateSettings)

	pub := r.Group("/public", middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	pub.POST("/verify-order", h.VerifyOrder)
	pub.GET("/reasons", h.ListReasons)
	pub.GET("/sessions/:sid", h.GetSession)
	pub.POST("/sessions/:sid/reason", h.SelectReason)
	pub.POST("/sessions/:sid/images", h.AttachImages)
	pub.POST("/sessions/:sid/submit", h.SubmitSession)
	pub.POST("/submit-refund", h.SubmitRefund)
	pub.GET("/track-refund", h.TrackRefund)
	return r
}

// ---------- request helpers ----------

func doJSON(t *testing.T, r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body=%s)", v, err, w.Body.String())
	}
	return v
}

type envelope[T any] struct {
	Data T `json:"data"`
}

func mustStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d; want %d (body=%s)", w.Code, want, strings.TrimSpace(w.Body.String()))
	}
}

// createRefund creates a dashboard refund for a fixture order and returns it.
func (e *testEnv) createRefund(t *testing.T, orderNumber string) domain.RefundRequest {
	t.Helper()
	w := doJSON(t, e.router, http.MethodPost, "/api/v1/refunds",
		CreateRefundRequest{OrderID: orderNumber, OrderNumber: orderNumber}, nil)
	mustStatus(t, w, http.StatusCreated)
	return decode[envelope[domain.RefundRequest]](t, w).Data
}
