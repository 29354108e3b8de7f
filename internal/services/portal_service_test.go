package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/gateway"
	"github.com/tbourn/go-refund-backend/internal/i18n"
	"github.com/tbourn/go-refund-backend/internal/portal"
	"github.com/tbourn/go-refund-backend/internal/repo"
)

type portalHarness struct {
	svc      *PortalService
	fixture  *gateway.Fixture
	images   *memImages
	notifier *recordingNotifier
	sessions *portal.MemoryStore
}

func newPortalHarness(t *testing.T) *portalHarness {
	t.Helper()
	db := newServiceDB(t)
	fx := gateway.NewFixture(time.Now())
	gw := fakeResolver{gw: fx}
	seedMerchant(t, db, "m1", "app1", time.Now().Add(-time.Hour))

	h := &portalHarness{
		fixture:  fx,
		images:   &memImages{},
		notifier: &recordingNotifier{},
		sessions: portal.NewMemoryStore(time.Hour),
	}
	h.svc = NewPortalService(db, gw, NewRefundService(db, gw), h.sessions, h.images, h.notifier)
	ids := 0
	h.svc.newID = func() string {
		ids++
		return "sess-" + strconv.Itoa(ids)
	}
	return h
}

func pngURI(n int) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(make([]byte, n))
}

func TestPortalService_Verify(t *testing.T) {
	h := newPortalHarness(t)
	ctx := context.Background()

	res, err := h.svc.Verify(ctx, VerifyInput{OrderNumber: " 1001 ", Email: " TEST@test.com "})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Verified || res.SessionID != "sess-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Order.ID != "1001" || res.Order.MerchantID != "m1" || res.Order.TotalFinalPrice != 150.00 {
		t.Fatalf("order: %+v", res.Order)
	}
	if res.Order.Customer.Email == nil || *res.Order.Customer.Email != gateway.FixtureEmail {
		t.Fatalf("customer: %+v", res.Order.Customer)
	}

	sess, err := h.svc.Session(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess.State != portal.StateVerified || sess.Order.OrderID != "1001" || sess.Order.CustomerName != "Test Müşteri" {
		t.Fatalf("session: %+v", sess)
	}
}

func TestPortalService_Verify_Errors(t *testing.T) {
	h := newPortalHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   VerifyInput
		want error
	}{
		{"missing email", VerifyInput{OrderNumber: "1001"}, ErrValidation},
		{"missing number", VerifyInput{Email: "a@b.c"}, ErrValidation},
		{"unknown order", VerifyInput{OrderNumber: "9999", Email: gateway.FixtureEmail}, ErrOrderNotFound},
		{"wrong email", VerifyInput{OrderNumber: "1001", Email: "other@test.com"}, ErrEmailMismatch},
		{"unknown merchant", VerifyInput{OrderNumber: "1001", Email: gateway.FixtureEmail, MerchantID: "nope"}, ErrMerchantNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.svc.Verify(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}

	existing := seedRefund(t, h.svc.DB, domain.RefundRequest{OrderID: "1002", MerchantID: "other"})
	_, err := h.svc.Verify(ctx, VerifyInput{OrderNumber: "1002", Email: gateway.FixtureEmail})
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.ExistingID != existing.ID {
		t.Fatalf("want ConflictError(%s), got %v", existing.ID, err)
	}

	h.svc.Gateways = fakeResolver{err: gateway.ErrNoCredentials}
	if _, err := h.svc.Verify(ctx, VerifyInput{OrderNumber: "1001", Email: gateway.FixtureEmail}); !errors.Is(err, ErrAuthContextMissing) {
		t.Fatalf("want ErrAuthContextMissing, got %v", err)
	}
}

func TestPortalService_Verify_NoMerchant(t *testing.T) {
	db := newServiceDB(t)
	gw := fakeResolver{gw: gateway.NewFixture(time.Now())}
	svc := NewPortalService(db, gw, NewRefundService(db, gw), portal.NewMemoryStore(time.Hour), nil, nil)
	if _, err := svc.Verify(context.Background(), VerifyInput{OrderNumber: "1001", Email: gateway.FixtureEmail}); !errors.Is(err, ErrMerchantNotFound) {
		t.Fatalf("want ErrMerchantNotFound, got %v", err)
	}
}

func TestPortalService_SessionFlow(t *testing.T) {
	h := newPortalHarness(t)
	ctx := context.Background()

	v, err := h.svc.Verify(ctx, VerifyInput{OrderNumber: "1001", Email: gateway.FixtureEmail})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	sid := v.SessionID

	if _, err := h.svc.Submit(ctx, sid, language.English); !errors.Is(err, portal.ErrInvalidTransition) {
		t.Fatalf("submit before reason: want ErrInvalidTransition, got %v", err)
	}
	if _, err := h.svc.AttachImages(ctx, sid, []string{pngURI(8)}); !errors.Is(err, portal.ErrInvalidTransition) {
		t.Fatalf("images before reason: want ErrInvalidTransition, got %v", err)
	}
	if _, err := h.svc.SelectReason(ctx, sid, "broken", ""); !errors.Is(err, portal.ErrUnknownReason) {
		t.Fatalf("want ErrUnknownReason, got %v", err)
	}

	sess, err := h.svc.SelectReason(ctx, sid, portal.ReasonDamaged, " box was crushed ")
	if err != nil {
		t.Fatalf("SelectReason: %v", err)
	}
	if sess.State != portal.StateReasonSelected || sess.Reason.Note != "box was crushed" {
		t.Fatalf("session after reason: %+v", sess)
	}
	if _, err := h.svc.Submit(ctx, sid, language.English); !errors.Is(err, portal.ErrImagesRequired) {
		t.Fatalf("want ErrImagesRequired, got %v", err)
	}

	if _, err := h.svc.AttachImages(ctx, sid, []string{"data:text/plain;base64,aGk="}); !errors.Is(err, portal.ErrNotImage) {
		t.Fatalf("want ErrNotImage, got %v", err)
	}
	sess, err = h.svc.AttachImages(ctx, sid, []string{pngURI(8), pngURI(16)})
	if err != nil {
		t.Fatalf("AttachImages: %v", err)
	}
	if sess.State != portal.StateImagesAttached || len(sess.Images) != 2 {
		t.Fatalf("session after images: %+v", sess)
	}
	if !strings.Contains(sess.Images[0], "portal/"+sid) {
		t.Fatalf("image stored under wrong prefix: %s", sess.Images[0])
	}

	res, err := h.svc.Submit(ctx, sid, language.English)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Success || res.RefundID == "" || res.Message != i18n.T(language.English, i18n.MsgRefundCreated) {
		t.Fatalf("submit result: %+v", res)
	}

	r, err := repo.GetRefundByID(ctx, h.svc.DB, res.RefundID)
	if err != nil {
		t.Fatalf("GetRefundByID: %v", err)
	}
	if r.Source != domain.SourcePortal || deref(r.Reason) != portal.ReasonDamaged || len(r.ImageList()) != 2 {
		t.Fatalf("stored refund: %+v", r)
	}
	if len(r.Notes) != 1 || len(r.Timeline) != 2 {
		t.Fatalf("want 1 note and 2 events, got %d and %d", len(r.Notes), len(r.Timeline))
	}

	if n := h.notifier.notices; len(n) != 1 || n[0].RefundID != r.ID || n[0].CustomerEmail != gateway.FixtureEmail || n[0].Locale != language.English {
		t.Fatalf("notices: %+v", n)
	}

	sess, _ = h.svc.Session(ctx, sid)
	if sess.State != portal.StateSubmitted || sess.RefundID != r.ID {
		t.Fatalf("session after submit: %+v", sess)
	}
	if _, err := h.svc.Submit(ctx, sid, language.English); !errors.Is(err, portal.ErrInvalidTransition) {
		t.Fatalf("resubmit: want ErrInvalidTransition, got %v", err)
	}
}

func TestPortalService_Submit_WithoutImages(t *testing.T) {
	h := newPortalHarness(t)
	ctx := context.Background()
	v, _ := h.svc.Verify(ctx, VerifyInput{OrderNumber: "1004", Email: gateway.FixtureEmail})
	if _, err := h.svc.SelectReason(ctx, v.SessionID, portal.ReasonCustomer, ""); err != nil {
		t.Fatalf("SelectReason: %v", err)
	}
	res, err := h.svc.Submit(ctx, v.SessionID, i18n.Default)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r, _ := repo.GetRefundByID(ctx, h.svc.DB, res.RefundID)
	if r.ReasonNote != nil || len(r.Notes) != 0 || len(r.Timeline) != 1 {
		t.Fatalf("refund without photos: note=%v notes=%d events=%d", r.ReasonNote, len(r.Notes), len(r.Timeline))
	}
}

func TestPortalService_Submit_NotificationFailure(t *testing.T) {
	h := newPortalHarness(t)
	h.notifier.err = errors.New("smtp down")
	ctx := context.Background()
	v, _ := h.svc.Verify(ctx, VerifyInput{OrderNumber: "1005", Email: gateway.FixtureEmail})
	_, _ = h.svc.SelectReason(ctx, v.SessionID, portal.ReasonOther, "")
	if _, err := h.svc.Submit(ctx, v.SessionID, i18n.Default); err != nil {
		t.Fatalf("notification failure must not fail submit: %v", err)
	}
}

func TestPortalService_UnknownSession(t *testing.T) {
	h := newPortalHarness(t)
	ctx := context.Background()
	if _, err := h.svc.SelectReason(ctx, "nope", portal.ReasonOther, ""); !errors.Is(err, portal.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
	if _, err := h.svc.Submit(ctx, "nope", i18n.Default); !errors.Is(err, portal.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestPortalService_SubmitDirect(t *testing.T) {
	h := newPortalHarness(t)
	ctx := context.Background()
	in := SubmitInput{
		OrderID:       "1006",
		OrderNumber:   "1006",
		MerchantID:    "m1",
		CustomerEmail: gateway.FixtureEmail,
		Reason:        portal.ReasonDefective,
		ReasonNote:    "stops after a minute",
		Images:        []string{pngURI(32)},
	}

	res, err := h.svc.SubmitDirect(ctx, in, i18n.Default)
	if err != nil {
		t.Fatalf("SubmitDirect: %v", err)
	}
	if want := i18n.T(i18n.Default, i18n.MsgRefundCreated); res.Message != want {
		t.Fatalf("message=%q want %q", res.Message, want)
	}
	r, _ := repo.GetRefundByID(ctx, h.svc.DB, res.RefundID)
	if r.Source != domain.SourcePortal || len(r.ImageList()) != 1 || deref(r.ReasonNote) != "stops after a minute" {
		t.Fatalf("stored refund: %+v", r)
	}
	if len(h.images.puts) != 1 || len(h.notifier.notices) != 1 {
		t.Fatalf("puts=%d notices=%d", len(h.images.puts), len(h.notifier.notices))
	}

	_, err = h.svc.SubmitDirect(ctx, in, i18n.Default)
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.ExistingID != r.ID {
		t.Fatalf("want ConflictError(%s), got %v", r.ID, err)
	}
	if len(h.images.puts) != 1 {
		t.Fatalf("duplicate submission must not upload images")
	}
}

func TestPortalService_SubmitDirect_Validation(t *testing.T) {
	h := newPortalHarness(t)
	ctx := context.Background()
	valid := SubmitInput{OrderID: "1007", OrderNumber: "1007", MerchantID: "m1", CustomerEmail: gateway.FixtureEmail, Reason: portal.ReasonOther}

	missing := valid
	missing.CustomerEmail = " "
	if _, err := h.svc.SubmitDirect(ctx, missing, i18n.Default); !errors.Is(err, ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	unknown := valid
	unknown.Reason = "changed_mind"
	if _, err := h.svc.SubmitDirect(ctx, unknown, i18n.Default); !errors.Is(err, portal.ErrUnknownReason) {
		t.Fatalf("want ErrUnknownReason, got %v", err)
	}
	noPhotos := valid
	noPhotos.Reason = portal.ReasonWrong
	if _, err := h.svc.SubmitDirect(ctx, noPhotos, i18n.Default); !errors.Is(err, portal.ErrImagesRequired) {
		t.Fatalf("want ErrImagesRequired, got %v", err)
	}
	tooMany := valid
	tooMany.Images = make([]string, portal.MaxImages+1)
	for i := range tooMany.Images {
		tooMany.Images[i] = pngURI(4)
	}
	if _, err := h.svc.SubmitDirect(ctx, tooMany, i18n.Default); !errors.Is(err, portal.ErrTooManyImages) {
		t.Fatalf("want ErrTooManyImages, got %v", err)
	}
	if _, err := repo.FindRefundByOrder(ctx, h.svc.DB, "1007"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("rejected submissions must not persist, got %v", err)
	}
}

func TestPortalService_SubmitDirect_RequiresOrderOwnership(t *testing.T) {
	h := newPortalHarness(t)
	ctx := context.Background()
	valid := SubmitInput{
		OrderID: "1001", OrderNumber: "1001", MerchantID: "m1",
		CustomerEmail: gateway.FixtureEmail, Reason: portal.ReasonOther,
	}

	tests := []struct {
		name   string
		mutate func(*SubmitInput)
		want   error
	}{
		{"foreign email", func(in *SubmitInput) { in.CustomerEmail = "attacker@evil.test" }, ErrEmailMismatch},
		{"unknown order id", func(in *SubmitInput) { in.OrderID = "no-such-order" }, ErrOrderNotFound},
		{"id of another order", func(in *SubmitInput) { in.OrderID = "1002" }, ErrOrderNotFound},
		{"unknown order number", func(in *SubmitInput) { in.OrderNumber = "9999" }, ErrOrderNotFound},
		{"unknown merchant", func(in *SubmitInput) { in.MerchantID = "nope" }, ErrMerchantNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			if _, err := h.svc.SubmitDirect(ctx, in, i18n.Default); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}

	for _, id := range []string{"1001", "1002", "no-such-order"} {
		if _, err := repo.FindRefundByOrder(ctx, h.svc.DB, id); !errors.Is(err, repo.ErrNotFound) {
			t.Fatalf("rejected submission persisted a refund for %s: %v", id, err)
		}
	}

	// The real customer can still verify, and case differences in the email
	// are accepted on the one-shot path too.
	if _, err := h.svc.Verify(ctx, VerifyInput{OrderNumber: "1001", Email: gateway.FixtureEmail, MerchantID: "m1"}); err != nil {
		t.Fatalf("Verify after rejected submissions: %v", err)
	}
	upper := valid
	upper.CustomerEmail = strings.ToUpper(gateway.FixtureEmail)
	if _, err := h.svc.SubmitDirect(ctx, upper, i18n.Default); err != nil {
		t.Fatalf("SubmitDirect with upper-case email: %v", err)
	}
}

func TestPortalService_Track(t *testing.T) {
	h := newPortalHarness(t)
	ctx := context.Background()
	res, err := h.svc.SubmitDirect(ctx, SubmitInput{
		OrderID: "1001", OrderNumber: "1001", MerchantID: "m1",
		CustomerEmail: gateway.FixtureEmail, Reason: portal.ReasonLateDelivery,
	}, i18n.Default)
	if err != nil {
		t.Fatalf("SubmitDirect: %v", err)
	}

	tr, err := h.svc.Track(ctx, " "+res.RefundID+" ")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if tr.ID != res.RefundID || tr.Status != domain.StatusPending || tr.Order == nil || tr.Order.ID != "1001" {
		t.Fatalf("tracked: %+v", tr)
	}
	if len(tr.Timeline) != 1 || tr.Notes == nil || len(tr.Notes) != 0 {
		t.Fatalf("timeline=%d notes=%v", len(tr.Timeline), tr.Notes)
	}

	if _, err := h.svc.Track(ctx, " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	if _, err := h.svc.Track(ctx, "nope"); !errors.Is(err, ErrRefundNotFound) {
		t.Fatalf("want ErrRefundNotFound, got %v", err)
	}

	h.svc.Gateways = fakeResolver{gw: failingOrders{Gateway: h.fixture, fail: map[string]error{"1001": errors.New("timeout")}}}
	tr, err = h.svc.Track(ctx, res.RefundID)
	if err != nil || tr.Order != nil {
		t.Fatalf("order failure should degrade to null order: %+v, %v", tr, err)
	}

	h.svc.Gateways = fakeResolver{err: gateway.ErrNoCredentials}
	if _, err := h.svc.Track(ctx, res.RefundID); !errors.Is(err, ErrAuthContextMissing) {
		t.Fatalf("want ErrAuthContextMissing, got %v", err)
	}

	orphan := seedRefund(t, h.svc.DB, domain.RefundRequest{OrderID: "1002", MerchantID: "gone"})
	if _, err := h.svc.Track(ctx, orphan.ID); !errors.Is(err, ErrMerchantNotFound) {
		t.Fatalf("want ErrMerchantNotFound, got %v", err)
	}
}
