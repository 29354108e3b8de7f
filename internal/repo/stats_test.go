package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-refund-backend/internal/domain"
)

func TestRefundsStats_EmptyAndPopulated(t *testing.T) {
	db := newRefundDB(t)
	ctx := context.Background()

	n, max, err := RefundsStats(ctx, db, "m1")
	if err != nil || n != 0 || max != nil {
		t.Fatalf("empty stats: n=%d max=%v err=%v", n, max, err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	seedRefund(t, db, "r1", "o1", "m1", domain.StatusPending, domain.SourcePortal, now.Add(-time.Hour))
	seedRefund(t, db, "r2", "o2", "m1", domain.StatusPending, domain.SourcePortal, now)
	seedRefund(t, db, "r3", "o3", "m2", domain.StatusPending, domain.SourcePortal, now.Add(time.Hour))

	n, max, err = RefundsStats(ctx, db, "m1")
	if err != nil || n != 2 || max == nil {
		t.Fatalf("stats: n=%d max=%v err=%v", n, max, err)
	}
	if !max.Equal(now) {
		t.Fatalf("max updated_at = %v, want %v", max, now)
	}
}

func TestNotesStats_ScopedToMerchant(t *testing.T) {
	db := newRefundDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedRefund(t, db, "r1", "o1", "m1", domain.StatusPending, domain.SourcePortal, now)
	seedRefund(t, db, "r2", "o2", "m2", domain.StatusPending, domain.SourcePortal, now)

	n, max, err := NotesStats(ctx, db, "m1")
	if err != nil || n != 0 || max != nil {
		t.Fatalf("empty notes: n=%d max=%v err=%v", n, max, err)
	}

	first, err := CreateNote(ctx, db, "r1", "first", "ops")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if _, err := CreateNote(ctx, db, "r2", "other tenant", "ops"); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	n, max, err = NotesStats(ctx, db, "m1")
	if err != nil || n != 1 || max == nil {
		t.Fatalf("notes: n=%d max=%v err=%v", n, max, err)
	}
	if d := max.Sub(first.CreatedAt); d < -time.Millisecond || d > time.Millisecond {
		t.Fatalf("max created_at = %v, want %v", max, first.CreatedAt)
	}
}

func TestCountByStatus(t *testing.T) {
	db := newRefundDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedRefund(t, db, "r1", "o1", "m1", domain.StatusPending, domain.SourcePortal, now)
	seedRefund(t, db, "r2", "o2", "m1", domain.StatusPending, domain.SourceDashboard, now)
	seedRefund(t, db, "r3", "o3", "m1", domain.StatusCompleted, domain.SourcePortal, now)
	seedRefund(t, db, "r4", "o4", "m2", domain.StatusRejected, domain.SourcePortal, now)

	all, err := CountByStatus(ctx, db, "m1", "")
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if all[domain.StatusPending] != 2 || all[domain.StatusCompleted] != 1 || all[domain.StatusRejected] != 0 {
		t.Fatalf("unexpected counts: %v", all)
	}
	if _, ok := all[domain.StatusProcessing]; !ok {
		t.Fatalf("expected every status key present: %v", all)
	}

	portal, _ := CountByStatus(ctx, db, "m1", domain.SourcePortal)
	if portal[domain.StatusPending] != 1 || portal[domain.StatusCompleted] != 1 {
		t.Fatalf("unexpected portal counts: %v", portal)
	}
}

func TestCountPendingBefore(t *testing.T) {
	db := newRefundDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedRefund(t, db, "r1", "o1", "m1", domain.StatusPending, domain.SourcePortal, now.Add(-5*24*time.Hour))
	seedRefund(t, db, "r2", "o2", "m1", domain.StatusPending, domain.SourceDashboard, now.Add(-4*24*time.Hour))
	seedRefund(t, db, "r3", "o3", "m1", domain.StatusPending, domain.SourcePortal, now)
	seedRefund(t, db, "r4", "o4", "m1", domain.StatusCompleted, domain.SourcePortal, now.Add(-10*24*time.Hour))

	cutoff := now.Add(-3 * 24 * time.Hour)
	n, err := CountPendingBefore(ctx, db, "m1", "", cutoff)
	if err != nil || n != 2 {
		t.Fatalf("CountPendingBefore: n=%d err=%v", n, err)
	}
	n, _ = CountPendingBefore(ctx, db, "m1", domain.SourcePortal, cutoff)
	if n != 1 {
		t.Fatalf("portal-only pending: %d", n)
	}
}

func TestCompletedSpans(t *testing.T) {
	db := newRefundDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedRefund(t, db, "r1", "o1", "m1", domain.StatusCompleted, domain.SourcePortal, now.Add(-48*time.Hour))
	seedRefund(t, db, "r2", "o2", "m1", domain.StatusPending, domain.SourcePortal, now)
	db.Model(&domain.RefundRequest{}).Where("id = ?", "r1").UpdateColumn("updated_at", now)

	spans, err := CompletedSpans(ctx, db, "m1", "")
	if err != nil || len(spans) != 1 {
		t.Fatalf("CompletedSpans: %+v err=%v", spans, err)
	}
	if d := spans[0].UpdatedAt.Sub(spans[0].CreatedAt); d < 47*time.Hour || d > 49*time.Hour {
		t.Fatalf("unexpected span: %v", d)
	}
	none, _ := CompletedSpans(ctx, db, "m1", domain.SourceDashboard)
	if len(none) != 0 {
		t.Fatalf("expected no dashboard spans, got %d", len(none))
	}
}
