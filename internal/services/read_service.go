// Package services – ReadService
//
// This file implements the dashboard read layer. Refund records are joined
// with live order data from the commerce platform; per-item lookups run
// concurrently with a bounded fan-out and degrade to a null order on
// failure, so one broken order never fails the whole list.
package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-refund-backend/internal/auth"
	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/gateway"
	"github.com/tbourn/go-refund-backend/internal/repo"
	"github.com/tbourn/go-refund-backend/internal/search"
)

// Refund candidate windows.
const (
	DashboardRefundWindow = 90 * 24 * time.Hour
	PortalRefundWindow    = 60 * 24 * time.Hour
	ShortRefundWindow     = 45 * 24 * time.Hour

	candidateLimit    = 100
	defaultOrderLimit = 10
	maxOrderLimit     = 100

	slaPendingAge = 3 * 24 * time.Hour
)

// ListFilter narrows ListWithOrders. Zero values mean "any".
type ListFilter struct {
	Status domain.RefundStatus
	Source domain.Source
	Query  string
}

// RefundWithOrder is a refund joined with its platform order. OrderData is
// null when the order could not be fetched.
type RefundWithOrder struct {
	domain.RefundRequest
	OrderData *gateway.Order `json:"orderData"`
}

// Stats are the dashboard KPIs.
type Stats struct {
	Total             int64   `json:"total"`
	Pending           int64   `json:"pending"`
	Processing        int64   `json:"processing"`
	Completed         int64   `json:"completed"`
	Rejected          int64   `json:"rejected"`
	CompletionRate    int     `json:"completionRate"`
	AvgCompletionDays float64 `json:"avgCompletionDays"`
	SLABreaches       int64   `json:"slaBreaches"`
}

// ReadService serves the dashboard's list, detail, order and KPI views.
type ReadService struct {
	DB       *gorm.DB
	Gateways GatewayResolver

	// Concurrency bounds per-request order lookups.
	Concurrency int

	now func() time.Time
}

// NewReadService constructs a ReadService.
func NewReadService(db *gorm.DB, gw GatewayResolver, concurrency int) *ReadService {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &ReadService{DB: db, Gateways: gw, Concurrency: concurrency, now: time.Now}
}

func (s *ReadService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (f ListFilter) validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
	}
	if f.Source != "" && !f.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrValidation, f.Source)
	}
	return nil
}

// ListWithOrders returns the merchant's refunds newest first, each joined
// with its order. Without stored credentials every order is null.
func (s *ReadService) ListWithOrders(ctx context.Context, id auth.Identity, f ListFilter) ([]RefundWithOrder, error) {
	ctx, span := otel.Tracer("services/ReadService").Start(ctx, "ListWithOrders",
		trace.WithAttributes(
			attribute.String("merchant.id", id.MerchantID),
			attribute.String("filter.status", string(f.Status)),
			attribute.String("filter.source", string(f.Source)),
			attribute.Bool("filter.query", f.Query != ""),
		),
	)
	defer span.End()

	if err := f.validate(); err != nil {
		return nil, err
	}
	refunds, err := repo.ListRefunds(ctx, s.DB, id.MerchantID, repo.RefundFilter{Status: f.Status, Source: f.Source})
	if err != nil {
		return nil, err
	}

	out := make([]RefundWithOrder, len(refunds))
	for i := range refunds {
		out[i].RefundRequest = refunds[i]
	}
	if len(out) == 0 {
		return out, nil
	}

	gw, err := forApp(ctx, s.Gateways, id.AuthorizedAppID)
	switch {
	case errors.Is(err, ErrAuthContextMissing):
		log.Ctx(ctx).Warn().Str("merchant_id", id.MerchantID).Msg("no platform credentials; listing refunds without orders")
	case err != nil:
		return nil, err
	default:
		s.attachOrders(ctx, gw, out)
	}

	if q := strings.TrimSpace(f.Query); q != "" {
		out = filterByQuery(out, q)
	}
	span.SetAttributes(attribute.Int("result.count", len(out)))
	return out, nil
}

// attachOrders fills OrderData concurrently. Each goroutine writes only its
// own slot; failures are logged and counted, never returned.
func (s *ReadService) attachOrders(ctx context.Context, gw gateway.Gateway, items []RefundWithOrder) {
	var g errgroup.Group
	g.SetLimit(s.Concurrency)
	for i := range items {
		g.Go(func() error {
			it := &items[i]
			o, err := gw.GetOrder(ctx, it.OrderID)
			if err != nil {
				orderLookupFailures.Inc()
				log.Ctx(ctx).Warn().Err(err).
					Str("refund_id", it.ID).
					Str("order_id", it.OrderID).
					Msg("order lookup failed")
				return nil
			}
			it.OrderData = o
			return nil
		})
	}
	_ = g.Wait()
}

func filterByQuery(items []RefundWithOrder, q string) []RefundWithOrder {
	docs := make([]search.Document, 0, len(items))
	for _, it := range items {
		fields := []string{it.OrderNumber, deref(it.TrackingNumber), deref(it.Reason)}
		if it.OrderData != nil {
			fields = append(fields, it.OrderData.Customer.FullName(), it.OrderData.Customer.EmailValue())
		}
		docs = append(docs, search.Document{ID: it.ID, Fields: fields})
	}
	hits := search.IDs(search.NewIndex(docs).Match(q))
	out := make([]RefundWithOrder, 0, len(hits))
	for _, it := range items {
		if _, ok := hits[it.ID]; ok {
			out = append(out, it)
		}
	}
	return out
}

// GetWithOrder returns one refund with notes newest first and its order.
func (s *ReadService) GetWithOrder(ctx context.Context, id auth.Identity, refundID string) (*RefundWithOrder, error) {
	ctx, span := otel.Tracer("services/ReadService").Start(ctx, "GetWithOrder",
		trace.WithAttributes(attribute.String("refund.id", refundID)),
	)
	defer span.End()

	r, err := repo.GetRefundWithNotes(ctx, s.DB, refundID, id.MerchantID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, err
	}
	out := &RefundWithOrder{RefundRequest: *r}

	gw, err := forApp(ctx, s.Gateways, id.AuthorizedAppID)
	if err != nil {
		if !errors.Is(err, ErrAuthContextMissing) {
			return nil, err
		}
		log.Ctx(ctx).Warn().Str("merchant_id", id.MerchantID).Msg("no platform credentials; refund without order")
		return out, nil
	}
	items := []RefundWithOrder{*out}
	s.attachOrders(ctx, gw, items)
	return &items[0], nil
}

// ListExternalRefundCandidates lists platform orders in a refund package
// status ordered within window, newest first.
func (s *ReadService) ListExternalRefundCandidates(ctx context.Context, id auth.Identity, window time.Duration) ([]gateway.Order, error) {
	ctx, span := otel.Tracer("services/ReadService").Start(ctx, "ListExternalRefundCandidates",
		trace.WithAttributes(attribute.String("window", window.String())),
	)
	defer span.End()

	if window <= 0 {
		window = DashboardRefundWindow
	}
	gw, err := forApp(ctx, s.Gateways, id.AuthorizedAppID)
	if err != nil {
		return nil, err
	}
	orders, err := gw.ListOrders(ctx, gateway.OrderQuery{
		Limit:           candidateLimit,
		Sort:            "-orderedAt",
		OrderedAfter:    s.clock().Add(-window),
		PackageStatuses: gateway.RefundPackageStatuses,
	})
	if err != nil {
		return nil, external("listOrders", err)
	}
	return orders, nil
}

// ListOrders is the dashboard's order browser, newest first.
func (s *ReadService) ListOrders(ctx context.Context, id auth.Identity, searchText string, limit int) ([]gateway.Order, error) {
	ctx, span := otel.Tracer("services/ReadService").Start(ctx, "ListOrders",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	if limit <= 0 {
		limit = defaultOrderLimit
	}
	if limit > maxOrderLimit {
		limit = maxOrderLimit
	}
	gw, err := forApp(ctx, s.Gateways, id.AuthorizedAppID)
	if err != nil {
		return nil, err
	}
	orders, err := gw.ListOrders(ctx, gateway.OrderQuery{
		Limit:  limit,
		Sort:   "-orderedAt",
		Search: strings.TrimSpace(searchText),
	})
	if err != nil {
		return nil, external("listOrders", err)
	}
	return orders, nil
}

// Stats computes the KPIs of the merchant's refunds, optionally for one
// source.
func (s *ReadService) Stats(ctx context.Context, merchantID string, source domain.Source) (*Stats, error) {
	ctx, span := otel.Tracer("services/ReadService").Start(ctx, "Stats",
		trace.WithAttributes(attribute.String("merchant.id", merchantID)),
	)
	defer span.End()

	if source != "" && !source.Valid() {
		return nil, fmt.Errorf("%w: unknown source %q", ErrValidation, source)
	}
	counts, err := repo.CountByStatus(ctx, s.DB, merchantID, source)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		Pending:    counts[domain.StatusPending],
		Processing: counts[domain.StatusProcessing],
		Completed:  counts[domain.StatusCompleted],
		Rejected:   counts[domain.StatusRejected],
	}
	for _, n := range counts {
		st.Total += n
	}
	if st.Total > 0 {
		st.CompletionRate = int(math.Round(float64(st.Completed) / float64(st.Total) * 100))
	}

	spans, err := repo.CompletedSpans(ctx, s.DB, merchantID, source)
	if err != nil {
		return nil, err
	}
	if len(spans) > 0 {
		var days float64
		for _, sp := range spans {
			days += math.Floor(sp.UpdatedAt.Sub(sp.CreatedAt).Hours() / 24)
		}
		st.AvgCompletionDays = math.Round(days/float64(len(spans))*10) / 10
	}

	st.SLABreaches, err = repo.CountPendingBefore(ctx, s.DB, merchantID, source, s.clock().Add(-slaPendingAge))
	if err != nil {
		return nil, err
	}
	return st, nil
}

var exportHeader = []string{"Sipariş No", "Müşteri", "E-posta", "Tutar", "Durum", "Takip No", "Oluşturulma Tarihi"}

// Export writes the filtered refund list as CSV to w.
func (s *ReadService) Export(ctx context.Context, id auth.Identity, f ListFilter, w io.Writer) error {
	items, err := s.ListWithOrders(ctx, id, f)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, it := range items {
		var name, email, amount string
		if o := it.OrderData; o != nil {
			name, email = o.Customer.FullName(), o.Customer.EmailValue()
			amount = strconv.FormatFloat(o.TotalFinalPrice, 'f', 2, 64)
			if o.CurrencySymbol != "" {
				amount += " " + o.CurrencySymbol
			}
		}
		row := []string{
			it.OrderNumber,
			name,
			email,
			amount,
			string(it.Status),
			deref(it.TrackingNumber),
			it.CreatedAt.UTC().Format("2006-01-02 15:04"),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
