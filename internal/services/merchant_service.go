// Package services – MerchantService
//
// This file implements merchant settings. The merchant row is created on
// first access from the authenticated identity and, when credentials exist,
// enriched with the store profile from the commerce platform.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-refund-backend/internal/auth"
	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/gateway"
	"github.com/tbourn/go-refund-backend/internal/repo"
)

// MerchantRepo defines the repository contract required by MerchantService.
type MerchantRepo interface {
	// GetMerchantByApp fetches the merchant of an installation.
	GetMerchantByApp(ctx context.Context, db *gorm.DB, authorizedAppID string) (*domain.Merchant, error)

	// CreateMerchant inserts a merchant row.
	CreateMerchant(ctx context.Context, db *gorm.DB, m *domain.Merchant) error

	// UpdateMerchantSettings writes the portal settings.
	UpdateMerchantSettings(ctx context.Context, db *gorm.DB, id string, portalURL *string, portalEnabled bool) error
}

// SettingsPatch is the body of a settings update. PortalEnabled defaults to
// true when absent; an absent or blank PortalURL clears it.
type SettingsPatch struct {
	PortalURL     *string
	PortalEnabled *bool
}

// MerchantService manages the merchant row and its portal settings.
type MerchantService struct {
	DB       *gorm.DB
	Repo     MerchantRepo
	Gateways GatewayResolver
}

// NewMerchantService constructs a MerchantService.
func NewMerchantService(db *gorm.DB, r MerchantRepo, gw GatewayResolver) *MerchantService {
	return &MerchantService{DB: db, Repo: r, Gateways: gw}
}

// Settings returns the merchant row of the identity, creating it on first
// access.
func (s *MerchantService) Settings(ctx context.Context, id auth.Identity) (*domain.Merchant, error) {
	ctx, span := otel.Tracer("services/MerchantService").Start(ctx, "Settings",
		trace.WithAttributes(attribute.String("merchant.id", id.MerchantID)),
	)
	defer span.End()

	m, err := s.Repo.GetMerchantByApp(ctx, s.DB, id.AuthorizedAppID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	m = &domain.Merchant{ID: id.MerchantID, AuthorizedAppID: id.AuthorizedAppID, PortalEnabled: true}
	if p := s.profile(ctx, id); p != nil {
		m.StoreName, m.Email = p.StoreName, p.Email
	}
	if err := s.Repo.CreateMerchant(ctx, s.DB, m); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return s.Repo.GetMerchantByApp(ctx, s.DB, id.AuthorizedAppID)
		}
		return nil, err
	}
	return m, nil
}

// profile fetches the store profile for enrichment. Any failure yields nil.
func (s *MerchantService) profile(ctx context.Context, id auth.Identity) *gateway.MerchantProfile {
	gw, err := forApp(ctx, s.Gateways, id.AuthorizedAppID)
	if err != nil {
		return nil
	}
	p, err := gw.GetMerchant(ctx)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("merchant_id", id.MerchantID).Msg("merchant profile lookup failed")
		return nil
	}
	return p
}

// UpdateSettings upserts the portal settings.
func (s *MerchantService) UpdateSettings(ctx context.Context, id auth.Identity, p SettingsPatch) (*domain.Merchant, error) {
	ctx, span := otel.Tracer("services/MerchantService").Start(ctx, "UpdateSettings",
		trace.WithAttributes(attribute.String("merchant.id", id.MerchantID)),
	)
	defer span.End()

	m, err := s.Settings(ctx, id)
	if err != nil {
		return nil, err
	}
	url := blankToNil(p.PortalURL)
	enabled := true
	if p.PortalEnabled != nil {
		enabled = *p.PortalEnabled
	}
	if url != nil && !strings.HasPrefix(*url, "http://") && !strings.HasPrefix(*url, "https://") {
		return nil, errors.Join(ErrValidation, errors.New("portalUrl must be an http(s) URL"))
	}
	if err := s.Repo.UpdateMerchantSettings(ctx, s.DB, m.ID, url, enabled); err != nil {
		return nil, err
	}
	m.PortalURL, m.PortalEnabled = url, enabled
	return m, nil
}

// Profile returns the platform's store profile.
func (s *MerchantService) Profile(ctx context.Context, id auth.Identity) (*gateway.MerchantProfile, error) {
	gw, err := forApp(ctx, s.Gateways, id.AuthorizedAppID)
	if err != nil {
		return nil, err
	}
	p, err := gw.GetMerchant(ctx)
	if err != nil {
		return nil, external("getMerchant", err)
	}
	return p, nil
}
