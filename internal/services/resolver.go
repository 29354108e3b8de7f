package services

import (
	"context"
	"errors"

	"github.com/tbourn/go-refund-backend/internal/gateway"
)

// GatewayResolver returns the platform gateway acting for a merchant.
// *gateway.Connector implements it.
type GatewayResolver interface {
	ForMerchant(ctx context.Context, merchantID string) (gateway.Gateway, error)
	ForApp(ctx context.Context, authorizedAppID string) (gateway.Gateway, error)
}

// mapAuthContext turns the resolver's missing-credential error into
// ErrAuthContextMissing.
func mapAuthContext(g gateway.Gateway, err error) (gateway.Gateway, error) {
	if errors.Is(err, gateway.ErrNoCredentials) {
		return nil, ErrAuthContextMissing
	}
	return g, err
}

func forApp(ctx context.Context, r GatewayResolver, appID string) (gateway.Gateway, error) {
	return mapAuthContext(r.ForApp(ctx, appID))
}

func forMerchant(ctx context.Context, r GatewayResolver, merchantID string) (gateway.Gateway, error) {
	return mapAuthContext(r.ForMerchant(ctx, merchantID))
}
