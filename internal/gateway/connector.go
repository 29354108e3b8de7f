package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-refund-backend/internal/config"
	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/repo"
)

// ErrNoCredentials means no usable stored token exists for the merchant.
var ErrNoCredentials = errors.New("no stored platform credentials")

// Mode values for Connector.
const (
	ModeGraphQL = "graphql"
	ModeFixture = "fixture"
)

// Connector resolves a merchant's Gateway from its stored AuthToken. In
// fixture mode the token is still required (it is the auth context) but every
// merchant shares the same Fixture.
type Connector struct {
	DB         *gorm.DB
	Mode       string
	Endpoint   string
	Timeout    time.Duration
	MaxRetries int

	// Redis enables the order cache when non-nil.
	Redis    RedisClient
	CacheTTL time.Duration

	Fixture *Fixture

	now func() time.Time
}

// NewConnector builds a Connector from configuration. rdb may be nil.
func NewConnector(db *gorm.DB, cfg config.GatewayConfig, rdb RedisClient) *Connector {
	c := &Connector{
		DB:         db,
		Mode:       cfg.Mode,
		Endpoint:   cfg.URL,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Redis:      rdb,
		CacheTTL:   cfg.CacheTTL,
	}
	if c.Mode == ModeFixture {
		c.Fixture = NewFixture(time.Now())
	}
	return c
}

// ForMerchant returns the Gateway acting on behalf of merchantID.
func (c *Connector) ForMerchant(ctx context.Context, merchantID string) (Gateway, error) {
	tok, err := repo.GetAuthTokenForMerchant(ctx, c.DB, merchantID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNoCredentials
		}
		return nil, err
	}
	return c.build(ctx, tok)
}

// ForApp returns the Gateway of one installation.
func (c *Connector) ForApp(ctx context.Context, authorizedAppID string) (Gateway, error) {
	tok, err := repo.GetAuthTokenByApp(ctx, c.DB, authorizedAppID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNoCredentials
		}
		return nil, err
	}
	return c.build(ctx, tok)
}

func (c *Connector) build(ctx context.Context, tok *domain.AuthToken) (Gateway, error) {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	if tok.Expired(now()) {
		return nil, fmt.Errorf("%w: token for app %s expired", ErrNoCredentials, tok.AuthorizedAppID)
	}

	if c.Mode == ModeFixture {
		if c.Fixture == nil {
			return nil, errors.New("gateway: fixture mode without fixture")
		}
		return NewInstrumented(c.Fixture), nil
	}

	var g Gateway = NewGraphQLClient(context.WithoutCancel(ctx), c.Endpoint, tok.AccessToken, c.Timeout)
	g = NewRetrying(g, c.MaxRetries)
	if c.Redis != nil && c.CacheTTL > 0 {
		g = NewCached(g, c.Redis, tok.MerchantID, c.CacheTTL)
	}
	return NewInstrumented(g), nil
}
