package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-refund-backend/internal/config"
	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/repo"
)

func newConnectorDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.AuthToken{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestConnector_NoCredentials(t *testing.T) {
	db := newConnectorDB(t)
	c := NewConnector(db, config.GatewayConfig{Mode: ModeFixture}, nil)

	if _, err := c.ForMerchant(context.Background(), "m1"); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
	if _, err := c.ForApp(context.Background(), "app1"); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestConnector_ExpiredToken(t *testing.T) {
	db := newConnectorDB(t)
	past := time.Now().Add(-time.Hour)
	_ = repo.SaveAuthToken(context.Background(), db, &domain.AuthToken{
		AuthorizedAppID: "app1", MerchantID: "m1", AccessToken: "x", TokenType: "Bearer", ExpiresAt: &past,
	})
	c := NewConnector(db, config.GatewayConfig{Mode: ModeFixture}, nil)

	if _, err := c.ForMerchant(context.Background(), "m1"); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials for expired token, got %v", err)
	}
}

func TestConnector_FixtureMode(t *testing.T) {
	db := newConnectorDB(t)
	_ = repo.SaveAuthToken(context.Background(), db, &domain.AuthToken{
		AuthorizedAppID: "app1", MerchantID: "m1", AccessToken: "x", TokenType: "Bearer",
	})
	c := NewConnector(db, config.GatewayConfig{Mode: ModeFixture}, nil)

	g, err := c.ForMerchant(context.Background(), "m1")
	if err != nil {
		t.Fatalf("ForMerchant: %v", err)
	}
	inst, ok := g.(*Instrumented)
	if !ok || inst.Next != c.Fixture {
		t.Fatalf("expected instrumented fixture, got %T", g)
	}
	o, err := g.GetOrder(context.Background(), "1001")
	if err != nil || o.OrderNumber != "1001" {
		t.Fatalf("GetOrder via fixture: %+v err=%v", o, err)
	}
}

func TestConnector_GraphQLChain(t *testing.T) {
	db := newConnectorDB(t)
	_ = repo.SaveAuthToken(context.Background(), db, &domain.AuthToken{
		AuthorizedAppID: "app1", MerchantID: "m1", AccessToken: "x", TokenType: "Bearer",
	})

	plain := NewConnector(db, config.GatewayConfig{Mode: ModeGraphQL, URL: "http://127.0.0.1:1", Timeout: time.Second, MaxRetries: 2}, nil)
	g, err := plain.ForApp(context.Background(), "app1")
	if err != nil {
		t.Fatalf("ForApp: %v", err)
	}
	retrying, ok := g.(*Instrumented).Next.(*Retrying)
	if !ok || retrying.MaxRetries != 2 {
		t.Fatalf("expected Instrumented(Retrying(...)), got %T", g.(*Instrumented).Next)
	}
	if _, ok := retrying.Next.(*GraphQLClient); !ok {
		t.Fatalf("expected GraphQLClient at the core, got %T", retrying.Next)
	}

	cached := NewConnector(db, config.GatewayConfig{Mode: ModeGraphQL, CacheTTL: time.Minute}, newMemRedis())
	g, err = cached.ForMerchant(context.Background(), "m1")
	if err != nil {
		t.Fatalf("ForMerchant: %v", err)
	}
	cache, ok := g.(*Instrumented).Next.(*Cached)
	if !ok || cache.Namespace != "m1" {
		t.Fatalf("expected Cached layer namespaced by merchant, got %T", g.(*Instrumented).Next)
	}
}
