package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-refund-backend/internal/auth"
	"github.com/tbourn/go-refund-backend/internal/config"
	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/repo"
	"github.com/tbourn/go-refund-backend/internal/services"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	want := map[string]bool{"serve": false, "migrate": false, "seed": false, "purge": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("subcommand %q not registered", name)
		}
	}
	if f := root.PersistentFlags().Lookup("env-file"); f == nil {
		t.Fatalf("--env-file flag missing")
	}
}

func TestSeedMerchant(t *testing.T) {
	ctx := context.Background()
	db, closeDB, err := openDB(ctx, config.DBConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "seed.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	t.Cleanup(closeDB)

	opts := seedOptions{
		MerchantID:  "m1",
		AppID:       "app1",
		AccessToken: "tok-1",
		StoreName:   "Demo Store",
		TokenTTL:    time.Hour,
		IssueJWT:    time.Hour,
	}
	var out bytes.Buffer
	if err := seedMerchant(ctx, db, opts, "seed-secret", &out); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m, err := repo.GetMerchant(ctx, db, "m1")
	if err != nil {
		t.Fatalf("GetMerchant: %v", err)
	}
	if m.StoreName == nil || *m.StoreName != "Demo Store" || !m.PortalEnabled {
		t.Fatalf("merchant: %+v", m)
	}

	id, err := auth.NewJWTAuthenticator("seed-secret").Authenticate(ctx, "Bearer "+strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("printed jwt rejected: %v", err)
	}
	if id.MerchantID != "m1" || id.AuthorizedAppID != "app1" {
		t.Fatalf("identity: %+v", id)
	}

	// Re-seeding keeps the merchant and rotates the token.
	opts.AccessToken = "tok-2"
	opts.IssueJWT = 0
	out.Reset()
	if err := seedMerchant(ctx, db, opts, "", &out); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output: %q", out.String())
	}
	tok, err := repo.GetAuthTokenByApp(ctx, db, "app1")
	if err != nil {
		t.Fatalf("GetAuthTokenByApp: %v", err)
	}
	if tok.AccessToken != "tok-2" || tok.ExpiresAt == nil {
		t.Fatalf("token: %+v", tok)
	}
}

func TestSeedMerchant_Validation(t *testing.T) {
	ctx := context.Background()
	db, closeDB, err := openDB(ctx, config.DBConfig{
		Path:        filepath.Join(t.TempDir(), "seed.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	t.Cleanup(closeDB)

	if err := seedMerchant(ctx, db, seedOptions{MerchantID: "m1"}, "", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for missing app id and token")
	}
	err = seedMerchant(ctx, db, seedOptions{
		MerchantID: "m1", AppID: "app1", AccessToken: "t", IssueJWT: time.Minute,
	}, "", &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestPurgeLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	db, closeDB, err := openDB(ctx, config.DBConfig{
		Path:        filepath.Join(t.TempDir(), "purge.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	t.Cleanup(closeDB)

	if _, err := repo.CreateIdempotency(ctx, db, "m1", "refund:create", "k1", "r1", 201, -time.Minute); err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}

	done := make(chan struct{})
	go func() {
		purgeLoop(ctx, services.NewIdempotencyService(db, time.Hour), 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		var n int64
		if err := db.Model(&domain.Idempotency{}).Count(&n).Error; err != nil {
			t.Fatalf("count: %v", err)
		}
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expired record not purged")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("purgeLoop did not stop on cancel")
	}
}
