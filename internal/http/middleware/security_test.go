package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, pre gin.HandlerFunc, req *http.Request) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if req == nil {
		req = httptest.NewRequest(http.MethodGet, "/ok", nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline_And_ExposeHeaders(t *testing.T) {
	t.Run("baseline and default expose list", func(t *testing.T) {
		h := serveSecurity(t, SecurityOptions{}, func(c *gin.Context) {
			c.Header(requestIDHeader, "rid-123")
			c.Next()
		}, nil)

		if h.Get("X-Content-Type-Options") != "nosniff" ||
			h.Get("X-Frame-Options") != "DENY" ||
			h.Get("Referrer-Policy") != "no-referrer" {
			t.Fatalf("baseline headers missing: %#v", h)
		}
		if h.Get("Permissions-Policy") != "" || h.Get("Cache-Control") != "" || h.Get("Strict-Transport-Security") != "" {
			t.Fatalf("unexpected optional headers: %#v", h)
		}
		want := "X-Request-ID, Idempotency-Replayed, ETag, Retry-After"
		if got := h.Get("Access-Control-Expose-Headers"); got != want {
			t.Fatalf("expose = %q; want %q", got, want)
		}
	})

	t.Run("request id skipped when absent", func(t *testing.T) {
		h := serveSecurity(t, SecurityOptions{}, nil, nil)
		if got := h.Get("Access-Control-Expose-Headers"); got != "Idempotency-Replayed, ETag, Retry-After" {
			t.Fatalf("expose = %q", got)
		}
	})

	t.Run("append to existing without duplicates", func(t *testing.T) {
		h := serveSecurity(t, SecurityOptions{ExposeHeaders: []string{requestIDHeader, "ETag"}}, func(c *gin.Context) {
			c.Header(requestIDHeader, "rid-abc")
			c.Header("Access-Control-Expose-Headers", "Foo, etag")
			c.Next()
		}, nil)
		if got := h.Get("Access-Control-Expose-Headers"); got != "Foo, etag, X-Request-ID" {
			t.Fatalf("expose = %q", got)
		}
	})
}

func TestSecurityHeaders_WithPolicy_NoStore_HSTS_TLS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.TLS = &tls.ConnectionState{}
	h := serveSecurity(t, SecurityOptions{
		EnableHSTS:   true,
		HSTSMaxAge:   24 * time.Hour,
		NoStore:      true,
		EnablePolicy: true,
	}, nil, req)

	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("missing policy headers: %#v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("missing cache headers: %#v", h)
	}
	if got := h.Get("Strict-Transport-Security"); got != "max-age=86400; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	t.Run("forwarded https", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		h := serveSecurity(t, SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour}, nil, req)
		if got := h.Get("Strict-Transport-Security"); !strings.HasPrefix(got, "max-age=3600;") {
			t.Fatalf("HSTS = %q", got)
		}
	})
	t.Run("default max age", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.TLS = &tls.ConnectionState{}
		h := serveSecurity(t, SecurityOptions{EnableHSTS: true}, nil, req)
		if got := h.Get("Strict-Transport-Security"); !strings.HasPrefix(got, "max-age=15552000;") {
			t.Fatalf("HSTS = %q", got)
		}
	})
	t.Run("plain http never gets hsts", func(t *testing.T) {
		h := serveSecurity(t, SecurityOptions{EnableHSTS: true}, nil, nil)
		if got := h.Get("Strict-Transport-Security"); got != "" {
			t.Fatalf("HSTS on plain http: %q", got)
		}
	})
}

func Test_isHTTPS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(req) {
		t.Fatalf("plain HTTP should not be https")
	}
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.TLS = &tls.ConnectionState{}
	if !isHTTPS(req2) {
		t.Fatalf("TLS request should be https")
	}
	req3 := httptest.NewRequest(http.MethodGet, "/", nil)
	req3.Header.Set("X-Forwarded-Proto", "HTTPS")
	if !isHTTPS(req3) {
		t.Fatalf("X-Forwarded-Proto=https should be https")
	}
}
