package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/audit"
	"github.com/atlas-pay/atlas_pay/internal/fraud"
	"github.com/atlas-pay/atlas_pay/internal/gateway"
	"github.com/atlas-pay/atlas_pay/internal/identity"
	"github.com/atlas-pay/atlas_pay/internal/logging"
	"github.com/atlas-pay/atlas_pay/internal/merchant"
)

func setupAPIKeyApp(t *testing.T, rateLimit int) (*fiber.App, merchant.Merchant) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	logger := logging.Discard()
	merchants := merchant.NewService(merchant.NewMemoryRepository(), nil)
	m, err := merchants.Register(context.Background(), merchant.RegisterInput{
		UserID:         "owner",
		BusinessName:   "Acme Store",
		CommissionRate: decimal.RequireFromString("0.02"),
	})
	if err != nil {
		t.Fatalf("register merchant: %v", err)
	}

	guard := fraud.NewService(nil, identity.NewMemoryRepository(),
		audit.NewSink(audit.NewMemoryRepository(), logger), cache, fraud.Limits{
			APIRateLimit:  rateLimit,
			APIRateWindow: time.Minute,
		})

	app := fiber.New()
	app.Use(APIKeyAuth(merchants, guard))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		got, ok := c.Locals(gateway.MerchantLocal).(merchant.Merchant)
		if !ok {
			return fiber.NewError(fiber.StatusInternalServerError, "merchant missing from context")
		}
		return c.JSON(fiber.Map{"merchant_id": got.ID})
	})
	return app, m
}

func TestAPIKeyAuthRejectsMissingAndUnknownKeys(t *testing.T) {
	app, _ := setupAPIKeyApp(t, 100)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/whoami", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("missing key status = %d, want 401", resp.StatusCode)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set(apiKeyHeader, "pk_test_unknown")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("unknown key status = %d, want 401", resp.StatusCode)
	}
}

func TestAPIKeyAuthPassesMerchantThrough(t *testing.T) {
	app, m := setupAPIKeyApp(t, 100)

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set(apiKeyHeader, m.APIKey)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got == "" {
		t.Error("missing X-RateLimit-Remaining header")
	}
}

func TestAPIKeyAuthEnforcesQuota(t *testing.T) {
	app, m := setupAPIKeyApp(t, 2)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
		req.Header.Set(apiKeyHeader, m.APIKey)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, resp.StatusCode)
		}
	}

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set(apiKeyHeader, m.APIKey)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
}
