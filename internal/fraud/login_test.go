package fraud

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/atlas-pay/atlas_pay/internal/audit"
	"github.com/atlas-pay/atlas_pay/internal/identity"
	"github.com/atlas-pay/atlas_pay/internal/logging"
)

func newRedisFixture(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	users := identity.NewMemoryRepository()
	sink := audit.NewSink(audit.NewMemoryRepository(), logging.Discard())
	svc := NewService(fakeStats{}, users, sink, cache, Limits{
		MaxLoginAttempts: 3,
		APIRateLimit:     5,
		APIRateWindow:    time.Minute,
	})
	return svc, mr
}

func TestEmailLockoutAfterMaxFailures(t *testing.T) {
	svc, _ := newRedisFixture(t)
	ctx := context.Background()
	email, ip := "ada@example.com", "10.0.0.1"

	for i := 0; i < 3; i++ {
		d, err := svc.CheckLoginAttempt(ctx, email, ip)
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("locked out after %d failures: %s", i, d.Reason)
		}
		if err := svc.RecordLoginAttempt(ctx, email, ip, false, "bad password"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	d, err := svc.CheckLoginAttempt(ctx, email, ip)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected lockout after three failures")
	}

	// A different account from the same IP is still fine below the IP threshold.
	d, err = svc.CheckLoginAttempt(ctx, "other@example.com", ip)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("unrelated account locked: %s", d.Reason)
	}
}

func TestIPLockoutAfterTenFailures(t *testing.T) {
	svc, _ := newRedisFixture(t)
	ctx := context.Background()
	ip := "10.0.0.2"

	// Spread failures over many accounts so only the IP counter trips.
	emails := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	for _, e := range emails {
		if err := svc.RecordLoginAttempt(ctx, e+"@example.com", ip, false, "bad password"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	d, err := svc.CheckLoginAttempt(ctx, "k@example.com", ip)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected IP lockout after ten failures")
	}
}

func TestLockoutExpires(t *testing.T) {
	svc, mr := newRedisFixture(t)
	ctx := context.Background()
	email, ip := "ada@example.com", "10.0.0.3"

	for i := 0; i < 3; i++ {
		if err := svc.RecordLoginAttempt(ctx, email, ip, false, "bad password"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if d, _ := svc.CheckLoginAttempt(ctx, email, ip); d.Allowed {
		t.Fatal("expected lockout")
	}

	mr.FastForward(16 * time.Minute)

	d, err := svc.CheckLoginAttempt(ctx, email, ip)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("lockout did not expire: %s", d.Reason)
	}
}

func TestSuccessfulLoginDoesNotCount(t *testing.T) {
	svc, _ := newRedisFixture(t)
	ctx := context.Background()
	email, ip := "ada@example.com", "10.0.0.4"

	for i := 0; i < 5; i++ {
		if err := svc.RecordLoginAttempt(ctx, email, ip, true, ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	d, err := svc.CheckLoginAttempt(ctx, email, ip)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("successful logins caused lockout: %s", d.Reason)
	}
}

func TestAPIRateLimit(t *testing.T) {
	svc, mr := newRedisFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, remaining, err := svc.CheckAPIRateLimit(ctx, "merchant-1")
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("denied at request %d", i+1)
		}
		if want := 5 - (i + 1); remaining != want {
			t.Errorf("remaining = %d, want %d", remaining, want)
		}
	}

	d, remaining, err := svc.CheckAPIRateLimit(ctx, "merchant-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed || remaining != 0 {
		t.Fatalf("expected denial with zero remaining, got %+v remaining=%d", d, remaining)
	}

	// A different key has its own budget.
	if d, _, _ := svc.CheckAPIRateLimit(ctx, "merchant-2"); !d.Allowed {
		t.Fatal("unrelated key throttled")
	}

	mr.FastForward(2 * time.Minute)
	if d, _, _ := svc.CheckAPIRateLimit(ctx, "merchant-1"); !d.Allowed {
		t.Fatal("budget did not reset after window")
	}
}
