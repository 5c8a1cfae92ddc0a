package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-pay/atlas_pay/internal/audit"
	"github.com/atlas-pay/atlas_pay/internal/identity"
)

func ipFailureKey(ip string) string       { return "fraud:login:ip:" + ip }
func ipLockoutKey(ip string) string       { return "fraud:lockout:ip:" + ip }
func emailFailureKey(email string) string { return "fraud:login:email:" + email }
func emailLockoutKey(email string) string { return "fraud:lockout:email:" + email }

// CheckLoginAttempt reports whether a login from this email and IP may
// proceed. Lockouts fail closed; cache errors fail open so Redis downtime
// does not lock everyone out.
func (s *Service) CheckLoginAttempt(ctx context.Context, email, ip string) (Decision, error) {
	if s.cache == nil {
		return allow(), nil
	}

	if locked, err := s.cache.Exists(ctx, ipLockoutKey(ip)).Result(); err == nil && locked > 0 {
		return deny("too many failed attempts from this address", audit.RiskHigh), nil
	}
	if locked, err := s.cache.Exists(ctx, emailLockoutKey(email)).Result(); err == nil && locked > 0 {
		return deny("account temporarily locked", audit.RiskMedium), nil
	}
	return allow(), nil
}

// RecordLoginAttempt persists the attempt and, on failure, advances the
// Redis failure counters, arming a lockout once a threshold is crossed.
func (s *Service) RecordLoginAttempt(ctx context.Context, email, ip string, success bool, reason string) error {
	attempt := identity.LoginAttempt{
		ID:        uuid.NewString(),
		Email:     email,
		IP:        ip,
		Success:   success,
		Reason:    reason,
		CreatedAt: s.nowFn(),
	}
	if err := s.users.RecordLoginAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	if success || s.cache == nil {
		return nil
	}

	if n, err := s.bump(ctx, ipFailureKey(ip)); err == nil && n >= ipFailureThreshold {
		s.cache.Set(ctx, ipLockoutKey(ip), 1, ipLockoutDuration)
		s.audit.Log(ctx, "ip_lockout", "", audit.RiskHigh, map[string]any{"ip": ip, "failures": n})
	}
	if n, err := s.bump(ctx, emailFailureKey(email)); err == nil && int(n) >= s.limits.MaxLoginAttempts {
		s.cache.Set(ctx, emailLockoutKey(email), 1, emailLockoutDuration)
		s.audit.Log(ctx, "account_lockout", "", audit.RiskMedium, map[string]any{"email": email, "failures": n})
	}
	return nil
}

// bump increments a failure counter, starting its counting window on first use.
func (s *Service) bump(ctx context.Context, key string) (int64, error) {
	n, err := s.cache.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		s.cache.Expire(ctx, key, failureCountingWindow)
	}
	return n, nil
}

// CheckAPIRateLimit enforces the per-key request budget over a sliding
// window. It returns the remaining budget; cache errors fail open.
func (s *Service) CheckAPIRateLimit(ctx context.Context, key string) (Decision, int, error) {
	if s.cache == nil || s.limits.APIRateLimit <= 0 {
		return allow(), s.limits.APIRateLimit, nil
	}

	window := s.limits.APIRateWindow
	if window <= 0 {
		window = time.Minute
	}
	counter := "fraud:rate:" + key
	n, err := s.cache.Incr(ctx, counter).Result()
	if err != nil {
		return allow(), s.limits.APIRateLimit, nil
	}
	if n == 1 {
		s.cache.Expire(ctx, counter, window)
	}
	remaining := s.limits.APIRateLimit - int(n)
	if remaining < 0 {
		return deny("rate limit exceeded", audit.RiskLow), 0, nil
	}
	return allow(), remaining, nil
}
