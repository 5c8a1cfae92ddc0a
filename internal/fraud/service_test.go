package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/audit"
	"github.com/atlas-pay/atlas_pay/internal/identity"
	"github.com/atlas-pay/atlas_pay/internal/logging"
)

type fakeStats struct {
	recentCount    int
	dailySum       decimal.Decimal
	recipientCount int
	highValueCount int
}

func (f fakeStats) DailyOutgoingSum(context.Context, string, time.Time) (decimal.Decimal, error) {
	return f.dailySum, nil
}

func (f fakeStats) CountSince(context.Context, string, time.Time) (int, error) {
	return f.recentCount, nil
}

func (f fakeStats) CountToRecipientSince(context.Context, string, string, time.Time) (int, error) {
	return f.recipientCount, nil
}

func (f fakeStats) HighValueCountSince(context.Context, string, decimal.Decimal, time.Time) (int, error) {
	return f.highValueCount, nil
}

type fixture struct {
	svc     *Service
	users   identity.Repository
	entries func() []audit.Entry
}

func newFixture(t *testing.T, stats fakeStats, now time.Time) fixture {
	t.Helper()
	users := identity.NewMemoryRepository()
	auditRepo := audit.NewMemoryRepository()
	sink := audit.NewSink(auditRepo, logging.Discard())
	svc := NewService(stats, users, sink, nil, Limits{
		MaxSingleTransfer:  decimal.NewFromInt(50000),
		DailyTransferLimit: decimal.NewFromInt(200000),
		MaxLoginAttempts:   3,
	})
	svc.nowFn = func() time.Time { return now }
	return fixture{svc: svc, users: users, entries: auditRepo.Entries}
}

func seedUser(t *testing.T, users identity.Repository, id string, createdAt time.Time) {
	t.Helper()
	err := users.Create(context.Background(), identity.User{
		ID:        id,
		Email:     id + "@example.com",
		Status:    identity.StatusActive,
		Role:      identity.RoleUser,
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

// Noon keeps checks clear of the off-hours window.
var noon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestCheckTransferAllows(t *testing.T) {
	f := newFixture(t, fakeStats{}, noon)
	seedUser(t, f.users, "user-1", noon.AddDate(-1, 0, 0))

	d, err := f.svc.CheckTransfer(context.Background(), TransferInput{
		UserID: "user-1", RecipientID: "user-2", Amount: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("denied: %s", d.Reason)
	}
}

func TestCheckTransferVelocity(t *testing.T) {
	f := newFixture(t, fakeStats{recentCount: 5}, noon)
	seedUser(t, f.users, "user-1", noon.AddDate(-1, 0, 0))

	d, err := f.svc.CheckTransfer(context.Background(), TransferInput{
		UserID: "user-1", Amount: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed || d.RiskLevel != audit.RiskCritical {
		t.Fatalf("decision = %+v, want critical denial", d)
	}
	entries := f.entries()
	if len(entries) != 1 || entries[0].Action != "suspicious_activity" {
		t.Fatalf("audit entries = %+v, want one suspicious_activity", entries)
	}
}

func TestCheckTransferSingleCap(t *testing.T) {
	f := newFixture(t, fakeStats{}, noon)
	seedUser(t, f.users, "user-1", noon.AddDate(-1, 0, 0))

	d, err := f.svc.CheckTransfer(context.Background(), TransferInput{
		UserID: "user-1", Amount: decimal.RequireFromString("50000.01"),
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed || d.RiskLevel != audit.RiskHigh {
		t.Fatalf("decision = %+v, want high-risk denial", d)
	}

	// Exactly the cap passes; the approval queue, not the fraud gate, owns it.
	d, err = f.svc.CheckTransfer(context.Background(), TransferInput{
		UserID: "user-1", Amount: decimal.NewFromInt(50000),
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("exact cap denied: %s", d.Reason)
	}
}

func TestCheckTransferDailyLimit(t *testing.T) {
	f := newFixture(t, fakeStats{dailySum: decimal.NewFromInt(195000)}, noon)
	seedUser(t, f.users, "user-1", noon.AddDate(-1, 0, 0))

	d, err := f.svc.CheckTransfer(context.Background(), TransferInput{
		UserID: "user-1", Amount: decimal.NewFromInt(6000),
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed || d.RiskLevel != audit.RiskHigh {
		t.Fatalf("decision = %+v, want high-risk denial", d)
	}

	// Exactly at the limit is fine.
	d, err = f.svc.CheckTransfer(context.Background(), TransferInput{
		UserID: "user-1", Amount: decimal.NewFromInt(5000),
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("exact limit denied: %s", d.Reason)
	}
}

func TestCheckTransferRecipientPattern(t *testing.T) {
	f := newFixture(t, fakeStats{recipientCount: 6}, noon)
	seedUser(t, f.users, "user-1", noon.AddDate(-1, 0, 0))

	d, err := f.svc.CheckTransfer(context.Background(), TransferInput{
		UserID: "user-1", RecipientID: "user-2", Amount: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed {
		t.Fatalf("allowed despite recipient pattern: %+v", d)
	}
}

func TestCheckTransferNewAccountCap(t *testing.T) {
	f := newFixture(t, fakeStats{}, noon)
	seedUser(t, f.users, "user-1", noon.Add(-48*time.Hour))

	d, err := f.svc.CheckTransfer(context.Background(), TransferInput{
		UserID: "user-1", Amount: decimal.NewFromInt(15000),
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed || d.RiskLevel != audit.RiskMedium {
		t.Fatalf("decision = %+v, want medium denial", d)
	}

	d, err = f.svc.CheckTransfer(context.Background(), TransferInput{
		UserID: "user-1", Amount: decimal.NewFromInt(5000),
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("small transfer from new account denied: %s", d.Reason)
	}
}

func TestCheckTransferOffHoursFlagged(t *testing.T) {
	threeAM := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	f := newFixture(t, fakeStats{}, threeAM)
	seedUser(t, f.users, "user-1", threeAM.AddDate(-1, 0, 0))

	d, err := f.svc.CheckTransfer(context.Background(), TransferInput{
		UserID: "user-1", Amount: decimal.NewFromInt(30000),
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("off-hours transfer denied: %s", d.Reason)
	}
	if d.RiskLevel != audit.RiskMedium {
		t.Errorf("risk = %s, want medium", d.RiskLevel)
	}
	entries := f.entries()
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
}

func TestRiskScore(t *testing.T) {
	f := newFixture(t, fakeStats{highValueCount: 4}, noon)
	seedUser(t, f.users, "user-1", noon.AddDate(-1, 0, 0))
	ctx := context.Background()

	// Two recent failed logins: 2*5 points. Four high-value transfers: +20.
	for i := 0; i < 2; i++ {
		err := f.users.RecordLoginAttempt(ctx, identity.LoginAttempt{
			ID: "a", Email: "user-1@example.com", Success: false, CreatedAt: noon.Add(-time.Minute),
		})
		if err != nil {
			t.Fatalf("record attempt: %v", err)
		}
	}
	score, level, err := f.svc.RiskScore(ctx, "user-1", "user-1@example.com")
	if err != nil {
		t.Fatalf("risk score: %v", err)
	}
	if score != 30 {
		t.Errorf("score = %d, want 30", score)
	}
	if level != audit.RiskMedium {
		t.Errorf("level = %s, want medium", level)
	}
}

func TestRiskScoreCapsLoginPoints(t *testing.T) {
	f := newFixture(t, fakeStats{}, noon)
	seedUser(t, f.users, "user-1", noon.AddDate(-1, 0, 0))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		err := f.users.RecordLoginAttempt(ctx, identity.LoginAttempt{
			ID: "a", Email: "user-1@example.com", Success: false, CreatedAt: noon.Add(-time.Minute),
		})
		if err != nil {
			t.Fatalf("record attempt: %v", err)
		}
	}
	score, level, err := f.svc.RiskScore(ctx, "user-1", "user-1@example.com")
	if err != nil {
		t.Fatalf("risk score: %v", err)
	}
	if score != 25 {
		t.Errorf("score = %d, want capped 25", score)
	}
	if level != audit.RiskMedium {
		t.Errorf("level = %s, want medium", level)
	}
}
