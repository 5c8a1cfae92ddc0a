package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

func TestRecordWritesBalancedPair(t *testing.T) {
	repo := NewMemoryRepository()
	rec := NewRecorder(repo)
	ctx := context.Background()

	debit := Posting{
		WalletID:      "w-src",
		Amount:        decimal.RequireFromString("100.00"),
		BalanceBefore: decimal.RequireFromString("1000.00"),
		BalanceAfter:  decimal.RequireFromString("900.00"),
		Description:   "transfer out",
	}
	credit := Posting{
		WalletID:      "w-dst",
		Amount:        decimal.RequireFromString("100.00"),
		BalanceBefore: decimal.RequireFromString("50.00"),
		BalanceAfter:  decimal.RequireFromString("150.00"),
		Description:   "transfer in",
	}
	if err := rec.Record(ctx, "tx-1", debit, credit); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := rec.ForTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	var gotDebit, gotCredit *Entry
	for i := range entries {
		switch entries[i].Type {
		case TypeDebit:
			gotDebit = &entries[i]
		case TypeCredit:
			gotCredit = &entries[i]
		}
	}
	if gotDebit == nil || gotCredit == nil {
		t.Fatalf("missing a side: %+v", entries)
	}
	if gotDebit.WalletID != "w-src" || gotDebit.BalanceAfter.StringFixed(2) != "900.00" {
		t.Errorf("debit entry wrong: %+v", gotDebit)
	}
	if gotCredit.WalletID != "w-dst" || gotCredit.BalanceAfter.StringFixed(2) != "150.00" {
		t.Errorf("credit entry wrong: %+v", gotCredit)
	}
}

func TestRecordRequiresBothWallets(t *testing.T) {
	rec := NewRecorder(NewMemoryRepository())
	err := rec.Record(context.Background(), "tx-1",
		Posting{WalletID: ""}, Posting{WalletID: "w-dst"})
	if err == nil {
		t.Fatal("expected error for missing wallet")
	}
}

func TestRollbackDiscardsEntries(t *testing.T) {
	repo := NewMemoryRepository()
	rec := NewRecorder(repo)
	runner := storage.NewMemoryRunner()
	ctx := context.Background()

	boom := errors.New("boom")
	err := runner.WithinTx(ctx, func(ctx context.Context) error {
		p := Posting{WalletID: "w-1", Amount: decimal.New(5, 0)}
		q := Posting{WalletID: "w-2", Amount: decimal.New(5, 0)}
		if err := rec.Record(ctx, "tx-rollback", p, q); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	entries, err := rec.ForTransaction(ctx, "tx-rollback")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries after rollback, want 0", len(entries))
	}
}

func TestHistoryLimit(t *testing.T) {
	repo := NewMemoryRepository()
	rec := NewRecorder(repo)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p := Posting{WalletID: "w-1", Amount: decimal.New(1, 0)}
		q := Posting{WalletID: "w-2", Amount: decimal.New(1, 0)}
		if err := rec.Record(ctx, "tx", p, q); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	entries, err := rec.History(ctx, "w-1", 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
}
