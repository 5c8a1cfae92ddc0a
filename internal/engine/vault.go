package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

// Vault account types. The main vault backs external money entering and
// leaving the platform; the fee vault accumulates commissions.
const (
	VaultMain = "main"
	VaultFee  = "fee"
)

// ErrVaultInsufficient is returned when a vault debit exceeds its balance.
var ErrVaultInsufficient = errors.New("insufficient vault balance")

// Vault tracks the platform's own per-currency balances.
type Vault interface {
	Credit(ctx context.Context, vaultType, currency string, amount decimal.Decimal) error
	Debit(ctx context.Context, vaultType, currency string, amount decimal.Decimal) error
	Balance(ctx context.Context, vaultType, currency string) (decimal.Decimal, error)
}

// VaultWalletID is the synthetic wallet identifier vault movements carry in
// ledger entries.
func VaultWalletID(vaultType, currency string) string {
	return "vault:" + vaultType + ":" + currency
}

// PostgresVault stores vault balances in PostgreSQL.
type PostgresVault struct {
	db *pgxpool.Pool
}

// NewPostgresVault builds a vault backed by PostgreSQL.
func NewPostgresVault(db *pgxpool.Pool) *PostgresVault {
	return &PostgresVault{db: db}
}

// Credit adds to a vault balance, creating the row on first use.
func (v *PostgresVault) Credit(ctx context.Context, vaultType, currency string, amount decimal.Decimal) error {
	_, err := storage.Q(ctx, v.db).Exec(ctx,
		`INSERT INTO system_vault (vault_type, currency, balance, updated_at)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (vault_type, currency) DO UPDATE
         SET balance = system_vault.balance + $3, updated_at = $4`,
		vaultType, currency, amount, time.Now().UTC())
	return err
}

// Debit removes from a vault balance, refusing to go negative.
func (v *PostgresVault) Debit(ctx context.Context, vaultType, currency string, amount decimal.Decimal) error {
	tag, err := storage.Q(ctx, v.db).Exec(ctx,
		`UPDATE system_vault SET balance = balance - $3, updated_at = $4
         WHERE vault_type = $1 AND currency = $2 AND balance >= $3`,
		vaultType, currency, amount, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVaultInsufficient
	}
	return nil
}

// Balance returns the current vault balance, zero for an untouched vault.
func (v *PostgresVault) Balance(ctx context.Context, vaultType, currency string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := storage.Q(ctx, v.db).QueryRow(ctx,
		`SELECT COALESCE((SELECT balance FROM system_vault WHERE vault_type = $1 AND currency = $2), 0)`,
		vaultType, currency).Scan(&balance)
	return balance, err
}

type vaultKey struct{ vaultType, currency string }

// MemoryVault implements Vault in process, for tests.
type MemoryVault struct {
	mu       sync.Mutex
	balances map[vaultKey]decimal.Decimal
}

// NewMemoryVault constructs an in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{balances: make(map[vaultKey]decimal.Decimal)}
}

// Credit adds to a vault balance.
func (v *MemoryVault) Credit(ctx context.Context, vaultType, currency string, amount decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := vaultKey{vaultType, currency}
	prev := v.balances[key]
	storage.OnRollback(ctx, func() {
		v.mu.Lock()
		v.balances[key] = prev
		v.mu.Unlock()
	})
	v.balances[key] = prev.Add(amount)
	return nil
}

// Debit removes from a vault balance, refusing to go negative.
func (v *MemoryVault) Debit(ctx context.Context, vaultType, currency string, amount decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := vaultKey{vaultType, currency}
	prev := v.balances[key]
	if prev.LessThan(amount) {
		return ErrVaultInsufficient
	}
	storage.OnRollback(ctx, func() {
		v.mu.Lock()
		v.balances[key] = prev
		v.mu.Unlock()
	})
	v.balances[key] = prev.Sub(amount)
	return nil
}

// Balance returns the current vault balance.
func (v *MemoryVault) Balance(_ context.Context, vaultType, currency string) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[vaultKey{vaultType, currency}], nil
}
