package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"calreach/internal/models"
)

// UpsertAccount seeds or refreshes a sending account's identity fields.
// Usage counters are never overwritten here.
func (d *Database) UpsertAccount(ctx context.Context, account *models.SendingAccount) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, upsertAccountQuery,
			account.ID, account.Email, account.DisplayName, account.IsActive)
		return err
	}, "upsert account")
}

func (d *Database) GetAccount(ctx context.Context, id string) (*models.SendingAccount, error) {
	row := d.db.QueryRowContext(ctx, selectAccountByIDQuery, id)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}
	return account, nil
}

// GetActiveAccounts returns active accounts in least-recently-used order,
// never-used accounts first.
func (d *Database) GetActiveAccounts(ctx context.Context) ([]*models.SendingAccount, error) {
	rows, err := d.db.QueryContext(ctx, selectActiveAccountsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.SendingAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// RecordAccountSend is the single mutation path for usage counters.
func (d *Database) RecordAccountSend(ctx context.Context, id string, now time.Time) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, recordAccountSendQuery, now.UTC(), id)
		return err
	}, "record account send")
}

func (d *Database) SetAccountPaused(ctx context.Context, id string, paused bool, reason *string) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, setAccountPausedQuery, paused, reason, id)
		return err
	}, "set account paused")
}

// ResetDailyCounters zeroes sends_today for every account. Safe to call more
// than once per boundary.
func (d *Database) ResetDailyCounters(ctx context.Context) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, resetDailyCountersQuery)
		return err
	}, "reset daily counters")
}

// IncrementGlobalSends bumps the global daily send counter for the given day
// key (YYYY-MM-DD in the reference timezone).
func (d *Database) IncrementGlobalSends(ctx context.Context, day string) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, incrementGlobalSendsQuery, day)
		return err
	}, "increment global sends")
}

func (d *Database) GetGlobalSends(ctx context.Context, day string) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, selectGlobalSendsQuery, day).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch global send count: %w", err)
	}
	return count, nil
}

func scanAccount(row rowScanner) (*models.SendingAccount, error) {
	account := &models.SendingAccount{}
	var lastUsedAt sql.NullTime

	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.DisplayName,
		&account.IsActive,
		&account.IsPaused,
		&account.PauseReason,
		&account.SendsToday,
		&lastUsedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		account.LastUsedAt = &t
	}
	return account, nil
}
