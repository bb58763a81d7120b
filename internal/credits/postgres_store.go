package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/matheuspdias/managerclin/internal/database"
)

// PostgresStore keeps balances in credit_balances and the ledger in
// credit_transactions.
type PostgresStore struct {
	db database.Querier
	tx database.TxRunner
}

// NewPostgresStore wires the store. The balance change and its ledger row are
// written through tx; calls made inside an outer transaction join it.
func NewPostgresStore(db database.Querier, tx database.TxRunner) *PostgresStore {
	if db == nil {
		panic("credits: database required")
	}
	if tx == nil {
		tx = database.NewLocalRunner()
	}
	return &PostgresStore{db: db, tx: tx}
}

func (s *PostgresStore) conn(ctx context.Context) database.Querier {
	return database.Conn(ctx, s.db)
}

func (s *PostgresStore) Balance(ctx context.Context, orgID string) (Balance, error) {
	b := Balance{OrgID: orgID}
	err := s.conn(ctx).QueryRow(ctx,
		`SELECT balance, updated_at FROM credit_balances WHERE org_id = $1`, orgID,
	).Scan(&b.Balance, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return Balance{}, fmt.Errorf("credits: select balance: %w", err)
	}
	return b, nil
}

// Debit is a compare-and-decrement: the UPDATE only matches when the balance
// covers the whole amount.
func (s *PostgresStore) Debit(ctx context.Context, e Entry) (*Transaction, error) {
	var out *Transaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var after int
		err := s.conn(ctx).QueryRow(ctx, `
			UPDATE credit_balances
			SET balance = balance - $2, updated_at = $3
			WHERE org_id = $1 AND balance >= $2
			RETURNING balance
		`, e.OrgID, e.Amount, e.CreatedAt).Scan(&after)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInsufficientCredits
		}
		if err != nil {
			return fmt.Errorf("credits: debit balance: %w", err)
		}
		out, err = s.insertLedger(ctx, e, KindDebit, -e.Amount, after)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Grant(ctx context.Context, e Entry) (*Transaction, error) {
	var out *Transaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var after int
		err := s.conn(ctx).QueryRow(ctx, `
			INSERT INTO credit_balances (org_id, balance, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (org_id) DO UPDATE
			SET balance = credit_balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
			RETURNING balance
		`, e.OrgID, e.Amount, e.CreatedAt).Scan(&after)
		if err != nil {
			return fmt.Errorf("credits: grant balance: %w", err)
		}
		out, err = s.insertLedger(ctx, e, KindGrant, e.Amount, after)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) insertLedger(ctx context.Context, e Entry, kind Kind, amount, after int) (*Transaction, error) {
	tx := &Transaction{
		ID:            e.ID,
		OrgID:         e.OrgID,
		Amount:        amount,
		BalanceAfter:  after,
		Kind:          kind,
		ReferenceType: e.Reference.Type,
		ReferenceID:   e.Reference.ID,
		CreatedAt:     e.CreatedAt,
		CreatedBy:     e.CreatedBy,
	}
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO credit_transactions (id, org_id, amount, balance_after, kind, reference_type, reference_id, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)
	`, tx.ID, tx.OrgID, tx.Amount, tx.BalanceAfter, string(tx.Kind), tx.ReferenceType, tx.ReferenceID, tx.CreatedAt, tx.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("credits: insert ledger: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) Ledger(ctx context.Context, orgID string, limit int) ([]Transaction, error) {
	query := `
		SELECT id, org_id, amount, balance_after, kind, COALESCE(reference_type, ''), COALESCE(reference_id, ''),
			created_at, created_by
		FROM credit_transactions
		WHERE org_id = $1
		ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.conn(ctx).Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("credits: query ledger: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			tx   Transaction
			kind string
		)
		if err := rows.Scan(&tx.ID, &tx.OrgID, &tx.Amount, &tx.BalanceAfter, &kind,
			&tx.ReferenceType, &tx.ReferenceID, &tx.CreatedAt, &tx.CreatedBy); err != nil {
			return nil, fmt.Errorf("credits: scan ledger: %w", err)
		}
		tx.Kind = Kind(kind)
		out = append(out, tx)
	}
	return out, rows.Err()
}
