package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrInsufficientCredits is an ordinary business outcome, not a system error.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrDuplicateGrant means a grant for this payment event is already on the
	// ledger. The unique index on grant refs rejects the second writer even if
	// two fulfillment attempts slipped past the metadata flag together.
	ErrDuplicateGrant = errors.New("grant already applied for this event")
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetOrCreate(ctx context.Context, userID int) (*Balance, error) {
	b := &Balance{}
	err := r.db.GetContext(ctx, b, `SELECT * FROM balances WHERE user_id = $1`, userID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO balances (user_id)
		 VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET updated_at = balances.updated_at
		 RETURNING id, user_id, credits, created_at, updated_at`,
		userID,
	).StructScan(b)
	if err != nil {
		return nil, err
	}

	return b, nil
}

// lockBalance selects the user's balance row FOR UPDATE within tx, creating
// the zero row first if the user has never held credits. Creation is an
// upsert: two transactions racing on a first purchase must both land on the
// same locked row instead of the loser dying on the user_id unique index.
// The no-op conflict update takes the row lock for the winner's row.
func lockBalance(ctx context.Context, tx *sqlx.Tx, userID int) (*Balance, error) {
	var b Balance
	err := tx.QueryRowxContext(ctx,
		`SELECT id, user_id, credits, created_at, updated_at
		 FROM balances
		 WHERE user_id = $1
		 FOR UPDATE`,
		userID,
	).StructScan(&b)
	if err == nil {
		return &b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO balances (user_id)
		 VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET updated_at = balances.updated_at
		 RETURNING id, user_id, credits, created_at, updated_at`,
		userID,
	).StructScan(&b)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ApplyGrant credits the pack amount for one payment event. The grant entry
// is keyed by the event id, so replaying the same event, from either
// fulfillment path, leaves the balance untouched and returns ErrDuplicateGrant.
func (r *repository) ApplyGrant(ctx context.Context, userID int, amount int64, eventID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	b, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return err
	}

	newCredits := b.Credits + amount

	var entryID int
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO ledger_entries (balance_id, delta, kind, ref, balance_after)
		 VALUES ($1, $2, 'grant', $3, $4)
		 ON CONFLICT (ref) WHERE kind = 'grant' DO NOTHING
		 RETURNING id`,
		b.ID, amount, eventID, newCredits,
	).Scan(&entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDuplicateGrant
		}
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE balances
		 SET credits = $1, updated_at = NOW()
		 WHERE id = $2`,
		newCredits, b.ID,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Debit runs inside a caller-owned transaction so the spend and whatever the
// caller records alongside it commit or roll back together.
func (r *repository) Debit(ctx context.Context, tx *sqlx.Tx, userID int, amount int64, kind, ref string) (*Entry, error) {
	b, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if b.Credits < amount {
		return nil, ErrInsufficientCredits
	}
	newCredits := b.Credits - amount

	_, err = tx.ExecContext(ctx,
		`UPDATE balances
		 SET credits = $1, updated_at = NOW()
		 WHERE id = $2`,
		newCredits, b.ID,
	)
	if err != nil {
		return nil, err
	}

	var entry Entry
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO ledger_entries (balance_id, delta, kind, ref, balance_after)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, balance_id, delta, kind, ref, balance_after, created_at`,
		b.ID, -amount, kind, ref, newCredits,
	).StructScan(&entry)
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

func (r *repository) Entries(ctx context.Context, userID int, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var balanceID int
	err := r.db.GetContext(ctx, &balanceID, `SELECT id FROM balances WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []Entry{}, nil
		}
		return nil, err
	}

	var entries []Entry
	err = r.db.SelectContext(ctx, &entries, `
		SELECT id, balance_id, delta, kind, ref, balance_after, created_at
		FROM ledger_entries
		WHERE balance_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, balanceID, limit, offset)
	if err != nil {
		return nil, err
	}

	return entries, nil
}
