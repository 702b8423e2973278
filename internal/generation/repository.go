package generation

import (
	"context"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/nezaj/instant-stripe-credits/internal/ledger"
)

// UnitCost is what one generation debits.
const UnitCost int64 = 1

type repository struct {
	db     *sqlx.DB
	ledger ledger.Repository
}

func NewRepository(db *sqlx.DB, ledgerRepo ledger.Repository) Repository {
	return &repository{db: db, ledger: ledgerRepo}
}

// CreateWithDebit inserts the generation and debits one credit in a single
// transaction. A rejection or crash between the two leaves neither: no
// debited balance without a record, no record without a debit.
func (r *repository) CreateWithDebit(ctx context.Context, userID int, prompt, output string) (*Generation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var g Generation
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO generations (user_id, prompt, output)
		 VALUES ($1, $2, $3)
		 RETURNING id, user_id, prompt, output, created_at`,
		userID, prompt, output,
	).StructScan(&g)
	if err != nil {
		return nil, err
	}

	// The debit is authoritative: it locks the balance row and fails with
	// ErrInsufficientCredits before any mutation, rolling back the insert.
	if _, err := r.ledger.Debit(ctx, tx, userID, UnitCost, ledger.KindGeneration, strconv.Itoa(g.ID)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &g, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Generation, error) {
	var g Generation
	err := r.db.GetContext(ctx, &g,
		`SELECT id, user_id, prompt, output, created_at FROM generations WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *repository) ListByUser(ctx context.Context, userID int, limit, offset int) ([]Generation, error) {
	if limit <= 0 {
		limit = 50
	}

	var gens []Generation
	err := r.db.SelectContext(ctx, &gens, `
		SELECT id, user_id, prompt, output, created_at
		FROM generations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	return gens, nil
}
