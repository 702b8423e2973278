package ledger

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	GetOrCreate(ctx context.Context, userID int) (*Balance, error)
	ApplyGrant(ctx context.Context, userID int, amount int64, eventID string) error
	Debit(ctx context.Context, tx *sqlx.Tx, userID int, amount int64, kind, ref string) (*Entry, error)
	Entries(ctx context.Context, userID int, limit, offset int) ([]Entry, error)
}
