package ledger

import "time"

// Balance is the authoritative credit count for one user. Credits are whole
// units, never fractional, never negative.
type Balance struct {
	ID        int       `db:"id" json:"id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Credits   int64     `db:"credits" json:"credits"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Entry is one append-only ledger line. Kind is "grant" for pack purchases
// and "generation" for spends; Ref carries the checkout session id or the
// generation id so every mutation traces back to its cause.
type Entry struct {
	ID           int       `db:"id" json:"id"`
	BalanceID    int       `db:"balance_id" json:"balance_id"`
	Delta        int64     `db:"delta" json:"delta"`
	Kind         string    `db:"kind" json:"kind"`
	Ref          string    `db:"ref" json:"ref"`
	BalanceAfter int64     `db:"balance_after" json:"balance_after"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

const (
	KindGrant      = "grant"
	KindGeneration = "generation"
)
