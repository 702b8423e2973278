package generation

import "time"

// Generation is one unit of consumption: a record created atomically with the
// one-credit debit that paid for it. Immutable after creation.
type Generation struct {
	ID        int       `db:"id" json:"id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Prompt    string    `db:"prompt" json:"prompt"`
	Output    string    `db:"output" json:"output"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type CreateRequest struct {
	Prompt string `json:"prompt" binding:"required,min=1,max=2000"`
}
