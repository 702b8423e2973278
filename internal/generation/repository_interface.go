package generation

import "context"

type Repository interface {
	CreateWithDebit(ctx context.Context, userID int, prompt, output string) (*Generation, error)
	GetByID(ctx context.Context, id int) (*Generation, error)
	ListByUser(ctx context.Context, userID int, limit, offset int) ([]Generation, error)
}
