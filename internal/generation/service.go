package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/nezaj/instant-stripe-credits/internal/ledger"
	"github.com/nezaj/instant-stripe-credits/internal/metrics"
)

// Producer creates the content one credit buys. The actual generator lives
// outside this service; this interface is its seam.
type Producer interface {
	Produce(ctx context.Context, prompt string) (string, error)
}

type ProducerFunc func(ctx context.Context, prompt string) (string, error)

func (f ProducerFunc) Produce(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// EchoProducer is the stand-in used until a real generator is plugged in.
var EchoProducer = ProducerFunc(func(_ context.Context, prompt string) (string, error) {
	return fmt.Sprintf("generated for: %s", prompt), nil
})

type Service interface {
	Generate(ctx context.Context, userID int, prompt string) (*Generation, error)
	ListByUser(ctx context.Context, userID int, limit, offset int) ([]Generation, error)
}

type service struct {
	repo     Repository
	ledger   ledger.Repository
	producer Producer
}

func NewService(repo Repository, ledgerRepo ledger.Repository, producer Producer) Service {
	return &service{
		repo:     repo,
		ledger:   ledgerRepo,
		producer: producer,
	}
}

// Generate spends one credit and records what it bought. The cheap balance
// read up front rejects obviously broke accounts before producing anything;
// the transactional debit inside CreateWithDebit is what actually guarantees
// no overspend under concurrent requests.
func (s *service) Generate(ctx context.Context, userID int, prompt string) (*Generation, error) {
	b, err := s.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if b.Credits < UnitCost {
		metrics.RecordInsufficientCredits()
		return nil, ledger.ErrInsufficientCredits
	}

	output, err := s.producer.Produce(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("produce content: %w", err)
	}

	g, err := s.repo.CreateWithDebit(ctx, userID, prompt, output)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			metrics.RecordInsufficientCredits()
		}
		return nil, err
	}

	metrics.RecordGeneration()
	return g, nil
}

func (s *service) ListByUser(ctx context.Context, userID int, limit, offset int) ([]Generation, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}
