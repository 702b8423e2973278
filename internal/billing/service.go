package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/nezaj/instant-stripe-credits/internal/config"
	"github.com/nezaj/instant-stripe-credits/internal/email"
	"github.com/nezaj/instant-stripe-credits/internal/ledger"
	"github.com/nezaj/instant-stripe-credits/internal/logger"
	"github.com/nezaj/instant-stripe-credits/internal/metrics"
	"github.com/nezaj/instant-stripe-credits/internal/payment"
	"github.com/nezaj/instant-stripe-credits/internal/user"
)

// ErrMissingPayee means the session carries no trusted user id. Sessions are
// always created with one, so this indicates a session this service does not
// own; it is not retryable.
var ErrMissingPayee = errors.New("checkout session has no payee metadata")

type Service interface {
	CreateCheckout(ctx context.Context, userID int) (*CheckoutResponse, error)
	Reconcile(ctx context.Context, sessionID, source string) (Result, error)
	Balance(ctx context.Context, userID int) (*ledger.Balance, error)
	History(ctx context.Context, userID int, limit, offset int) ([]ledger.Entry, error)
}

type service struct {
	processor payment.Processor
	guard     *Guard
	users     user.Repository
	ledger    ledger.Repository
	email     *email.Service

	packCredits    int64
	packPriceCents int64
	successURL     string
	cancelURL      string
}

func NewService(
	processor payment.Processor,
	users user.Repository,
	ledgerRepo ledger.Repository,
	emailService *email.Service,
	cfg *config.Config,
) Service {
	return &service{
		processor:      processor,
		guard:          NewGuard(processor),
		users:          users,
		ledger:         ledgerRepo,
		email:          emailService,
		packCredits:    cfg.PackCredits,
		packPriceCents: cfg.PackPriceCents,
		successURL:     cfg.CheckoutSuccessURL,
		cancelURL:      cfg.CheckoutCancelURL,
	}
}

// CreateCheckout opens a processor checkout session for the pack. The payee
// is stamped into the session metadata here, at creation, and is the only
// account id fulfillment will ever trust for this event.
func (s *service) CreateCheckout(ctx context.Context, userID int) (*CheckoutResponse, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}

	customerID := u.StripeCustomerID.String
	if !u.StripeCustomerID.Valid || customerID == "" {
		customerID, err = s.processor.CreateCustomer(ctx, u.Email, u.Name)
		if err != nil {
			return nil, fmt.Errorf("create processor customer: %w", err)
		}
		if err := s.users.SetStripeCustomerID(ctx, u.ID, customerID); err != nil {
			return nil, fmt.Errorf("persist customer ref: %w", err)
		}
	}

	sess, err := s.processor.CreateCheckoutSession(ctx, payment.CheckoutParams{
		CustomerID:  customerID,
		PriceCents:  s.packPriceCents,
		ProductName: fmt.Sprintf("Credit pack (%d credits)", s.packCredits),
		SuccessURL:  s.successURL,
		CancelURL:   s.cancelURL,
		Metadata: map[string]string{
			payment.MetadataUserIDKey: strconv.Itoa(u.ID),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	metrics.RecordCheckoutCreated()
	return &CheckoutResponse{SessionID: sess.ID, URL: sess.URL}, nil
}

// Reconcile applies the credit grant for one payment event at most once. It
// is the single fulfillment function behind both notification channels: the
// processor webhook and the buyer's post-redirect sync call. The session is
// fetched fresh from the processor on every invocation; nothing is cached
// across the two paths.
func (s *service) Reconcile(ctx context.Context, sessionID, source string) (Result, error) {
	sess, err := s.processor.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("resolve session %s: %w", sessionID, err)
	}

	if !sess.Paid() {
		return ResultNotPaid, nil
	}

	if s.guard.Claimed(sess) {
		metrics.RecordDuplicateFulfillment(source)
		return ResultAlreadyFulfilled, nil
	}

	payeeID, err := payeeFromSession(sess)
	if err != nil {
		return "", err
	}

	if err := s.ledger.ApplyGrant(ctx, payeeID, s.packCredits, sess.ID); err != nil {
		if errors.Is(err, ledger.ErrDuplicateGrant) {
			// Lost the claim race, or a redelivery after a failed flag write.
			// Either way the credit is already on the ledger; heal the flag
			// so future attempts short-circuit on the metadata read.
			if markErr := s.guard.MarkFulfilled(ctx, sess.ID); markErr != nil {
				logger.Error("failed to heal fulfilled flag", "session_id", sess.ID, "error", markErr)
			}
			metrics.RecordDuplicateFulfillment(source)
			return ResultAlreadyFulfilled, nil
		}
		return "", fmt.Errorf("apply grant for session %s: %w", sessionID, err)
	}

	if err := s.guard.MarkFulfilled(ctx, sess.ID); err != nil {
		// The grant is committed; only the flag write failed. Propagate so
		// the caller retries: the replay dedupes on the grant ref above and
		// rewrites the flag.
		return "", fmt.Errorf("mark session %s fulfilled: %w", sessionID, err)
	}

	metrics.RecordGrant(source)
	logger.Info("credit grant applied",
		"session_id", sess.ID,
		"user_id", payeeID,
		"credits", s.packCredits,
		"source", source,
	)

	s.sendReceipt(ctx, payeeID)
	return ResultGranted, nil
}

func (s *service) sendReceipt(ctx context.Context, userID int) {
	if s.email == nil {
		return
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		logger.Error("receipt skipped, user lookup failed", "user_id", userID, "error", err)
		return
	}
	b, err := s.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		logger.Error("receipt skipped, balance lookup failed", "user_id", userID, "error", err)
		return
	}
	if err := s.email.SendPurchaseReceipt(ctx, u.Email, u.Name, s.packCredits, b.Credits); err != nil {
		logger.Error("failed to queue receipt", "user_id", userID, "error", err)
	}
}

func (s *service) Balance(ctx context.Context, userID int) (*ledger.Balance, error) {
	return s.ledger.GetOrCreate(ctx, userID)
}

func (s *service) History(ctx context.Context, userID int, limit, offset int) ([]ledger.Entry, error) {
	return s.ledger.Entries(ctx, userID, limit, offset)
}

func payeeFromSession(sess *payment.Session) (int, error) {
	raw, ok := sess.Metadata[payment.MetadataUserIDKey]
	if !ok || raw == "" {
		return 0, ErrMissingPayee
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: bad user id %q", ErrMissingPayee, raw)
	}
	return id, nil
}
