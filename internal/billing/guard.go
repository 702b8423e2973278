package billing

import (
	"context"

	"github.com/nezaj/instant-stripe-credits/internal/payment"
)

// Guard decides whether a paid checkout session still needs fulfillment. The
// only shared state between the webhook and the client sync path is the
// session's own metadata on the processor, so that is where the flag lives.
//
// The metadata API has no compare-and-swap: two concurrent attempts can both
// read the flag unset and both proceed. That window is bounded by one
// read/grant/write round trip and is accepted here; the ledger's unique grant
// key per session id is what collapses a double claim to a single credit.
//
// Ordering: the flag is written only after the grant is confirmed on the
// ledger. A claim that grants nothing must never be durable, otherwise a paid
// customer would be stranded with no credits and no further attempts.
type Guard struct {
	processor payment.Processor
}

func NewGuard(p payment.Processor) *Guard {
	return &Guard{processor: p}
}

// Claimed reports whether the session is already fulfilled. The caller must
// pass a session fetched fresh from the processor for this attempt; the flag
// is never cached across paths.
func (g *Guard) Claimed(sess *payment.Session) bool {
	return sess.Metadata[payment.MetadataFulfilledKey] == "true"
}

// MarkFulfilled durably records the claim in the session metadata. On failure
// the event stays eligible for retry by either path.
func (g *Guard) MarkFulfilled(ctx context.Context, sessionID string) error {
	return g.processor.UpdateSessionMetadata(ctx, sessionID, payment.MetadataFulfilledKey, "true")
}
