package billing

// Result is the outcome of one fulfillment attempt. All three values are
// ordinary business outcomes; none of them is an error.
type Result string

const (
	// ResultGranted means this attempt applied the credit grant.
	ResultGranted Result = "granted"
	// ResultAlreadyFulfilled means another attempt (either path) got there first.
	ResultAlreadyFulfilled Result = "already_fulfilled"
	// ResultNotPaid means the session is pending, expired or canceled.
	ResultNotPaid Result = "not_paid"
)

const (
	SourceWebhook = "webhook"
	SourceSync    = "sync"
)

type CheckoutResponse struct {
	SessionID string `json:"session_id" example:"cs_test_123"`
	URL       string `json:"url" example:"https://checkout.stripe.com/c/pay/cs_test_123"`
}

type SyncRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

type SyncResponse struct {
	Result Result `json:"result" example:"granted"`
}
