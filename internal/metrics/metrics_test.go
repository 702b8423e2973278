package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("GET", "/billing/balance", "200", 0.5)

	count := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/billing/balance", "200"))
	assert.Equal(t, float64(1), count)
}

func TestRecordHTTPRequestMultiple(t *testing.T) {
	HTTPRequestsTotal.Reset()

	RecordHTTPRequest("POST", "/auth/login", "200", 0.1)
	RecordHTTPRequest("POST", "/auth/login", "200", 0.2)
	RecordHTTPRequest("POST", "/auth/login", "401", 0.05)

	successCount := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/auth/login", "200"))
	failCount := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/auth/login", "401"))

	assert.Equal(t, float64(2), successCount)
	assert.Equal(t, float64(1), failCount)
}

func TestRecordGrantBySource(t *testing.T) {
	GrantsTotal.Reset()

	RecordGrant("webhook")
	RecordGrant("webhook")
	RecordGrant("sync")

	webhookGrants := testutil.ToFloat64(GrantsTotal.WithLabelValues("webhook"))
	syncGrants := testutil.ToFloat64(GrantsTotal.WithLabelValues("sync"))

	assert.Equal(t, float64(2), webhookGrants)
	assert.Equal(t, float64(1), syncGrants)
}

func TestRecordDuplicateFulfillment(t *testing.T) {
	DuplicateFulfillmentsTotal.Reset()

	RecordDuplicateFulfillment("sync")

	count := testutil.ToFloat64(DuplicateFulfillmentsTotal.WithLabelValues("sync"))
	assert.Equal(t, float64(1), count)
}

func TestRecordCheckoutCreated(t *testing.T) {
	testCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_checkouts_created_total_test",
			Help: "Total number of checkout sessions created",
		},
	)

	oldCounter := CheckoutsCreatedTotal
	CheckoutsCreatedTotal = testCounter
	defer func() { CheckoutsCreatedTotal = oldCounter }()

	RecordCheckoutCreated()
	RecordCheckoutCreated()

	assert.Equal(t, float64(2), testutil.ToFloat64(testCounter))
}

func TestRecordGenerationAndRejection(t *testing.T) {
	genCounter := prometheus.NewCounter(prometheus.CounterOpts{Name: "credits_generations_total_test"})
	rejCounter := prometheus.NewCounter(prometheus.CounterOpts{Name: "credits_insufficient_credits_total_test"})

	oldGen, oldRej := GenerationsTotal, InsufficientCreditsTotal
	GenerationsTotal, InsufficientCreditsTotal = genCounter, rejCounter
	defer func() { GenerationsTotal, InsufficientCreditsTotal = oldGen, oldRej }()

	RecordGeneration()
	RecordGeneration()
	RecordGeneration()
	RecordInsufficientCredits()

	assert.Equal(t, float64(3), testutil.ToFloat64(genCounter))
	assert.Equal(t, float64(1), testutil.ToFloat64(rejCounter))
}

func TestRecordEmail(t *testing.T) {
	EmailsSentTotal.Reset()

	RecordEmail("receipt", "success")
	RecordEmail("receipt", "failed")

	success := testutil.ToFloat64(EmailsSentTotal.WithLabelValues("receipt", "success"))
	failed := testutil.ToFloat64(EmailsSentTotal.WithLabelValues("receipt", "failed"))

	assert.Equal(t, float64(1), success)
	assert.Equal(t, float64(1), failed)
}

func TestEmailQueueLength(t *testing.T) {
	EmailQueueLength.Set(10)
	assert.Equal(t, float64(10), testutil.ToFloat64(EmailQueueLength))

	EmailQueueLength.Set(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(EmailQueueLength))
}
