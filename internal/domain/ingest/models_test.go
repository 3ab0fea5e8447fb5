package ingest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		ok   bool
	}{
		{StatusPending, StatusMapped, true},
		{StatusPending, StatusCancelled, true},
		{StatusMapped, StatusProcessing, true},
		{StatusMapped, StatusCancelled, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusError, true},
		{StatusProcessing, StatusCancelled, true},

		{StatusPending, StatusProcessing, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusError, StatusProcessing, false},
		{StatusCancelled, StatusMapped, false},
		{StatusMapped, StatusCompleted, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusMapped.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}

func TestRecordNetAmount(t *testing.T) {
	tax := decimal.RequireFromString("10.00")
	disc := decimal.RequireFromString("2.50")

	r := Record{Amount: decimal.RequireFromString("100.00"), TaxAmount: &tax, Discount: &disc}
	assert.Equal(t, "107.50", r.NetAmount().StringFixed(2))

	bare := Record{Amount: decimal.RequireFromString("100.00")}
	assert.Equal(t, "100.00", bare.NetAmount().StringFixed(2))
}
