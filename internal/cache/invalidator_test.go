package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTagVersions(t *testing.T) {
	inv := NewTagVersions(zap.NewNop())

	assert.Equal(t, uint64(0), inv.Version(TagBankTransactions))

	inv.Invalidate(TagBankTransactions)
	inv.Invalidate(TagBankTransactions, TagPayments)

	assert.Equal(t, uint64(2), inv.Version(TagBankTransactions))
	assert.Equal(t, uint64(1), inv.Version(TagPayments))
	assert.Equal(t, uint64(0), inv.Version(TagFinancialSummary))
}
