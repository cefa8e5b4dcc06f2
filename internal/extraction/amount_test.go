package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain decimal", "25.50", "25.5"},
		{"comma decimal", "25,50", "25.5"},
		{"european grouping", "1.234,56", "1234.56"},
		{"us grouping", "1,234.56", "1234.56"},
		{"integer", "1250", "1250"},
		{"thousands comma only", "1,234,567", "1234567"},
		{"thousands dot only", "1.234.567", "1234567"},
		{"lone dot grouping", "1.234", "1234"},
		{"small decimal", "0.123", "0.123"},
		{"currency symbol", "$ 2,500.00", "2500"},
		{"peso sign with comma decimal", "$1.500,75", "1500.75"},
		{"leading plus", "+300.00", "300"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAmount(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestNormalizeAmountRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "12a3"} {
		_, err := NormalizeAmount(in)
		assert.Error(t, err, "input %q", in)
	}
}
