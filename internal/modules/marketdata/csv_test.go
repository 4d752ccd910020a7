package marketdata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV(t *testing.T) {
	input := `symbol,date,close,name
msft,2024-01-03,372.5,Microsoft Corp
AAPL,2024-01-02,185.64,Apple Inc.
AAPL,2024-01-03,184.25
# comment lines are ignored
AAPL,2024-01-02,185.00
`
	assets, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, assets, 2)

	assert.Equal(t, "AAPL", assets[0].Symbol)
	assert.Equal(t, "Apple Inc.", assets[0].Name)
	assert.Equal(t, []float64{185.00, 184.25}, assets[0].Closes())
	assert.Equal(t, day("2024-01-02"), assets[0].Prices[0].Date)

	assert.Equal(t, "MSFT", assets[1].Symbol)
	assert.Equal(t, "Microsoft Corp", assets[1].Name)
}

func TestParseCSV_WithoutHeader(t *testing.T) {
	assets, err := ParseCSV(strings.NewReader("A,2024-01-01,1\nA,2024-01-02,2\n"))
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, []float64{1, 2}, assets[0].Closes())
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too few fields", "A,2024-01-01\n"},
		{"bad close after header", "symbol,date,close\nA,2024-01-01,abc\n"},
		{"bad date", "A,01/02/2024,1\n"},
		{"non-positive close", "A,2024-01-01,0\n"},
		{"empty symbol", " ,2024-01-01,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}
