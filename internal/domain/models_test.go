package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAsset_Closes(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	asset := Asset{
		Symbol: "AAA",
		Prices: []PricePoint{
			{Date: start, Close: 10},
			{Date: start.AddDate(0, 0, 1), Close: 10.5},
			{Date: start.AddDate(0, 0, 2), Close: 9.75},
		},
	}

	assert.Equal(t, []float64{10, 10.5, 9.75}, asset.Closes())
	assert.Empty(t, Asset{}.Closes())
}

func TestAsset_DisplayName(t *testing.T) {
	assert.Equal(t, "Alpha Corp", Asset{Symbol: "AAA", Name: "Alpha Corp"}.DisplayName())
	assert.Equal(t, "AAA", Asset{Symbol: "AAA"}.DisplayName())
}
