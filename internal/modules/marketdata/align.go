package marketdata

import (
	"sort"
	"time"

	"github.com/aristath/quanport/internal/domain"
)

// Align puts every asset on the union of all their trading dates.
// A missing close takes the previous known close; leading gaps take the first
// known close. Assets without any price are returned unchanged (empty).
func Align(assets []domain.Asset) []domain.Asset {
	axis := unionDates(assets)

	out := make([]domain.Asset, len(assets))
	for i, a := range assets {
		out[i] = domain.Asset{Symbol: a.Symbol, Name: a.Name}
		if len(a.Prices) == 0 {
			continue
		}

		byDay := make(map[int64]float64, len(a.Prices))
		for _, p := range a.Prices {
			byDay[dayKey(p.Date)] = p.Close
		}

		prices := make([]domain.PricePoint, len(axis))
		firstKnown := -1
		var last float64
		for t, day := range axis {
			if c, ok := byDay[day]; ok {
				last = c
				if firstKnown < 0 {
					firstKnown = t
				}
			}
			prices[t] = domain.PricePoint{Date: time.Unix(day, 0).UTC(), Close: last}
		}
		// Back-fill the dates before the asset's first close
		for t := 0; t < firstKnown; t++ {
			prices[t].Close = prices[firstKnown].Close
		}
		out[i].Prices = prices
	}
	return out
}

// Tail returns the last n prices of every asset; n <= 0 keeps everything
func Tail(assets []domain.Asset, n int) []domain.Asset {
	if n <= 0 {
		return assets
	}
	out := make([]domain.Asset, len(assets))
	for i, a := range assets {
		out[i] = a
		if len(a.Prices) > n {
			out[i].Prices = a.Prices[len(a.Prices)-n:]
		}
	}
	return out
}

func unionDates(assets []domain.Asset) []int64 {
	seen := make(map[int64]struct{})
	for _, a := range assets {
		for _, p := range a.Prices {
			seen[dayKey(p.Date)] = struct{}{}
		}
	}
	axis := make([]int64, 0, len(seen))
	for day := range seen {
		axis = append(axis, day)
	}
	sort.Slice(axis, func(i, j int) bool { return axis[i] < axis[j] })
	return axis
}
