package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/quanport/internal/domain"
)

// csvDateLayout is the date format of price files
const csvDateLayout = "2006-01-02"

// ParseCSV reads rows of symbol,date,close[,name] into one asset per symbol.
// A header row is detected by a non-numeric close column and skipped.
// Prices come back sorted by date; duplicate dates keep the last row.
func ParseCSV(r io.Reader) ([]domain.Asset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	type series struct {
		name   string
		byDate map[time.Time]float64
	}
	bySymbol := make(map[string]*series)

	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("line %d: expected symbol,date,close[,name], got %d fields", line, len(record))
		}

		closeValue, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: invalid close %q: %w", line, record[2], err)
		}
		if closeValue <= 0 {
			return nil, fmt.Errorf("line %d: close must be positive, got %g", line, closeValue)
		}

		date, err := time.Parse(csvDateLayout, strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q: %w", line, record[1], err)
		}

		symbol := strings.ToUpper(strings.TrimSpace(record[0]))
		if symbol == "" {
			return nil, fmt.Errorf("line %d: empty symbol", line)
		}

		s, ok := bySymbol[symbol]
		if !ok {
			s = &series{byDate: make(map[time.Time]float64)}
			bySymbol[symbol] = s
		}
		if len(record) > 3 && strings.TrimSpace(record[3]) != "" {
			s.name = strings.TrimSpace(record[3])
		}
		s.byDate[date] = closeValue
	}

	symbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	assets := make([]domain.Asset, 0, len(symbols))
	for _, symbol := range symbols {
		s := bySymbol[symbol]
		prices := make([]domain.PricePoint, 0, len(s.byDate))
		for date, c := range s.byDate {
			prices = append(prices, domain.PricePoint{Date: date, Close: c})
		}
		sort.Slice(prices, func(i, j int) bool { return prices[i].Date.Before(prices[j].Date) })
		assets = append(assets, domain.Asset{Symbol: symbol, Name: s.name, Prices: prices})
	}
	return assets, nil
}
