package formulas

import "github.com/markcheno/go-talib"

// RSI calculates the Relative Strength Index for a price or value series.
// Returns the latest RSI value, or nil if there is not enough data.
func RSI(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}

	rsi := talib.Rsi(closes, length)
	if len(rsi) == 0 {
		return nil
	}

	latest := rsi[len(rsi)-1]
	return &latest
}
