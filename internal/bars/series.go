package bars

import (
	talib "github.com/markcheno/go-talib"

	"ctacore/internal/types"
)

// Series is a fixed-size rolling window of bars exposing indicator
// values. Strategies feed it from OnBar and must wait for Inited()
// before trusting any indicator.
type Series struct {
	size  int
	count int

	opens   []float64
	highs   []float64
	lows    []float64
	closes  []float64
	volumes []float64
}

// NewSeries allocates a window of size bars. size must cover the
// longest indicator period used plus warm-up.
func NewSeries(size int) *Series {
	if size <= 0 {
		size = 100
	}
	return &Series{
		size:    size,
		opens:   make([]float64, size),
		highs:   make([]float64, size),
		lows:    make([]float64, size),
		closes:  make([]float64, size),
		volumes: make([]float64, size),
	}
}

// Update shifts the window left and appends the bar.
func (s *Series) Update(bar *types.Bar) {
	copy(s.opens, s.opens[1:])
	copy(s.highs, s.highs[1:])
	copy(s.lows, s.lows[1:])
	copy(s.closes, s.closes[1:])
	copy(s.volumes, s.volumes[1:])

	last := s.size - 1
	s.opens[last] = bar.OpenPrice
	s.highs[last] = bar.HighPrice
	s.lows[last] = bar.LowPrice
	s.closes[last] = bar.ClosePrice
	s.volumes[last] = bar.Volume

	if s.count < s.size {
		s.count++
	}
}

// Inited reports whether the window is fully populated.
func (s *Series) Inited() bool { return s.count >= s.size }

// Count returns how many bars have been fed so far, capped at size.
func (s *Series) Count() int { return s.count }

// Close returns the close price array, oldest first.
func (s *Series) Close() []float64 { return s.closes }

// High returns the high price array, oldest first.
func (s *Series) High() []float64 { return s.highs }

// Low returns the low price array, oldest first.
func (s *Series) Low() []float64 { return s.lows }

// Sma returns the latest simple moving average over n bars.
func (s *Series) Sma(n int) float64 {
	out := talib.Sma(s.closes, n)
	return out[len(out)-1]
}

// Ema returns the latest exponential moving average over n bars.
func (s *Series) Ema(n int) float64 {
	out := talib.Ema(s.closes, n)
	return out[len(out)-1]
}

// Rsi returns the latest relative strength index over n bars.
func (s *Series) Rsi(n int) float64 {
	out := talib.Rsi(s.closes, n)
	return out[len(out)-1]
}

// Atr returns the latest average true range over n bars.
func (s *Series) Atr(n int) float64 {
	out := talib.Atr(s.highs, s.lows, s.closes, n)
	return out[len(out)-1]
}

// Macd returns the latest MACD line, signal line and histogram.
func (s *Series) Macd(fast, slow, signal int) (macd, sig, hist float64) {
	m, sg, h := talib.Macd(s.closes, fast, slow, signal)
	last := len(m) - 1
	return m[last], sg[last], h[last]
}

// MacdSeries returns the previous and latest histogram values, used to
// detect sign flips.
func (s *Series) MacdSeries(fast, slow, signal int) (prevHist, lastHist float64) {
	_, _, h := talib.Macd(s.closes, fast, slow, signal)
	return h[len(h)-2], h[len(h)-1]
}

// SmaSeries returns the previous and latest SMA values, used to detect
// crossovers without storing indicator state in the strategy.
func (s *Series) SmaSeries(n int) (prev, last float64) {
	out := talib.Sma(s.closes, n)
	return out[len(out)-2], out[len(out)-1]
}

// Boll returns the latest Bollinger band bounds: mid ± dev standard
// deviations over n bars.
func (s *Series) Boll(n int, dev float64) (up, down float64) {
	mid := s.Sma(n)
	std := talib.StdDev(s.closes, n, 1)
	sd := std[len(std)-1]
	return mid + sd*dev, mid - sd*dev
}
