package bars

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ctacore/internal/types"
)

func closeBar(c float64) *types.Bar {
	return &types.Bar{OpenPrice: c, HighPrice: c + 1, LowPrice: c - 1, ClosePrice: c, Volume: 10}
}

func TestSeriesInited(t *testing.T) {
	s := NewSeries(3)
	assert.False(t, s.Inited())
	s.Update(closeBar(1))
	s.Update(closeBar(2))
	assert.False(t, s.Inited())
	s.Update(closeBar(3))
	assert.True(t, s.Inited())
	assert.Equal(t, 3, s.Count())
}

func TestSeriesRollsWindow(t *testing.T) {
	s := NewSeries(3)
	for _, c := range []float64{1, 2, 3, 4} {
		s.Update(closeBar(c))
	}
	assert.Equal(t, []float64{2, 3, 4}, s.Close())
}

func TestSeriesSma(t *testing.T) {
	s := NewSeries(4)
	for _, c := range []float64{2, 4, 6, 8} {
		s.Update(closeBar(c))
	}
	assert.InDelta(t, 7.0, s.Sma(2), 1e-9)

	prev, last := s.SmaSeries(2)
	assert.InDelta(t, 5.0, prev, 1e-9)
	assert.InDelta(t, 7.0, last, 1e-9)
}
