package cta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctacore/internal/types"
)

func closeReq(volume float64) types.OrderRequest {
	return types.OrderRequest{
		Symbol: "rb2505", Exchange: types.ExchangeSHFE,
		Direction: types.DirectionShort, Offset: types.OffsetClose,
		Type: types.OrderTypeLimit, Price: 3500, Volume: volume,
	}
}

func TestHoldingUpdateTrade(t *testing.T) {
	h := &holding{}

	h.updateTrade(&types.Trade{Direction: types.DirectionLong, Offset: types.OffsetOpen, Volume: 3})
	assert.Equal(t, 3.0, h.longTd)

	// a plain close consumes yesterday before today
	h.longYd = 2
	h.updateTrade(&types.Trade{Direction: types.DirectionShort, Offset: types.OffsetClose, Volume: 4})
	assert.Zero(t, h.longYd)
	assert.Equal(t, 1.0, h.longTd)

	h.rollDay()
	assert.Zero(t, h.longTd)
	assert.Equal(t, 1.0, h.longYd)
}

func TestConvertNetSplitsAcrossLegs(t *testing.T) {
	h := &holding{longTd: 2, longYd: 1}

	out := h.convertNet(closeReq(4))
	require.Len(t, out, 3)
	assert.Equal(t, types.OffsetCloseToday, out[0].Offset)
	assert.Equal(t, 2.0, out[0].Volume)
	assert.Equal(t, types.OffsetCloseYesterday, out[1].Offset)
	assert.Equal(t, 1.0, out[1].Volume)
	assert.Equal(t, types.OffsetOpen, out[2].Offset)
	assert.Equal(t, 1.0, out[2].Volume)
}

func TestConvertNetPlainCloseOffNetVenues(t *testing.T) {
	h := &holding{longTd: 2, longYd: 1}
	req := closeReq(3)
	req.Exchange = types.ExchangeDCE

	out := h.convertNet(req)
	require.Len(t, out, 1)
	assert.Equal(t, types.OffsetClose, out[0].Offset)
	assert.Equal(t, 3.0, out[0].Volume)
}

func TestConvertLock(t *testing.T) {
	t.Run("today position flips close into open", func(t *testing.T) {
		h := &holding{longTd: 1, longYd: 5}
		out := h.convertLock(closeReq(2))
		require.Len(t, out, 1)
		assert.Equal(t, types.OffsetOpen, out[0].Offset)
		assert.Equal(t, 2.0, out[0].Volume)
	})

	t.Run("yesterday covers the close", func(t *testing.T) {
		h := &holding{longYd: 5}
		out := h.convertLock(closeReq(2))
		require.Len(t, out, 1)
		assert.Equal(t, types.OffsetCloseYesterday, out[0].Offset)
	})

	t.Run("close beyond yesterday splits", func(t *testing.T) {
		h := &holding{longYd: 1}
		out := h.convertLock(closeReq(3))
		require.Len(t, out, 2)
		assert.Equal(t, types.OffsetCloseYesterday, out[0].Offset)
		assert.Equal(t, 1.0, out[0].Volume)
		assert.Equal(t, types.OffsetOpen, out[1].Offset)
		assert.Equal(t, 2.0, out[1].Volume)
	})

	t.Run("open passes through", func(t *testing.T) {
		h := &holding{}
		req := closeReq(1)
		req.Offset = types.OffsetOpen
		out := h.convertLock(req)
		require.Len(t, out, 1)
		assert.Equal(t, types.OffsetOpen, out[0].Offset)
	})
}
