package engine

import (
	"encoding/json"
	"errors"

	"github.com/ramihomecare1-commits/Scalper/internal/market"
	"github.com/ramihomecare1-commits/Scalper/internal/metrics"
	"github.com/ramihomecare1-commits/Scalper/internal/store"
	"github.com/ramihomecare1-commits/Scalper/internal/stream"
)

func (e *Engine) registerHandlers() {
	e.deps.Business.RegisterHandler(market.CandleFamily, e.onCandle)
	e.deps.Public.RegisterHandler(market.ChannelBooks5, e.onBook)
	e.deps.Public.RegisterHandler(market.ChannelTickers, e.onTicker)
}

func (e *Engine) onCandle(msg stream.Message) {
	tf, ok := market.TimeframeOf(msg.Arg.Channel)
	if !ok {
		return
	}
	for _, raw := range msg.Data {
		var row []string
		if err := json.Unmarshal(raw, &row); err != nil {
			metrics.StreamDroppedTotal.WithLabelValues("malformed").Inc()
			continue
		}
		err := e.deps.Store.UpdateCandle(msg.Arg.InstID, tf, row)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrStaleCandle):
			metrics.StreamDroppedTotal.WithLabelValues("stale").Inc()
		case errors.Is(err, market.ErrMalformed):
			metrics.StreamDroppedTotal.WithLabelValues("malformed").Inc()
			e.log.Debug().Err(err).Str("symbol", msg.Arg.InstID).Str("timeframe", tf).Msg("candle dropped")
		default:
			metrics.StreamDroppedTotal.WithLabelValues("rejected").Inc()
			e.log.Warn().Err(err).Str("symbol", msg.Arg.InstID).Str("timeframe", tf).Msg("candle rejected")
		}
	}
}

func (e *Engine) onBook(msg stream.Message) {
	for _, raw := range msg.Data {
		book, err := market.ParseOrderBook(msg.Arg.Channel, raw)
		if err != nil {
			metrics.StreamDroppedTotal.WithLabelValues("malformed").Inc()
			e.log.Debug().Err(err).Str("symbol", msg.Arg.InstID).Msg("order book dropped")
			continue
		}
		e.deps.Store.UpdateOrderBook(msg.Arg.InstID, book)
	}
}

func (e *Engine) onTicker(msg stream.Message) {
	for _, raw := range msg.Data {
		t, err := market.ParseTicker(raw)
		if err != nil {
			metrics.StreamDroppedTotal.WithLabelValues("malformed").Inc()
			e.log.Debug().Err(err).Str("symbol", msg.Arg.InstID).Msg("ticker dropped")
			continue
		}
		e.deps.Store.UpdateTicker(msg.Arg.InstID, t)
		if e.deps.Paper != nil && e.deps.Paper.Mark(msg.Arg.InstID, t.Last) {
			e.releaseClosed(msg.Arg.InstID)
		}
	}
}
