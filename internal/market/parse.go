package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// MaxDepth caps how many levels per side are retained from a book update.
const MaxDepth = 20

// ErrMalformed marks any payload that could not be turned into a typed update.
var ErrMalformed = errors.New("malformed payload")

// ParseError describes which field of which channel payload was rejected.
type ParseError struct {
	Channel string
	Field   string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %s: %v", e.Channel, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrMalformed) match every ParseError.
func (e *ParseError) Is(target error) bool { return target == ErrMalformed }

// ParseCandle decodes an OKX candle row [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
func ParseCandle(row []string) (Candle, error) {
	if len(row) < 9 {
		return Candle{}, &ParseError{Channel: CandleFamily, Field: "row", Err: fmt.Errorf("expected 9 fields, got %d", len(row))}
	}
	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil || ts <= 0 {
		return Candle{}, &ParseError{Channel: CandleFamily, Field: "ts", Err: fieldErr(row[0], err)}
	}
	names := [...]string{"open", "high", "low", "close", "volume"}
	var vals [5]float64
	for i, name := range names {
		v, err := parseNumber(row[i+1])
		if err != nil {
			return Candle{}, &ParseError{Channel: CandleFamily, Field: name, Err: err}
		}
		vals[i] = v
	}
	return Candle{
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		Confirmed: row[8] == "1",
	}, nil
}

type rawBook struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

// ParseOrderBook decodes one book entry of a books/books5 message and normalizes ordering.
func ParseOrderBook(channel string, raw json.RawMessage) (OrderBook, error) {
	var rb rawBook
	if err := json.Unmarshal(raw, &rb); err != nil {
		return OrderBook{}, &ParseError{Channel: channel, Field: "body", Err: err}
	}
	bids, err := parseLevels(channel, "bids", rb.Bids)
	if err != nil {
		return OrderBook{}, err
	}
	asks, err := parseLevels(channel, "asks", rb.Asks)
	if err != nil {
		return OrderBook{}, err
	}
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	if len(bids) > MaxDepth {
		bids = bids[:MaxDepth]
	}
	if len(asks) > MaxDepth {
		asks = asks[:MaxDepth]
	}
	ts, err := parseOptionalInt(rb.Ts)
	if err != nil {
		return OrderBook{}, &ParseError{Channel: channel, Field: "ts", Err: err}
	}
	return OrderBook{Bids: bids, Asks: asks, Timestamp: ts}, nil
}

func parseLevels(channel, side string, rows [][]string) ([]Level, error) {
	out := make([]Level, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, &ParseError{Channel: channel, Field: fmt.Sprintf("%s[%d]", side, i), Err: errors.New("level needs price and size")}
		}
		px, err := parseNumber(row[0])
		if err != nil {
			return nil, &ParseError{Channel: channel, Field: fmt.Sprintf("%s[%d].price", side, i), Err: err}
		}
		sz, err := parseNumber(row[1])
		if err != nil {
			return nil, &ParseError{Channel: channel, Field: fmt.Sprintf("%s[%d].size", side, i), Err: err}
		}
		out = append(out, Level{Price: px, Size: sz})
	}
	return out, nil
}

type rawTicker struct {
	Last   string `json:"last"`
	BidPx  string `json:"bidPx"`
	AskPx  string `json:"askPx"`
	Vol24h string `json:"vol24h"`
	Ts     string `json:"ts"`
}

// ParseTicker decodes one tickers entry. Only the last price is mandatory.
func ParseTicker(raw json.RawMessage) (Ticker, error) {
	var rt rawTicker
	if err := json.Unmarshal(raw, &rt); err != nil {
		return Ticker{}, &ParseError{Channel: ChannelTickers, Field: "body", Err: err}
	}
	last, err := parseNumber(rt.Last)
	if err != nil {
		return Ticker{}, &ParseError{Channel: ChannelTickers, Field: "last", Err: err}
	}
	t := Ticker{Last: last}
	optional := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"bidPx", rt.BidPx, &t.BestBid},
		{"askPx", rt.AskPx, &t.BestAsk},
		{"vol24h", rt.Vol24h, &t.Volume24h},
	}
	for _, f := range optional {
		if f.raw == "" {
			continue
		}
		v, err := parseNumber(f.raw)
		if err != nil {
			return Ticker{}, &ParseError{Channel: ChannelTickers, Field: f.name, Err: err}
		}
		*f.dst = v
	}
	if t.Timestamp, err = parseOptionalInt(rt.Ts); err != nil {
		return Ticker{}, &ParseError{Channel: ChannelTickers, Field: "ts", Err: err}
	}
	return t, nil
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fieldErr(s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

func parseOptionalInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fieldErr(s, err)
	}
	return v, nil
}

func fieldErr(raw string, err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("invalid value %q", raw)
}
