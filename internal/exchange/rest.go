package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ramihomecare1-commits/Scalper/internal/market"
)

// ErrNoData is returned when OKX answers success with an empty data array.
var ErrNoData = errors.New("exchange returned no data")

// Position is one open derivatives position as OKX reports it.
// Size is in base units and signed: negative for shorts.
type Position struct {
	InstID        string
	Side          string
	Size          float64
	AvgPrice      float64
	UnrealizedPnL float64
	Leverage      float64
}

// OrderRequest describes a limit entry with optional attached stop-loss and take-profit.
// Size is in base units; the client converts to contracts for derivatives.
type OrderRequest struct {
	InstID     string
	MarginMode string
	Side       string
	Size       float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	ClientID   string
}

// OrderResult acknowledges an accepted order.
type OrderResult struct {
	OrderID  string
	ClientID string
	Size     string
	Price    string
}

// Instrument is the subset of instrument metadata needed for sizing.
type Instrument struct {
	InstID   string
	InstType string
	CtVal    decimal.Decimal
	LotSz    decimal.Decimal
	MinSz    decimal.Decimal
	TickSz   decimal.Decimal
	State    string
}

type balanceData struct {
	TotalEq string `json:"totalEq"`
	Details []struct {
		Ccy      string `json:"ccy"`
		Eq       string `json:"eq"`
		AvailBal string `json:"availBal"`
	} `json:"details"`
}

// Balance returns the equity of ccy.
func (c *Client) Balance(ctx context.Context, ccy string) (float64, error) {
	q := url.Values{}
	if ccy != "" {
		q.Set("ccy", ccy)
	}
	var data []balanceData
	if err := c.do(ctx, http.MethodGet, "/api/v5/account/balance", q, nil, true, &data); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, ErrNoData
	}
	for _, d := range data[0].Details {
		if ccy == "" || strings.EqualFold(d.Ccy, ccy) {
			return parseNum(d.Eq), nil
		}
	}
	if ccy == "" {
		return parseNum(data[0].TotalEq), nil
	}
	return 0, fmt.Errorf("balance %s: %w", ccy, ErrNoData)
}

type positionData struct {
	InstID   string `json:"instId"`
	InstType string `json:"instType"`
	PosSide  string `json:"posSide"`
	Pos      string `json:"pos"`
	AvgPx    string `json:"avgPx"`
	Upl      string `json:"upl"`
	Lever    string `json:"lever"`
}

// Positions lists open positions of instType with non-zero size, converted to base units.
func (c *Client) Positions(ctx context.Context, instType string) ([]Position, error) {
	q := url.Values{}
	if instType != "" {
		q.Set("instType", instType)
	}
	var data []positionData
	if err := c.do(ctx, http.MethodGet, "/api/v5/account/positions", q, nil, true, &data); err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(data))
	for _, p := range data {
		contracts, err := decimal.NewFromString(p.Pos)
		if err != nil || contracts.IsZero() {
			continue
		}
		size := contracts
		if inst, ok := c.instrument(p.InstID); ok && inst.CtVal.IsPositive() {
			size = contracts.Mul(inst.CtVal)
		}
		if p.PosSide == "short" && size.IsPositive() {
			size = size.Neg()
		}
		out = append(out, Position{
			InstID:        p.InstID,
			Side:          p.PosSide,
			Size:          size.InexactFloat64(),
			AvgPrice:      parseNum(p.AvgPx),
			UnrealizedPnL: parseNum(p.Upl),
			Leverage:      parseNum(p.Lever),
		})
	}
	return out, nil
}

// SetLeverage configures leverage for instID under mgnMode.
func (c *Client) SetLeverage(ctx context.Context, instID string, lever float64, mgnMode string) error {
	body := map[string]string{
		"instId":  instID,
		"lever":   decimal.NewFromFloat(lever).String(),
		"mgnMode": mgnMode,
	}
	return c.do(ctx, http.MethodPost, "/api/v5/account/set-leverage", nil, body, true, nil)
}

type attachAlgo struct {
	TpTriggerPx string `json:"tpTriggerPx,omitempty"`
	TpOrdPx     string `json:"tpOrdPx,omitempty"`
	SlTriggerPx string `json:"slTriggerPx,omitempty"`
	SlOrdPx     string `json:"slOrdPx,omitempty"`
}

type orderBody struct {
	InstID         string       `json:"instId"`
	TdMode         string       `json:"tdMode"`
	Side           string       `json:"side"`
	OrdType        string       `json:"ordType"`
	Sz             string       `json:"sz"`
	Px             string       `json:"px"`
	ClOrdID        string       `json:"clOrdId"`
	AttachAlgoOrds []attachAlgo `json:"attachAlgoOrds,omitempty"`
}

type orderAck struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

// NewClientOrderID returns an OKX-compatible client order id (alphanumeric, at most 32 chars).
func NewClientOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// PlaceOrder submits a limit order. Stop-loss and take-profit, when set,
// ride along as attached algo orders that execute at market once triggered.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if req.Size <= 0 || req.Price <= 0 {
		return OrderResult{}, fmt.Errorf("place order %s: size and price must be positive", req.InstID)
	}
	side := strings.ToLower(req.Side)
	if side != "buy" && side != "sell" {
		return OrderResult{}, fmt.Errorf("place order %s: unknown side %q", req.InstID, req.Side)
	}
	inst, _ := c.instrument(req.InstID)
	sz := inst.Contracts(decimal.NewFromFloat(req.Size))
	if !sz.IsPositive() {
		return OrderResult{}, fmt.Errorf("place order %s: size %.8f below lot size", req.InstID, req.Size)
	}
	mode := req.MarginMode
	if mode == "" {
		mode = "cross"
	}
	clientID := req.ClientID
	if clientID == "" {
		clientID = NewClientOrderID()
	}
	body := orderBody{
		InstID:  req.InstID,
		TdMode:  mode,
		Side:    side,
		OrdType: "limit",
		Sz:      sz.String(),
		Px:      inst.RoundPrice(req.Price).String(),
		ClOrdID: clientID,
	}
	if req.StopLoss > 0 || req.TakeProfit > 0 {
		var algo attachAlgo
		if req.TakeProfit > 0 {
			algo.TpTriggerPx = inst.RoundPrice(req.TakeProfit).String()
			algo.TpOrdPx = "-1"
		}
		if req.StopLoss > 0 {
			algo.SlTriggerPx = inst.RoundPrice(req.StopLoss).String()
			algo.SlOrdPx = "-1"
		}
		body.AttachAlgoOrds = []attachAlgo{algo}
	}

	var acks []orderAck
	if err := c.do(ctx, http.MethodPost, "/api/v5/trade/order", nil, body, true, &acks); err != nil {
		return OrderResult{}, err
	}
	if len(acks) == 0 {
		return OrderResult{}, ErrNoData
	}
	if acks[0].SCode != "" && acks[0].SCode != successCode {
		return OrderResult{}, &APIError{Path: "/api/v5/trade/order", Code: acks[0].SCode, Msg: acks[0].SMsg}
	}
	c.log.Info().Str("inst_id", req.InstID).Str("side", side).Str("sz", body.Sz).Str("px", body.Px).
		Str("ord_id", acks[0].OrdID).Msg("order accepted")
	return OrderResult{OrderID: acks[0].OrdID, ClientID: clientID, Size: body.Sz, Price: body.Px}, nil
}

// CancelOrder cancels an order by the client order id it was placed with.
func (c *Client) CancelOrder(ctx context.Context, instID, clientID string) error {
	if instID == "" || clientID == "" {
		return fmt.Errorf("cancel order: instId and clOrdId are required")
	}
	body := map[string]string{"instId": instID, "clOrdId": clientID}
	var acks []orderAck
	if err := c.do(ctx, http.MethodPost, "/api/v5/trade/cancel-order", nil, body, true, &acks); err != nil {
		return err
	}
	if len(acks) > 0 && acks[0].SCode != "" && acks[0].SCode != successCode {
		return &APIError{Path: "/api/v5/trade/cancel-order", Code: acks[0].SCode, Msg: acks[0].SMsg}
	}
	return nil
}

// Candles fetches up to limit closed and forming candles, oldest first.
func (c *Client) Candles(ctx context.Context, instID, bar string, limit int) ([]market.Candle, error) {
	q := url.Values{}
	q.Set("instId", instID)
	q.Set("bar", bar)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var rows [][]string
	if err := c.do(ctx, http.MethodGet, "/api/v5/market/candles", q, nil, false, &rows); err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		candle, err := market.ParseCandle(rows[i])
		if err != nil {
			c.log.Debug().Err(err).Str("inst_id", instID).Msg("skipping malformed rest candle")
			continue
		}
		out = append(out, candle)
	}
	return out, nil
}

type instrumentData struct {
	InstID   string `json:"instId"`
	InstType string `json:"instType"`
	CtVal    string `json:"ctVal"`
	LotSz    string `json:"lotSz"`
	MinSz    string `json:"minSz"`
	TickSz   string `json:"tickSz"`
	State    string `json:"state"`
}

// Instruments loads instrument metadata for instType and caches it for sizing.
func (c *Client) Instruments(ctx context.Context, instType string) ([]Instrument, error) {
	q := url.Values{}
	q.Set("instType", instType)
	var data []instrumentData
	if err := c.do(ctx, http.MethodGet, "/api/v5/public/instruments", q, nil, false, &data); err != nil {
		return nil, err
	}
	out := make([]Instrument, 0, len(data))
	for _, d := range data {
		out = append(out, Instrument{
			InstID:   d.InstID,
			InstType: d.InstType,
			CtVal:    parseDec(d.CtVal),
			LotSz:    parseDec(d.LotSz),
			MinSz:    parseDec(d.MinSz),
			TickSz:   parseDec(d.TickSz),
			State:    d.State,
		})
	}
	c.mu.Lock()
	for _, inst := range out {
		c.instruments[inst.InstID] = inst
	}
	c.mu.Unlock()
	return out, nil
}

func (c *Client) instrument(instID string) (Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instruments[instID]
	return inst, ok
}

// Contracts converts a base-unit quantity to an order size: divided by the
// contract value when known, rounded down to the lot size, zero below the minimum.
func (i Instrument) Contracts(qty decimal.Decimal) decimal.Decimal {
	sz := qty
	if i.CtVal.IsPositive() {
		sz = sz.Div(i.CtVal)
	}
	if i.LotSz.IsPositive() {
		sz = sz.Div(i.LotSz).Floor().Mul(i.LotSz)
	} else {
		sz = sz.Truncate(8)
	}
	if i.MinSz.IsPositive() && sz.LessThan(i.MinSz) {
		return decimal.Zero
	}
	return sz
}

// RoundPrice snaps px to the tick size, or to 8 decimals when unknown.
func (i Instrument) RoundPrice(px float64) decimal.Decimal {
	d := decimal.NewFromFloat(px)
	if i.TickSz.IsPositive() {
		return d.Div(i.TickSz).Round(0).Mul(i.TickSz)
	}
	return d.Round(8)
}

func parseNum(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
