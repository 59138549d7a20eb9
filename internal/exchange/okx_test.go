package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 678_000_000, time.UTC)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Credentials{APIKey: "key", Secret: "secret", Passphrase: "pass"}, zerolog.Nop(),
		WithBaseURL(srv.URL), WithDemo(true), WithTimeout(2*time.Second))
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestSignNormalizesMethod(t *testing.T) {
	got := Sign("secret", "2024-01-02T03:04:05.678Z", "get", "/api/v5/account/balance?ccy=USDT", "")
	assert.Equal(t, Sign("secret", "2024-01-02T03:04:05.678Z", "GET", "/api/v5/account/balance?ccy=USDT", ""), got)
	assert.NotEqual(t, got, Sign("other", "2024-01-02T03:04:05.678Z", "GET", "/api/v5/account/balance?ccy=USDT", ""))
	assert.Len(t, got, 44)
}

func TestBalanceSignsRequest(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/account/balance", r.URL.Path)
		assert.Equal(t, "USDT", r.URL.Query().Get("ccy"))
		assert.Equal(t, "key", r.Header.Get("OK-ACCESS-KEY"))
		assert.Equal(t, "pass", r.Header.Get("OK-ACCESS-PASSPHRASE"))
		assert.Equal(t, "2024-01-02T03:04:05.678Z", r.Header.Get("OK-ACCESS-TIMESTAMP"))
		assert.Equal(t, "1", r.Header.Get("x-simulated-trading"))
		want := Sign("secret", "2024-01-02T03:04:05.678Z", "GET", "/api/v5/account/balance?ccy=USDT", "")
		assert.Equal(t, want, r.Header.Get("OK-ACCESS-SIGN"))
		_, _ = io.WriteString(w, `{"code":"0","msg":"","data":[{"totalEq":"12000","details":[{"ccy":"USDT","eq":"10250.5","availBal":"9000"}]}]}`)
	})

	eq, err := c.Balance(context.Background(), "USDT")
	require.NoError(t, err)
	assert.InDelta(t, 10250.5, eq, 1e-9)
}

func TestAPIErrorMatchesRejected(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":"50113","msg":"Invalid Sign","data":[]}`)
	})
	_, err := c.Balance(context.Background(), "USDT")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "50113", apiErr.Code)
}

func TestPrivateCallWithoutCredentials(t *testing.T) {
	c := NewClient(Credentials{}, zerolog.Nop(), WithBaseURL("http://127.0.0.1:1"))
	_, err := c.Positions(context.Background(), "SWAP")
	assert.ErrorContains(t, err, "missing api credentials")
}

func TestPlaceOrderConvertsToContracts(t *testing.T) {
	var body orderBody
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/public/instruments":
			assert.Empty(t, r.Header.Get("OK-ACCESS-KEY"))
			_, _ = io.WriteString(w, `{"code":"0","data":[{"instId":"BTC-USDT-SWAP","instType":"SWAP","ctVal":"0.01","lotSz":"0.1","minSz":"0.1","tickSz":"0.1","state":"live"}]}`)
		case "/api/v5/trade/order":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			_, _ = io.WriteString(w, `{"code":"0","data":[{"ordId":"123","clOrdId":"abc","sCode":"0","sMsg":""}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	_, err := c.Instruments(context.Background(), "SWAP")
	require.NoError(t, err)

	res, err := c.PlaceOrder(context.Background(), OrderRequest{
		InstID: "BTC-USDT-SWAP", Side: "BUY", Size: 0.0567, Price: 43210.04, StopLoss: 43000, TakeProfit: 43600.02, ClientID: "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "123", res.OrderID)
	assert.Equal(t, "5.6", res.Size)

	assert.Equal(t, "buy", body.Side)
	assert.Equal(t, "cross", body.TdMode)
	assert.Equal(t, "limit", body.OrdType)
	assert.Equal(t, "5.6", body.Sz)
	assert.Equal(t, "43210", body.Px)
	require.Len(t, body.AttachAlgoOrds, 1)
	assert.Equal(t, "43000", body.AttachAlgoOrds[0].SlTriggerPx)
	assert.Equal(t, "43600", body.AttachAlgoOrds[0].TpTriggerPx)
	assert.Equal(t, "-1", body.AttachAlgoOrds[0].SlOrdPx)
}

func TestPlaceOrderRejectedBySubCode(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":"0","data":[{"ordId":"","clOrdId":"x","sCode":"51008","sMsg":"Insufficient balance"}]}`)
	})
	_, err := c.PlaceOrder(context.Background(), OrderRequest{InstID: "ETH-USDT", Side: "sell", Size: 1, Price: 2000})
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorContains(t, err, "51008")
}

func TestPlaceOrderValidatesInput(t *testing.T) {
	c := NewClient(Credentials{}, zerolog.Nop())
	_, err := c.PlaceOrder(context.Background(), OrderRequest{InstID: "X", Side: "buy", Size: 0, Price: 1})
	assert.Error(t, err)
	_, err = c.PlaceOrder(context.Background(), OrderRequest{InstID: "X", Side: "hold", Size: 1, Price: 1})
	assert.Error(t, err)
}

func TestCancelOrderByClientID(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v5/trade/cancel-order", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"instId": "BTC-USDT-SWAP", "clOrdId": "abc123"}, body)
		_, _ = io.WriteString(w, `{"code":"0","data":[{"ordId":"9","clOrdId":"abc123","sCode":"0","sMsg":""}]}`)
	})
	require.NoError(t, c.CancelOrder(context.Background(), "BTC-USDT-SWAP", "abc123"))
}

func TestCancelOrderRejected(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":"0","data":[{"ordId":"","clOrdId":"abc123","sCode":"51400","sMsg":"Order does not exist"}]}`)
	})
	err := c.CancelOrder(context.Background(), "BTC-USDT-SWAP", "abc123")
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorContains(t, err, "51400")

	assert.Error(t, c.CancelOrder(context.Background(), "BTC-USDT-SWAP", ""))
}

func TestPositionsSkipsFlatAndSignsShorts(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SWAP", r.URL.Query().Get("instType"))
		_, _ = io.WriteString(w, `{"code":"0","data":[
			{"instId":"BTC-USDT-SWAP","posSide":"short","pos":"3","avgPx":"42000","upl":"-5","lever":"3"},
			{"instId":"ETH-USDT-SWAP","posSide":"net","pos":"0","avgPx":"","upl":"0","lever":"3"},
			{"instId":"SOL-USDT-SWAP","posSide":"net","pos":"-2","avgPx":"100","upl":"1","lever":"3"}]}`)
	})
	c.instruments["BTC-USDT-SWAP"] = Instrument{InstID: "BTC-USDT-SWAP", CtVal: decimal.RequireFromString("0.01")}

	got, err := c.Positions(context.Background(), "SWAP")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "BTC-USDT-SWAP", got[0].InstID)
	assert.InDelta(t, -0.03, got[0].Size, 1e-12)
	assert.Equal(t, "SOL-USDT-SWAP", got[1].InstID)
	assert.InDelta(t, -2, got[1].Size, 1e-12)
}

func TestCandlesOldestFirst(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("OK-ACCESS-SIGN"))
		assert.Equal(t, "1m", r.URL.Query().Get("bar"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `{"code":"0","data":[
			["1700000120000","3","3","3","3","1","0","0","0"],
			["1700000060000","2","2","2","2","1","0","0","1"],
			["bad"],
			["1700000000000","1","1","1","1","1","0","0","1"]]}`)
	})
	got, err := c.Candles(context.Background(), "BTC-USDT", "1m", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1700000000000), got[0].Timestamp)
	assert.Equal(t, int64(1700000120000), got[2].Timestamp)
}

func TestInstrumentContracts(t *testing.T) {
	inst := Instrument{CtVal: decimal.RequireFromString("0.1"), LotSz: decimal.RequireFromString("1"), MinSz: decimal.RequireFromString("1")}
	assert.Equal(t, "12", inst.Contracts(decimal.RequireFromString("1.29")).String())
	assert.True(t, inst.Contracts(decimal.RequireFromString("0.05")).IsZero())

	spot := Instrument{}
	assert.Equal(t, "0.12345678", spot.Contracts(decimal.RequireFromString("0.123456789")).String())
	assert.Equal(t, "101.25", Instrument{TickSz: decimal.RequireFromString("0.25")}.RoundPrice(101.3).String())
}
