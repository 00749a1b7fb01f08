package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func fixedClient(baseURL string) *Client {
	c := NewClient("test-key", "test-secret", baseURL)
	c.now = func() time.Time { return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestPlaceOrderSignsAndParses(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v3/order" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-MBX-APIKEY") != "test-key" {
			t.Fatalf("missing API key header")
		}
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"orderId": 123456,
			"clientOrderId": "sr-abc-p",
			"symbol": "BTCUSDT",
			"side": "BUY",
			"status": "FILLED",
			"origQty": "0.002",
			"executedQty": "0.002",
			"price": "0.00000000",
			"transactTime": 1748779200000
		}`))
	}))
	defer server.Close()

	placed, err := fixedClient(server.URL).PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol:        "BTCUSDT",
		Side:          "BUY",
		OrderType:     "MARKET",
		Quantity:      decimal.RequireFromString("0.002"),
		ClientOrderID: "sr-abc-p",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if placed.ExchangeOrderID != "123456" {
		t.Fatalf("expected exchange order id 123456, got %s", placed.ExchangeOrderID)
	}
	if placed.Status != ExchangeStatusFilled {
		t.Fatalf("expected FILLED, got %s", placed.Status)
	}
	if !placed.ExecutedQty.Equal(decimal.RequireFromString("0.002")) {
		t.Fatalf("expected executed qty parsed, got %s", placed.ExecutedQty)
	}

	// The signature must cover the whole sorted query minus itself.
	sig := gotQuery.Get("signature")
	if sig == "" {
		t.Fatal("signature missing from request")
	}
	verify := url.Values{}
	for k, v := range gotQuery {
		if k != "signature" {
			verify.Set(k, v[0])
		}
	}
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(verify.Encode()))
	if expected := hex.EncodeToString(mac.Sum(nil)); sig != expected {
		t.Fatalf("signature mismatch: got %s want %s", sig, expected)
	}

	if gotQuery.Get("newClientOrderId") != "sr-abc-p" {
		t.Fatal("client order id not forwarded")
	}
	if gotQuery.Get("timeInForce") != "" {
		t.Fatal("market orders must not carry timeInForce")
	}
}

func TestSignedCallMapsAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code": -2013, "msg": "Order does not exist."}`))
	}))
	defer server.Close()

	_, err := fixedClient(server.URL).GetOrder(context.Background(), "BTCUSDT", "999")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Code != -2013 || apiErr.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("unexpected error payload: %+v", apiErr)
	}
	if !IsNoSuchOrder(err) {
		t.Fatal("code -2013 must classify as no-such-order")
	}
	if apiErr.Retryable() {
		t.Fatal("a 400 rejection must not be retryable")
	}
}

func TestSignedCallRetryableClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code": -1003, "msg": "Too many requests."}`))
	}))
	defer server.Close()

	_, err := fixedClient(server.URL).OpenOrders(context.Background(), "BTCUSDT")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if !apiErr.Retryable() {
		t.Fatal("rate limiting must be retryable")
	}
}

func TestOrderHistoryParsesRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/allOrders" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("startTime") == "" || r.URL.Query().Get("endTime") == "" {
			t.Fatal("time range missing")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"orderId": 1, "symbol": "BTCUSDT", "side": "BUY", "status": "FILLED",
			 "origQty": "0.002", "executedQty": "0.002", "price": "50000.00", "updateTime": 1748779200000},
			{"orderId": 2, "symbol": "BTCUSDT", "side": "SELL", "status": "CANCELED",
			 "origQty": "0.001", "executedQty": "0.000", "price": "51000.00", "updateTime": 1748779260000}
		]`))
	}))
	defer server.Close()

	from := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	records, err := fixedClient(server.URL).OrderHistory(context.Background(), "BTCUSDT", from, from.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ExchangeOrderID != "1" || records[1].Status != ExchangeStatusCanceled {
		t.Fatalf("records parsed wrong: %+v", records)
	}
}

func TestTradeHistoryParsesFills(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/myTrades" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 10, "orderId": 1, "symbol": "BTCUSDT", "qty": "0.0015", "price": "50000.00", "time": 1748779200000},
			{"id": 11, "orderId": 1, "symbol": "BTCUSDT", "qty": "0.0005", "price": "50001.00", "time": 1748779201000}
		]`))
	}))
	defer server.Close()

	from := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	fills, err := fixedClient(server.URL).TradeHistory(context.Background(), "BTCUSDT", from, from.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(fills))
	}
	sum := fills[0].Quantity.Add(fills[1].Quantity)
	if !sum.Equal(decimal.RequireFromString("0.002")) {
		t.Fatalf("expected summed qty 0.002, got %s", sum)
	}
}

func TestSymbolRulesExtractsFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/exchangeInfo" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbols": [{
			"symbol": "BTCUSDT",
			"filters": [
				{"filterType": "PRICE_FILTER", "tickSize": "0.01"},
				{"filterType": "LOT_SIZE", "stepSize": "0.00010000", "minQty": "0.00010000"},
				{"filterType": "NOTIONAL"}
			]
		}]}`))
	}))
	defer server.Close()

	rules, err := fixedClient(server.URL).SymbolRules(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rules.StepSize.Equal(decimal.RequireFromString("0.0001")) {
		t.Fatalf("bad step size %s", rules.StepSize)
	}
	if !rules.TickSize.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("bad tick size %s", rules.TickSize)
	}

	qty := rules.NormalizeQuantity(decimal.RequireFromString("0.00257"))
	if !qty.Equal(decimal.RequireFromString("0.0025")) {
		t.Fatalf("normalization must round down to the step, got %s", qty)
	}
}
