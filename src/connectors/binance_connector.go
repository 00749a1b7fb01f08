// REST API client for Binance spot trading.
// RESTY ONLY; retries and circuit breaking live in the caller's wrapper.
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const defaultRecvWindow = 5000

// Client is the authenticated Binance REST client.
type Client struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *resty.Client
	now       func() time.Time
}

var _ ExchangeConnector = (*Client)(nil)

func NewClient(apiKey, apiSecret, baseURL string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("X-MBX-APIKEY", apiKey)

	return &Client{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		http:      httpClient,
		now:       time.Now,
	}
}

// sign produces the HMAC-SHA256 signature over the canonical query string.
func (c *Client) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	query := url.Values{}
	for _, k := range keys {
		query.Set(k, params.Get(k))
	}

	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

// signedCall executes one authenticated request and decodes the body into
// out. API rejections come back as *APIError, transport failures as
// *TransportError.
func (c *Client) signedCall(ctx context.Context, method, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.Itoa(defaultRecvWindow))
	params.Set("signature", c.sign(params))

	req := c.http.R().SetContext(ctx).SetQueryParamsFromValues(params)

	var resp *resty.Response
	var err error
	switch method {
	case resty.MethodGet:
		resp, err = req.Get(path)
	case resty.MethodPost:
		resp, err = req.Post(path)
	case resty.MethodDelete:
		resp, err = req.Delete(path)
	default:
		return fmt.Errorf("unsupported method %s", method)
	}
	if err != nil {
		return &TransportError{Err: err}
	}

	if resp.IsError() {
		apiErr := &APIError{HTTPStatus: resp.StatusCode()}
		var body struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if jsonErr := json.Unmarshal(resp.Body(), &body); jsonErr == nil {
			apiErr.Code = body.Code
			apiErr.Msg = body.Msg
		} else {
			apiErr.Msg = string(resp.Body())
		}

		logger.WithFields(map[string]interface{}{
			"path":   path,
			"status": resp.StatusCode(),
			"code":   apiErr.Code,
		}).Warn("exchange API rejection")
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

type apiOrder struct {
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	Symbol              string `json:"symbol"`
	Side                string `json:"side"`
	Status              string `json:"status"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	Price               string `json:"price"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	TransactTime        int64  `json:"transactTime"`
	UpdateTime          int64  `json:"updateTime"`
}

func (o *apiOrder) toRecord() (OrderRecord, error) {
	qty, err := decimal.NewFromString(o.OrigQty)
	if err != nil {
		return OrderRecord{}, fmt.Errorf("bad origQty %q: %w", o.OrigQty, err)
	}
	executed, err := decimal.NewFromString(o.ExecutedQty)
	if err != nil {
		return OrderRecord{}, fmt.Errorf("bad executedQty %q: %w", o.ExecutedQty, err)
	}
	price, err := decimal.NewFromString(o.Price)
	if err != nil {
		return OrderRecord{}, fmt.Errorf("bad price %q: %w", o.Price, err)
	}

	updated := o.UpdateTime
	if updated == 0 {
		updated = o.TransactTime
	}

	return OrderRecord{
		ExchangeOrderID: strconv.FormatInt(o.OrderID, 10),
		ClientOrderID:   o.ClientOrderID,
		Symbol:          o.Symbol,
		Side:            o.Side,
		Status:          o.Status,
		Quantity:        qty,
		ExecutedQty:     executed,
		Price:           price,
		UpdatedAt:       time.UnixMilli(updated).UTC(),
	}, nil
}

// PlaceOrder submits one order and returns the exchange acknowledgement.
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlacedOrder, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", req.Side)
	params.Set("type", req.OrderType)
	params.Set("quantity", req.Quantity.String())
	if req.Price.IsPositive() {
		params.Set("price", req.Price.String())
		params.Set("timeInForce", "GTC")
	}
	if req.StopPrice.IsPositive() {
		params.Set("stopPrice", req.StopPrice.String())
	}
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}

	var payload apiOrder
	if err := c.signedCall(ctx, resty.MethodPost, "/api/v3/order", params, &payload); err != nil {
		return nil, err
	}

	record, err := payload.toRecord()
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"symbol":            req.Symbol,
		"side":              req.Side,
		"type":              req.OrderType,
		"qty":               req.Quantity,
		"exchange_order_id": record.ExchangeOrderID,
		"status":            record.Status,
	}).Info("order placed on exchange")

	return &PlacedOrder{
		ExchangeOrderID: record.ExchangeOrderID,
		ClientOrderID:   record.ClientOrderID,
		Status:          record.Status,
		ExecutedQty:     record.ExecutedQty,
		Price:           record.Price,
		TransactedAt:    record.UpdatedAt,
	}, nil
}

// CancelOrder cancels one live order by its exchange identifier.
func (c *Client) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", exchangeOrderID)

	return c.signedCall(ctx, resty.MethodDelete, "/api/v3/order", params, nil)
}

// GetOrder fetches one order's current state.
func (c *Client) GetOrder(ctx context.Context, symbol, exchangeOrderID string) (*OrderRecord, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", exchangeOrderID)

	var payload apiOrder
	if err := c.signedCall(ctx, resty.MethodGet, "/api/v3/order", params, &payload); err != nil {
		return nil, err
	}
	record, err := payload.toRecord()
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// OpenOrders lists live orders for a symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]OrderRecord, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var payload []apiOrder
	if err := c.signedCall(ctx, resty.MethodGet, "/api/v3/openOrders", params, &payload); err != nil {
		return nil, err
	}

	records := make([]OrderRecord, 0, len(payload))
	for i := range payload {
		record, err := payload[i].toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// OrderHistory lists all orders for a symbol inside a time range, regardless
// of state.
func (c *Client) OrderHistory(ctx context.Context, symbol string, from, to time.Time) ([]OrderRecord, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("startTime", strconv.FormatInt(from.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(to.UnixMilli(), 10))

	var payload []apiOrder
	if err := c.signedCall(ctx, resty.MethodGet, "/api/v3/allOrders", params, &payload); err != nil {
		return nil, err
	}

	records := make([]OrderRecord, 0, len(payload))
	for i := range payload {
		record, err := payload[i].toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// TradeHistory lists executions for a symbol inside a time range.
func (c *Client) TradeHistory(ctx context.Context, symbol string, from, to time.Time) ([]TradeFill, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("startTime", strconv.FormatInt(from.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(to.UnixMilli(), 10))

	var payload []struct {
		ID      int64  `json:"id"`
		OrderID int64  `json:"orderId"`
		Symbol  string `json:"symbol"`
		Qty     string `json:"qty"`
		Price   string `json:"price"`
		Time    int64  `json:"time"`
	}
	if err := c.signedCall(ctx, resty.MethodGet, "/api/v3/myTrades", params, &payload); err != nil {
		return nil, err
	}

	fills := make([]TradeFill, 0, len(payload))
	for _, t := range payload {
		qty, err := decimal.NewFromString(t.Qty)
		if err != nil {
			return nil, fmt.Errorf("bad trade qty %q: %w", t.Qty, err)
		}
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			return nil, fmt.Errorf("bad trade price %q: %w", t.Price, err)
		}
		fills = append(fills, TradeFill{
			TradeID:         strconv.FormatInt(t.ID, 10),
			ExchangeOrderID: strconv.FormatInt(t.OrderID, 10),
			Symbol:          t.Symbol,
			Quantity:        qty,
			Price:           price,
			ExecutedAt:      time.UnixMilli(t.Time).UTC(),
		})
	}
	return fills, nil
}

// SymbolRules fetches the quantity normalization filters for one symbol.
func (c *Client) SymbolRules(ctx context.Context, symbol string) (*SymbolRules, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		Get("/api/v3/exchangeInfo")
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.IsError() {
		return nil, &APIError{HTTPStatus: resp.StatusCode(), Msg: string(resp.Body())}
	}

	var payload struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				StepSize   string `json:"stepSize"`
				MinQty     string `json:"minQty"`
				TickSize   string `json:"tickSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode exchangeInfo: %w", err)
	}
	if len(payload.Symbols) == 0 {
		return nil, fmt.Errorf("symbol %s not found in exchangeInfo", symbol)
	}

	rules := &SymbolRules{Symbol: symbol}
	for _, f := range payload.Symbols[0].Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			if rules.StepSize, err = decimal.NewFromString(f.StepSize); err != nil {
				return nil, fmt.Errorf("bad stepSize %q: %w", f.StepSize, err)
			}
			if rules.MinQuantity, err = decimal.NewFromString(f.MinQty); err != nil {
				return nil, fmt.Errorf("bad minQty %q: %w", f.MinQty, err)
			}
		case "PRICE_FILTER":
			if rules.TickSize, err = decimal.NewFromString(f.TickSize); err != nil {
				return nil, fmt.Errorf("bad tickSize %q: %w", f.TickSize, err)
			}
		}
	}
	return rules, nil
}
