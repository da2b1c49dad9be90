package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"ParityBot/internal/domain/models"
	drepo "ParityBot/internal/domain/repository"
	"ParityBot/internal/service/ratelimit"
	xhttp "ParityBot/pkg/http"
	applogger "ParityBot/pkg/logger"

	"github.com/shopspring/decimal"
)

// maxKlines is the page size limit of /api/v3/klines.
const maxKlines = 1000

// Client talks to the Binance spot REST API.
type Client struct {
	http       *xhttp.Client
	apiKey     string
	apiSecret  string
	recvWindow int
	limiter    *ratelimit.Limiter
	log        *applogger.Logger
	now        func() time.Time
}

var _ drepo.CandleSource = (*Client)(nil)

// Config holds connection settings.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
	RecvWindow int
	RateLimit  int // requests per second
}

func NewClient(cfg Config, log *applogger.Logger) *Client {
	rps := float64(cfg.RateLimit)
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		http:       xhttp.NewClient(xhttp.WithBaseURL(cfg.BaseURL), xhttp.WithTimeout(cfg.Timeout)),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		recvWindow: cfg.RecvWindow,
		limiter:    ratelimit.New(rps, rps),
		log:        log,
		now:        time.Now,
	}
}

// APIError is the error body Binance returns on 4xx.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance %d: code=%d %s", e.Status, e.Code, e.Msg)
}

// GetCandles returns closed candles with OpenTime in [from, to) and
// CloseTime no later than now, paging through /api/v3/klines.
func (c *Client) GetCandles(ctx context.Context, symbol string, tf drepo.Timeframe, from, to time.Time) ([]models.Candle, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("get candles: from %s not before to %s", from, to)
	}
	now := c.now()
	var out []models.Candle
	cursor := from
	for cursor.Before(to) {
		q := url.Values{}
		q.Set("symbol", symbol)
		q.Set("interval", tf.String())
		q.Set("startTime", strconv.FormatInt(cursor.UnixMilli(), 10))
		q.Set("endTime", strconv.FormatInt(to.UnixMilli()-1, 10))
		q.Set("limit", strconv.Itoa(maxKlines))

		page, err := c.klines(ctx, symbol, tf, q)
		if err != nil {
			return nil, err
		}
		for _, k := range page {
			if k.OpenTime.Before(to) && k.ClosedAt(now) {
				out = append(out, k)
			}
		}
		if len(page) < maxKlines {
			break
		}
		next := page[len(page)-1].CloseTime
		if !next.After(cursor) {
			break
		}
		cursor = next
	}
	c.log.Debug("klines fetched",
		applogger.String("symbol", symbol),
		applogger.String("tf", tf.String()),
		applogger.Int("count", len(out)),
	)
	return models.SortCandles(out), nil
}

// GetLatestCandles returns up to n candles that have closed by now. The
// forming candle Binance includes at the tail is dropped.
func (c *Client) GetLatestCandles(ctx context.Context, symbol string, tf drepo.Timeframe, n int) ([]models.Candle, error) {
	limit := n + 1
	if limit > maxKlines {
		limit = maxKlines
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", tf.String())
	q.Set("limit", strconv.Itoa(limit))

	page, err := c.klines(ctx, symbol, tf, q)
	if err != nil {
		return nil, err
	}
	now := c.now()
	out := page[:0]
	for _, k := range page {
		if k.ClosedAt(now) {
			out = append(out, k)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (c *Client) klines(ctx context.Context, symbol string, tf drepo.Timeframe, q url.Values) ([]models.Candle, error) {
	if err := c.limiter.Wait(ctx, "klines"); err != nil {
		return nil, err
	}
	var raw [][]json.RawMessage
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		Path:        "/api/v3/klines",
		QueryParams: q,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, tf, asAPIError(err))
	}
	return parseKlines(symbol, tf, raw)
}

// OrderResponse is the FULL response of POST /api/v3/order.
type OrderResponse struct {
	Symbol              string          `json:"symbol"`
	OrderID             int64           `json:"orderId"`
	ClientOrderID       string          `json:"clientOrderId"`
	TransactTime        int64           `json:"transactTime"`
	ExecutedQty         decimal.Decimal `json:"executedQty"`
	CummulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
	Status              string          `json:"status"`
	Side                string          `json:"side"`
}

// AvgPrice is the volume-weighted fill price.
func (o OrderResponse) AvgPrice() decimal.Decimal {
	if o.ExecutedQty.IsZero() {
		return decimal.Zero
	}
	return o.CummulativeQuoteQty.Div(o.ExecutedQty)
}

// PlaceMarketOrder sends a signed MARKET order for qty base units.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side models.Side, qty decimal.Decimal, clientOrderID string) (OrderResponse, error) {
	if c.apiKey == "" || c.apiSecret == "" {
		return OrderResponse{}, errors.New("binance credentials missing")
	}
	if err := c.limiter.Wait(ctx, "order"); err != nil {
		return OrderResponse{}, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", qty.String())
	params.Set("newClientOrderId", clientOrderID)
	params.Set("newOrderRespType", "FULL")

	var resp OrderResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:   xhttp.MethodPost,
		Path:     "/api/v3/order",
		Headers:  map[string]string{"X-MBX-APIKEY": c.apiKey},
		RawQuery: c.sign(params),
	}, &resp)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("order %s %s: %w", side, symbol, asAPIError(err))
	}
	return resp, nil
}

// sign appends timestamp and recvWindow and returns the query with its
// HMAC-SHA256 signature.
func (c *Client) sign(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	if c.recvWindow > 0 {
		params.Set("recvWindow", strconv.Itoa(c.recvWindow))
	}
	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	return query + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

func asAPIError(err error) error {
	var se *xhttp.StatusError
	if !errors.As(err, &se) {
		return err
	}
	apiErr := &APIError{Status: se.StatusCode}
	if json.Unmarshal(se.Body, apiErr) != nil || apiErr.Msg == "" {
		return err
	}
	return apiErr
}

// parseKlines decodes kline rows: [openTime, open, high, low, close, volume, closeTime, ...].
func parseKlines(symbol string, tf drepo.Timeframe, raw [][]json.RawMessage) ([]models.Candle, error) {
	out := make([]models.Candle, 0, len(raw))
	for i, row := range raw {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row %d: %d fields", i, len(row))
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			return nil, fmt.Errorf("kline row %d open time: %w", i, err)
		}
		var vals [5]decimal.Decimal
		for j := range vals {
			var s string
			if err := json.Unmarshal(row[j+1], &s); err != nil {
				return nil, fmt.Errorf("kline row %d field %d: %w", i, j+1, err)
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("kline row %d field %d: %w", i, j+1, err)
			}
			vals[j] = d
		}
		open := time.UnixMilli(openMs).UTC()
		out = append(out, models.Candle{
			Symbol:    symbol,
			OpenTime:  open,
			CloseTime: open.Add(tf.Duration()),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return out, nil
}
