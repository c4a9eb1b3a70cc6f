package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"traderwatch/logger"
)

// Client is the typed HTTP client over the single info endpoint, following
// the teacher's api_client.go shape: one *http.Client, a base URL, JSON
// request/response marshalling at the boundary.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
	}
}

// post executes one request/reply round-trip against the multiplexed info
// endpoint, with exponential back-off on HTTP 429 (§4.1 reliability
// contract): up to 3 retries, delay 2^attempt * 1s.
func (c *Client) post(ctx context.Context, reqBody map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("exchange: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return &Unavailable{Reason: ctx.Err().Error()}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("exchange: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logger.Warnf("exchange: request error (attempt %d): %v", attempt, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("429 too many requests")
			logger.Warnf("exchange: rate limited, backing off (attempt %d)", attempt)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return &Unavailable{Reason: fmt.Sprintf("status %d", resp.StatusCode)}
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			logger.Errorf("exchange: malformed payload for type=%v: %v", reqBody["type"], err)
			return &Unavailable{Reason: "malformed payload"}
		}
		return nil
	}
	return &Unavailable{Reason: fmt.Sprintf("exhausted retries: %v", lastErr)}
}

func (c *Client) ClearinghouseState(ctx context.Context, addr string) (*ClearinghouseState, error) {
	var out ClearinghouseState
	if err := c.post(ctx, map[string]interface{}{"type": "clearinghouseState", "user": addr}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserFills fetches the last ~2000 fills. The endpoint ignores startTime
// server-side (§4.1) — callers must filter client-side by timestamp.
func (c *Client) UserFills(ctx context.Context, addr string) ([]Fill, error) {
	var out []Fill
	if err := c.post(ctx, map[string]interface{}{"type": "userFills", "user": addr}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) OpenOrders(ctx context.Context, addr string) ([]OpenOrder, error) {
	var out []OpenOrder
	if err := c.post(ctx, map[string]interface{}{"type": "openOrders", "user": addr}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UserFunding(ctx context.Context, addr string, startTime *int64) ([]json.RawMessage, error) {
	req := map[string]interface{}{"type": "userFunding", "user": addr}
	if startTime != nil {
		req["startTime"] = *startTime
	}
	var out []json.RawMessage
	if err := c.post(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UserNonFundingLedgerUpdates(ctx context.Context, addr string, startTime *int64) ([]json.RawMessage, error) {
	req := map[string]interface{}{"type": "userNonFundingLedgerUpdates", "user": addr}
	if startTime != nil {
		req["startTime"] = *startTime
	}
	var out []json.RawMessage
	if err := c.post(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AllMids(ctx context.Context) (map[string]Number, error) {
	var out map[string]Number
	if err := c.post(ctx, map[string]interface{}{"type": "allMids"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Meta(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.post(ctx, map[string]interface{}{"type": "meta"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MetaAndAssetCtxs(ctx context.Context) (json.RawMessage, []AssetCtx, error) {
	var out []json.RawMessage
	if err := c.post(ctx, map[string]interface{}{"type": "metaAndAssetCtxs"}, &out); err != nil {
		return nil, nil, err
	}
	if len(out) < 2 {
		return nil, nil, &Unavailable{Reason: "short metaAndAssetCtxs response"}
	}
	var ctxs []AssetCtx
	if err := json.Unmarshal(out[1], &ctxs); err != nil {
		return nil, nil, &Unavailable{Reason: "malformed asset ctxs"}
	}
	return out[0], ctxs, nil
}

func (c *Client) FundingHistory(ctx context.Context, coin string, startTime int64) (json.RawMessage, error) {
	var out json.RawMessage
	req := map[string]interface{}{"type": "fundingHistory", "coin": coin, "startTime": startTime}
	if err := c.post(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CandleSnapshot(ctx context.Context, coin, interval string, startTime int64, endTime *int64) ([]Candle, error) {
	inner := map[string]interface{}{"coin": coin, "interval": interval, "startTime": startTime}
	if endTime != nil {
		inner["endTime"] = *endTime
	}
	var out []Candle
	if err := c.post(ctx, map[string]interface{}{"type": "candleSnapshot", "req": inner}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) L2Book(ctx context.Context, coin string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.post(ctx, map[string]interface{}{"type": "l2Book", "coin": coin}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
