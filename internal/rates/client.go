package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
)

// Client fetches daily reference rates from a frankfurter-compatible JSON
// API (GET /{date}?from=X&to=Y).
type Client struct {
	baseURL string
	source  string
	http    *http.Client
}

func NewClient(baseURL, source string) *Client {
	return &Client{
		baseURL: baseURL,
		source:  source,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type rateResponse struct {
	Base  string                 `json:"base"`
	Date  string                 `json:"date"`
	Rates map[string]json.Number `json:"rates"`
}

// Fetch retrieves the rate for one pair on one day. The provider may answer
// with the closest earlier business day; the response date is kept so the
// observation lands on the day it is actually valid for.
func (c *Client) Fetch(ctx context.Context, from, to string, date core.Date) (core.ExchangeRate, error) {
	u := fmt.Sprintf("%s/%s?from=%s&to=%s", c.baseURL, date.String(), url.QueryEscape(from), url.QueryEscape(to))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return core.ExchangeRate{}, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.ExchangeRate{}, fmt.Errorf("fetch rate %s/%s: %w", from, to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.ExchangeRate{}, fmt.Errorf("fetch rate %s/%s: status %s", from, to, resp.Status)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return core.ExchangeRate{}, fmt.Errorf("decode rate response: %w", err)
	}

	raw, ok := body.Rates[to]
	if !ok {
		return core.ExchangeRate{}, fmt.Errorf("rate response for %s/%s misses target currency", from, to)
	}
	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return core.ExchangeRate{}, fmt.Errorf("rate %q is not a number: %w", raw.String(), err)
	}

	day := date
	if d, err := core.ParseDate(body.Date); err == nil {
		day = d
	}

	return core.ExchangeRate{
		From:      from,
		To:        to,
		Date:      day,
		Rate:      rate,
		FetchedAt: time.Now(),
		Source:    c.source,
	}, nil
}
