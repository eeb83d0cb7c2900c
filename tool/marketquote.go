package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultQuoteBaseURL = "https://www.alphavantage.co/query"

// MarketQuoteOptions configures the market quote tool.
type MarketQuoteOptions struct {
	// APIKey authenticates against the Alpha Vantage API.
	APIKey string
	// BaseURL is the quote endpoint. Overridable for tests.
	BaseURL string
	// HTTPClient performs the quote request.
	HTTPClient *http.Client
	// Timeout bounds a single quote request.
	Timeout time.Duration
}

// MarketQuoteTool fetches the latest quote for a stock symbol from the
// Alpha Vantage GLOBAL_QUOTE endpoint and returns the provider's JSON
// verbatim for the model to interpret.
type MarketQuoteTool struct {
	apiKey  string
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewMarketQuoteTool constructs the market quote tool.
func NewMarketQuoteTool(apiKey string, optFns ...func(o *MarketQuoteOptions)) *MarketQuoteTool {
	opts := MarketQuoteOptions{
		APIKey:     apiKey,
		BaseURL:    defaultQuoteBaseURL,
		HTTPClient: http.DefaultClient,
		Timeout:    15 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &MarketQuoteTool{
		apiKey:  opts.APIKey,
		baseURL: opts.BaseURL,
		client:  opts.HTTPClient,
		timeout: opts.Timeout,
	}
}

// Name implements the Tool interface.
func (t *MarketQuoteTool) Name() string { return "market_quote" }

// Description implements the Tool interface.
func (t *MarketQuoteTool) Description() string {
	return "Fetch the latest stock price for a symbol (e.g. 'AAPL', 'TSLA')"
}

// Parameters implements the Tool interface.
func (t *MarketQuoteTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"symbol": map[string]any{
				"type":        "string",
				"description": "Ticker symbol to look up",
			},
		},
		"required": []string{"symbol"},
	}
}

// Invoke implements the Tool interface.
func (t *MarketQuoteTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	symbol, _ := args["symbol"].(string)
	if strings.TrimSpace(symbol) == "" {
		return "", NewToolError(t.Name(), "symbol must not be empty", "VALIDATION_ERROR")
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("function", "GLOBAL_QUOTE")
	query.Set("symbol", symbol)
	query.Set("apikey", t.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", NewToolError(t.Name(), err.Error(), "EXECUTION_ERROR")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", NewToolError(t.Name(), fmt.Sprintf("quote request failed: %v", err), "EXECUTION_ERROR")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", NewToolError(t.Name(), fmt.Sprintf("quote provider returned HTTP %d", resp.StatusCode), "EXECUTION_ERROR")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", NewToolError(t.Name(), err.Error(), "EXECUTION_ERROR")
	}
	if !json.Valid(body) {
		return "", NewToolError(t.Name(), "quote provider returned malformed JSON", "EXECUTION_ERROR")
	}
	return string(body), nil
}
