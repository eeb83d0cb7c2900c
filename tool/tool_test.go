package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/parlorhq/parlor/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- Arithmetic --------------------

func invokeArithmetic(t *testing.T, op string, a, b float64) (map[string]any, error) {
	t.Helper()
	result, err := NewArithmeticTool().Invoke(context.Background(), map[string]any{
		"first_num":  a,
		"second_num": b,
		"operation":  op,
	})
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(result), &payload))
	return payload, nil
}

func TestArithmeticAdd(t *testing.T) {
	payload, err := invokeArithmetic(t, "add", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, float64(5), payload["result"])
	assert.Equal(t, "add", payload["operation"])
}

func TestArithmeticOperations(t *testing.T) {
	sub, err := invokeArithmetic(t, "sub", 10, 4)
	require.NoError(t, err)
	assert.Equal(t, float64(6), sub["result"])

	mul, err := invokeArithmetic(t, "mul", 6, 7)
	require.NoError(t, err)
	assert.Equal(t, float64(42), mul["result"])

	div, err := invokeArithmetic(t, "div", 9, 2)
	require.NoError(t, err)
	assert.Equal(t, 4.5, div["result"])
}

func TestArithmeticDivisionByZero(t *testing.T) {
	_, err := invokeArithmetic(t, "div", 5, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")
}

func TestArithmeticUnsupportedOperation(t *testing.T) {
	_, err := invokeArithmetic(t, "mod", 5, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported operation")
}

// -------------------- Registry --------------------

// panicTool always panics; used to verify dispatch recovery.
type panicTool struct{}

func (panicTool) Name() string               { return "detonate" }
func (panicTool) Description() string        { return "always panics" }
func (panicTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (panicTool) Invoke(context.Context, map[string]any) (string, error) {
	panic("boom")
}

func newTestRegistry() *Registry {
	r := NewRegistry(logging.NoOpLogger{})
	r.Register(NewArithmeticTool())
	return r
}

func errorField(t *testing.T, payload string) string {
	t.Helper()
	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	return decoded["error"]
}

func TestRegistryDispatchSuccess(t *testing.T) {
	r := newTestRegistry()
	result := r.Dispatch(context.Background(), "arithmetic", map[string]any{
		"first_num":  float64(2),
		"second_num": float64(3),
		"operation":  "add",
	})
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(result), &payload))
	assert.Equal(t, float64(5), payload["result"])
}

func TestRegistryDispatchUnknownTool(t *testing.T) {
	r := newTestRegistry()
	result := r.Dispatch(context.Background(), "time_travel", nil)
	assert.Contains(t, errorField(t, result), "unknown tool")
}

func TestRegistryDispatchValidationFailure(t *testing.T) {
	r := newTestRegistry()
	// Missing required operands.
	result := r.Dispatch(context.Background(), "arithmetic", map[string]any{"operation": "add"})
	assert.Contains(t, errorField(t, result), "required field is missing")
}

func TestRegistryDispatchToolFailure(t *testing.T) {
	r := newTestRegistry()
	result := r.Dispatch(context.Background(), "arithmetic", map[string]any{
		"first_num":  float64(5),
		"second_num": float64(0),
		"operation":  "div",
	})
	assert.Contains(t, errorField(t, result), "division by zero")
}

func TestRegistryDispatchPanicRecovery(t *testing.T) {
	r := newTestRegistry()
	r.Register(panicTool{})
	result := r.Dispatch(context.Background(), "detonate", map[string]any{})
	assert.Contains(t, errorField(t, result), "panic")
}

func TestRegistryDefinitionsOrder(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(NewWebSearchTool())
	r.Register(NewArithmeticTool())
	r.Register(NewMarketQuoteTool("demo"))

	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "web_search", defs[0].Name)
	assert.Equal(t, "arithmetic", defs[1].Name)
	assert.Equal(t, "market_quote", defs[2].Name)
	for _, def := range defs {
		assert.NotEmpty(t, def.Description)
		assert.Equal(t, "object", def.Parameters["type"])
	}
}

// -------------------- Web search --------------------

const searchFixture = `<html><body>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="https://example.com/one">First Result</a>
  <a class="result__snippet" href="https://example.com/one">snippet one</a>
</div>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.org%2Ftwo&rut=abc">Second Result</a>
</div>
</body></html>`

func TestWebSearchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		io.WriteString(w, searchFixture)
	}))
	defer srv.Close()

	ws := NewWebSearchTool(func(o *WebSearchOptions) {
		o.Endpoint = srv.URL
		o.HTTPClient = srv.Client()
	})

	result, err := ws.Invoke(context.Background(), map[string]any{"query": "golang"})
	require.NoError(t, err)
	assert.Contains(t, result, "- First Result: https://example.com/one")
	assert.Contains(t, result, "- Second Result: https://example.org/two")
}

func TestWebSearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>no hits here</body></html>")
	}))
	defer srv.Close()

	ws := NewWebSearchTool(func(o *WebSearchOptions) {
		o.Endpoint = srv.URL
		o.HTTPClient = srv.Client()
	})

	result, err := ws.Invoke(context.Background(), map[string]any{"query": "zxqv"})
	require.NoError(t, err)
	assert.Contains(t, result, "couldn't find any results")
}

func TestWebSearchEmptyQuery(t *testing.T) {
	ws := NewWebSearchTool()
	_, err := ws.Invoke(context.Background(), map[string]any{"query": "  "})
	require.Error(t, err)
}

func TestWebSearchMaxResultsCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 40; i++ {
			fmt.Fprintf(w, `<div class="result results_links"><a class="result__a" href="https://example.com/%d">Result %d</a></div>`, i, i)
		}
	}))
	defer srv.Close()

	ws := NewWebSearchTool(func(o *WebSearchOptions) {
		o.Endpoint = srv.URL
		o.HTTPClient = srv.Client()
	})

	result, err := ws.Invoke(context.Background(), map[string]any{"query": "many", "max_results": float64(100)})
	require.NoError(t, err)
	assert.Len(t, strings.Split(result, "\n"), maxSearchResults)
}

// -------------------- Market quote --------------------

func TestMarketQuoteReturnsProviderJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		fmt.Fprint(w, `{"Global Quote":{"01. symbol":"AAPL","05. price":"189.9500"}}`)
	}))
	defer srv.Close()

	mq := NewMarketQuoteTool("test-key", func(o *MarketQuoteOptions) {
		o.BaseURL = srv.URL
		o.HTTPClient = srv.Client()
	})

	result, err := mq.Invoke(context.Background(), map[string]any{"symbol": "AAPL"})
	require.NoError(t, err)
	assert.Contains(t, result, `"05. price":"189.9500"`)
}

func TestMarketQuoteUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	mq := NewMarketQuoteTool("test-key", func(o *MarketQuoteOptions) {
		o.BaseURL = srv.URL
		o.HTTPClient = srv.Client()
	})

	_, err := mq.Invoke(context.Background(), map[string]any{"symbol": "AAPL"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 429")
}

func TestMarketQuoteEmptySymbol(t *testing.T) {
	mq := NewMarketQuoteTool("test-key")
	_, err := mq.Invoke(context.Background(), map[string]any{"symbol": ""})
	require.Error(t, err)
}
