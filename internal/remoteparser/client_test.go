package remoteparser

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailorder/internal"
	"mailorder/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testClient(t *testing.T, attempts int, fn roundTripFunc) *Client {
	t.Helper()
	client := NewClient(config.Config{
		ParserURL:          "https://parser.test/api/parser",
		ParserTimeoutMs:    1000,
		ParserMaxAttempts:  attempts,
		ParserRateLimitRPS: 1000,
	})
	client.httpClient = &http.Client{Transport: fn}
	return client
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestParseWithRetry(t *testing.T) {
	attempt := 0
	client := testClient(t, 3, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/api/parser" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Products) != 2 || req.Text != "body" {
			t.Fatalf("unexpected payload %+v", req)
		}

		attempt++
		if attempt == 1 {
			return jsonResponse(http.StatusServiceUnavailable, `{"error":"busy"}`), nil
		}
		return jsonResponse(http.StatusOK, `{"B":"2 pack","A":"5 units","flag":1}`), nil
	})

	res, err := client.Parse(context.Background(), []string{"A", "B"}, "body")
	if err != nil {
		t.Fatal(err)
	}
	if attempt != 2 {
		t.Fatalf("attempts=%d", attempt)
	}
	assert.Equal(t, []internal.LineItem{{ProductName: "B", QuantityRaw: "2 pack"}, {ProductName: "A", QuantityRaw: "5 units"}}, res.Items)
	require.NotNil(t, res.Flag)
	assert.True(t, *res.Flag)
}

func TestParseNonRetryableStatusFailsClosed(t *testing.T) {
	calls := 0
	client := testClient(t, 3, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusBadRequest, `{"error":"bad"}`), nil
	})

	_, err := client.Parse(context.Background(), nil, "body")
	require.ErrorIs(t, err, internal.ErrExternalService)
	assert.Contains(t, err.Error(), "status=400")
	assert.Equal(t, 1, calls)
}

func TestParseGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	client := testClient(t, 2, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusBadGateway, ``), nil
	})

	_, err := client.Parse(context.Background(), nil, "body")
	require.ErrorIs(t, err, internal.ErrExternalService)
	assert.Equal(t, 2, calls)
}

func TestParseMalformedBody(t *testing.T) {
	client := testClient(t, 1, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `["not","an","object"]`), nil
	})

	_, err := client.Parse(context.Background(), nil, "body")
	require.ErrorIs(t, err, internal.ErrExternalService)
}

func TestParseCanceledContext(t *testing.T) {
	client := testClient(t, 3, func(r *http.Request) (*http.Response, error) {
		t.Fatal("request must not be sent")
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Parse(ctx, nil, "body")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "canceled", internal.ErrorKind(err))
}
