package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClearinghouseState_ParsesStringEncodedNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"marginSummary":{"accountValue":"1234.5"},"assetPositions":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	out, err := c.ClearinghouseState(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, Number(1234.5), out.MarginSummary.AccountValue)
}

func TestClient_NonOKStatusReturnsUnavailableWithoutRetrying(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ClearinghouseState(context.Background(), "0xabc")
	require.Error(t, err)
	var unavail *Unavailable
	assert.ErrorAs(t, err, &unavail)
	assert.Equal(t, 1, hits, "a non-429 error status must not be retried")
}

func TestClient_MalformedPayloadReturnsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ClearinghouseState(context.Background(), "0xabc")
	require.Error(t, err)
	var unavail *Unavailable
	assert.ErrorAs(t, err, &unavail)
}

func TestClient_RateLimitedRetriesThenAbortsOnContextCancel(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.ClearinghouseState(ctx, "0xabc")
	require.Error(t, err)
	var unavail *Unavailable
	assert.ErrorAs(t, err, &unavail)
	assert.Equal(t, 1, hits, "back-off delay should be interrupted by context cancellation before a second attempt")
}

func TestMetaAndAssetCtxs_ParsesSecondElement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := []json.RawMessage{
			json.RawMessage(`{"universe":[]}`),
			json.RawMessage(`[{"funding":"0.0001","premium":"0","openInterest":"100","markPx":"50000","midPx":"50001"}]`),
		}
		b, _ := json.Marshal(raw)
		w.Write(b)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, ctxs, err := c.MetaAndAssetCtxs(context.Background())
	require.NoError(t, err)
	require.Len(t, ctxs, 1)
	assert.Equal(t, Number(0.0001), ctxs[0].Funding)
}

func TestMetaAndAssetCtxs_ShortResponseIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := json.Marshal([]json.RawMessage{json.RawMessage(`{}`)})
		w.Write(b)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, _, err := c.MetaAndAssetCtxs(context.Background())
	require.Error(t, err)
}

func TestNumber_UnmarshalsStringAndPlainNumber(t *testing.T) {
	var n Number
	require.NoError(t, json.Unmarshal([]byte(`"12.5"`), &n))
	assert.Equal(t, Number(12.5), n)

	require.NoError(t, json.Unmarshal([]byte(`7`), &n))
	assert.Equal(t, Number(7), n)
}
