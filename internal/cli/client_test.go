package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banksim/internal/bank"
)

func TestClientDecodesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"insufficient funds"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).BuyProduct(context.Background(), 1, 2)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "insufficient funds", apiErr.Message)
}

func TestClientPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Poll(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "gateway down", apiErr.Message)
}

func TestBuyProductSendsBodyAndIdempotencyKey(t *testing.T) {
	var gotBody map[string]int64
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/marketplace/buy", r.URL.Path)
		gotKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(bank.PurchaseResult{ListingID: 9, Price: 100, BuyerBalance: 50})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL+"/").BuyProduct(context.Background(), 3, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.BuyerBalance)
	assert.Equal(t, map[string]int64{"buyer_id": 3, "product_id": 9}, gotBody)
	assert.NotEmpty(t, gotKey)
}

func TestGetUserAndUpdateBalance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/users/7", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(bank.User{ID: 7, Username: "anna", Balance: 170000})
	})
	var balanceReq map[string]int64
	mux.HandleFunc("/v1/balance", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&balanceReq))
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL)
	u, err := c.GetUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "anna", u.Username)

	require.NoError(t, c.UpdateBalance(context.Background(), 7, 120000))
	assert.Equal(t, map[string]int64{"user_id": 7, "balance": 120000}, balanceReq)
}

func TestAdjustBalanceSendsDeltaAndKey(t *testing.T) {
	var gotBody map[string]any
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/balance/adjust", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		gotKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(bank.User{ID: 7, Balance: 160000})
	}))
	defer srv.Close()

	u, err := NewClient(srv.URL).AdjustBalance(context.Background(), bank.AdjustBalanceInput{
		UserID: 7, Delta: 10000, Type: bank.TxCreditTaken, Description: "Express",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(160000), u.Balance)
	assert.Equal(t, float64(10000), gotBody["delta"])
	assert.Equal(t, "credit_taken", gotBody["type"])
	assert.NotContains(t, gotBody, "IdempotencyKey")
	assert.NotEmpty(t, gotKey)
}

func TestPollHitsBotEndpoint(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/bot/tick", r.URL.Path)
		hits++
		_, _ = w.Write([]byte(`{"purchases_made":0,"timestamp":"2024-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL).Poll(context.Background()))
	assert.Equal(t, 1, hits)
}
