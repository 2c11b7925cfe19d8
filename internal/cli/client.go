package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"banksim/internal/bank"

	"github.com/google/uuid"
)

// APIError is a non-2xx response. Message is the server's "error" field when
// the body carries one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) GetUser(ctx context.Context, userID int64) (bank.User, error) {
	var out bank.User
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/users/%d", userID), nil, &out, "")
	return out, err
}

func (c *Client) CreateUser(ctx context.Context, username string) (bank.User, error) {
	var out bank.User
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/users", map[string]any{
		"username": username,
	}, &out, "")
	return out, err
}

func (c *Client) UpdateBalance(ctx context.Context, userID, balance int64) error {
	return c.jsonRequest(ctx, http.MethodPut, "/v1/balance", map[string]any{
		"user_id": userID,
		"balance": balance,
	}, nil, "")
}

// AdjustBalance changes the balance relative to its server side value.
func (c *Client) AdjustBalance(ctx context.Context, in bank.AdjustBalanceInput) (bank.User, error) {
	var out bank.User
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/balance/adjust", in, &out, uuid.NewString())
	return out, err
}

func (c *Client) ListTransactions(ctx context.Context, userID int64, limit int) ([]bank.Transaction, error) {
	var out []bank.Transaction
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/users/%d/transactions?limit=%d", userID, limit), nil, &out, "")
	return out, err
}

func (c *Client) ListProducts(ctx context.Context) ([]bank.Product, error) {
	var out []bank.Product
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/marketplace", nil, &out, "")
	return out, err
}

func (c *Client) CreateProduct(ctx context.Context, in bank.CreateProductInput) (bank.Product, error) {
	var out bank.Product
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/marketplace", in, &out, "")
	return out, err
}

func (c *Client) BuyProduct(ctx context.Context, buyerID, productID int64) (bank.PurchaseResult, error) {
	var out bank.PurchaseResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/marketplace/buy", map[string]any{
		"buyer_id":   buyerID,
		"product_id": productID,
	}, &out, uuid.NewString())
	return out, err
}

func (c *Client) ListProperties(ctx context.Context) ([]bank.Property, error) {
	var out []bank.Property
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/realestate", nil, &out, "")
	return out, err
}

func (c *Client) CreateProperty(ctx context.Context, in bank.CreatePropertyInput) (bank.Property, error) {
	var out bank.Property
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/realestate", in, &out, "")
	return out, err
}

func (c *Client) BuyProperty(ctx context.Context, buyerID, propertyID int64) (bank.PurchaseResult, error) {
	var out bank.PurchaseResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/realestate/buy", map[string]any{
		"buyer_id":    buyerID,
		"property_id": propertyID,
	}, &out, uuid.NewString())
	return out, err
}

func (c *Client) ListDeposits(ctx context.Context, userID int64) ([]bank.Deposit, error) {
	var out []bank.Deposit
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/users/%d/deposits", userID), nil, &out, "")
	return out, err
}

func (c *Client) CreateDeposit(ctx context.Context, in bank.CreateDepositInput) (bank.Deposit, error) {
	var out bank.Deposit
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/deposits", in, &out, "")
	return out, err
}

func (c *Client) Catalog(ctx context.Context) (bank.Catalog, error) {
	var out bank.Catalog
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/catalog", nil, &out, "")
	return out, err
}

func (c *Client) BotTick(ctx context.Context) (bank.BotTickResult, error) {
	var out bank.BotTickResult
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/bot/tick", nil, &out, "")
	return out, err
}

// Poll triggers one bot round and discards the body. It lets the client
// drive the background poller directly.
func (c *Client) Poll(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodGet, "/v1/bot/tick", nil, nil, "")
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && strings.TrimSpace(body.Error) != "" {
		return strings.TrimSpace(body.Error)
	}
	return strings.TrimSpace(string(raw))
}
