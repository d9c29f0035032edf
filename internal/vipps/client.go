package vipps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mandymgr/helseriet-backend/internal/config"
)

// Client talks to the Vipps eCom API. All calls take the request
// context so a slow provider never holds an order transaction open.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	clientID        string
	clientSecret    string
	subscriptionKey string
	msn             string

	mu          sync.Mutex
	accessToken string
	tokenExp    time.Time
}

func NewClient(cfg *config.Vipps) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:         cfg.BaseURL,
		clientID:        cfg.ClientID,
		clientSecret:    cfg.ClientSecret,
		subscriptionKey: cfg.SubscriptionKey,
		msn:             cfg.MerchantSerialNumber,
	}
}

func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExp) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/accesstoken/get", nil)
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("client_id", c.clientID)
	req.Header.Set("client_secret", c.clientSecret)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("vipps token error %d: %s", resp.StatusCode, string(b))
	}

	var res struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in,string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	c.accessToken = res.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(res.ExpiresIn-60) * time.Second)
	return c.accessToken, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get vipps access token: %w", err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vipps request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("vipps error %d: %s", resp.StatusCode, string(b))
	}
	return resp, nil
}

type detailsResponse struct {
	OrderID        string `json:"orderId"`
	TransactionLog []struct {
		Operation        string  `json:"operation"`
		TransactionID    string  `json:"transactionId"`
		Amount           float64 `json:"amount"`
		TimeStamp        string  `json:"timeStamp"`
		OperationSuccess bool    `json:"operationSuccess"`
	} `json:"transactionLogHistory"`
	TransactionSummary struct {
		CapturedAmount           float64 `json:"capturedAmount"`
		RemainingAmountToCapture float64 `json:"remainingAmountToCapture"`
	} `json:"transactionSummary"`
}

// GetPaymentStatus polls the provider for the latest transaction state
// of the payment correlated by orderNumber. Amounts on the wire are in
// øre; callers get NOK.
func (c *Client) GetPaymentStatus(ctx context.Context, orderNumber string) (*TransactionInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, "/ecomm/v2/payments/"+orderNumber+"/details", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var details detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("decode details response: %w", err)
	}
	if len(details.TransactionLog) == 0 {
		return nil, fmt.Errorf("vipps details for %s: empty transaction log", orderNumber)
	}

	// The first entry is the most recent operation.
	last := details.TransactionLog[0]
	return &TransactionInfo{
		Status:        ParseTransactionStatus(last.Operation),
		RawStatus:     last.Operation,
		TransactionID: last.TransactionID,
		Amount:        last.Amount / 100,
		TimeStamp:     last.TimeStamp,
	}, nil
}

// CapturePayment converts a reservation into a charge. amount == 0
// captures the full reserved amount.
func (c *Client) CapturePayment(ctx context.Context, orderNumber string, amount float64, description string) (*Result, error) {
	payload := map[string]any{
		"merchantInfo": map[string]string{"merchantSerialNumber": c.msn},
		"transaction": map[string]any{
			"amount":          int64(amount * 100),
			"transactionText": description,
		},
	}
	resp, err := c.do(ctx, http.MethodPost, "/ecomm/v2/payments/"+orderNumber+"/capture", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeResult(resp.Body, orderNumber)
}

func (c *Client) CancelPayment(ctx context.Context, orderNumber string, description string) (*Result, error) {
	payload := map[string]any{
		"merchantInfo": map[string]string{"merchantSerialNumber": c.msn},
		"transaction": map[string]any{
			"transactionText": description,
		},
	}
	resp, err := c.do(ctx, http.MethodPut, "/ecomm/v2/payments/"+orderNumber+"/cancel", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeResult(resp.Body, orderNumber)
}

func decodeResult(r io.Reader, orderNumber string) (*Result, error) {
	var res struct {
		OrderID         string `json:"orderId"`
		TransactionInfo struct {
			TransactionID string  `json:"transactionId"`
			Status        string  `json:"status"`
			Amount        float64 `json:"amount"`
		} `json:"transactionInfo"`
	}
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode vipps response: %w", err)
	}
	if res.OrderID == "" {
		res.OrderID = orderNumber
	}
	return &Result{
		OrderNumber:   res.OrderID,
		TransactionID: res.TransactionInfo.TransactionID,
		Status:        ParseTransactionStatus(res.TransactionInfo.Status),
		Amount:        res.TransactionInfo.Amount / 100,
	}, nil
}
