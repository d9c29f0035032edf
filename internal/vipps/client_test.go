package vipps

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mandymgr/helseriet-backend/internal/config"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/accesstoken/get" {
			require.Equal(t, "test-client", r.Header.Get("client_id"))
			require.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
			json.NewEncoder(w).Encode(map[string]string{
				"access_token": "test-token",
				"expires_in":   "3600",
			})
			return
		}
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(&config.Vipps{
		BaseURL:              srv.URL,
		ClientID:             "test-client",
		ClientSecret:         "test-secret",
		SubscriptionKey:      "test-key",
		MerchantSerialNumber: "123456",
	})
	return srv, client
}

func TestGetPaymentStatus(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/ecomm/v2/payments/HS-20250101-ABCDEF12/details", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"orderId": "HS-20250101-ABCDEF12",
			"transactionLogHistory": []map[string]any{
				{"operation": "RESERVE", "transactionId": "tx1", "amount": 49900, "timeStamp": "2025-01-01T12:00:00Z"},
				{"operation": "INITIATE", "transactionId": "tx1", "amount": 49900, "timeStamp": "2025-01-01T11:59:00Z"},
			},
		})
	})

	info, err := client.GetPaymentStatus(context.Background(), "HS-20250101-ABCDEF12")
	require.NoError(t, err)
	require.Equal(t, StatusReserved, info.Status)
	require.Equal(t, "tx1", info.TransactionID)
	require.Equal(t, float64(499), info.Amount)
}

func TestGetPaymentStatusUnknownOperation(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"orderId": "HS-1",
			"transactionLogHistory": []map[string]any{
				{"operation": "VOID_FUTURE_OP", "transactionId": "tx9", "amount": 100, "timeStamp": ""},
			},
		})
	})

	info, err := client.GetPaymentStatus(context.Background(), "HS-1")
	require.NoError(t, err)
	require.Equal(t, StatusUnknown, info.Status)
	require.Equal(t, "VOID_FUTURE_OP", info.RawStatus)
}

func TestCapturePayment(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/ecomm/v2/payments/HS-2/capture", r.URL.Path)

		var payload struct {
			MerchantInfo struct {
				MerchantSerialNumber string `json:"merchantSerialNumber"`
			} `json:"merchantInfo"`
			Transaction struct {
				Amount          int64  `json:"amount"`
				TransactionText string `json:"transactionText"`
			} `json:"transaction"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "123456", payload.MerchantInfo.MerchantSerialNumber)
		require.Equal(t, int64(49900), payload.Transaction.Amount)

		json.NewEncoder(w).Encode(map[string]any{
			"orderId": "HS-2",
			"transactionInfo": map[string]any{
				"transactionId": "tx2",
				"status":        "CAPTURED",
				"amount":        49900,
			},
		})
	})

	res, err := client.CapturePayment(context.Background(), "HS-2", 499, "order HS-2")
	require.NoError(t, err)
	require.Equal(t, "HS-2", res.OrderNumber)
	require.Equal(t, StatusCaptured, res.Status)
	require.Equal(t, "tx2", res.TransactionID)
}

func TestProviderErrorSurfaces(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"payment not found"}`, http.StatusBadRequest)
	})

	_, err := client.CancelPayment(context.Background(), "HS-3", "cancel")
	require.Error(t, err)
	require.Contains(t, err.Error(), "vipps error 400")
}
