package vipps

import "github.com/mandymgr/helseriet-backend/internal/status"

// TransactionStatus is the closed set of provider statuses the rest of
// the code is allowed to see. Anything Vipps sends outside this set
// parses to StatusUnknown instead of leaking free text into the core.
type TransactionStatus string

const (
	StatusInitiated  TransactionStatus = "INITIATE"
	StatusRegistered TransactionStatus = "REGISTER"
	StatusReserved   TransactionStatus = "RESERVE"
	StatusAuthorized TransactionStatus = "AUTHORIZED"
	StatusCaptured   TransactionStatus = "CAPTURED"
	StatusCancelled  TransactionStatus = "CANCELLED"
	StatusExpired    TransactionStatus = "EXPIRED"
	StatusRejected   TransactionStatus = "REJECTED"
	StatusUnknown    TransactionStatus = "UNKNOWN"
)

func ParseTransactionStatus(raw string) TransactionStatus {
	switch TransactionStatus(raw) {
	case StatusInitiated, StatusRegistered, StatusReserved, StatusAuthorized,
		StatusCaptured, StatusCancelled, StatusExpired, StatusRejected:
		return TransactionStatus(raw)
	}
	return StatusUnknown
}

// GetStandardStatus maps a provider status onto the internal
// provider-agnostic payment vocabulary. StatusUnknown deliberately maps
// to PENDING so an unrecognized notification never moves a payment.
func GetStandardStatus(s TransactionStatus) status.PaymentStatus {
	switch s {
	case StatusAuthorized, StatusCaptured:
		return status.PaymentCompleted
	case StatusCancelled:
		return status.PaymentCancelled
	case StatusExpired, StatusRejected:
		return status.PaymentFailed
	default:
		return status.PaymentPending
	}
}

// TransactionInfo is the provider-reported view of one transaction, as
// delivered by a webhook or a details poll.
type TransactionInfo struct {
	Status        TransactionStatus `json:"status"`
	RawStatus     string            `json:"raw_status"`
	TransactionID string            `json:"transaction_id"`
	Amount        float64           `json:"amount"`
	TimeStamp     string            `json:"time_stamp"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

// Result is the provider response to a capture or cancel call.
type Result struct {
	OrderNumber   string            `json:"order_number"`
	TransactionID string            `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
	Amount        float64           `json:"amount"`
}
