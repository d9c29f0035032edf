package status

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderConfirmed  OrderStatus = "CONFIRMED"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// orderNext lists the states reachable from each order status.
// DELIVERED and CANCELLED are terminal; CANCELLED is reachable only
// before fulfillment starts.
var orderNext = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderConfirmed, OrderCancelled},
	OrderConfirmed:  {OrderProcessing, OrderShipped, OrderCancelled},
	OrderProcessing: {OrderShipped},
	OrderShipped:    {OrderDelivered},
	OrderDelivered:  {},
	OrderCancelled:  {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderNext[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	for _, n := range orderNext[s] {
		if n == next {
			return true
		}
	}
	return false
}

// PaymentStatus is the provider-agnostic state of a payment attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentFailed    PaymentStatus = "FAILED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentCancelled, PaymentFailed:
		return true
	}
	return false
}

// Terminal reports whether the payment can still change. Only PENDING
// payments accept provider updates; nothing ever leaves COMPLETED.
func (s PaymentStatus) Terminal() bool {
	return s != PaymentPending
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s == next {
		return true
	}
	return s == PaymentPending && next.Valid()
}

// FulfillmentStatus tracks warehouse progress independently of payment.
type FulfillmentStatus string

const (
	FulfillmentUnfulfilled FulfillmentStatus = "UNFULFILLED"
	FulfillmentProcessing  FulfillmentStatus = "PROCESSING"
	FulfillmentShipped     FulfillmentStatus = "SHIPPED"
	FulfillmentDelivered   FulfillmentStatus = "DELIVERED"
)

var fulfillmentRank = map[FulfillmentStatus]int{
	FulfillmentUnfulfilled: 0,
	FulfillmentProcessing:  1,
	FulfillmentShipped:     2,
	FulfillmentDelivered:   3,
}

func (s FulfillmentStatus) Valid() bool {
	_, ok := fulfillmentRank[s]
	return ok
}

func (s FulfillmentStatus) CanTransitionTo(next FulfillmentStatus) bool {
	if !next.Valid() {
		return false
	}
	return fulfillmentRank[next] >= fulfillmentRank[s]
}

// RequiresPaidOrder reports whether goods leave the warehouse in this
// state. An order must never ship before its payment completed.
func (s FulfillmentStatus) RequiresPaidOrder() bool {
	return fulfillmentRank[s] >= fulfillmentRank[FulfillmentShipped]
}
