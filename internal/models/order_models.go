package models

import "time"

// Order lifecycle statuses. Progression is strictly forward except Cancelled,
// which is reachable from any non-terminal state.
const (
	StatusPending    = "Pending"
	StatusPreparing  = "Preparing"
	StatusCooked     = "Cooked"
	StatusDelivering = "Delivering"
	StatusCompleted  = "Completed"
	StatusCancelled  = "Cancelled"
)

// Embedded transaction statuses. The transaction flips to Paid exactly once,
// driven only by a verified gateway callback.
const (
	TransactionPending = "Pending"
	TransactionPaid    = "Paid"
)

const (
	OrderTypeDelivery = "Delivery"
	OrderTypeTakeaway = "Takeaway"
)

// statusRank orders the forward progression for transition checks.
var statusRank = map[string]int{
	StatusPending:    0,
	StatusPreparing:  1,
	StatusCooked:     2,
	StatusDelivering: 3,
	StatusCompleted:  4,
}

// ValidStatus reports whether s is a member of the order status enum.
func ValidStatus(s string) bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether an order may move from one status to another.
// Cancelled is reachable from any non-terminal state; every other move must
// advance the progression.
func CanTransition(from, to string) bool {
	if from == StatusCompleted || from == StatusCancelled {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// Order is the central aggregate: customer order, embedded transaction and
// delivery binding. Code, PickupCode and DeliveryCode stay nil until the
// transaction is Paid; both verification codes are single-use.
type Order struct {
	ID               string      `json:"id"`
	Code             *string     `json:"order_id,omitempty"`
	UserID           string      `json:"user_id"`
	RestaurantID     string      `json:"restaurant_id"`
	Items            []OrderItem `json:"order_items"`
	FoodPrice        float64     `json:"food_price"`
	DeliveryFee      float64     `json:"delivery_fee"`
	Tip              float64     `json:"tip"`
	TotalPrice       float64     `json:"total_price"`
	TypeOfOrder      string      `json:"type_of_order"`
	DeliveryVehicle  *string     `json:"delivery_vehicle,omitempty"`
	DestinationLat   *float64    `json:"destination_lat,omitempty"`
	DestinationLng   *float64    `json:"destination_lng,omitempty"`
	Status           string      `json:"order_status"`
	TransactionRef   string      `json:"transaction_ref"`
	TransactionState string      `json:"transaction_status"`
	CheckoutURL      string      `json:"checkout_url,omitempty"`
	PickupCode       *string     `json:"pickup_code,omitempty"`
	DeliveryCode     *string     `json:"delivery_code,omitempty"`
	DeliveryPersonID *string     `json:"delivery_person_id,omitempty"`
	PickedUpAt       *time.Time  `json:"picked_up_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// OrderItem is one line of an order. Price and Name are snapshots taken at
// placement time so later menu edits do not rewrite order history.
type OrderItem struct {
	FoodID   string  `json:"food_id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Food is the menu item referenced by order lines.
type Food struct {
	ID           string  `json:"id"`
	RestaurantID string  `json:"restaurant_id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
}

// Restaurant carries the origin coordinates used for fare estimation.
type Restaurant struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PlaceOrderRequest is the payload for creating a new order.
type PlaceOrderRequest struct {
	Items           []PlaceOrderItem `json:"order_items" validate:"required,min=1,dive"`
	TypeOfOrder     string           `json:"type_of_order" validate:"required,oneof=Delivery Takeaway"`
	DeliveryVehicle string           `json:"delivery_vehicle,omitempty"`
	DestinationLat  *float64         `json:"destination_lat,omitempty"`
	DestinationLng  *float64         `json:"destination_lng,omitempty"`
	Tip             float64          `json:"tip,omitempty"`

	// Payer identity forwarded to the payment gateway.
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone" validate:"required"`
}

type PlaceOrderItem struct {
	FoodID   string `json:"food_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

// RetryPaymentRequest re-initializes checkout for an order whose payment
// initialization previously failed.
type RetryPaymentRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone" validate:"required"`
}

// UpdateStatusRequest advances an order through its lifecycle.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// VerifyDeliveryRequest confirms the customer handoff.
type VerifyDeliveryRequest struct {
	OrderID          string `json:"order_id" validate:"required"`
	VerificationCode string `json:"verification_code" validate:"required,len=6,numeric"`
}

// PaymentWebhookPayload is the gateway callback body. The body is never
// trusted on its own; the transaction is always re-verified upstream.
type PaymentWebhookPayload struct {
	TxRef  string `json:"tx_ref" validate:"required"`
	Status string `json:"status,omitempty"`
}

// ErrorResponse is the uniform error body returned by handlers.
type ErrorResponse struct {
	Message string `json:"message"`
}
