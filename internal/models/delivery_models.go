package models

import "time"

// Delivery assignment statuses. At most one non-cancelled assignment exists
// per order; the conditional bind on the order row is what enforces it.
const (
	AssignmentAssigned  = "Assigned"
	AssignmentCancelled = "Cancelled"
	AssignmentCompleted = "Completed"
)

// Delivery binds one delivery person to one order. Price, rating and feedback
// are populated after the delivery completes.
type Delivery struct {
	ID               string     `json:"id"`
	DeliveryPersonID string     `json:"delivery_person_id"`
	OrderID          string     `json:"order_id"`
	Status           string     `json:"status"`
	DeliveryPrice    float64    `json:"delivery_price"`
	Rating           *int       `json:"rating,omitempty"`
	Feedback         *string    `json:"feedback,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// AcceptOrderRequest claims an unclaimed cooked order.
type AcceptOrderRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

// CancelAssignmentRequest backs out of an accepted order, returning it to the
// available pool.
type CancelAssignmentRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

// PickupRequest confirms the restaurant handoff with the pickup code.
type PickupRequest struct {
	OrderID    string `json:"order_id" validate:"required"`
	PickupCode string `json:"pickup_code" validate:"required,len=6,numeric"`
}

// RateDeliveryRequest records the customer's rating of a completed delivery.
type RateDeliveryRequest struct {
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Feedback string `json:"feedback,omitempty" validate:"max=1000"`
}

// AvailableOrder is the pool entry pushed to delivery clients: enough to
// decide whether the trip is worth taking, nothing more.
type AvailableOrder struct {
	OrderID        string   `json:"order_id"`
	RestaurantID   string   `json:"restaurant_id"`
	RestaurantName string   `json:"restaurant_name"`
	RestaurantLat  float64  `json:"restaurant_lat"`
	RestaurantLng  float64  `json:"restaurant_lng"`
	DestinationLat *float64 `json:"destination_lat,omitempty"`
	DestinationLng *float64 `json:"destination_lng,omitempty"`
	DeliveryFee    float64  `json:"delivery_fee"`
	Tip            float64  `json:"tip"`
	Vehicle        string   `json:"delivery_vehicle"`
}
