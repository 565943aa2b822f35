package models

// Supported delivery vehicle classes.
const (
	VehicleCar     = "Car"
	VehicleMotor   = "Motor"
	VehicleBicycle = "Bicycle"
)

// ValidVehicle reports whether v is a supported vehicle class.
func ValidVehicle(v string) bool {
	switch v {
	case VehicleCar, VehicleMotor, VehicleBicycle:
		return true
	}
	return false
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"required,latitude"`
	Longitude float64 `json:"longitude" validate:"required,longitude"`
}

// FareQuote is the ephemeral result of a fare estimation. It is never
// persisted on its own; PlaceOrder copies the fee onto the order.
type FareQuote struct {
	Vehicle         string  `json:"delivery_vehicle"`
	DistanceKm      float64 `json:"distance_km"`
	DurationSeconds int     `json:"duration_seconds"`
	Fee             float64 `json:"fee"`
}

// EstimateFeeRequest asks for a delivery fee between two points.
type EstimateFeeRequest struct {
	Origin      Coordinates `json:"origin" validate:"required"`
	Destination Coordinates `json:"destination" validate:"required"`
	Vehicle     string      `json:"delivery_vehicle" validate:"required"`
}
