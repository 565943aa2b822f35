package realtime

// Rooms delivery and admin clients join after authenticating.
const (
	RoomDeliveries = "deliveries"
	RoomAdmin      = "admin"
)

// VehicleRoom is the per-vehicle-class sub-room of RoomDeliveries.
func VehicleRoom(method string) string {
	return RoomDeliveries + ":" + method
}

// Events pushed to connected clients.
const (
	EventOrderCooked        = "order:cooked"
	EventOrderStatusUpdated = "order:status-updated"
	EventDeliveryAssigned   = "delivery:assigned"
	EventDeliveryCancelled  = "delivery:cancelled"
	EventAvailableCount     = "available-orders-count"
)

// Roles accepted in a joinRole frame.
const (
	RoleDeliveryPerson = "Delivery_Person"
	RoleAdmin          = "Admin"
	RoleManager        = "Manager"
)

// Publisher fans an event out to every client in a room. Services receive a
// Publisher at construction; delivery is best-effort, at-most-once, with no
// backlog for disconnected clients.
type Publisher interface {
	Publish(room, event string, payload interface{})
}

// NoopPublisher satisfies Publisher where realtime is not configured, and in
// tests.
type NoopPublisher struct{}

func (NoopPublisher) Publish(room, event string, payload interface{}) {}
