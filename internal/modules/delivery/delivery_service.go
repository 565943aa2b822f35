package delivery

import (
	"context"
	"fmt"

	"gebeta-delivery/internal/models"
	"gebeta-delivery/internal/realtime"
	"gebeta-delivery/pkg/logger"
)

// ServiceInterface defines the business logic for delivery assignments.
type ServiceInterface interface {
	AcceptOrder(ctx context.Context, deliveryPersonID, orderID string) (*models.Order, error)
	CancelAssignment(ctx context.Context, deliveryPersonID, orderID string) error
	PickUp(ctx context.Context, deliveryPersonID string, req models.PickupRequest) (*models.Order, error)
	ListAvailable(ctx context.Context, vehicle string) ([]*models.AvailableOrder, error)
	CountAvailable(ctx context.Context) (int, error)
	ListMyDeliveries(ctx context.Context, deliveryPersonID string) ([]*models.Delivery, error)
	RateDelivery(ctx context.Context, customerID, orderID string, req models.RateDeliveryRequest) (*models.Delivery, error)
}

// Service implements the assignment workflow: claiming orders from the shared
// pool, backing out, and the pickup handoff at the restaurant.
type Service struct {
	repo      RepositoryInterface
	publisher realtime.Publisher
	log       logger.ILogger
}

// NewService creates a new delivery service.
func NewService(repo RepositoryInterface, publisher realtime.Publisher, log logger.ILogger) ServiceInterface {
	return &Service{
		repo:      repo,
		publisher: publisher,
		log:       log,
	}
}

// AcceptOrder claims an unclaimed cooked order for the delivery person. The
// order stays Cooked until the pickup code is presented; acceptance only
// reserves it. The response carries the pickup code, so retrying an accept
// the caller already holds is answered with ErrNotAvailable rather than a
// second claim.
func (s *Service) AcceptOrder(ctx context.Context, deliveryPersonID, orderID string) (*models.Order, error) {
	order, err := s.repo.AcceptOrder(ctx, orderID, deliveryPersonID)
	if err != nil {
		return nil, fmt.Errorf("service.AcceptOrder: %w", err)
	}

	s.publisher.Publish(realtime.RoomDeliveries, realtime.EventDeliveryAssigned, map[string]string{
		"order_id": order.ID,
	})
	s.publisher.Publish(realtime.RoomAdmin, realtime.EventDeliveryAssigned, map[string]string{
		"order_id":           order.ID,
		"delivery_person_id": deliveryPersonID,
	})
	s.publishCount(ctx)

	return order, nil
}

// CancelAssignment returns a claimed order to the pool. The pool re-announce
// mirrors the original Cooked broadcast so idle delivery people see it again.
func (s *Service) CancelAssignment(ctx context.Context, deliveryPersonID, orderID string) error {
	order, err := s.repo.CancelAssignment(ctx, orderID, deliveryPersonID)
	if err != nil {
		return fmt.Errorf("service.CancelAssignment: %w", err)
	}

	s.publisher.Publish(realtime.RoomAdmin, realtime.EventDeliveryCancelled, map[string]string{
		"order_id":           order.ID,
		"delivery_person_id": deliveryPersonID,
	})
	s.announceAvailable(ctx, order)

	return nil
}

// PickUp verifies the pickup code and starts the Delivering leg.
func (s *Service) PickUp(ctx context.Context, deliveryPersonID string, req models.PickupRequest) (*models.Order, error) {
	order, err := s.repo.PickUp(ctx, req.OrderID, deliveryPersonID, req.PickupCode)
	if err != nil {
		return nil, fmt.Errorf("service.PickUp: %w", err)
	}

	statusEvent := map[string]string{
		"order_id": order.ID,
		"status":   order.Status,
	}
	s.publisher.Publish(realtime.RoomAdmin, realtime.EventOrderStatusUpdated, statusEvent)
	s.publisher.Publish(realtime.RoomDeliveries, realtime.EventOrderStatusUpdated, statusEvent)
	s.publishCount(ctx)

	return order, nil
}

// ListAvailable returns the unclaimed pool, optionally filtered by vehicle.
func (s *Service) ListAvailable(ctx context.Context, vehicle string) ([]*models.AvailableOrder, error) {
	if vehicle != "" && !models.ValidVehicle(vehicle) {
		return nil, fmt.Errorf("%w: unknown vehicle %q", models.ErrInvalidInput, vehicle)
	}
	pool, err := s.repo.ListAvailable(ctx, vehicle)
	if err != nil {
		return nil, fmt.Errorf("service.ListAvailable: %w", err)
	}
	return pool, nil
}

// CountAvailable returns the size of the unclaimed pool.
func (s *Service) CountAvailable(ctx context.Context) (int, error) {
	count, err := s.repo.CountAvailable(ctx)
	if err != nil {
		return 0, fmt.Errorf("service.CountAvailable: %w", err)
	}
	return count, nil
}

// ListMyDeliveries returns the delivery person's assignment history.
func (s *Service) ListMyDeliveries(ctx context.Context, deliveryPersonID string) ([]*models.Delivery, error) {
	deliveries, err := s.repo.ListByDeliveryPersonID(ctx, deliveryPersonID)
	if err != nil {
		return nil, fmt.Errorf("service.ListMyDeliveries: %w", err)
	}
	return deliveries, nil
}

// RateDelivery records the customer's rating of a completed delivery.
func (s *Service) RateDelivery(ctx context.Context, customerID, orderID string, req models.RateDeliveryRequest) (*models.Delivery, error) {
	d, err := s.repo.Rate(ctx, orderID, customerID, req.Rating, req.Feedback)
	if err != nil {
		return nil, fmt.Errorf("service.RateDelivery: %w", err)
	}
	return d, nil
}

// announceAvailable re-broadcasts an order returned to the pool.
func (s *Service) announceAvailable(ctx context.Context, order *models.Order) {
	vehicle := ""
	if order.DeliveryVehicle != nil {
		vehicle = *order.DeliveryVehicle
	}
	payload := map[string]interface{}{
		"order_id":      order.ID,
		"restaurant_id": order.RestaurantID,
		"delivery_fee":  order.DeliveryFee,
		"tip":           order.Tip,
	}
	s.publisher.Publish(realtime.RoomDeliveries, realtime.EventOrderCooked, payload)
	if vehicle != "" {
		s.publisher.Publish(realtime.VehicleRoom(vehicle), realtime.EventOrderCooked, payload)
	}
	s.publishCount(ctx)
}

func (s *Service) publishCount(ctx context.Context) {
	count, err := s.repo.CountAvailable(ctx)
	if err != nil {
		s.log.Error("count available orders", logger.Error(err))
		return
	}
	s.publisher.Publish(realtime.RoomDeliveries, realtime.EventAvailableCount, map[string]int{"count": count})
}
