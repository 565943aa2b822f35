package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"gebeta-delivery/internal/models"
	"gebeta-delivery/internal/realtime"
	"gebeta-delivery/pkg/logger"
	"gebeta-delivery/pkg/payment"
)

const codeRetryCap = 3

// FareEstimatorInterface defines the contract the order service needs from
// the fare module.
type FareEstimatorInterface interface {
	Estimate(ctx context.Context, origin, destination models.Coordinates, vehicle string) (*models.FareQuote, error)
}

// ServiceInterface defines the contract for the order service.
type ServiceInterface interface {
	PlaceOrder(ctx context.Context, userID string, req models.PlaceOrderRequest) (*models.Order, error)
	RetryPayment(ctx context.Context, userID, orderID string, req models.RetryPaymentRequest) (*payment.InitializeResult, error)
	EstimateDeliveryFee(ctx context.Context, req models.EstimateFeeRequest) (*models.FareQuote, error)
	GetOrder(ctx context.Context, orderID, actorID, actorRole string) (*models.Order, error)
	ListMyOrders(ctx context.Context, userID string) ([]*models.Order, error)
	ListCurrentOrders(ctx context.Context, userID string) ([]*models.Order, error)
	ListRestaurantOrders(ctx context.Context, restaurantID string) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, orderID, newStatus, actorID, actorRole string) (*models.Order, error)
	VerifyDelivery(ctx context.Context, orderID, code, deliveryPersonID string) (*models.Order, error)
	HandlePaymentCallback(ctx context.Context, txRef string) error
}

// Service implements the order lifecycle: placement, payment, status
// progression and the customer handoff.
type Service struct {
	repo      RepositoryInterface
	fare      FareEstimatorInterface
	gateway   payment.Gateway
	publisher realtime.Publisher
	log       logger.ILogger
	currency  string
	returnURL string
}

// NewService creates a new order service. publisher may be a NoopPublisher
// when realtime is not configured.
func NewService(repo RepositoryInterface, fare FareEstimatorInterface, gateway payment.Gateway, publisher realtime.Publisher, log logger.ILogger, currency, returnURL string) *Service {
	return &Service{
		repo:      repo,
		fare:      fare,
		gateway:   gateway,
		publisher: publisher,
		log:       log,
		currency:  currency,
		returnURL: returnURL,
	}
}

// PlaceOrder validates the item set, prices the order server-side, persists
// it Pending/Pending and initializes the hosted checkout. A failed payment
// initialization deliberately leaves the order in place; the client retries
// through RetryPayment rather than losing its order history.
func (s *Service) PlaceOrder(ctx context.Context, userID string, req models.PlaceOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: no order items provided", models.ErrInvalidInput)
	}
	if req.Tip < 0 {
		return nil, fmt.Errorf("%w: tip cannot be negative", models.ErrInvalidInput)
	}

	foodIDs := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be at least 1", models.ErrInvalidInput)
		}
		foodIDs = append(foodIDs, item.FoodID)
	}

	foods, err := s.repo.GetFoodsByIDs(ctx, foodIDs)
	if err != nil {
		return nil, fmt.Errorf("service.PlaceOrder: %w", err)
	}

	var restaurantID string
	var foodPrice float64
	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		food, ok := foods[item.FoodID]
		if !ok {
			return nil, fmt.Errorf("%w: food item %s", models.ErrNotFound, item.FoodID)
		}
		if restaurantID == "" {
			restaurantID = food.RestaurantID
		} else if restaurantID != food.RestaurantID {
			return nil, fmt.Errorf("%w: all items must be from the same restaurant", models.ErrInvalidInput)
		}
		foodPrice += food.Price * float64(item.Quantity)
		items = append(items, models.OrderItem{
			FoodID:   food.ID,
			Name:     food.Name,
			Price:    food.Price,
			Quantity: item.Quantity,
		})
	}

	order := &models.Order{
		ID:               uuid.NewString(),
		UserID:           userID,
		RestaurantID:     restaurantID,
		Items:            items,
		FoodPrice:        foodPrice,
		Tip:              req.Tip,
		TypeOfOrder:      req.TypeOfOrder,
		Status:           models.StatusPending,
		TransactionState: models.TransactionPending,
	}
	order.TransactionRef = "order-" + order.ID

	if req.TypeOfOrder == models.OrderTypeDelivery {
		if !models.ValidVehicle(req.DeliveryVehicle) {
			return nil, fmt.Errorf("%w: unsupported vehicle class %q", models.ErrInvalidInput, req.DeliveryVehicle)
		}
		if req.DestinationLat == nil || req.DestinationLng == nil {
			return nil, fmt.Errorf("%w: destination coordinates are required for delivery orders", models.ErrInvalidInput)
		}

		restaurant, err := s.repo.GetRestaurant(ctx, restaurantID)
		if err != nil {
			return nil, fmt.Errorf("service.PlaceOrder: %w", err)
		}
		quote, err := s.fare.Estimate(ctx,
			models.Coordinates{Latitude: restaurant.Latitude, Longitude: restaurant.Longitude},
			models.Coordinates{Latitude: *req.DestinationLat, Longitude: *req.DestinationLng},
			req.DeliveryVehicle,
		)
		if err != nil {
			// No partial order: estimator failure fails the placement.
			return nil, fmt.Errorf("service.PlaceOrder: %w", err)
		}

		vehicle := req.DeliveryVehicle
		order.DeliveryVehicle = &vehicle
		order.DestinationLat = req.DestinationLat
		order.DestinationLng = req.DestinationLng
		order.DeliveryFee = quote.Fee
	}

	order.TotalPrice = order.FoodPrice + order.DeliveryFee + order.Tip

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("service.PlaceOrder: %w", err)
	}

	result, err := s.gateway.Initialize(ctx, payment.InitializeRequest{
		Amount:    order.TotalPrice,
		Currency:  s.currency,
		TxRef:     order.TransactionRef,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		ReturnURL: s.returnURL,
	})
	if err != nil {
		// Order stays Pending with no checkout handle; see RetryPayment.
		s.log.Warning("order created but payment initialization failed",
			logger.String("order_id", order.ID), logger.Error(err))
		return order, nil
	}

	if err := s.repo.SetCheckoutURL(ctx, order.ID, result.CheckoutURL); err != nil {
		s.log.Error("failed to store checkout url", logger.String("order_id", order.ID), logger.Error(err))
	}
	order.CheckoutURL = result.CheckoutURL

	return order, nil
}

// RetryPayment re-initializes the checkout for an order whose first
// initialization failed. The tx_ref is unchanged, so the gateway sees the
// same transaction.
func (s *Service) RetryPayment(ctx context.Context, userID, orderID string, req models.RetryPaymentRequest) (*payment.InitializeResult, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.RetryPayment: %w", err)
	}
	if order.UserID != userID {
		return nil, models.ErrNotFound
	}
	if order.TransactionState != models.TransactionPending {
		return nil, fmt.Errorf("%w: transaction is already %s", models.ErrAlreadyProcessed, order.TransactionState)
	}

	result, err := s.gateway.Initialize(ctx, payment.InitializeRequest{
		Amount:    order.TotalPrice,
		Currency:  s.currency,
		TxRef:     order.TransactionRef,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		ReturnURL: s.returnURL,
	})
	if err != nil {
		return nil, fmt.Errorf("service.RetryPayment: %w", err)
	}
	if err := s.repo.SetCheckoutURL(ctx, order.ID, result.CheckoutURL); err != nil {
		s.log.Error("failed to store checkout url", logger.String("order_id", order.ID), logger.Error(err))
	}
	return result, nil
}

// EstimateDeliveryFee quotes a fee without creating anything.
func (s *Service) EstimateDeliveryFee(ctx context.Context, req models.EstimateFeeRequest) (*models.FareQuote, error) {
	return s.fare.Estimate(ctx, req.Origin, req.Destination, req.Vehicle)
}

// GetOrder retrieves one order. Customers only see their own; the bound
// delivery person and staff roles may also read it.
func (s *Service) GetOrder(ctx context.Context, orderID, actorID, actorRole string) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.GetOrder: %w", err)
	}
	if order.UserID == actorID || models.StaffRole(actorRole) {
		return order, nil
	}
	// Return NotFound to avoid leaking order existence.
	return nil, models.ErrNotFound
}

func (s *Service) ListMyOrders(ctx context.Context, userID string) ([]*models.Order, error) {
	return s.repo.ListByUserID(ctx, userID)
}

func (s *Service) ListCurrentOrders(ctx context.Context, userID string) ([]*models.Order, error) {
	return s.repo.ListCurrentByUserID(ctx, userID)
}

func (s *Service) ListRestaurantOrders(ctx context.Context, restaurantID string) ([]*models.Order, error) {
	return s.repo.ListByRestaurantID(ctx, restaurantID)
}

// UpdateStatus advances the order lifecycle. Statuses only move forward;
// Cancelled is reachable from any non-terminal state. Moving a Delivery order
// into Cooked announces it to the delivery pool.
func (s *Service) UpdateStatus(ctx context.Context, orderID, newStatus, actorID, actorRole string) (*models.Order, error) {
	if !models.ValidStatus(newStatus) {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, newStatus)
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.UpdateStatus: %w", err)
	}

	if !models.StaffRole(actorRole) {
		// Customers may only cancel their own order.
		if order.UserID != actorID || newStatus != models.StatusCancelled {
			return nil, models.ErrForbidden
		}
	}
	if newStatus == models.StatusCompleted && order.TypeOfOrder == models.OrderTypeDelivery {
		// Delivery orders complete only through the verification handoff.
		return nil, fmt.Errorf("%w: delivery orders complete via delivery verification", models.ErrInvalidTransition)
	}
	if !models.CanTransition(order.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, order.Status, newStatus)
	}

	if err := s.repo.UpdateStatus(ctx, orderID, order.Status, newStatus); err != nil {
		return nil, fmt.Errorf("service.UpdateStatus: %w", err)
	}
	order.Status = newStatus

	if newStatus == models.StatusCooked && order.TypeOfOrder == models.OrderTypeDelivery {
		s.announceCooked(ctx, order)
	}
	if newStatus == models.StatusCancelled && order.DeliveryPersonID != nil {
		// The open assignment was closed with the order; tell the courier.
		s.publisher.Publish(realtime.RoomDeliveries, realtime.EventDeliveryCancelled, map[string]string{
			"order_id": order.ID,
		})
		order.DeliveryPersonID = nil
	}
	statusEvent := map[string]string{
		"order_id": order.ID,
		"status":   order.Status,
	}
	s.publisher.Publish(realtime.RoomAdmin, realtime.EventOrderStatusUpdated, statusEvent)
	s.publisher.Publish(realtime.RoomDeliveries, realtime.EventOrderStatusUpdated, statusEvent)

	return order, nil
}

// announceCooked pushes the freshly available order to the delivery pool,
// including the vehicle-class sub-room, plus a refreshed unclaimed count.
func (s *Service) announceCooked(ctx context.Context, order *models.Order) {
	restaurant, err := s.repo.GetRestaurant(ctx, order.RestaurantID)
	if err != nil {
		s.log.Error("announce cooked: load restaurant", logger.String("order_id", order.ID), logger.Error(err))
		return
	}

	vehicle := ""
	if order.DeliveryVehicle != nil {
		vehicle = *order.DeliveryVehicle
	}
	available := models.AvailableOrder{
		OrderID:        order.ID,
		RestaurantID:   restaurant.ID,
		RestaurantName: restaurant.Name,
		RestaurantLat:  restaurant.Latitude,
		RestaurantLng:  restaurant.Longitude,
		DestinationLat: order.DestinationLat,
		DestinationLng: order.DestinationLng,
		DeliveryFee:    order.DeliveryFee,
		Tip:            order.Tip,
		Vehicle:        vehicle,
	}

	s.publisher.Publish(realtime.RoomDeliveries, realtime.EventOrderCooked, available)
	if vehicle != "" {
		s.publisher.Publish(realtime.VehicleRoom(vehicle), realtime.EventOrderCooked, available)
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

// HandlePaymentCallback processes a gateway webhook. The callback body is
// never trusted: the transaction is re-verified upstream first, and the state
// mutation is conditioned on the transaction still being Pending so duplicate
// or concurrent callbacks flip the order exactly once.
func (s *Service) HandlePaymentCallback(ctx context.Context, txRef string) error {
	order, err := s.repo.FindByTxRef(ctx, txRef)
	if err != nil {
		return fmt.Errorf("service.HandlePaymentCallback: %w", err)
	}
	if order.TransactionState == models.TransactionPaid {
		return models.ErrAlreadyProcessed
	}

	result, err := s.gateway.Verify(ctx, txRef)
	if err != nil {
		return fmt.Errorf("service.HandlePaymentCallback: %w", err)
	}
	if result.Status != payment.VerifySuccess {
		return fmt.Errorf("%w: gateway reports %s", models.ErrPaymentVerificationFailed, result.Status)
	}

	for attempt := 0; attempt < codeRetryCap; attempt++ {
		code, err := generateOrderCode()
		if err != nil {
			return fmt.Errorf("service.HandlePaymentCallback: %w", err)
		}
		pickupCode, err := generateVerificationCode()
		if err != nil {
			return fmt.Errorf("service.HandlePaymentCallback: %w", err)
		}
		deliveryCode, err := generateVerificationCode()
		if err != nil {
			return fmt.Errorf("service.HandlePaymentCallback: %w", err)
		}

		err = s.repo.MarkPaid(ctx, txRef, code, pickupCode, deliveryCode)
		if errors.Is(err, models.ErrCodeCollision) {
			continue
		}
		if err != nil {
			return fmt.Errorf("service.HandlePaymentCallback: %w", err)
		}

		s.log.Info("payment confirmed",
			logger.String("order_id", order.ID),
			logger.String("tx_ref", txRef),
			logger.Float64("amount", order.TotalPrice))
		s.publisher.Publish(realtime.RoomAdmin, realtime.EventOrderStatusUpdated, map[string]string{
			"order_id":           order.ID,
			"transaction_status": models.TransactionPaid,
		})
		return nil
	}
	return fmt.Errorf("service.HandlePaymentCallback: %w after %d attempts", models.ErrCodeCollision, codeRetryCap)
}

// VerifyDelivery confirms the customer handoff: the order must be
// Delivering, the code must match the stored single-use delivery code, and
// the caller must be the bound delivery person.
func (s *Service) VerifyDelivery(ctx context.Context, orderID, code, deliveryPersonID string) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.VerifyDelivery: %w", err)
	}
	if order.Status != models.StatusDelivering {
		return nil, fmt.Errorf("%w: order is %s, not Delivering", models.ErrInvalidTransition, order.Status)
	}
	if order.DeliveryPersonID != nil && *order.DeliveryPersonID != deliveryPersonID {
		return nil, models.ErrPermissionDenied
	}
	if order.DeliveryCode == nil || *order.DeliveryCode != code {
		return nil, models.ErrInvalidCode
	}

	if err := s.repo.CompleteDelivery(ctx, orderID, code, deliveryPersonID); err != nil {
		return nil, fmt.Errorf("service.VerifyDelivery: %w", err)
	}
	order.Status = models.StatusCompleted
	order.DeliveryCode = nil

	statusEvent := map[string]string{
		"order_id": order.ID,
		"status":   models.StatusCompleted,
	}
	s.publisher.Publish(realtime.RoomAdmin, realtime.EventOrderStatusUpdated, statusEvent)
	s.publisher.Publish(realtime.RoomDeliveries, realtime.EventOrderStatusUpdated, statusEvent)
	return order, nil
}
