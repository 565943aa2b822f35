package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gebeta-delivery/internal/models"
)

// RepositoryInterface defines the persistence operations for delivery
// assignments and the shared pool of unclaimed orders.
type RepositoryInterface interface {
	// AcceptOrder atomically binds the delivery person to an unclaimed
	// cooked order and opens an assignment. Returns ErrNotAvailable when
	// the order was never in the pool or someone claimed it first.
	AcceptOrder(ctx context.Context, orderID, deliveryPersonID string) (*models.Order, error)
	// CancelAssignment releases the binding and returns the order to the
	// pool. Only the assigned person may cancel, and only before pickup.
	CancelAssignment(ctx context.Context, orderID, deliveryPersonID string) (*models.Order, error)
	// PickUp moves the order to Delivering when the pickup code matches,
	// consuming the code.
	PickUp(ctx context.Context, orderID, deliveryPersonID, pickupCode string) (*models.Order, error)
	ListAvailable(ctx context.Context, vehicle string) ([]*models.AvailableOrder, error)
	CountAvailable(ctx context.Context) (int, error)
	ListByDeliveryPersonID(ctx context.Context, deliveryPersonID string) ([]*models.Delivery, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Delivery, error)
	// Rate records the customer's rating on a completed assignment.
	Rate(ctx context.Context, orderID, customerID string, rating int, feedback string) (*models.Delivery, error)
}

// Repository implements the RepositoryInterface.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new delivery repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const orderColumns = `
	id, code, user_id, restaurant_id, food_price, delivery_fee, tip, total_price,
	type_of_order, delivery_vehicle, destination_lat, destination_lng,
	order_status, transaction_ref, transaction_status, checkout_url,
	pickup_code, delivery_code, delivery_person_id, picked_up_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.Code, &o.UserID, &o.RestaurantID,
		&o.FoodPrice, &o.DeliveryFee, &o.Tip, &o.TotalPrice,
		&o.TypeOfOrder, &o.DeliveryVehicle, &o.DestinationLat, &o.DestinationLng,
		&o.Status, &o.TransactionRef, &o.TransactionState, &o.CheckoutURL,
		&o.PickupCode, &o.DeliveryCode, &o.DeliveryPersonID, &o.PickedUpAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// AcceptOrder: a single conditional UPDATE is the whole race arbiter. Two
// concurrent accepts hit the same row; the first one to commit flips
// delivery_person_id from NULL, the second matches zero rows.
func (r *Repository) AcceptOrder(ctx context.Context, orderID, deliveryPersonID string) (*models.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository.AcceptOrder: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	claim := `
		UPDATE orders
		SET delivery_person_id = $2, updated_at = NOW()
		WHERE id = $1
		  AND order_status = 'Cooked'
		  AND type_of_order = 'Delivery'
		  AND delivery_person_id IS NULL
		RETURNING ` + orderColumns
	order, err := scanOrder(tx.QueryRow(ctx, claim, orderID, deliveryPersonID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotAvailable
		}
		return nil, fmt.Errorf("repository.AcceptOrder: %w", err)
	}

	const openAssignment = `
		INSERT INTO deliveries (delivery_person_id, order_id, status, delivery_price)
		VALUES ($1, $2, 'Assigned', $3)`
	if _, err := tx.Exec(ctx, openAssignment, deliveryPersonID, orderID, order.DeliveryFee+order.Tip); err != nil {
		return nil, fmt.Errorf("repository.AcceptOrder: assignment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository.AcceptOrder: commit: %w", err)
	}
	return order, nil
}

// CancelAssignment releases the claim. The order condition requires Cooked:
// after pickup the assignment can no longer be abandoned through this path.
func (r *Repository) CancelAssignment(ctx context.Context, orderID, deliveryPersonID string) (*models.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository.CancelAssignment: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	release := `
		UPDATE orders
		SET delivery_person_id = NULL, updated_at = NOW()
		WHERE id = $1
		  AND delivery_person_id = $2
		  AND order_status = 'Cooked'
		RETURNING ` + orderColumns
	order, err := scanOrder(tx.QueryRow(ctx, release, orderID, deliveryPersonID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.CancelAssignment: %w", err)
	}

	const closeAssignment = `
		UPDATE deliveries
		SET status = 'Cancelled', updated_at = NOW()
		WHERE order_id = $1 AND delivery_person_id = $2 AND status = 'Assigned'`
	if _, err := tx.Exec(ctx, closeAssignment, orderID, deliveryPersonID); err != nil {
		return nil, fmt.Errorf("repository.CancelAssignment: assignment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository.CancelAssignment: commit: %w", err)
	}
	return order, nil
}

// PickUp consumes the pickup code and starts the Delivering leg. On a failed
// match the current row is re-read to tell the caller which precondition
// broke.
func (r *Repository) PickUp(ctx context.Context, orderID, deliveryPersonID, pickupCode string) (*models.Order, error) {
	confirm := `
		UPDATE orders
		SET order_status = 'Delivering', pickup_code = NULL, picked_up_at = NOW(), updated_at = NOW()
		WHERE id = $1
		  AND order_status = 'Cooked'
		  AND delivery_person_id = $2
		  AND pickup_code = $3
		RETURNING ` + orderColumns
	order, err := scanOrder(r.db.QueryRow(ctx, confirm, orderID, deliveryPersonID, pickupCode))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("repository.PickUp: %w", err)
	}

	const inspect = `
		SELECT order_status, delivery_person_id FROM orders WHERE id = $1`
	var status string
	var boundTo *string
	if err := r.db.QueryRow(ctx, inspect, orderID).Scan(&status, &boundTo); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.PickUp: inspect: %w", err)
	}
	switch {
	case status == models.StatusDelivering || status == models.StatusCompleted:
		return nil, models.ErrAlreadyPickedUp
	case boundTo == nil || *boundTo != deliveryPersonID:
		return nil, models.ErrPermissionDenied
	default:
		return nil, models.ErrInvalidCode
	}
}

// ListAvailable returns the unclaimed pool, optionally restricted to one
// vehicle type, oldest first.
func (r *Repository) ListAvailable(ctx context.Context, vehicle string) ([]*models.AvailableOrder, error) {
	query := `
		SELECT o.id, o.restaurant_id, r.name, r.latitude, r.longitude,
		       o.destination_lat, o.destination_lng, o.delivery_fee, o.tip, o.delivery_vehicle
		FROM orders o
		JOIN restaurants r ON r.id = o.restaurant_id
		WHERE o.order_status = 'Cooked'
		  AND o.type_of_order = 'Delivery'
		  AND o.delivery_person_id IS NULL`
	args := []interface{}{}
	if vehicle != "" {
		query += ` AND o.delivery_vehicle = $1`
		args = append(args, vehicle)
	}
	query += ` ORDER BY o.updated_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.ListAvailable: %w", err)
	}
	defer rows.Close()

	var pool []*models.AvailableOrder
	for rows.Next() {
		var a models.AvailableOrder
		var v *string
		if err := rows.Scan(
			&a.OrderID, &a.RestaurantID, &a.RestaurantName, &a.RestaurantLat, &a.RestaurantLng,
			&a.DestinationLat, &a.DestinationLng, &a.DeliveryFee, &a.Tip, &v,
		); err != nil {
			return nil, fmt.Errorf("repository.ListAvailable: scan: %w", err)
		}
		if v != nil {
			a.Vehicle = *v
		}
		pool = append(pool, &a)
	}
	return pool, rows.Err()
}

// CountAvailable counts the unclaimed pool.
func (r *Repository) CountAvailable(ctx context.Context) (int, error) {
	const query = `
		SELECT COUNT(*) FROM orders
		WHERE order_status = 'Cooked' AND type_of_order = 'Delivery' AND delivery_person_id IS NULL`
	var count int
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("repository.CountAvailable: %w", err)
	}
	return count, nil
}

// ListByDeliveryPersonID returns the person's assignment history, newest
// first.
func (r *Repository) ListByDeliveryPersonID(ctx context.Context, deliveryPersonID string) ([]*models.Delivery, error) {
	const query = `
		SELECT id, delivery_person_id, order_id, status, delivery_price,
		       rating, feedback, delivered_at, created_at, updated_at
		FROM deliveries
		WHERE delivery_person_id = $1
		ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, deliveryPersonID)
	if err != nil {
		return nil, fmt.Errorf("repository.ListByDeliveryPersonID: %w", err)
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		d := &models.Delivery{}
		if err := rows.Scan(
			&d.ID, &d.DeliveryPersonID, &d.OrderID, &d.Status, &d.DeliveryPrice,
			&d.Rating, &d.Feedback, &d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("repository.ListByDeliveryPersonID: scan: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// FindByOrderID returns the most recent assignment for the order.
func (r *Repository) FindByOrderID(ctx context.Context, orderID string) (*models.Delivery, error) {
	const query = `
		SELECT id, delivery_person_id, order_id, status, delivery_price,
		       rating, feedback, delivered_at, created_at, updated_at
		FROM deliveries
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	d := &models.Delivery{}
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&d.ID, &d.DeliveryPersonID, &d.OrderID, &d.Status, &d.DeliveryPrice,
		&d.Rating, &d.Feedback, &d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindByOrderID: %w", err)
	}
	return d, nil
}

// Rate stores the customer's rating. The join on orders keeps a customer from
// rating someone else's delivery; the status condition rejects assignments
// that never completed.
func (r *Repository) Rate(ctx context.Context, orderID, customerID string, rating int, feedback string) (*models.Delivery, error) {
	const query = `
		UPDATE deliveries d
		SET rating = $3, feedback = NULLIF($4, ''), updated_at = NOW()
		FROM orders o
		WHERE d.order_id = o.id
		  AND d.order_id = $1
		  AND o.user_id = $2
		  AND d.status = 'Completed'
		RETURNING d.id, d.delivery_person_id, d.order_id, d.status, d.delivery_price,
		          d.rating, d.feedback, d.delivered_at, d.created_at, d.updated_at`
	d := &models.Delivery{}
	err := r.db.QueryRow(ctx, query, orderID, customerID, rating, feedback).Scan(
		&d.ID, &d.DeliveryPersonID, &d.OrderID, &d.Status, &d.DeliveryPrice,
		&d.Rating, &d.Feedback, &d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("repository.Rate: %w", err)
	}

	existing, ferr := r.FindByOrderID(ctx, orderID)
	if ferr != nil {
		return nil, ferr
	}
	if existing.Status != models.AssignmentCompleted {
		return nil, models.ErrInvalidTransition
	}
	return nil, models.ErrPermissionDenied
}
