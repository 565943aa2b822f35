package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gebeta-delivery/internal/models"
)

// RepositoryInterface defines the contract for the order repository.
type RepositoryInterface interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
	FindByTxRef(ctx context.Context, txRef string) (*models.Order, error)
	ListByUserID(ctx context.Context, userID string) ([]*models.Order, error)
	ListCurrentByUserID(ctx context.Context, userID string) ([]*models.Order, error)
	ListByRestaurantID(ctx context.Context, restaurantID string) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, orderID, fromStatus, toStatus string) error
	SetCheckoutURL(ctx context.Context, orderID, checkoutURL string) error
	MarkPaid(ctx context.Context, txRef, code, pickupCode, deliveryCode string) error
	CompleteDelivery(ctx context.Context, orderID, deliveryCode, deliveryPersonID string) error
	GetFoodsByIDs(ctx context.Context, foodIDs []string) (map[string]models.Food, error)
	GetRestaurant(ctx context.Context, restaurantID string) (*models.Restaurant, error)
	CountAvailable(ctx context.Context) (int, error)
}

// Repository implements the RepositoryInterface.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new order repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const orderColumns = `
	id, code, user_id, restaurant_id, food_price, delivery_fee, tip, total_price,
	type_of_order, delivery_vehicle, destination_lat, destination_lng,
	order_status, transaction_ref, transaction_status, checkout_url,
	pickup_code, delivery_code, delivery_person_id, picked_up_at, created_at, updated_at`

// Create inserts the order and its line items in one transaction.
func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.Create: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertOrder = `
		INSERT INTO orders (id, user_id, restaurant_id, food_price, delivery_fee, tip, total_price,
			type_of_order, delivery_vehicle, destination_lat, destination_lng,
			order_status, transaction_ref, transaction_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`
	err = tx.QueryRow(ctx, insertOrder,
		order.ID, order.UserID, order.RestaurantID,
		order.FoodPrice, order.DeliveryFee, order.Tip, order.TotalPrice,
		order.TypeOfOrder, order.DeliveryVehicle, order.DestinationLat, order.DestinationLng,
		order.Status, order.TransactionRef, order.TransactionState,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository.Create: %w", err)
	}

	const insertItem = `
		INSERT INTO order_items (order_id, food_id, name, price, quantity)
		VALUES ($1, $2, $3, $4, $5)`
	for _, item := range order.Items {
		if _, err := tx.Exec(ctx, insertItem, order.ID, item.FoodID, item.Name, item.Price, item.Quantity); err != nil {
			return fmt.Errorf("repository.Create: item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository.Create: commit: %w", err)
	}
	return nil
}

// scanOrder is a helper to scan a row into an Order model.
func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	err := row.Scan(
		&order.ID, &order.Code, &order.UserID, &order.RestaurantID,
		&order.FoodPrice, &order.DeliveryFee, &order.Tip, &order.TotalPrice,
		&order.TypeOfOrder, &order.DeliveryVehicle, &order.DestinationLat, &order.DestinationLng,
		&order.Status, &order.TransactionRef, &order.TransactionState, &order.CheckoutURL,
		&order.PickupCode, &order.DeliveryCode, &order.DeliveryPersonID, &order.PickedUpAt,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return &order, nil
}

func (r *Repository) loadItems(ctx context.Context, order *models.Order) error {
	const query = `SELECT food_id, name, price, quantity FROM order_items WHERE order_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, order.ID)
	if err != nil {
		return fmt.Errorf("loadItems: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.FoodID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return fmt.Errorf("loadItems: scan: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

// FindByID retrieves a single order with its line items.
func (r *Repository) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindByID: %w", err)
	}
	if err := r.loadItems(ctx, order); err != nil {
		return nil, fmt.Errorf("repository.FindByID: %w", err)
	}
	return order, nil
}

// FindByTxRef retrieves an order by its payment transaction reference.
func (r *Repository) FindByTxRef(ctx context.Context, txRef string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE transaction_ref = $1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, txRef))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindByTxRef: %w", err)
	}
	return order, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, order := range orders {
		if err := r.loadItems(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// ListByUserID retrieves all orders of one customer, newest first.
func (r *Repository) ListByUserID(ctx context.Context, userID string) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	orders, err := r.list(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository.ListByUserID: %w", err)
	}
	return orders, nil
}

// ListCurrentByUserID retrieves the customer's in-flight orders only.
func (r *Repository) ListCurrentByUserID(ctx context.Context, userID string) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 AND order_status NOT IN ('Completed', 'Cancelled')
		ORDER BY created_at DESC`
	orders, err := r.list(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository.ListCurrentByUserID: %w", err)
	}
	return orders, nil
}

// ListByRestaurantID retrieves all orders placed against one restaurant.
func (r *Repository) ListByRestaurantID(ctx context.Context, restaurantID string) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE restaurant_id = $1 ORDER BY created_at DESC`
	orders, err := r.list(ctx, query, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("repository.ListByRestaurantID: %w", err)
	}
	return orders, nil
}

// UpdateStatus advances an order's status, conditioned on the status the
// caller validated against so a concurrent transition cannot be overwritten.
// Cancelling also releases the courier binding and closes any open
// assignment in the same transaction, so no Assigned row outlives its order.
func (r *Repository) UpdateStatus(ctx context.Context, orderID, fromStatus, toStatus string) error {
	if toStatus != models.StatusCancelled {
		const query = `
			UPDATE orders
			SET order_status = $3, updated_at = NOW()
			WHERE id = $1 AND order_status = $2`
		cmdTag, err := r.db.Exec(ctx, query, orderID, fromStatus, toStatus)
		if err != nil {
			return fmt.Errorf("repository.UpdateStatus: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return models.ErrInvalidTransition
		}
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.UpdateStatus: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const cancelOrder = `
		UPDATE orders
		SET order_status = 'Cancelled', delivery_person_id = NULL, updated_at = NOW()
		WHERE id = $1 AND order_status = $2`
	cmdTag, err := tx.Exec(ctx, cancelOrder, orderID, fromStatus)
	if err != nil {
		return fmt.Errorf("repository.UpdateStatus: cancel: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrInvalidTransition
	}

	const closeAssignment = `
		UPDATE deliveries
		SET status = 'Cancelled', updated_at = NOW()
		WHERE order_id = $1 AND status = 'Assigned'`
	if _, err := tx.Exec(ctx, closeAssignment, orderID); err != nil {
		return fmt.Errorf("repository.UpdateStatus: assignment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository.UpdateStatus: commit: %w", err)
	}
	return nil
}

// SetCheckoutURL stores the hosted checkout handle after payment initialization.
func (r *Repository) SetCheckoutURL(ctx context.Context, orderID, checkoutURL string) error {
	const query = `UPDATE orders SET checkout_url = $2, updated_at = NOW() WHERE id = $1`
	cmdTag, err := r.db.Exec(ctx, query, orderID, checkoutURL)
	if err != nil {
		return fmt.Errorf("repository.SetCheckoutURL: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkPaid flips the embedded transaction to Paid and stamps the human order
// code plus both verification codes. The WHERE clause on transaction_status
// makes duplicate webhook deliveries a no-op: exactly one caller wins.
func (r *Repository) MarkPaid(ctx context.Context, txRef, code, pickupCode, deliveryCode string) error {
	const query = `
		UPDATE orders
		SET transaction_status = 'Paid',
		    code = $2,
		    pickup_code = $3,
		    delivery_code = $4,
		    updated_at = NOW()
		WHERE transaction_ref = $1 AND transaction_status = 'Pending'`
	cmdTag, err := r.db.Exec(ctx, query, txRef, code, pickupCode, deliveryCode)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.ErrCodeCollision
		}
		return fmt.Errorf("repository.MarkPaid: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrAlreadyProcessed
	}
	return nil
}

// CompleteDelivery finishes an order after the customer handoff: requires the
// stored delivery code and the bound delivery person to match, clears the
// code (single use) and marks the assignment Completed, all atomically.
func (r *Repository) CompleteDelivery(ctx context.Context, orderID, deliveryCode, deliveryPersonID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.CompleteDelivery: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const updateOrder = `
		UPDATE orders
		SET order_status = 'Completed', delivery_code = NULL, updated_at = NOW()
		WHERE id = $1 AND order_status = 'Delivering'
		  AND delivery_code = $2 AND delivery_person_id = $3`
	cmdTag, err := tx.Exec(ctx, updateOrder, orderID, deliveryCode, deliveryPersonID)
	if err != nil {
		return fmt.Errorf("repository.CompleteDelivery: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrInvalidCode
	}

	const updateAssignment = `
		UPDATE deliveries
		SET status = 'Completed', delivered_at = NOW(), updated_at = NOW()
		WHERE order_id = $1 AND delivery_person_id = $2 AND status = 'Assigned'`
	if _, err := tx.Exec(ctx, updateAssignment, orderID, deliveryPersonID); err != nil {
		return fmt.Errorf("repository.CompleteDelivery: assignment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository.CompleteDelivery: commit: %w", err)
	}
	return nil
}

// GetFoodsByIDs resolves the referenced foods with their owning restaurant.
func (r *Repository) GetFoodsByIDs(ctx context.Context, foodIDs []string) (map[string]models.Food, error) {
	const query = `SELECT id, restaurant_id, name, price FROM foods WHERE id = ANY($1)`
	rows, err := r.db.Query(ctx, query, foodIDs)
	if err != nil {
		return nil, fmt.Errorf("repository.GetFoodsByIDs: %w", err)
	}
	defer rows.Close()

	foods := make(map[string]models.Food, len(foodIDs))
	for rows.Next() {
		var f models.Food
		if err := rows.Scan(&f.ID, &f.RestaurantID, &f.Name, &f.Price); err != nil {
			return nil, fmt.Errorf("repository.GetFoodsByIDs: scan: %w", err)
		}
		foods[f.ID] = f
	}
	return foods, rows.Err()
}

// GetRestaurant loads the restaurant, including the coordinates used as the
// fare-estimation origin.
func (r *Repository) GetRestaurant(ctx context.Context, restaurantID string) (*models.Restaurant, error) {
	const query = `SELECT id, name, latitude, longitude FROM restaurants WHERE id = $1`
	var rest models.Restaurant
	err := r.db.QueryRow(ctx, query, restaurantID).Scan(&rest.ID, &rest.Name, &rest.Latitude, &rest.Longitude)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.GetRestaurant: %w", err)
	}
	return &rest, nil
}

// CountAvailable counts the unclaimed pool: Cooked, Delivery type, unbound.
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
