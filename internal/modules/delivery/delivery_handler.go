package delivery

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"gebeta-delivery/internal/models"
	"gebeta-delivery/pkg/logger"
)

// Handler handles HTTP requests for delivery assignments.
type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate
	log      logger.ILogger
}

// NewHandler creates a new delivery handler.
func NewHandler(svc ServiceInterface, log logger.ILogger) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
		log:      log,
	}
}

// RegisterRoutes mounts the delivery routes, including the read-only pool
// views under /orders.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/deliveries", h.AcceptOrder)
	g.POST("/deliveries/cancel", h.CancelAssignment)
	g.POST("/deliveries/pickup", h.PickUp)
	g.GET("/deliveries/mine", h.ListMyDeliveries)
	g.PATCH("/deliveries/:orderId/rate", h.RateDelivery)

	g.GET("/orders/available-cooked", h.ListAvailable)
	g.GET("/orders/available-cooked/count", h.CountAvailable)
}

func requireDeliveryPerson(c echo.Context) (string, bool) {
	role, _ := c.Get("userRole").(string)
	if role != models.RoleDeliveryPerson {
		return "", false
	}
	return c.Get("userID").(string), true
}

func (h *Handler) AcceptOrder(c echo.Context) error {
	deliveryPersonID, ok := requireDeliveryPerson(c)
	if !ok {
		return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Delivery person role required"})
	}

	var req models.AcceptOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	order, err := h.svc.AcceptOrder(c.Request().Context(), deliveryPersonID, req.OrderID)
	if err != nil {
		if errors.Is(err, models.ErrNotAvailable) {
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Order is no longer available"})
		}
		h.log.Error("Handler.AcceptOrder", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to accept order"})
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) CancelAssignment(c echo.Context) error {
	deliveryPersonID, ok := requireDeliveryPerson(c)
	if !ok {
		return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Delivery person role required"})
	}

	var req models.CancelAssignmentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	if err := h.svc.CancelAssignment(c.Request().Context(), deliveryPersonID, req.OrderID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "No active assignment for this order"})
		}
		h.log.Error("Handler.CancelAssignment", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to cancel assignment"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) PickUp(c echo.Context) error {
	deliveryPersonID, ok := requireDeliveryPerson(c)
	if !ok {
		return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Delivery person role required"})
	}

	var req models.PickupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	order, err := h.svc.PickUp(c.Request().Context(), deliveryPersonID, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		case errors.Is(err, models.ErrAlreadyPickedUp):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Order was already picked up"})
		case errors.Is(err, models.ErrPermissionDenied):
			return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Order is assigned to a different delivery person"})
		case errors.Is(err, models.ErrInvalidCode):
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Pickup code does not match"})
		}
		h.log.Error("Handler.PickUp", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to confirm pickup"})
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) ListAvailable(c echo.Context) error {
	if _, ok := requireDeliveryPerson(c); !ok {
		return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Delivery person role required"})
	}

	pool, err := h.svc.ListAvailable(c.Request().Context(), c.QueryParam("vehicle"))
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
		}
		h.log.Error("Handler.ListAvailable", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to list available orders"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"orders": pool, "results": len(pool)})
}

func (h *Handler) CountAvailable(c echo.Context) error {
	count, err := h.svc.CountAvailable(c.Request().Context())
	if err != nil {
		h.log.Error("Handler.CountAvailable", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to count available orders"})
	}
	return c.JSON(http.StatusOK, map[string]int{"count": count})
}

func (h *Handler) ListMyDeliveries(c echo.Context) error {
	deliveryPersonID, ok := requireDeliveryPerson(c)
	if !ok {
		return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Delivery person role required"})
	}

	deliveries, err := h.svc.ListMyDeliveries(c.Request().Context(), deliveryPersonID)
	if err != nil {
		h.log.Error("Handler.ListMyDeliveries", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to list deliveries"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"deliveries": deliveries, "results": len(deliveries)})
}

func (h *Handler) RateDelivery(c echo.Context) error {
	customerID := c.Get("userID").(string)
	orderID := c.Param("orderId")

	var req models.RateDeliveryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	d, err := h.svc.RateDelivery(c.Request().Context(), customerID, orderID, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "No delivery found for this order"})
		case errors.Is(err, models.ErrInvalidTransition):
			return c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Message: "Delivery has not completed yet"})
		case errors.Is(err, models.ErrPermissionDenied):
			return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Only the ordering customer may rate this delivery"})
		}
		h.log.Error("Handler.RateDelivery", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to rate delivery"})
	}
	return c.JSON(http.StatusOK, d)
}
