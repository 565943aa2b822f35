package order

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"gebeta-delivery/internal/models"
	"gebeta-delivery/pkg/logger"
)

// Handler handles HTTP requests for orders.
type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate
	log      logger.ILogger
}

// NewHandler creates a new order handler.
func NewHandler(svc ServiceInterface, log logger.ILogger) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
		log:      log,
	}
}

// RegisterRoutes mounts the order routes. The payment webhook is registered
// separately because the gateway calls it unauthenticated.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/orders/place-order", h.PlaceOrder)
	g.POST("/orders/estimate-delivery-fee", h.EstimateDeliveryFee)
	g.GET("/orders/my-orders", h.ListMyOrders)
	g.GET("/orders/current", h.ListCurrentOrders)
	g.GET("/orders/restaurant/:restaurantId", h.ListRestaurantOrders)
	g.GET("/orders/:orderId", h.GetOrder)
	g.PATCH("/orders/:orderId/status", h.UpdateStatus)
	g.POST("/orders/:orderId/retry-payment", h.RetryPayment)
	g.POST("/orders/verify-delivery", h.VerifyDelivery)
}

// RegisterWebhook mounts the unauthenticated payment callback route.
func (h *Handler) RegisterWebhook(g *echo.Group) {
	g.POST("/orders/payment-webhook", h.PaymentWebhook)
}

func (h *Handler) PlaceOrder(c echo.Context) error {
	userID := c.Get("userID").(string)

	var req models.PlaceOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	order, err := h.svc.PlaceOrder(c.Request().Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidInput):
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: err.Error()})
		case errors.Is(err, models.ErrUpstreamUnavailable):
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Message: "Delivery fee could not be estimated, please retry"})
		}
		h.log.Error("Handler.PlaceOrder", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to place order"})
	}

	return c.JSON(http.StatusCreated, order)
}

func (h *Handler) EstimateDeliveryFee(c echo.Context) error {
	var req models.EstimateFeeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	quote, err := h.svc.EstimateDeliveryFee(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
		}
		if errors.Is(err, models.ErrUpstreamUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Message: "Routing service unavailable"})
		}
		h.log.Error("Handler.EstimateDeliveryFee", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to estimate delivery fee"})
	}

	return c.JSON(http.StatusOK, quote)
}

func (h *Handler) ListMyOrders(c echo.Context) error {
	userID := c.Get("userID").(string)

	orders, err := h.svc.ListMyOrders(c.Request().Context(), userID)
	if err != nil {
		h.log.Error("Handler.ListMyOrders", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve orders"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"orders": orders, "results": len(orders)})
}

func (h *Handler) ListCurrentOrders(c echo.Context) error {
	userID := c.Get("userID").(string)

	orders, err := h.svc.ListCurrentOrders(c.Request().Context(), userID)
	if err != nil {
		h.log.Error("Handler.ListCurrentOrders", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve orders"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"orders": orders, "results": len(orders)})
}

func (h *Handler) ListRestaurantOrders(c echo.Context) error {
	restaurantID := c.Param("restaurantId")

	orders, err := h.svc.ListRestaurantOrders(c.Request().Context(), restaurantID)
	if err != nil {
		h.log.Error("Handler.ListRestaurantOrders", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve orders"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"orders": orders, "results": len(orders)})
}

func (h *Handler) GetOrder(c echo.Context) error {
	actorID := c.Get("userID").(string)
	actorRole := c.Get("userRole").(string)
	orderID := c.Param("orderId")

	order, err := h.svc.GetOrder(c.Request().Context(), orderID, actorID, actorRole)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		}
		h.log.Error("Handler.GetOrder", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve order"})
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	actorID := c.Get("userID").(string)
	actorRole := c.Get("userRole").(string)
	orderID := c.Param("orderId")

	var req models.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	order, err := h.svc.UpdateStatus(c.Request().Context(), orderID, req.Status, actorID, actorRole)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		case errors.Is(err, models.ErrInvalidInput):
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
		case errors.Is(err, models.ErrForbidden):
			return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Not allowed to update this order"})
		case errors.Is(err, models.ErrInvalidTransition):
			return c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Message: err.Error()})
		}
		h.log.Error("Handler.UpdateStatus", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to update order status"})
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) RetryPayment(c echo.Context) error {
	userID := c.Get("userID").(string)
	orderID := c.Param("orderId")

	var req models.RetryPaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	result, err := h.svc.RetryPayment(c.Request().Context(), userID, orderID, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		case errors.Is(err, models.ErrAlreadyProcessed):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Order is already paid"})
		case errors.Is(err, models.ErrPaymentInit):
			return c.JSON(http.StatusBadGateway, models.ErrorResponse{Message: "Payment initialization failed"})
		}
		h.log.Error("Handler.RetryPayment", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retry payment"})
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) VerifyDelivery(c echo.Context) error {
	deliveryPersonID := c.Get("userID").(string)

	var req models.VerifyDeliveryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	order, err := h.svc.VerifyDelivery(c.Request().Context(), req.OrderID, req.VerificationCode, deliveryPersonID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		case errors.Is(err, models.ErrInvalidCode):
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Verification code does not match"})
		case errors.Is(err, models.ErrPermissionDenied):
			return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Order is assigned to a different delivery person"})
		case errors.Is(err, models.ErrInvalidTransition):
			return c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Message: err.Error()})
		}
		h.log.Error("Handler.VerifyDelivery", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to verify delivery"})
	}
	return c.JSON(http.StatusOK, order)
}

// PaymentWebhook receives the gateway callback. The body is only a hint; the
// service re-verifies upstream. Replays answer 200 so the gateway stops
// retrying; infrastructure failures answer 503 so it retries later.
func (h *Handler) PaymentWebhook(c echo.Context) error {
	var payload models.PaymentWebhookPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid webhook payload"})
	}
	if payload.TxRef == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "tx_ref is required"})
	}

	err := h.svc.HandlePaymentCallback(c.Request().Context(), payload.TxRef)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAlreadyProcessed):
			return c.JSON(http.StatusOK, map[string]string{"status": "already processed"})
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Unknown transaction reference"})
		case errors.Is(err, models.ErrPaymentVerificationFailed):
			h.log.Warning("payment webhook discarded", logger.String("tx_ref", payload.TxRef), logger.Error(err))
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Transaction could not be verified"})
		}
		h.log.Error("Handler.PaymentWebhook", logger.String("tx_ref", payload.TxRef), logger.Error(err))
		return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Message: "Webhook processing failed, retry later"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}
