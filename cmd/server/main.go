package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"gebeta-delivery/internal/config"
	"gebeta-delivery/internal/database"
	"gebeta-delivery/internal/middleware"
	"gebeta-delivery/internal/modules/delivery"
	"gebeta-delivery/internal/modules/fare"
	"gebeta-delivery/internal/modules/order"
	"gebeta-delivery/internal/realtime"
	"gebeta-delivery/pkg/logger"
	"gebeta-delivery/pkg/payment"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, "migrations", log)
	if err != nil {
		log.Error("failed to connect to postgres", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	// The hub recomputes the unclaimed-pool count on demand.
	deliveryRepo := delivery.NewRepository(db)
	hub := realtime.NewHub(deliveryRepo.CountAvailable, log)
	go hub.Run(ctx)

	var gateway payment.Gateway
	switch cfg.PaymentProvider {
	case "stripe":
		gateway = payment.NewStripeGateway(cfg.StripeAPIKey)
	default:
		gateway = payment.NewChapaGateway(cfg.ChapaBaseURL, cfg.ChapaSecretKey)
	}

	fareSvc := fare.NewService(cfg.RoutingBaseURL, cfg.RoutingAPIKey, cfg.FareRates)

	orderRepo := order.NewRepository(db)
	orderSvc := order.NewService(orderRepo, fareSvc, gateway, hub, log, cfg.Currency, cfg.CheckoutReturn)
	orderHandler := order.NewHandler(orderSvc, log)

	deliverySvc := delivery.NewService(deliveryRepo, hub, log)
	deliveryHandler := delivery.NewHandler(deliverySvc, log)

	wsHandler := realtime.NewWSHandler(hub, cfg.JWTSecret, cfg.ClientOrigin, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			log.Info("request",
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("latency", v.Latency.String()))
			return nil
		},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{cfg.ClientOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
	}))

	// The payment gateway calls the webhook without a JWT.
	public := e.Group("/api/v1")
	orderHandler.RegisterWebhook(public)

	api := e.Group("/api/v1", middleware.JWT(cfg.JWTSecret))
	orderHandler.RegisterRoutes(api)
	deliveryHandler.RegisterRoutes(api)

	e.GET("/ws", wsHandler.Serve)

	go func() {
		log.Info("server starting", logger.String("port", cfg.ServerPort))
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", logger.Error(err))
	}
}
