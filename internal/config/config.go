package config

import (
	"log"

	"github.com/spf13/viper"
)

// VehicleRate is the linear fare model for one vehicle class:
// fee = ceil(Base + PerKm * distanceKm).
type VehicleRate struct {
	Base  float64
	PerKm float64
}

type Config struct {
	ServiceName  string `mapstructure:"SERVICE_NAME"`
	ServerPort   string `mapstructure:"SERVER_PORT"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	JWTSecret    string `mapstructure:"JWT_SECRET"`
	ClientOrigin string `mapstructure:"CLIENT_ORIGIN"`

	// Payment gateway selection and credentials.
	PaymentProvider string `mapstructure:"PAYMENT_PROVIDER"` // "chapa" or "stripe"
	ChapaBaseURL    string `mapstructure:"CHAPA_BASE_URL"`
	ChapaSecretKey  string `mapstructure:"CHAPA_SECRET_KEY"`
	StripeAPIKey    string `mapstructure:"STRIPE_API_KEY"`
	CheckoutReturn  string `mapstructure:"CHECKOUT_RETURN_URL"`
	Currency        string `mapstructure:"CURRENCY"`

	// External routing service used for fare estimation.
	RoutingBaseURL string `mapstructure:"ROUTING_BASE_URL"`
	RoutingAPIKey  string `mapstructure:"ROUTING_API_KEY"`

	// Per-vehicle fare rates, loaded from FARE_<CLASS>_BASE / FARE_<CLASS>_PER_KM.
	FareRates map[string]VehicleRate `mapstructure:"-"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	setDefaults()

	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No .env file found.")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.FareRates = map[string]VehicleRate{
		"Car":     {Base: viper.GetFloat64("FARE_CAR_BASE"), PerKm: viper.GetFloat64("FARE_CAR_PER_KM")},
		"Motor":   {Base: viper.GetFloat64("FARE_MOTOR_BASE"), PerKm: viper.GetFloat64("FARE_MOTOR_PER_KM")},
		"Bicycle": {Base: viper.GetFloat64("FARE_BICYCLE_BASE"), PerKm: viper.GetFloat64("FARE_BICYCLE_PER_KM")},
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("SERVICE_NAME", "gebeta-delivery")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PAYMENT_PROVIDER", "chapa")
	viper.SetDefault("CURRENCY", "ETB")
	viper.SetDefault("CHAPA_BASE_URL", "https://api.chapa.co/v1")
	viper.SetDefault("ROUTING_BASE_URL", "https://maps.googleapis.com/maps/api/directions/json")

	viper.SetDefault("FARE_CAR_BASE", 150.0)
	viper.SetDefault("FARE_CAR_PER_KM", 13.0)
	viper.SetDefault("FARE_MOTOR_BASE", 100.0)
	viper.SetDefault("FARE_MOTOR_PER_KM", 10.0)
	viper.SetDefault("FARE_BICYCLE_BASE", 50.0)
	viper.SetDefault("FARE_BICYCLE_PER_KM", 7.0)
}
