package fare

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"gebeta-delivery/internal/config"
	"gebeta-delivery/internal/models"
)

// ServiceInterface is the fare estimator contract consumed by the order module.
type ServiceInterface interface {
	Estimate(ctx context.Context, origin, destination models.Coordinates, vehicle string) (*models.FareQuote, error)
}

// Service estimates delivery fees by asking an external routing service for
// the distance and applying a per-vehicle linear rate table. No retries here;
// the caller decides whether a failed estimate fails the order placement.
type Service struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	rates      map[string]config.VehicleRate
}

func NewService(baseURL, apiKey string, rates map[string]config.VehicleRate) *Service {
	return &Service{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		rates:      rates,
	}
}

func (s *Service) Estimate(ctx context.Context, origin, destination models.Coordinates, vehicle string) (*models.FareQuote, error) {
	rate, ok := s.rates[vehicle]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported vehicle class %q", models.ErrInvalidInput, vehicle)
	}

	meters, seconds, err := s.callRouting(ctx, origin, destination, routingMode(vehicle))
	if err != nil {
		return nil, fmt.Errorf("fare.Estimate: %w", err)
	}

	km := float64(meters) / 1000.0
	return &models.FareQuote{
		Vehicle:         vehicle,
		DistanceKm:      km,
		DurationSeconds: seconds,
		Fee:             math.Ceil(rate.Base + rate.PerKm*km),
	}, nil
}

func routingMode(vehicle string) string {
	if vehicle == models.VehicleBicycle {
		return "bicycling"
	}
	return "driving"
}

// callRouting fetches a route from the external directions API and returns
// distance in meters and duration in seconds.
func (s *Service) callRouting(ctx context.Context, origin, destination models.Coordinates, mode string) (int, int, error) {
	params := url.Values{}
	params.Set("origin", fmt.Sprintf("%f,%f", origin.Latitude, origin.Longitude))
	params.Set("destination", fmt.Sprintf("%f,%f", destination.Latitude, destination.Longitude))
	params.Set("mode", mode)
	params.Set("key", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, 0, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	var out struct {
		Routes []struct {
			Legs []struct {
				Distance struct{ Value int } `json:"distance"`
				Duration struct{ Value int } `json:"duration"`
			} `json:"legs"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0, fmt.Errorf("%w: decode response: %v", models.ErrUpstreamUnavailable, err)
	}
	if len(out.Routes) == 0 || len(out.Routes[0].Legs) == 0 {
		return 0, 0, fmt.Errorf("%w: no route data", models.ErrUpstreamUnavailable)
	}

	leg := out.Routes[0].Legs[0]
	return leg.Distance.Value, leg.Duration.Value, nil
}
