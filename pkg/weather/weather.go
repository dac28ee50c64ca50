// Package weather provides the live-data collaborator for weather
// intents, plus the keyword heuristics that route a query to it
// instead of general web search.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mhalvorsen/go-parley/internal/httpc"
)

// ErrNoLocation is returned when no location is configured or parsed.
var ErrNoLocation = errors.New("weather: location required")

// intentKeywords route a user query to the weather collaborator.
var intentKeywords = []string{
	"weather", "temperature", "forecast", "rain", "raining",
	"snow", "snowing", "sunny", "humidity", "windy",
	"how hot", "how cold", "degrees outside",
}

// IsWeatherIntent reports whether the input should hit the weather
// collaborator instead of web search.
func IsWeatherIntent(input string) bool {
	q := strings.ToLower(input)
	for _, kw := range intentKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Report is a compact current-conditions summary.
type Report struct {
	Location    string
	TempC       float64
	WindKmh     float64
	Description string
}

// Describe renders the report as a context string for the model prompt.
func (r *Report) Describe() string {
	return fmt.Sprintf("Current weather in %s: %s, %.1f°C, wind %.0f km/h.",
		r.Location, r.Description, r.TempC, r.WindKmh)
}

// Provider fetches current conditions.
type Provider interface {
	Current(ctx context.Context, location string) (*Report, error)
}

// OpenMeteo implements Provider over the open-meteo API, which needs
// no key. Geocoding and conditions are two calls.
type OpenMeteo struct {
	client  *http.Client
	baseURL string
	geoURL  string
}

// OpenMeteoOption configures the client.
type OpenMeteoOption func(*OpenMeteo)

// WithBaseURLs overrides the API endpoints, for tests.
func WithBaseURLs(forecast, geocode string) OpenMeteoOption {
	return func(o *OpenMeteo) {
		o.baseURL = forecast
		o.geoURL = geocode
	}
}

// NewOpenMeteo creates the client.
func NewOpenMeteo(opts ...OpenMeteoOption) *OpenMeteo {
	o := &OpenMeteo{
		client:  httpc.NewClient(15 * time.Second),
		baseURL: "https://api.open-meteo.com/v1/forecast",
		geoURL:  "https://geocoding-api.open-meteo.com/v1/search",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Current geocodes the location then fetches conditions.
func (o *OpenMeteo) Current(ctx context.Context, location string) (*Report, error) {
	if strings.TrimSpace(location) == "" {
		return nil, ErrNoLocation
	}

	lat, lon, name, err := o.geocode(ctx, location)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&current=temperature_2m,wind_speed_10m,weather_code",
		o.baseURL, lat, lon)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("weather: create request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: forecast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather: forecast status %d", resp.StatusCode)
	}

	var out struct {
		Current struct {
			Temperature float64 `json:"temperature_2m"`
			WindSpeed   float64 `json:"wind_speed_10m"`
			WeatherCode int     `json:"weather_code"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("weather: decode forecast: %w", err)
	}

	return &Report{
		Location:    name,
		TempC:       out.Current.Temperature,
		WindKmh:     out.Current.WindSpeed,
		Description: describeCode(out.Current.WeatherCode),
	}, nil
}

func (o *OpenMeteo) geocode(ctx context.Context, location string) (lat, lon float64, name string, err error) {
	u := fmt.Sprintf("%s?name=%s&count=1", o.geoURL, url.QueryEscape(location))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return 0, 0, "", fmt.Errorf("weather: create request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, 0, "", fmt.Errorf("weather: geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, "", fmt.Errorf("weather: geocode status %d", resp.StatusCode)
	}

	var out struct {
		Results []struct {
			Name      string  `json:"name"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0, "", fmt.Errorf("weather: decode geocode: %w", err)
	}
	if len(out.Results) == 0 {
		return 0, 0, "", fmt.Errorf("weather: %w: %q not found", ErrNoLocation, location)
	}

	r := out.Results[0]
	return r.Latitude, r.Longitude, r.Name, nil
}

// describeCode maps WMO weather codes to words.
func describeCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "foggy"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}

// Mock implements Provider for tests.
type Mock struct {
	Report *Report
	Err    error
	Calls  int
}

// Current returns the scripted report or error.
func (m *Mock) Current(ctx context.Context, location string) (*Report, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	r := *m.Report
	if r.Location == "" {
		r.Location = location
	}
	return &r, nil
}

var (
	_ Provider = (*OpenMeteo)(nil)
	_ Provider = (*Mock)(nil)
)
