// Package weather queries the US National Weather Service API.
package weather

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hession/haxu-mcp/internal/upstream"
)

const (
	DefaultBaseURL = "https://api.weather.gov"
	service        = "weather service"
	maxPeriods     = 5
)

// Client is an NWS API client.
type Client struct {
	baseURL string
	http    *upstream.Client
}

// New creates an NWS client on top of a shared upstream client.
func New(baseURL string, http *upstream.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http,
	}
}

var geoJSON = map[string]string{"Accept": "application/geo+json"}

// Alert is the subset of an alert feature's properties we render.
type Alert struct {
	Event       string `json:"event"`
	AreaDesc    string `json:"areaDesc"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Instruction string `json:"instruction"`
}

type alertsResponse struct {
	Features *[]struct {
		Properties Alert `json:"properties"`
	} `json:"features"`
}

// Alerts returns the active alerts for a two-letter state code.
func (c *Client) Alerts(ctx context.Context, state string) ([]Alert, error) {
	state = strings.ToUpper(strings.TrimSpace(state))
	if state == "" {
		return nil, fmt.Errorf("state cannot be empty")
	}

	endpoint := fmt.Sprintf("%s/alerts/active/area/%s", c.baseURL, url.PathEscape(state))
	var payload alertsResponse
	if err := c.http.GetJSON(ctx, service, endpoint, geoJSON, &payload); err != nil {
		return nil, err
	}
	if payload.Features == nil {
		return nil, upstream.Empty("Unable to fetch alerts or no alerts found.")
	}

	alerts := make([]Alert, 0, len(*payload.Features))
	for _, f := range *payload.Features {
		alerts = append(alerts, f.Properties)
	}
	return alerts, nil
}

// Period is one forecast period.
type Period struct {
	Name             string `json:"name"`
	Temperature      int    `json:"temperature"`
	TemperatureUnit  string `json:"temperatureUnit"`
	WindSpeed        string `json:"windSpeed"`
	WindDirection    string `json:"windDirection"`
	DetailedForecast string `json:"detailedForecast"`
}

type pointsResponse struct {
	Properties struct {
		Forecast string `json:"forecast"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []Period `json:"periods"`
	} `json:"properties"`
}

// Forecast resolves the forecast grid for a point and returns its next periods.
func (c *Client) Forecast(ctx context.Context, latitude, longitude float64) ([]Period, error) {
	if latitude < -90 || latitude > 90 || longitude < -180 || longitude > 180 {
		return nil, fmt.Errorf("coordinates out of range: %g,%g", latitude, longitude)
	}

	pointsURL := fmt.Sprintf("%s/points/%s,%s", c.baseURL, formatCoord(latitude), formatCoord(longitude))
	var points pointsResponse
	if err := c.http.GetJSON(ctx, service, pointsURL, geoJSON, &points); err != nil {
		return nil, fmt.Errorf("unable to fetch forecast data for this location: %w", err)
	}
	if points.Properties.Forecast == "" {
		return nil, upstream.Empty("Unable to fetch forecast data for this location.")
	}

	var forecast forecastResponse
	if err := c.http.GetJSON(ctx, service, points.Properties.Forecast, geoJSON, &forecast); err != nil {
		return nil, fmt.Errorf("unable to fetch detailed forecast: %w", err)
	}

	periods := forecast.Properties.Periods
	if len(periods) == 0 {
		return nil, upstream.Empty("Unable to fetch detailed forecast.")
	}
	if len(periods) > maxPeriods {
		periods = periods[:maxPeriods]
	}
	return periods, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatAlert renders one alert.
func FormatAlert(a Alert) string {
	return fmt.Sprintf(`
Event: %s
Area: %s
Severity: %s
Description: %s
Instructions: %s
`,
		orDefault(a.Event, "Unknown"),
		orDefault(a.AreaDesc, "Unknown"),
		orDefault(a.Severity, "Unknown"),
		orDefault(a.Description, "No description available"),
		orDefault(a.Instruction, "No specific instructions provided"),
	)
}

// FormatPeriod renders one forecast period.
func FormatPeriod(p Period) string {
	return fmt.Sprintf(`
%s:
Temperature: %d°%s
Wind: %s %s
Forecast: %s
`, p.Name, p.Temperature, p.TemperatureUnit, p.WindSpeed, p.WindDirection, p.DetailedForecast)
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
