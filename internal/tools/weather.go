package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultWeatherURL = "http://api.openweathermap.org/data/2.5/weather"

// Weather looks up current conditions on OpenWeather
type Weather struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewWeather creates the get_weather tool. An empty baseURL uses OpenWeather's.
func NewWeather(apiKey, baseURL string) *Weather {
	if baseURL == "" {
		baseURL = defaultWeatherURL
	}
	return &Weather{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Weather) Name() string { return "get_weather" }

func (w *Weather) Description() string {
	return "Get the current weather in a given location"
}

func (w *Weather) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{
				"type":        "string",
				"description": "The city and state, e.g. San Francisco, CA",
			},
		},
		"required": []string{"location"},
	}
}

type weatherArgs struct {
	Location string `json:"location"`
}

type weatherResponse struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

// Invoke returns a one-sentence summary for the location
func (w *Weather) Invoke(ctx context.Context, raw json.RawMessage) (string, error) {
	var args weatherArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	location := strings.TrimSpace(args.Location)
	if location == "" {
		return "", fmt.Errorf("invalid arguments: location is required")
	}
	if w.apiKey == "" {
		return "", fmt.Errorf("%w: OpenWeather API key is not set", ErrLookup)
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", w.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookup, err)
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: couldn't get the weather, status code %d", ErrLookup, resp.StatusCode)
	}

	var data weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookup, err)
	}
	if len(data.Weather) == 0 {
		return "", fmt.Errorf("%w: no weather data for that location", ErrLookup)
	}

	return fmt.Sprintf("The weather in %s is %s with a temperature of %g°C.",
		location, data.Weather[0].Description, data.Main.Temp), nil
}
