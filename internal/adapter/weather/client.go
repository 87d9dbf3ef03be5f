// Package weather reads current conditions at the dam from OpenWeatherMap.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/adapter/upstream"
	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/observability"
)

const source = "openweathermap"

// Client fetches current conditions. The free API has no history, so only
// today's date can be answered.
type Client struct {
	token   string
	fetch   *upstream.Fetcher
	baseURL string
	lat     float64
	lon     float64
	logger  *slog.Logger
}

// NewClient creates an OpenWeatherMap client for the reservoir's coordinates.
func NewClient(token string, res domain.Reservoir, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token:   token,
		fetch:   upstream.New(source, timeout, metrics),
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		lat:     res.Latitude,
		lon:     res.Longitude,
		logger:  logger,
	}
}

// Fetch returns today's high and low in Fahrenheit. Any other date, or a
// response without temperatures, yields nil.
func (c *Client) Fetch(ctx context.Context, d time.Time) (*domain.WeatherRecord, error) {
	d = domain.DateOf(d)
	if !d.Equal(domain.Today()) {
		c.logger.Debug("weather history unavailable", "date", d.Format(time.DateOnly))
		return nil, nil
	}

	params := url.Values{
		"lat":   {strconv.FormatFloat(c.lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(c.lon, 'f', -1, 64)},
		"appid": {c.token},
		"units": {"imperial"},
	}
	body, err := c.fetch.Get(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		c.fetch.Record("error")
		return nil, fmt.Errorf("decode weather response: %w", err)
	}

	high := firstOf(resp.Main.TempMax, resp.Main.Temp)
	low := firstOf(resp.Main.TempMin, resp.Main.Temp)
	if high == nil && low == nil {
		c.fetch.Record("empty")
		return nil, nil
	}
	c.fetch.Record("success")
	return &domain.WeatherRecord{Date: d, HighTemp: high, LowTemp: low}, nil
}

func firstOf(vs ...*float64) *float64 {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

// OpenWeatherMap response types.

type response struct {
	Main struct {
		Temp    *float64 `json:"temp"`
		TempMin *float64 `json:"temp_min"`
		TempMax *float64 `json:"temp_max"`
	} `json:"main"`
}
