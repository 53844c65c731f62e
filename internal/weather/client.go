package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	appLog "homepanel/internal/log"
	"homepanel/internal/model"
	"homepanel/internal/observability"
)

var (
	// ErrUpstream is returned for non-success responses from the provider.
	ErrUpstream = errors.New("weather provider error")
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("weather api key is not configured")
)

// Config holds the OpenWeather query parameters.
type Config struct {
	BaseURL       string // e.g. https://api.openweathermap.org/data/2.5
	APIKey        string
	Lat           float64
	Lon           float64
	Units         string // standard, metric or imperial
	ForecastCount int    // number of 3-hour slots
}

// Client talks to the OpenWeather 2.5 current weather and forecast APIs.
type Client struct {
	cfg     Config
	http    *http.Client
	circuit *gobreaker.CircuitBreaker
	logger  appLog.Logger
	metrics *observability.Metrics
}

// NewClient creates an OpenWeather client with its own circuit breaker.
func NewClient(cfg Config, timeout time.Duration, logger appLog.Logger, metrics *observability.Metrics) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = observability.NewUnregisteredMetrics()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		circuit: cb,
		logger:  logger.With("source", "openweather"),
		metrics: metrics,
	}
}

// CurrentResponse is the subset of /weather the dashboard uses.
type CurrentResponse struct {
	Weather []Condition `json:"weather"`
	Main    struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Rain *Precipitation `json:"rain,omitempty"`
	Snow *Precipitation `json:"snow,omitempty"`
}

// Condition is one entry of the provider's "weather" array.
type Condition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Precipitation carries the rain/snow volume for the last hour.
type Precipitation struct {
	OneHour *float64 `json:"1h,omitempty"`
}

// ForecastItem is one 3-hour slot from /forecast.
type ForecastItem struct {
	Dt      int64       `json:"dt"`
	Weather []Condition `json:"weather"`
	Main    struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Pop float64 `json:"pop"`
}

type forecastResponse struct {
	List []ForecastItem `json:"list"`
}

// Current calls /weather.
func (c *Client) Current(ctx context.Context) (CurrentResponse, error) {
	var out CurrentResponse
	err := c.get(ctx, "weather", nil, &out)
	return out, err
}

// Forecast calls /forecast with cnt=ForecastCount.
func (c *Client) Forecast(ctx context.Context) ([]ForecastItem, error) {
	extra := url.Values{}
	if c.cfg.ForecastCount > 0 {
		extra.Set("cnt", strconv.Itoa(c.cfg.ForecastCount))
	}
	var out forecastResponse
	if err := c.get(ctx, "forecast", extra, &out); err != nil {
		return nil, err
	}
	return out.List, nil
}

// Snapshot fetches current weather and forecast and builds the feed payload
// stamped with now.
func (c *Client) Snapshot(ctx context.Context, now time.Time) (model.WeatherSnapshot, error) {
	cw, err := c.Current(ctx)
	if err != nil {
		return model.WeatherSnapshot{}, err
	}
	current, err := c.toCurrent(cw)
	if err != nil {
		return model.WeatherSnapshot{}, fmt.Errorf("current weather: %w", err)
	}

	items, err := c.Forecast(ctx)
	if err != nil {
		return model.WeatherSnapshot{}, err
	}
	forecast := make([]model.HourForecast, 0, len(items))
	for _, it := range items {
		cond, err := firstCondition(it.Weather)
		if err != nil {
			return model.WeatherSnapshot{}, fmt.Errorf("forecast %d: %w", it.Dt, err)
		}
		hf, err := model.NewHourForecast(it.Dt, cond.text(), cond.Icon, it.Main.Temp, it.Pop)
		if err != nil {
			return model.WeatherSnapshot{}, fmt.Errorf("forecast %d: %w", it.Dt, err)
		}
		forecast = append(forecast, hf)
	}

	return model.WeatherSnapshot{
		Timestamp: now.Unix(),
		Current:   current,
		Forecast:  forecast,
	}, nil
}

func (c *Client) toCurrent(cw CurrentResponse) (model.CurrentWeather, error) {
	cond, err := firstCondition(cw.Weather)
	if err != nil {
		return model.CurrentWeather{}, err
	}

	wind := cw.Wind.Speed
	if c.cfg.Units != "imperial" {
		// m/s to km/h
		wind = wind * 3.6
	}

	in := model.CurrentWeatherInput{
		Condition:     cond.text(),
		Icon:          cond.Icon,
		Temperature:   cw.Main.Temp,
		WindSpeedKMH:  wind,
		WindDeg:       cw.Wind.Deg,
		CloudCoverage: cw.Clouds.All,
	}
	if cw.Rain != nil {
		in.Rain = cw.Rain.OneHour
	}
	if cw.Snow != nil {
		in.Snow = cw.Snow.OneHour
	}
	return model.NewCurrentWeather(in)
}

func (cond Condition) text() string {
	if cond.Description == "" {
		return cond.Main
	}
	return cond.Main + " - " + cond.Description
}

func firstCondition(cs []Condition) (Condition, error) {
	if len(cs) == 0 {
		return Condition{}, fmt.Errorf("%w: response has no weather condition", ErrUpstream)
	}
	return cs[0], nil
}

func (c *Client) get(ctx context.Context, endpoint string, extra url.Values, dst any) (err error) {
	defer func() {
		c.metrics.UpstreamRequests.WithLabelValues("openweather", observability.Outcome(err)).Inc()
	}()

	if c.cfg.APIKey == "" {
		return ErrNotConfigured
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(c.cfg.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(c.cfg.Lon, 'f', -1, 64))
	q.Set("appid", c.cfg.APIKey)
	q.Set("units", c.cfg.Units)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u := c.cfg.BaseURL + "/" + endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	body, err := c.circuit.Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: %s: status %d: %s", ErrUpstream, endpoint, resp.StatusCode, truncate(data, 200))
		}
		return data, nil
	})
	if err != nil {
		c.logger.Error("weather request failed", err, "endpoint", endpoint)
		return fmt.Errorf("weather %s: %w", endpoint, err)
	}

	if err := json.Unmarshal(body.([]byte), dst); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", ErrUpstream, endpoint, err)
	}
	c.logger.Debug("weather request ok", "endpoint", endpoint)
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
