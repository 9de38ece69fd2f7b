package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nidhogg/weatherbot/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultEndpoint = "https://api.openweathermap.org/data/2.5"

	// forecastSlot selects the one 3-hourly forecast entry used per day.
	forecastSlot = "09:00"

	owmTimeLayout = "2006-01-02 15:04:05"
)

// Config configures the OpenWeatherMap client.
type Config struct {
	APIKey    string
	Endpoint  string
	Language  string
	Units     string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 = unlimited
	Burst     int
}

// APIError is a non-200 answer from the weather API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("weather API error %d", e.StatusCode)
	}
	return fmt.Sprintf("weather API error %d: %s", e.StatusCode, e.Message)
}

// OWMClient implements Provider against the OpenWeatherMap REST API.
type OWMClient struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewOWMClient creates an OpenWeatherMap client.
func NewOWMClient(cfg Config, logger *zap.Logger) *OWMClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Units == "" {
		cfg.Units = "metric"
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &OWMClient{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

type owmCondition struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type owmCurrentResponse struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Weather []owmCondition `json:"weather"`
	Main    struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

type owmForecastResponse struct {
	City struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"city"`
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  struct {
			TempMin float64 `json:"temp_min"`
			TempMax float64 `json:"temp_max"`
		} `json:"main"`
		Weather []owmCondition `json:"weather"`
	} `json:"list"`
}

type owmErrorResponse struct {
	Message string `json:"message"`
}

// Current fetches the current weather for a location.
func (c *OWMClient) Current(ctx context.Context, location string) (*Current, error) {
	var resp owmCurrentResponse
	if err := c.get(ctx, "weather", location, &resp); err != nil {
		return nil, err
	}

	cur := &Current{
		CityName:           resp.Name,
		CountryName:        resp.Sys.Country,
		TemperatureCelsius: resp.Main.Temp,
	}
	if len(resp.Weather) > 0 {
		cur.Description = resp.Weather[0].Description
		cur.ConditionCode = resp.Weather[0].ID
	}
	return cur, nil
}

// Forecast fetches the 5-day forecast for a location, one entry per day.
func (c *OWMClient) Forecast(ctx context.Context, location string) (*Forecast, error) {
	var resp owmForecastResponse
	if err := c.get(ctx, "forecast", location, &resp); err != nil {
		return nil, err
	}

	fc := &Forecast{
		CityName:    resp.City.Name,
		CountryName: resp.City.Country,
		Days:        []Day{},
	}
	for _, entry := range resp.List {
		if !strings.Contains(entry.DtTxt, forecastSlot) {
			continue
		}
		ts, err := time.Parse(owmTimeLayout, entry.DtTxt)
		if err != nil {
			c.logger.Warn("skipping forecast entry with bad timestamp",
				zap.String("dt_txt", entry.DtTxt), zap.Error(err))
			continue
		}
		day := Day{
			Weekday:        ts.Weekday().String(),
			MinTempCelsius: entry.Main.TempMin,
			MaxTempCelsius: entry.Main.TempMax,
		}
		if len(entry.Weather) > 0 {
			day.Description = entry.Weather[0].Description
			day.ConditionCode = entry.Weather[0].ID
		}
		fc.Days = append(fc.Days, day)
	}
	return fc, nil
}

func (c *OWMClient) get(ctx context.Context, op, location string, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.ProviderRequests.WithLabelValues(op, result).Inc()
		metrics.ProviderLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", c.config.APIKey)
	q.Set("units", c.config.Units)
	q.Set("lang", c.config.Language)
	endpoint := c.config.Endpoint + "/" + op + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e owmErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Message != "" {
			apiErr.Message = e.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		c.logger.Debug("weather api error",
			zap.String("op", op),
			zap.String("location", location),
			zap.Int("status", resp.StatusCode))
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
