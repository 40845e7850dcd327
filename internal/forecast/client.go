// Package forecast talks to the external forecasting service. The engine
// never depends on it: every failure degrades to the last forecast seen for
// the same key, or to no forecast at all.
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/glendonC/mallards/internal/contracts"
	"github.com/glendonC/mallards/internal/metrics"
)

var ErrUnavailable = errors.New("forecast service not configured")

type request struct {
	Dates        []string  `json:"dates"`
	Values       []float64 `json:"values"`
	ForecastDays int       `json:"forecast_days,omitempty"`
}

type responsePoint struct {
	Timestamp string   `json:"timestamp"`
	Value     *float64 `json:"value"`
	Predicted *float64 `json:"predicted"`
	Lower     float64  `json:"lower"`
	Upper     float64  `json:"upper"`
	Actual    *float64 `json:"actual"`
}

type response struct {
	Forecast   []responsePoint `json:"forecast"`
	ModelUsed  string          `json:"modelUsed"`
	Confidence float64         `json:"confidence"`
}

type Client struct {
	baseURL string
	http    *http.Client
	breaker *breaker
	logger  *slog.Logger

	mu        sync.Mutex
	lastKnown map[string]contracts.Forecast
}

func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:      &http.Client{Timeout: timeout},
		breaker:   newBreaker(3, 30*time.Second),
		logger:    logger,
		lastKnown: make(map[string]contracts.Forecast),
	}
}

// Fetch posts the volume history to /forecast. A successful answer is
// remembered under key for later fallback.
func (c *Client) Fetch(ctx context.Context, key string, history []contracts.ScorePoint, days int) (contracts.Forecast, error) {
	if c.baseURL == "" {
		return contracts.Forecast{}, ErrUnavailable
	}
	body := request{
		Dates:        make([]string, len(history)),
		Values:       make([]float64, len(history)),
		ForecastDays: days,
	}
	for i, p := range history {
		body.Dates[i] = p.Timestamp.UTC().Format(time.RFC3339)
		body.Values[i] = p.Volume
	}

	var out contracts.Forecast
	err := c.breaker.execute(ctx, func(ctx context.Context) error {
		f, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		out = f
		return nil
	})
	if err != nil {
		return contracts.Forecast{}, err
	}

	c.mu.Lock()
	c.lastKnown[key] = out
	c.mu.Unlock()
	return out, nil
}

// WithFallback never fails. It returns a fresh forecast, a stale copy of
// the last one for key, or nil.
func (c *Client) WithFallback(ctx context.Context, key string, history []contracts.ScorePoint, days int) *contracts.Forecast {
	if len(history) == 0 {
		return nil
	}
	f, err := c.Fetch(ctx, key, history, days)
	if err == nil {
		metrics.ObserveForecast("ok")
		return &f
	}
	if errors.Is(err, ErrUnavailable) {
		return nil
	}
	metrics.ObserveForecast("failed")
	c.logger.Warn("forecast unavailable, falling back", "key", key, "breaker", c.breaker.current().String(), "error", err)

	c.mu.Lock()
	last, ok := c.lastKnown[key]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	last.Stale = true
	return &last
}

func (c *Client) post(ctx context.Context, body request) (contracts.Forecast, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return contracts.Forecast{}, fmt.Errorf("encode forecast request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forecast", bytes.NewReader(payload))
	if err != nil {
		return contracts.Forecast{}, fmt.Errorf("build forecast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return contracts.Forecast{}, fmt.Errorf("call forecast service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return contracts.Forecast{}, fmt.Errorf("forecast service status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return contracts.Forecast{}, fmt.Errorf("decode forecast response: %w", err)
	}
	return convert(decoded), nil
}

func convert(r response) contracts.Forecast {
	out := contracts.Forecast{
		Points:     make([]contracts.ForecastPoint, 0, len(r.Forecast)),
		ModelUsed:  r.ModelUsed,
		Confidence: r.Confidence,
	}
	for _, p := range r.Forecast {
		ts, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			ts, err = time.Parse("2006-01-02", p.Timestamp)
			if err != nil {
				continue
			}
		}
		value := 0.0
		switch {
		case p.Value != nil:
			value = *p.Value
		case p.Predicted != nil:
			value = *p.Predicted
		}
		out.Points = append(out.Points, contracts.ForecastPoint{
			Timestamp: ts.UTC(),
			Value:     value,
			Lower:     p.Lower,
			Upper:     p.Upper,
			Actual:    p.Actual,
		})
	}
	return out
}
