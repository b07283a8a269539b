// Package lmu implements a meteo.Source for the station network of the
// LMU Munich meteorological institute.
package lmu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/emissions/internal/meteo"
	"github.com/breatheroute/emissions/internal/provider/resilience"
)

const (
	// ProviderName identifies this meteo provider.
	ProviderName = "lmu"

	// DefaultBaseURL is the LMU meteo request API base URL.
	DefaultBaseURL = "https://www.meteo.physik.uni-muenchen.de/request-beta"

	timeLayout = "2006-01-02T15:04:05"
)

// ErrMalformedResponse is returned when the response lacks the requested
// series or its lengths disagree.
var ErrMalformedResponse = errors.New("malformed lmu response")

// ClientConfig holds configuration for the LMU client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client paced to 2 requests per second.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an LMU meteo API client.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new LMU client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpCfg := resilience.DefaultClientConfig(ProviderName)
		httpCfg.RequestsPerSecond = 2
		httpClient = resilience.NewClient(httpCfg)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// dataResponse holds the time axis in unix seconds and, under the station
// ID, one value series per parameter. Missing values are null.
type dataResponse map[string]json.RawMessage

// Observations fetches the values of parameter at station in [start, end).
func (c *Client) Observations(ctx context.Context, station, parameter string, start, end time.Time) ([]meteo.Observation, error) {
	// The API takes its arguments as a path segment, not a query string.
	endpoint := fmt.Sprintf("%s/data/var=%s&station=%s&start=%s&end=%s",
		c.baseURL,
		url.PathEscape(parameter),
		url.PathEscape(station),
		start.UTC().Format(timeLayout),
		end.UTC().Format(timeLayout),
	)

	var resp dataResponse
	if err := c.httpClient.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	return parseObservations(resp, station, parameter, start, end)
}

func parseObservations(resp dataResponse, station, parameter string, start, end time.Time) ([]meteo.Observation, error) {
	rawTimes, ok := resp["time"]
	if !ok {
		return nil, fmt.Errorf("%w: no time axis", ErrMalformedResponse)
	}
	var times []float64
	if err := json.Unmarshal(rawTimes, &times); err != nil {
		return nil, fmt.Errorf("%w: time axis: %v", ErrMalformedResponse, err)
	}

	rawStation, ok := resp[station]
	if !ok {
		return nil, fmt.Errorf("%w: no data for station %s", ErrMalformedResponse, station)
	}
	var series map[string][]*float64
	if err := json.Unmarshal(rawStation, &series); err != nil {
		return nil, fmt.Errorf("%w: station %s: %v", ErrMalformedResponse, station, err)
	}
	values, ok := series[parameter]
	if !ok {
		return nil, fmt.Errorf("%w: no %s series for station %s", ErrMalformedResponse, parameter, station)
	}
	if len(values) != len(times) {
		return nil, fmt.Errorf("%w: %d times but %d %s values", ErrMalformedResponse, len(times), len(values), parameter)
	}

	obs := make([]meteo.Observation, 0, len(values))
	for i, v := range values {
		sec, frac := math.Modf(times[i])
		t := time.Unix(int64(sec), int64(frac*1e9)).UTC()
		if t.Before(start) || !t.Before(end) {
			continue
		}
		value := math.NaN()
		if v != nil {
			value = *v
		}
		obs = append(obs, meteo.Observation{Time: t, Value: value})
	}
	return obs, nil
}

var _ meteo.Source = (*Client)(nil)
