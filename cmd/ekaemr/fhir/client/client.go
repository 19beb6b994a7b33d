// Package client reads Bundles and ConceptMaps from FHIR servers.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// defaultMaxBodySize caps the size of a fetched resource
const defaultMaxBodySize = 64 << 20

type Config struct {
	Timeout  time.Duration
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the backoff between attempts; zero keeps the library default
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// MaxBodySize in bytes; zero uses 64 MiB
	MaxBodySize int64
}

type FHIRClient struct {
	HTTPClient  *http.Client
	maxBodySize int64
	log         zerolog.Logger
}

func NewFHIRClient(cfg Config, log zerolog.Logger) *FHIRClient {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = cfg.RetryWaitMax
	}
	retryClient.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
	}
	retryClient.Logger = leveledLogger{log: log.With().Str("component", "fhir-client").Logger()}

	maxBodySize := cfg.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}

	return &FHIRClient{
		HTTPClient:  retryClient.StandardClient(),
		maxBodySize: maxBodySize,
		log:         log,
	}
}

// FetchBundle returns the raw JSON of the resource at url. The body is not
// checked to be a Bundle; that is left to the validator.
func (c *FHIRClient) FetchBundle(ctx context.Context, url string) ([]byte, error) {
	return c.get(ctx, url)
}

func (c *FHIRClient) FetchConceptMap(ctx context.Context, url string) (*fhir.ConceptMap, error) {
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var conceptMap fhir.ConceptMap
	if err := json.Unmarshal(body, &conceptMap); err != nil {
		return nil, fmt.Errorf("failed to parse ConceptMap: %w", err)
	}
	if conceptMap.ResourceType != "ConceptMap" {
		return nil, fmt.Errorf("expected resourceType ConceptMap, got %q", conceptMap.ResourceType)
	}
	return &conceptMap, nil
}

func (c *FHIRClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/fhir+json, application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, fmt.Errorf("response from %s too large (limit %d bytes)", url, c.maxBodySize)
	}

	c.log.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("Fetched FHIR resource")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server returned error status %d: %s\nBody: %s",
			resp.StatusCode, resp.Status, string(body))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("received empty response from server for URL: %s", url)
	}

	return body, nil
}

// leveledLogger routes retryablehttp logging to zerolog
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Trace().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}
