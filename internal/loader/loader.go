// Package loader fetches the glacier data source and parses it into records.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/glacier-risk-map/internal/domain"
	"github.com/couchcryptid/glacier-risk-map/internal/observability"
	"github.com/sony/gobreaker"
)

// maxBodyBytes caps how much of the source document is read.
const maxBodyBytes = 32 << 20

var (
	// ErrUnexpectedStatus is returned for any non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrCircuitOpen is returned while the breaker rejects fetches.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// Options tunes the fetch behaviour.
type Options struct {
	Timeout     time.Duration
	MaxFailures uint32        // consecutive failures that open the breaker
	OpenTimeout time.Duration // how long the breaker stays open
}

// Loader retrieves the data source over HTTP, or from disk for local paths
// and file:// URLs.
type Loader struct {
	source  string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Loader for source.
func New(source string, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	maxFailures := opts.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	l := &Loader{
		source:  source,
		client:  &http.Client{Timeout: opts.Timeout},
		logger:  logger,
		metrics: metrics,
	}
	l.circuit = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "glacier-data-source",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// A refresh cancelled by the caller says nothing about the source.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.Set(float64(to))
			logger.Warn("data source breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return l
}

// Source returns the configured locator.
func (l *Loader) Source() string {
	return l.source
}

// Load fetches and parses the source. Rows that fail validation are reported
// in ParseResult.Skipped; only fetch failures return an error.
func (l *Loader) Load(ctx context.Context) (domain.ParseResult, error) {
	start := time.Now()

	text, err := l.fetch(ctx)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrCircuitOpen) {
			outcome = "rejected"
		}
		l.metrics.DataLoads.WithLabelValues(outcome).Inc()
		return domain.ParseResult{}, fmt.Errorf("fetch glacier data: %w", err)
	}

	result := domain.ParseCSV(text)
	l.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	l.metrics.DataLoads.WithLabelValues("success").Inc()
	l.metrics.RowsSkipped.Add(float64(len(result.Skipped)))

	for _, skipped := range result.Skipped {
		l.logger.Debug("row skipped", "line", skipped.Line, "reason", skipped.Reason)
	}
	l.logger.Info("glacier data loaded",
		"source", l.source,
		"records", len(result.Records),
		"skipped", len(result.Skipped),
	)
	return result, nil
}

func (l *Loader) fetch(ctx context.Context) (string, error) {
	if path, ok := localPath(l.source); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	result, err := l.circuit.Execute(func() (interface{}, error) {
		return l.fetchHTTP(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return "", err
	}
	text, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("unexpected result type from circuit breaker")
	}
	return text, nil
}

func (l *Loader) fetchHTTP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.source, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// localPath reports whether source names a file rather than an HTTP resource.
func localPath(source string) (string, bool) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return "", false
	}
	if strings.HasPrefix(source, "file://") {
		u, err := url.Parse(source)
		if err != nil {
			return strings.TrimPrefix(source, "file://"), true
		}
		return u.Path, true
	}
	return source, true
}
