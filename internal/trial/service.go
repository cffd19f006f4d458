package trial

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-streamshop/internal/obs"
	"github.com/noah-isme/backend-streamshop/internal/resilience"
)

// ErrUpstream signals that the provisioning function rejected or failed the request.
var ErrUpstream = errors.New("trial: provisioning upstream failed")

// ErrUnavailable signals that the circuit breaker is refusing calls.
var ErrUnavailable = errors.New("trial: provisioning temporarily unavailable")

// Result carries the credentials returned by the provisioning function.
type Result struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service provisions trial accounts through the remote function endpoint.
type Service struct {
	client  resilience.HTTPClient
	url     string
	key     string
	nowFunc func() time.Time
}

// Config configures the trial service.
type Config struct {
	URL         string
	Key         string
	Client      *http.Client
	MaxAttempts int
	Timeout     time.Duration
}

// NewService builds a Service with retry and breaker defaults suited to a
// slow serverless upstream.
func NewService(cfg Config) (*Service, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("trial: function url is required")
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   15 * time.Second,
		}
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		client: resilience.HTTPClient{
			Client:      httpClient,
			Breaker:     resilience.NewBreaker(5, 0.6, 30*time.Second).WithTarget("trial-function"),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: maxAttempts,
			Jitter:      0.2,
			Timeout:     timeout,
		},
		url: url,
		key: strings.TrimSpace(cfg.Key),
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	s.nowFunc = now
}

func (s *Service) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}

// Provision requests a trial account for the given email.
func (s *Service) Provision(ctx context.Context, email string) (Result, error) {
	start := s.now()
	result, err := s.provision(ctx, email)
	elapsed := time.Since(start)
	label := "ok"
	switch {
	case errors.Is(err, ErrUnavailable):
		label = "unavailable"
	case err != nil:
		label = "error"
	}
	recordTrial(label, elapsed)
	return result, err
}

func (s *Service) provision(ctx context.Context, email string) (Result, error) {
	payload, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.key != "" {
		req.Header.Set("X-Function-Key", s.key)
	}

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		if errors.Is(err, resilience.ErrOpenCircuit) {
			return Result{}, ErrUnavailable
		}
		return Result{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Result{}, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if result.Username == "" {
		return Result{}, fmt.Errorf("%w: empty credentials", ErrUpstream)
	}
	return result, nil
}

func recordTrial(result string, elapsed time.Duration) {
	if obs.TrialRequestTotal != nil {
		obs.TrialRequestTotal.WithLabelValues(result).Inc()
	}
	if obs.TrialRequestLatency != nil {
		obs.TrialRequestLatency.WithLabelValues(result).Observe(float64(elapsed.Milliseconds()))
	}
}
