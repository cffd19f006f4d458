package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// HTTPClient layers retries, a per-attempt timeout and a circuit breaker over
// a plain http.Client. 5xx responses count as failures.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	Fallback    func(context.Context, *http.Request, error) (*http.Response, error)
}

// Do runs the request with retry semantics. The body is buffered once so
// every attempt replays the same payload. An open breaker yields
// ErrOpenCircuit unless a fallback is set.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	if breaker == nil {
		breaker = NewBreaker(1, 1, time.Second)
	}
	attempts := cl.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := cl.BaseBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !breaker.Allow(ctx) {
			lastErr = ErrOpenCircuit
			break
		}

		resp, err := cl.attempt(ctx, req, body)
		if err == nil && resp.StatusCode < 500 {
			breaker.Report(ctx, true)
			return resp, nil
		}
		breaker.Report(ctx, false)
		if err != nil {
			lastErr = err
		} else {
			lastErr = errors.New(resp.Status)
		}
		if attempt == attempts {
			break
		}

		wait := time.NewTimer(Backoff(backoff, attempt, cl.Jitter))
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil, ctx.Err()
		case <-wait.C:
		}
	}

	if cl.Fallback != nil {
		return cl.Fallback(ctx, req, lastErr)
	}
	return nil, lastErr
}

func (cl HTTPClient) attempt(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var callCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	clone := req.Clone(callCtx)
	if body != nil {
		clone.Body = replayable(body)
		clone.GetBody = func() (io.ReadCloser, error) { return replayable(body), nil }
	}
	return cl.Client.Do(clone)
}

func replayable(body []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(body))
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	src := req.Body
	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		src = fresh
	}
	data, err := io.ReadAll(src)
	_ = src.Close()
	if err != nil {
		return nil, err
	}
	req.Body = replayable(data)
	req.GetBody = func() (io.ReadCloser, error) { return replayable(data), nil }
	return data, nil
}
