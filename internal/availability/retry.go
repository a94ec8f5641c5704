package availability

import (
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// RetryTransport retries replayable requests (GET/HEAD without a body) on
// transport errors and gateway-class responses (502, 503, 504).
// The checker itself never retries; wrap the client's transport instead.
type RetryTransport struct {
	Base    http.RoundTripper
	Retries int // retries after the first attempt
	Backoff BackoffConfig

	seed atomic.Int64
}

// NewRetryTransport wraps base. A nil base uses http.DefaultTransport.
func NewRetryTransport(base http.RoundTripper, retries int, cfg BackoffConfig) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &RetryTransport{Base: base, Retries: retries, Backoff: cfg}
	t.seed.Store(time.Now().UnixNano())
	return t
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.Retries
	if max < 0 || !canRetry {
		max = 0
	}

	backoff := NewBackoff(t.seed.Add(1), t.Backoff)
	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		resp, err = base.RoundTrip(req.Clone(req.Context()))
		if attempt >= max || !retryable(resp, err) {
			return resp, err
		}
		if req.Context().Err() != nil {
			return resp, err
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
		}

		timer := time.NewTimer(backoff.Next())
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

func retryable(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
