package exchange

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"momentum-arb-bot/internal/market"
)

const (
	// Per-call timeouts: order submission gets the long one, market-data
	// reads the short one. Cancelling a submitted order mid-flight is unsafe,
	// so the context handed to order calls should outlive these.
	orderTimeout      = 30 * time.Second
	marketDataTimeout = 10 * time.Second
)

// restClient is the shared HTTP layer under every adapter. It owns the
// per-venue request pacing (min interval between outbound calls) and a
// circuit breaker that opens after consecutive transport failures.
type restClient struct {
	venue   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newRESTClient(venue, baseURL string, minInterval time.Duration) *restClient {
	return &restClient{
		venue:   venue,
		baseURL: baseURL,
		http:    &http.Client{Timeout: orderTimeout},
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        venue,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

type restRequest struct {
	method  string
	path    string
	query   url.Values
	headers map[string]string
	body    []byte
	timeout time.Duration
}

// do paces, executes and reads one request. A non-2xx status is returned as
// a *market.VenueError carrying the raw body as message; adapters that can
// extract a venue error code refine it after decoding.
func (c *restClient) do(ctx context.Context, req restRequest) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	timeout := req.timeout
	if timeout == 0 {
		timeout = marketDataTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var reader io.Reader
	if req.body != nil {
		reader = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &market.VenueError{
				Venue:      c.venue,
				HTTPStatus: resp.StatusCode,
				Message:    string(body),
			}
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
