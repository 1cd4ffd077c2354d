// Package inatclient is the HTTP Client Facade over the iNaturalist API:
// fetch-observations and fetch-taxa, each wrapped in a circuit breaker,
// with exactly-one-retry-on-401 credential refresh semantics.
package inatclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dwca-toolkit/downloader/internal/inatparams"
	"github.com/dwca-toolkit/downloader/internal/logging"
	"github.com/dwca-toolkit/downloader/internal/metrics"
	"github.com/dwca-toolkit/downloader/internal/models"
)

// maxErrorBodySize bounds how much of a non-2xx response body is read
// for inclusion in a ResponseError, to avoid unbounded allocation.
const maxErrorBodySize = 64 * 1024

// CredentialRefresher is the external collaborator that exchanges a
// stored OAuth token for a fresh bearer. It is the one seam the client
// relies on to recover from a 401; the refresh mechanism itself
// (keychain, OAuth dance) is out of scope for this package.
type CredentialRefresher interface {
	Refresh(ctx context.Context) (bearer string, err error)
}

// Client is the HTTP Client Facade.
type Client struct {
	baseURL    string
	httpClient *http.Client
	refresher  CredentialRefresher

	mu     sync.RWMutex
	bearer string

	obsBreaker  *gobreaker.CircuitBreaker[[]byte]
	taxaBreaker *gobreaker.CircuitBreaker[[]byte]
}

// Option configures a Client.
type Option func(*Client)

// WithBearer seeds the initial bearer token.
func WithBearer(bearer string) Option {
	return func(c *Client) { c.bearer = bearer }
}

// WithCredentialRefresher installs the 401-recovery collaborator.
func WithCredentialRefresher(r CredentialRefresher) Option {
	return func(c *Client) { c.refresher = r }
}

// WithHTTPClient overrides the underlying *http.Client (tests inject a
// short-timeout client pointed at an httptest.Server).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New constructs a Client for the given base URL and request timeout.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.obsBreaker = newBreaker("observations")
	c.taxaBreaker = newBreaker("taxa")
	return c
}

func newBreaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	metrics.SetCircuitBreakerState(name, 0)
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("endpoint", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state transition")
			metrics.SetCircuitBreakerState(name, int(to))
		},
	})
}

// FetchObservations performs GET {base}/observations with the query
// built from params plus the keyset cursor idBelow (empty for the
// first page).
func (c *Client) FetchObservations(ctx context.Context, params inatparams.Params, idBelow string) (*models.ObservationsPage, error) {
	query := inatparams.Encode(params, idBelow)
	body, err := c.getWithBreaker(ctx, c.obsBreaker, "observations", "/observations", query)
	if err != nil {
		return nil, err
	}
	var page models.ObservationsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &page, nil
}

// FetchTaxa performs GET {base}/taxa for up to 500 ids. Callers chunk;
// this method does not paginate.
func (c *Client) FetchTaxa(ctx context.Context, ids []int) ([]*models.Taxon, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := url.Values{}
	query.Set("id", joinInts(ids))
	query.Set("per_page", "500")

	body, err := c.getWithBreaker(ctx, c.taxaBreaker, "taxa", "/taxa", query)
	if err != nil {
		return nil, err
	}
	var page models.TaxaPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return page.Results, nil
}

func (c *Client) getWithBreaker(ctx context.Context, cb *gobreaker.CircuitBreaker[[]byte], endpoint, path string, query url.Values) ([]byte, error) {
	body, err := cb.Execute(func() ([]byte, error) {
		return c.get(ctx, path, query)
	})
	outcome := "success"
	if err != nil {
		outcome = outcomeFor(err)
	}
	metrics.RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	return body, err
}

func outcomeFor(err error) string {
	switch err.(type) {
	case *ResponseError:
		return "response_error"
	case *TransportError:
		return "transport_error"
	case *DecodeError:
		return "decode_error"
	case *AuthError:
		return "auth_error"
	default:
		return "error"
	}
}

// get performs one GET request, transparently recovering from a single
// 401 by refreshing the bearer and retrying exactly once.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	body, status, err := c.doGet(ctx, path, query)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized && c.refresher != nil {
		if refreshErr := c.refreshBearer(ctx); refreshErr != nil {
			logging.Warn().Err(refreshErr).Msg("credential refresh failed after 401; returning original response")
			return nil, &ResponseError{Status: status, Body: body}
		}
		body, status, err = c.doGet(ctx, path, query)
		if err != nil {
			return nil, err
		}
	}
	if status < 200 || status >= 300 {
		return nil, &ResponseError{Status: status, Body: body}
	}
	return body, nil
}

func (c *Client) refreshBearer(ctx context.Context) error {
	bearer, err := c.refresher.Refresh(ctx)
	if err != nil {
		return &AuthError{Err: err}
	}
	c.mu.Lock()
	c.bearer = bearer
	c.mu.Unlock()
	logExpiry(bearer)
	return nil
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values) ([]byte, int, error) {
	reqURL := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, 0, &TransportError{Err: err}
	}

	c.mu.RLock()
	bearer := c.bearer
	c.mu.RUnlock()
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	var body []byte
	var readErr error
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, readErr = io.ReadAll(resp.Body)
	} else {
		body, readErr = readBody(resp.Body)
	}
	if readErr != nil {
		return nil, resp.StatusCode, &TransportError{Err: readErr}
	}
	return body, resp.StatusCode, nil
}

func readBody(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxErrorBodySize))
}

func joinInts(ids []int) string {
	s := make([]byte, 0, len(ids)*8)
	for i, id := range ids {
		if i > 0 {
			s = append(s, ',')
		}
		s = strconv.AppendInt(s, int64(id), 10)
	}
	return string(s)
}

// logExpiry reads the bearer's exp claim, without verifying its
// signature, purely to give an early warning that a token is close to
// expiry. It never triggers a refresh itself — only a 401 does that.
func logExpiry(bearer string) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(bearer, jwt.MapClaims{})
	if err != nil {
		return
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if remaining := time.Until(exp.Time); remaining < 5*time.Minute {
		logging.Warn().Dur("remaining", remaining).Msg("bearer token close to expiry")
	}
}
