package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/charlesng35/trackgate/internal/cache"
	"github.com/charlesng35/trackgate/pkg/logger"
	"github.com/charlesng35/trackgate/pkg/metrics"
)

const (
	// DefaultTimeout bounds each provider call.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 8 << 20
)

// ClientConfig captures the provider endpoints and credentials.
type ClientConfig struct {
	AuthURL      string
	PositionsURL string
	Username     string
	Password     string

	Timeout time.Duration

	// RequestsPerSecond paces outgoing calls; zero disables pacing.
	RequestsPerSecond float64
	Burst             int

	HTTPClient *http.Client
}

// Client talks to the telemetry provider on behalf of every API caller using one
// shared session.
type Client struct {
	cfg      ClientConfig
	http     *http.Client
	limiter  *rate.Limiter
	sessions *SessionCache
	log      *zap.Logger
}

// NewClient validates cfg and wires the shared session cache onto store.
func NewClient(cfg ClientConfig, store cache.Store) (*Client, error) {
	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.PositionsURL = strings.TrimSpace(cfg.PositionsURL)
	if cfg.AuthURL == "" || cfg.PositionsURL == "" {
		return nil, errors.New("telemetry client: auth and positions urls are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		log:     logger.WithModule("telemetry"),
	}

	sessions, err := NewSessionCache(store, c)
	if err != nil {
		return nil, err
	}
	c.sessions = sessions
	return c, nil
}

// Sessions exposes the shared session cache.
func (c *Client) Sessions() *SessionCache {
	return c.sessions
}

// Login authenticates with the configured credential pair.
func (c *Client) Login(ctx context.Context) (Session, error) {
	params := url.Values{}
	params.Set("UserName", c.cfg.Username)
	params.Set("Password", c.cfg.Password)

	var payload loginResponse
	if err := c.get(ctx, "login", c.cfg.AuthURL, params, &payload); err != nil {
		metrics.UpstreamLogins.WithLabelValues("failure").Inc()
		return Session{}, err
	}

	if payload.Status.Result != statusOK {
		metrics.UpstreamLogins.WithLabelValues("failure").Inc()
		c.log.Warn("telemetry login rejected", zap.String("result", payload.Status.Result))
		if payload.Status.Message != "" {
			return Session{}, fmt.Errorf("%w: %s", ErrAuthenticationFailed, payload.Status.Message)
		}
		return Session{}, ErrAuthenticationFailed
	}

	if payload.Result.SessionID == "" {
		metrics.UpstreamLogins.WithLabelValues("failure").Inc()
		c.log.Warn("telemetry login returned no session id")
		return Session{}, fmt.Errorf("%w: empty session id", ErrAuthenticationFailed)
	}

	metrics.UpstreamLogins.WithLabelValues("success").Inc()
	return Session{
		UserID:    payload.Result.UserIDGUID,
		SessionID: payload.Result.SessionID,
	}, nil
}

// FetchPositions returns the latest positions reported for uid.
func (c *Client) FetchPositions(ctx context.Context, uid string) (*PositionsResponse, error) {
	session, err := c.sessions.GetOrRefresh(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("UserIdGuid", session.UserID)
	params.Set("SessionId", session.SessionID)
	params.Set("Uid", uid)
	params.Set("IncludeInputOutputs", "true")

	var payload PositionsResponse
	if err := c.get(ctx, "positions", c.cfg.PositionsURL, params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) get(ctx context.Context, call, endpoint string, params url.Values, out any) (err error) {
	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		metrics.UpstreamLatency.WithLabelValues(call, result).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUpstreamTimeout, call, err)
	}

	target, err := withQuery(endpoint, params)
	if err != nil {
		return fmt.Errorf("telemetry %s: %w", call, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("telemetry %s: %w", call, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(call, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return fmt.Errorf("%w: %s returned status %d", ErrUpstream, call, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return classify(call, err)
	}
	return nil
}

func withQuery(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	query := u.Query()
	for key, values := range params {
		for _, value := range values {
			query.Set(key, value)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func classify(call string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s: %v", ErrUpstreamTimeout, call, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstream, call, err)
}
