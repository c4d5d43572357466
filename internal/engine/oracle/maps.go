package oracle

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync/atomic"
	"time"

	utls "github.com/refraction-networking/utls"

	"github.com/rendis/rankgrid/internal/engine/resource"
	"github.com/rendis/rankgrid/internal/logging"
)

const (
	DefaultSearchURL = "https://www.google.com/search"

	defaultMaxRetries      = 3
	defaultCompetitorLimit = 3
	defaultZoom            = 15
	defaultTimeout         = 15 * time.Second

	baseBackoff  = 2 * time.Second
	maxBackoff   = 30 * time.Second
	jitterFactor = 0.5
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

// MapsConfig configures the Google Maps oracle. Zero values take defaults.
type MapsConfig struct {
	SearchURL       string
	Lang            string
	Zoom            int
	ProxyURL        string
	Timeout         time.Duration // per HTTP request
	MaxRetries      int           // attempts on rate limiting, including the first
	CompetitorLimit int
}

func (c *MapsConfig) applyDefaults() {
	if c.SearchURL == "" {
		c.SearchURL = DefaultSearchURL
	}
	if c.Lang == "" {
		c.Lang = "en"
	}
	if c.Zoom <= 0 {
		c.Zoom = defaultZoom
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.CompetitorLimit <= 0 {
		c.CompetitorLimit = defaultCompetitorLimit
	}
}

// Maps ranks a business by running a tbm=map search at the query coordinate
// and locating it in the first result page.
type Maps struct {
	cfg     MapsConfig
	session *resource.Handle[*http.Client]
	logger  logging.Logger

	baseBackoff time.Duration
	maxBackoff  time.Duration

	rateLimits atomic.Int64
}

type MapsOption func(*Maps)

func WithMapsLogger(l logging.Logger) MapsOption {
	return func(m *Maps) { m.logger = l }
}

// WithHTTPClient replaces the fingerprinted session with c.
func WithHTTPClient(c *http.Client) MapsOption {
	return func(m *Maps) {
		m.session = resource.New(func(context.Context) (*http.Client, error) { return c, nil }, nil)
	}
}

// WithBackoff overrides the rate-limit backoff bounds.
func WithBackoff(base, limit time.Duration) MapsOption {
	return func(m *Maps) {
		m.baseBackoff = base
		m.maxBackoff = limit
	}
}

func NewMaps(cfg MapsConfig, opts ...MapsOption) *Maps {
	cfg.applyDefaults()
	m := &Maps{
		cfg:         cfg,
		logger:      logging.NewNopLogger(),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
	m.session = resource.New(func(context.Context) (*http.Client, error) {
		return newSession(cfg)
	}, func(c *http.Client) error {
		c.CloseIdleConnections()
		return nil
	})
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckRank implements Oracle.
func (m *Maps) CheckRank(ctx context.Context, q Query) (Ranking, error) {
	client, err := m.session.Acquire(ctx)
	if err != nil {
		return Ranking{}, classify(ctx, fmt.Errorf("opening maps session: %w", err))
	}

	body, err := m.search(ctx, client, q)
	if err != nil {
		return Ranking{}, err
	}

	window, err := parseWindow(body)
	if err != nil {
		return Ranking{}, NewError(KindMalformed, err)
	}

	r := rankIn(window, q.TargetID, m.cfg.CompetitorLimit)
	m.logger.Debug("maps window parsed",
		logging.String("keyword", q.Keyword),
		logging.Float64("lat", q.Lat),
		logging.Float64("lng", q.Lng),
		logging.Int("window", len(window)),
		logging.Int("rank", r.Rank),
	)
	return r, nil
}

// ConsecutiveRateLimits reports how many rate-limited responses were seen since the last success.
func (m *Maps) ConsecutiveRateLimits() int64 {
	return m.rateLimits.Load()
}

func (m *Maps) Close() error {
	return m.session.Close()
}

// search performs the tbm=map request, retrying with exponential backoff
// while Maps rate limits us.
func (m *Maps) search(ctx context.Context, client *http.Client, q Query) ([]byte, error) {
	params := url.Values{}
	params.Set("tbm", "map")
	params.Set("authuser", "0")
	params.Set("hl", m.cfg.Lang)
	params.Set("q", q.Keyword)
	params.Set("pb", buildPB(q.Lat, q.Lng, m.cfg.Zoom))

	reqURL := m.cfg.SearchURL + "?" + params.Encode()

	var lastErr error
	for attempt := range m.cfg.MaxRetries {
		body, err := m.doRequest(ctx, client, reqURL)
		if err == nil {
			m.rateLimits.Store(0)
			return body, nil
		}

		lastErr = err
		if KindOf(err) != KindRateLimited {
			break
		}
		m.rateLimits.Add(1)
		if attempt == m.cfg.MaxRetries-1 {
			break
		}

		backoff := m.baseBackoff * time.Duration(1<<uint(attempt))
		if backoff > m.maxBackoff {
			backoff = m.maxBackoff
		}
		backoff += time.Duration(float64(backoff) * jitterFactor * rand.Float64())

		m.logger.Warn("maps rate limited, backing off",
			logging.Int("attempt", attempt+1),
			logging.Duration("backoff", backoff),
		)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, classify(ctx, ctx.Err())
		case <-t.C:
		}
	}

	return nil, lastErr
}

func (m *Maps) doRequest(ctx context.Context, client *http.Client, reqURL string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, NewError(KindUpstream, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("User-Agent", userAgents[rand.IntN(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", m.cfg.Lang+";q=0.9,en;q=0.8")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Referer", "https://www.google.com/")

	resp, err := client.Do(req)
	if err != nil {
		return nil, classify(reqCtx, fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusFound,
		resp.StatusCode == http.StatusMovedPermanently,
		resp.StatusCode == http.StatusTemporaryRedirect:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, NewError(KindRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, NewError(KindUpstream, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(reqCtx, fmt.Errorf("reading body: %w", err))
	}
	return body, nil
}

// classify turns a transport failure into an *Error.
func classify(ctx context.Context, err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return NewError(KindTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return NewError(KindTimeout, err)
	}
	return NewError(KindNetwork, err)
}

// newSession builds the cookie-carrying HTTP client used for every Maps call.
// TLS uses a Chrome ClientHello pinned to HTTP/1.1 unless a proxy is set.
func newSession(cfg MapsConfig) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	googleURL, _ := url.Parse("https://www.google.com")
	jar.SetCookies(googleURL, []*http.Cookie{
		{Name: "CONSENT", Value: "YES+EN.en+V14+BX", Path: "/", Domain: ".google.com"},
	})

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}

			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				host = addr
			}

			// Get Chrome TLS spec and force HTTP/1.1 ALPN
			spec, err := utls.UTLSIdToSpec(utls.HelloChrome_Auto)
			if err != nil {
				conn.Close()
				return nil, err
			}
			for i, ext := range spec.Extensions {
				if alpn, ok := ext.(*utls.ALPNExtension); ok {
					alpn.AlpnProtocols = []string{"http/1.1"}
					spec.Extensions[i] = alpn
					break
				}
			}

			tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloCustom)
			if err := tlsConn.ApplyPreset(&spec); err != nil {
				conn.Close()
				return nil, err
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	if cfg.ProxyURL != "" {
		proxyParsed, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyParsed)
		// the proxy terminates the connection, so use standard TLS
		transport.DialTLSContext = nil
		transport.TLSClientConfig = &tls.Config{}
	}

	return &http.Client{
		Transport: transport,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}
