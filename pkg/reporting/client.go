package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/gridpulse/reporting-client/internal/merge"
	"github.com/gridpulse/reporting-client/internal/plan"
	"github.com/gridpulse/reporting-client/internal/stream"
	"github.com/gridpulse/reporting-client/internal/transport"
)

// Config holds all settings for a Client. The zero value is usable once
// ServerURL is set; every other field has a default.
type Config struct {
	ServerURL string
	APIKey    string

	// PageSize is the number of records requested per page.
	PageSize uint32
	// MaxEntitiesPerCall and MaxMetricsPerCall cap how much of the query's
	// entity×metric space one protocol-level request may carry; larger
	// queries are split into multiple concurrent request plans.
	MaxEntitiesPerCall int
	MaxMetricsPerCall  int

	PageTimeout    time.Duration
	RateLimit      float64 // pages per second, 0 disables
	RateLimitBurst int
	ConnPoolSize   int

	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	Logger *logrus.Logger
}

func (c Config) withDefaults() Config {
	limits := plan.DefaultLimits()
	retry := stream.DefaultRetryConfig()
	if c.PageSize == 0 {
		c.PageSize = 1000
	}
	if c.MaxEntitiesPerCall <= 0 {
		c.MaxEntitiesPerCall = limits.MaxEntitiesPerCall
	}
	if c.MaxMetricsPerCall <= 0 {
		c.MaxMetricsPerCall = limits.MaxMetricsPerCall
	}
	if c.PageTimeout == 0 {
		c.PageTimeout = 30 * time.Second
	}
	if c.ConnPoolSize <= 0 {
		c.ConnPoolSize = 4
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = retry.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = retry.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = retry.MaxBackoff
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = retry.BackoffMultiplier
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
		c.Logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return c
}

// Client is the public entry point of the query engine. It validates
// queries, decomposes them into request plans, and returns the merged,
// time-ordered sample sequence. A Client is safe for concurrent use.
type Client struct {
	cfg       Config
	factory   *transport.Factory
	fetcher   stream.PageFetcher // non-nil overrides the factory
	validator queryValidator
}

// NewClient creates a client for the reporting service at cfg.ServerURL.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.ServerURL == "" {
		return nil, errors.New("reporting: server URL must be set")
	}
	factory, err := transport.NewFactory(cfg.ConnPoolSize, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, factory: factory}, nil
}

// NewClientWithConn builds a client on an existing gRPC connection, e.g. an
// in-process bufconn during tests. Closing the connection remains the
// caller's responsibility.
func NewClientWithConn(conn grpc.ClientConnInterface, cfg Config) *Client {
	cfg = cfg.withDefaults()
	ch := transport.NewChannel(conn, transport.Config{
		APIKey:      cfg.APIKey,
		PageTimeout: cfg.PageTimeout,
	})
	return &Client{cfg: cfg, fetcher: ch}
}

// ListSingleComponentData queries the data of a single microgrid component.
// See ListMicrogridComponentsData for the sequence contract.
func (c *Client) ListSingleComponentData(ctx context.Context, q SingleComponentQuery) (*Samples, error) {
	return c.ListMicrogridComponentsData(ctx, q.asQuery())
}

// ListMicrogridComponentsData queries data for an arbitrary set of
// (microgrid, component) pairs and metrics. The returned sequence is lazy:
// pages are fetched as the caller consumes it, with one concurrent reader
// per request plan, and samples arrive ordered by (timestamp, microgrid,
// component, metric). Validation failures surface as ErrInvalidQuery before
// any network call.
func (c *Client) ListMicrogridComponentsData(ctx context.Context, q Query) (*Samples, error) {
	if err := c.validator.Validate(q); err != nil {
		return nil, err
	}

	plans, err := plan.Compose(q.normalize(), plan.Limits{
		MaxEntitiesPerCall: c.cfg.MaxEntitiesPerCall,
		MaxMetricsPerCall:  c.cfg.MaxMetricsPerCall,
	})
	if err != nil {
		return nil, err
	}

	fetcher, err := c.pageFetcher()
	if err != nil {
		return nil, err
	}

	retry := stream.RetryConfig{
		MaxAttempts:       c.cfg.MaxRetries,
		InitialBackoff:    c.cfg.InitialBackoff,
		MaxBackoff:        c.cfg.MaxBackoff,
		BackoffMultiplier: c.cfg.BackoffMultiplier,
	}
	sources := make([]merge.Source, len(plans))
	for i, p := range plans {
		sources[i] = stream.NewReader(p, fetcher, c.cfg.PageSize, retry, c.cfg.Logger)
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Samples{
		merger: merge.New(ctx, sources),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (c *Client) pageFetcher() (stream.PageFetcher, error) {
	if c.fetcher != nil {
		return c.fetcher, nil
	}
	return c.factory.Channel(transport.Config{
		ServerURL:      c.cfg.ServerURL,
		APIKey:         c.cfg.APIKey,
		PageTimeout:    c.cfg.PageTimeout,
		RateLimit:      c.cfg.RateLimit,
		RateLimitBurst: c.cfg.RateLimitBurst,
	})
}

// Close releases every pooled connection. Clients built over an external
// connection leave that connection open.
func (c *Client) Close() error {
	if c.factory != nil {
		c.factory.Close()
	}
	return nil
}
