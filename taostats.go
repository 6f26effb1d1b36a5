// Package taostats is a client for the taostats REST API and for submitting
// slippage-protected staking and transfer transactions to Bittensor.
package taostats

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"taostats/internal/account"
	"taostats/internal/api"
	"taostats/internal/chain"
	"taostats/internal/config"
	"taostats/internal/keyring"
	"taostats/internal/metrics"
	"taostats/internal/pool"
	"taostats/internal/sdkerr"
	"taostats/internal/txn"
)

// Config is the client configuration; see config.Load for the sources it merges.
type Config = config.Config

// Outcome and parameter types of the transaction modules.
type (
	Outcome             = txn.Outcome
	StakeParams         = txn.StakeParams
	Estimate            = txn.Estimate
	TransferParams      = txn.TransferParams
	TransferCost        = txn.TransferCost
	MaxTransfer         = txn.MaxTransfer
	AlphaTransferParams = txn.AlphaTransferParams
	MoveParams          = txn.MoveParams
)

// Option customizes a Client.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	metrics  *metrics.Metrics
	recorder txn.Recorder
	dialer   chain.Dialer
	chain    txn.Chain
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRecorder journals every outcome.
func WithRecorder(r txn.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithDialer replaces how the chain connection is opened.
func WithDialer(d chain.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// Client bundles the chain manager, the transaction pipeline and the REST client.
type Client struct {
	Stake    StakeModule
	Unstake  UnstakeModule
	Transfer TransferModule
	Move     MoveModule

	cfg      Config
	manager  *chain.Manager
	pipeline *txn.Pipeline
	api      *api.Client
	logger   *zap.Logger
}

// New builds a Client. No connection is opened until the first chain call.
func New(cfg Config, opts ...Option) (*Client, error) {
	const op = "new client"
	if err := cfg.Validate(); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindConfiguration, op, err, "invalid configuration")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	scheme, err := keyring.ParseScheme(cfg.KeyScheme)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindConfiguration, op, err, "invalid key scheme")
	}
	overrides, err := chain.ParseCallIndexes(cfg.Calls)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindConfiguration, op, err, "invalid call index override")
	}

	dialer := o.dialer
	if dialer == nil {
		dialer = chain.NodeDialer(chain.NodeOptions{
			PollInterval: cfg.PollInterval,
			Logger:       logger,
			Metrics:      o.metrics,
		})
	}
	manager := chain.NewManager(cfg.ChainURL(), dialer, chain.ManagerOptions{
		BlockViewCapacity: cfg.BlockCacheSize,
		ConfirmTimeout:    cfg.ConfirmTimeout,
		Logger:            logger,
		Metrics:           o.metrics,
	})

	var backend txn.Chain = manager
	if o.chain != nil {
		backend = o.chain
	}
	pipeline := txn.New(backend, account.Config{
		Seed:       cfg.Seed,
		PrivateKey: cfg.PrivateKey,
		ProxySeed:  cfg.ProxySeed,
		Scheme:     scheme,
	}, txn.Options{
		Calls:    chain.NewCalls(overrides),
		Recorder: o.recorder,
		Metrics:  o.metrics,
		Logger:   logger,
	})

	c := &Client{
		cfg:      cfg,
		manager:  manager,
		pipeline: pipeline,
		api: api.New(cfg.APIKey,
			api.WithBaseURL(cfg.BaseURL),
			api.WithTimeout(cfg.Timeout),
			api.WithRetries(cfg.Retries),
			api.WithLogger(logger),
		),
		logger: logger,
	}
	c.Stake = StakeModule{p: pipeline}
	c.Unstake = UnstakeModule{p: pipeline}
	c.Transfer = TransferModule{p: pipeline}
	c.Move = MoveModule{p: pipeline}
	return c, nil
}

// API is the taostats REST client.
func (c *Client) API() *api.Client {
	return c.api
}

// Chain is the connection manager.
func (c *Client) Chain() *chain.Manager {
	return c.manager
}

// Pools reads subnet pool reserves.
func (c *Client) Pools() *pool.Reader {
	return c.pipeline.Pools()
}

// Account resolves the configured keypairs, including the transfer proxy.
func (c *Client) Account() (account.Pair, error) {
	scheme, err := keyring.ParseScheme(c.cfg.KeyScheme)
	if err != nil {
		return account.Pair{}, sdkerr.Wrap(sdkerr.KindConfiguration, "account", err, "invalid key scheme")
	}
	return account.Resolve(account.Config{
		Seed:       c.cfg.Seed,
		PrivateKey: c.cfg.PrivateKey,
		ProxySeed:  c.cfg.ProxySeed,
		Scheme:     scheme,
	}, "")
}

// Health is the reachability of both backends.
type Health struct {
	ChainURL   string          `json:"chain_url"`
	ChainOK    bool            `json:"chain_ok"`
	ChainError string          `json:"chain_error,omitempty"`
	APIStatus  json.RawMessage `json:"api_status,omitempty"`
	APIError   string          `json:"api_error,omitempty"`
}

// Health opens the chain connection and asks the REST API for its status.
// Failures are reported in the result, not as an error.
func (c *Client) Health(ctx context.Context) Health {
	h := Health{ChainURL: c.manager.URL()}
	if _, err := c.manager.Connection(ctx); err != nil {
		h.ChainError = err.Error()
	} else {
		h.ChainOK = true
	}
	status, err := c.api.Health(ctx)
	if err != nil {
		h.APIError = err.Error()
	} else {
		h.APIStatus = status
	}
	return h
}

// Close drops the chain connection.
func (c *Client) Close() {
	c.manager.Close()
}

func (c *Client) String() string {
	return fmt.Sprintf("taostats.Client{rpc=%s}", c.manager.URL())
}

// withChain swaps the pipeline backend, leaving the manager unused.
func withChain(c txn.Chain) Option {
	return func(o *options) { o.chain = c }
}
