package client

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Callbacks are optional hooks for stream events that matter to a UI but not
// to correctness. All fields may be nil.
type Callbacks struct {
	// QueueCountChanged reports the server's queue depth while the job
	// waits for a worker.
	QueueCountChanged func(remaining int)

	// Started fires when the engine begins executing this job.
	Started func(promptID string)

	// Progress reports per-node sampling progress while this job executes.
	Progress func(value, max int)
}

// Client drives one generation job on the engine. Each client owns a fresh
// id and a dedicated event-stream connection; connections are one-shot and
// never pooled, so correlation state cannot leak between jobs. Create a new
// Client per job.
type Client struct {
	serverAddress string
	clientID      string
	httpClient    *http.Client
	log           zerolog.Logger
	callbacks     Callbacks
	ws            *wsConnection
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client used for queue, history
// and binary-fetch requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithCallbacks attaches event hooks.
func WithCallbacks(cb Callbacks) Option {
	return func(c *Client) { c.callbacks = cb }
}

// New creates a client for the engine at serverAddress (host:port).
func New(serverAddress string, opts ...Option) *Client {
	c := &Client{
		serverAddress: serverAddress,
		clientID:      uuid.New().String(),
		httpClient:    &http.Client{},
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientID returns the id correlating this connection's events.
func (c *Client) ClientID() string {
	return c.clientID
}

// Connect opens the event-stream connection. Run connects on demand, so
// calling Connect first is only useful to fail fast on an unreachable engine.
func (c *Client) Connect(ctx context.Context) error {
	if c.ws != nil {
		return nil
	}
	ws, err := dialEventStream(ctx, c.serverAddress, c.clientID)
	if err != nil {
		return wrapErr(KindTransport, "connect", err)
	}
	c.ws = ws
	return nil
}

// Close tears down the event-stream connection. Safe to call repeatedly and
// on a never-connected client.
func (c *Client) Close() error {
	if c.ws == nil {
		return nil
	}
	err := c.ws.Close()
	c.ws = nil
	return err
}
