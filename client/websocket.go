package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// wsConnection is a one-shot duplex connection to the engine's event stream.
// There is deliberately no retry or reconnection: a dropped connection means
// the job's fate is unknown, and resubmitting a non-idempotent job is a
// caller-level decision, not a transport-level one.
type wsConnection struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func dialEventStream(ctx context.Context, serverAddress, clientID string) (*wsConnection, error) {
	u := url.URL{
		Scheme:   "ws",
		Host:     serverAddress,
		Path:     "/ws",
		RawQuery: url.Values{"clientId": {clientID}}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing event stream: %w", err)
	}
	return &wsConnection{conn: conn}, nil
}

// next blocks until the next frame arrives. It is the only suspension point
// of a running job.
func (w *wsConnection) next() ([]byte, error) {
	_, message, err := w.conn.ReadMessage()
	return message, err
}

func (w *wsConnection) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}
