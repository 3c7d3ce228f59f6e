package apiclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/oddsradar/backend/feed"
)

// wsSubscribe is the control message sent after connecting.
type wsSubscribe struct {
	Action string      `json:"action"`
	Feed   string      `json:"feed"`
	Scope  *feed.Scope `json:"scope"`
}

// wsEnvelope is the wire form of one pushed row.
type wsEnvelope struct {
	Type string   `json:"type"`
	Feed string   `json:"feed"`
	Row  feed.Row `json:"row"`
}

// Dial opens one WebSocket stream for a scope and implements
// feed.DialFunc. The returned channel closes when the socket dies, which
// is the reconnect signal for feed.ReconnectingSource; the source owns
// retry policy, not this transport.
func (c *Client) Dial(ctx context.Context, scope feed.Scope) (<-chan feed.Row, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		closeBody(resp)
	}
	if err != nil {
		return nil, err
	}

	sub := wsSubscribe{Action: "subscribe", Feed: c.Feed, Scope: &scope}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, err
	}

	out := make(chan feed.Row, 64)
	done := make(chan struct{})

	// Close the socket on cancellation so the read loop unblocks. The
	// watcher also exits when the read loop ends; reconnecting callers
	// dial many times per subscription ctx and must not accrue a watcher
	// per dead stream.
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	go func() {
		defer close(out)
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					slog.Debug("websocket stream ended", slog.Any("err", err), slog.String("component", "apiclient"))
				}
				return
			}
			var env wsEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				slog.Debug("dropping malformed frame", slog.Any("err", err), slog.String("component", "apiclient"))
				continue
			}
			if env.Type != "row" || env.Feed != c.Feed {
				continue
			}
			select {
			case out <- env.Row:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
