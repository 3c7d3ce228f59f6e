// Package apiclient talks to the feed backend over HTTP and WebSocket.
// It implements the feed.Loader, feed.Dispatcher and feed.DialFunc
// contracts, so embedding frontends and bots wire a Client straight into
// feed.Client.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oddsradar/backend/feed"
)

// Client calls one feed surface of the backend. BaseURL has no trailing
// slash ("https://api.oddsradar.app"). InitData, when set, is forwarded
// on every request as the Telegram auth header.
type Client struct {
	BaseURL    string
	Feed       string // "chat", "war_room" or "radar"
	InitData   string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	if c.InitData != "" {
		req.Header.Set("X-Telegram-Init-Data", c.InitData)
	}
	return c.http().Do(req)
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

func statusErr(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("backend returned %d: %s", resp.StatusCode, bytes.TrimSpace(b))
}

// RecentRows fetches the most recent rows for a scope, newest first.
func (c *Client) RecentRows(ctx context.Context, scope feed.Scope, limit int) ([]feed.Row, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/feeds/"+c.Feed+"/rows", nil)
	q := req.URL.Query()
	q.Set("scope", scope.String())
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	req.URL.RawQuery = q.Encode()
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(resp)
	}
	var rows []feed.Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SendRow submits one row and returns the authoritative server row with
// its assigned id and timestamp.
func (c *Client) SendRow(ctx context.Context, row feed.Row) (feed.Row, error) {
	body, err := json.Marshal(row)
	if err != nil {
		return feed.Row{}, err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/feeds/"+c.Feed+"/rows", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return feed.Row{}, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusCreated {
		return feed.Row{}, statusErr(resp)
	}
	var confirmed feed.Row
	if err := json.NewDecoder(resp.Body).Decode(&confirmed); err != nil {
		return feed.Row{}, err
	}
	return confirmed, nil
}

// LikeRow bumps the like counter of one row and returns the confirmed
// count.
func (c *Client) LikeRow(ctx context.Context, id string) (int, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/feeds/"+c.Feed+"/rows/"+id+"/like", nil)
	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return 0, statusErr(resp)
	}
	var body struct {
		Likes int `json:"likes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.Likes, nil
}
