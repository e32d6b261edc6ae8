// Package client is the Go SDK of the relay. Every call takes the caller
// identity explicitly through a Session, there is no process-wide current user.
package client

import (
	"bytes"
	"chat-relay/domain/api"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Session is what a login hands back: who is speaking and the token proving it.
type Session struct {
	User  api.User
	Token string
}

type Config struct {
	// BaseURL is the relay HTTP root, e.g. http://localhost:8080.
	BaseURL string
	// BufferSize bounds the incoming message and error queues of a connection.
	BufferSize int
	// HandshakeTimeout bounds the websocket dial and the add-user acknowledgement.
	HandshakeTimeout time.Duration
	HTTPClient       *http.Client
}

type Client struct {
	log     *slog.Logger
	cfg     Config
	baseURL *url.URL
	http    *http.Client
}

func New(log *slog.Logger, cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{log: log, cfg: cfg, baseURL: base, http: httpClient}, nil
}

func (c *Client) Register(ctx context.Context, username, email, password string) (api.User, error) {
	var resp api.AuthResponse
	err := c.post(ctx, "/api/auth/register", "", api.RegisterRequest{
		Username: username, Email: email, Password: password,
	}, &resp)
	if err != nil {
		return api.User{}, err
	}
	if !resp.Status || resp.User == nil {
		return api.User{}, fmt.Errorf("register %s: %s", username, resp.Msg)
	}
	return *resp.User, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	var resp api.AuthResponse
	err := c.post(ctx, "/api/auth/login", "", api.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return Session{}, err
	}
	if !resp.Status || resp.User == nil {
		return Session{}, fmt.Errorf("login %s: %s", username, resp.Msg)
	}
	return Session{User: *resp.User, Token: resp.Token}, nil
}

// Contacts lists every other known account.
func (c *Client) Contacts(ctx context.Context, session Session) ([]api.User, error) {
	var users []api.User
	path := "/api/auth/allusers/" + url.PathEscape(session.User.ID)
	if err := c.do(ctx, http.MethodGet, path, session.Token, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// AddMessage persists a message and returns its id. It does not notify the recipient.
func (c *Client) AddMessage(ctx context.Context, session Session, to, message string) (string, error) {
	var resp api.AddMessageResponse
	err := c.post(ctx, "/api/messages/addmsg", session.Token, api.AddMessageRequest{
		From: session.User.ID, To: to, Message: message,
	}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("add message to %s: %s", to, resp.Error)
	}
	return resp.ID, nil
}

// History returns the conversation with peer, oldest first. limit <= 0 means the server default.
func (c *Client) History(ctx context.Context, session Session, peer string, limit int) ([]api.Message, error) {
	body := api.GetMessagesRequest{From: session.User.ID, To: peer}
	if limit > 0 {
		body.Limit = &limit
	}
	var resp api.GetMessagesResponse
	if err := c.post(ctx, "/api/messages/getmsg", session.Token, body, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, token, body, out)
}

// do sends a JSON request and decodes the JSON answer into out.
// Error statuses come back as errors carrying the answer body.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		c.log.Warn("relay answered with a server error", "path", path, "status", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, err)
	}
	return nil
}

func (c *Client) socketURL(token string) string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/socket"
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String()
}
