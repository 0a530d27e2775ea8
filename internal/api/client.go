package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client makes REST calls to the backend. The session credential is a
// cookie, so every Client owns a jar; one Client instance is shared by
// everything that talks to the same backend.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// New creates a client targeting the given base URL (e.g. "http://127.0.0.1:8080").
func New(baseURL string, timeout time.Duration, log zerolog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout, Jar: jar},
		log:     log,
	}, nil
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.baseURL }

// sessionCookieName mirrors the cookie the backend sets on login.
const sessionCookieName = "courant_session"

// SessionToken returns the current session cookie value, or "" when no
// session has been established. Callers may persist it across runs.
func (c *Client) SessionToken() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == sessionCookieName {
			return ck.Value
		}
	}
	return ""
}

// SetSessionToken installs a previously saved session cookie. The server
// decides whether it is still valid on the next request.
func (c *Client) SetSessionToken(token string) {
	u, err := url.Parse(c.baseURL)
	if err != nil || token == "" {
		return
	}
	c.http.Jar.SetCookies(u, []*http.Cookie{{Name: sessionCookieName, Value: token, Path: "/"}})
}

// --- auth ---

// Me fetches the current session identity from GET /api/auth/me.
func (c *Client) Me(ctx context.Context) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login posts credentials. The server sets the session cookie on success;
// callers still confirm via Me before treating the session as established.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account. It does not establish a session.
func (c *Client) Register(ctx context.Context, reg Registration) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", reg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout destroys the server-side session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", struct{}{}, nil)
}

// --- notifications ---

// Notifications fetches the history, newest-first as returned by the server.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var out []Notification
	if err := c.do(ctx, http.MethodGet, "/api/notifications", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Send publishes a notification, which the server pushes to subscribers.
func (c *Client) Send(ctx context.Context, n SendNotification) (*Notification, error) {
	var out Notification
	if err := c.do(ctx, http.MethodPost, "/api/notifications/send", n, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- collaborators (external data services; pass-through only) ---

func (c *Client) Products(ctx context.Context) ([]Product, error) {
	var out []Product
	if err := c.do(ctx, http.MethodGet, "/api/products", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	var out Product
	if err := c.do(ctx, http.MethodPost, "/api/products", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProduct(ctx context.Context, p Product) (*Product, error) {
	var out Product
	if err := c.do(ctx, http.MethodPut, "/api/products/"+url.PathEscape(p.ID), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/products/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Weather(ctx context.Context, city string) (*Weather, error) {
	var out Weather
	if err := c.do(ctx, http.MethodGet, "/api/weather/"+url.PathEscape(city), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RefreshWeather(ctx context.Context, city string) (*Weather, error) {
	var out Weather
	if err := c.do(ctx, http.MethodPost, "/api/weather/refresh/"+url.PathEscape(city), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Currencies(ctx context.Context) ([]Currency, error) {
	var out []Currency
	if err := c.do(ctx, http.MethodGet, "/api/currencies/all", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Convert(ctx context.Context, from, to string, amount float64) (*Conversion, error) {
	path := fmt.Sprintf("/api/currencies/%s/%s/%g", url.PathEscape(from), url.PathEscape(to), amount)
	var out Conversion
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do runs one request. body and out may be nil. Non-2xx responses become
// *ServerError, transport failures *NetworkError.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("op", op).Msg("request failed")
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg := readErrorMessage(resp.Body)
		c.log.Debug().Int("status", resp.StatusCode).Str("op", op).Msg("server error")
		return &ServerError{Op: op, Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// readErrorMessage pulls a displayable message out of an error body: the
// "message" field when the body is a JSON object, the raw text otherwise.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(data))
}
