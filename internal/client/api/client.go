/*
Package api is a REST client for the dmchat server.

Every endpoint answers with the {code, message, data} envelope; a non-zero
code is returned as *Error so callers can branch on the business code.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
)

// DefaultTimeout bounds a single request when the caller's context has no deadline.
const DefaultTimeout = 10 * time.Second

// Error is a failed call as reported by the server envelope.
type Error struct {
	Code    int
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// IsCode reports whether err is an *Error with the given business code.
func IsCode(err error, code int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Session is the result of a successful login or registration.
type Session struct {
	Token string    `json:"token"`
	User  user.User `json:"user"`
}

// PresignedUpload describes where to PUT an image and the URL to reference it by afterwards.
type PresignedUpload struct {
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
	PublicURL string `json:"publicUrl"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to one server. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a Client for baseURL (http:// or https://) authenticating with token, which may be empty.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// BaseURL returns the server address the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token returns the current identity token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the identity token, e.g. after a token:update event.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Register creates an account and adopts the returned token.
func (c *Client) Register(ctx context.Context, in user.RegisterInput) (Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", in, &s); err != nil {
		return Session{}, err
	}
	c.SetToken(s.Token)
	return s, nil
}

// Login authenticates and adopts the returned token.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	in := map[string]string{"username": username, "password": password}

	var s Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", in, &s); err != nil {
		return Session{}, err
	}
	c.SetToken(s.Token)
	return s, nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (user.User, error) {
	var out struct {
		User user.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return user.User{}, err
	}
	return out.User, nil
}

// Conversation returns the messages exchanged with peerID, oldest first.
func (c *Client) Conversation(ctx context.Context, peerID string) ([]message.Message, error) {
	var msgs []message.Message
	err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(peerID), nil, &msgs)
	return msgs, err
}

// Send posts a message to peerID and returns it as persisted by the server.
func (c *Client) Send(ctx context.Context, peerID string, in message.SendInput) (message.Message, error) {
	var msg message.Message
	err := c.do(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(peerID), in, &msg)
	return msg, err
}

// SearchUsers finds users by username or display name.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]user.User, error) {
	var users []user.User
	err := c.do(ctx, http.MethodGet, "/api/users/search?q="+url.QueryEscape(query), nil, &users)
	return users, err
}

// Contacts returns the caller's conversation partners, most recent first.
func (c *Client) Contacts(ctx context.Context) ([]user.User, error) {
	var users []user.User
	err := c.do(ctx, http.MethodGet, "/api/messages/users", nil, &users)
	return users, err
}

// Presence returns the ids of the users currently online.
func (c *Client) Presence(ctx context.Context) ([]string, error) {
	var out struct {
		UserIDs []string `json:"userIds"`
	}
	err := c.do(ctx, http.MethodGet, "/api/presence", nil, &out)
	return out.UserIDs, err
}

// PresignUpload asks for an upload URL for an image.
func (c *Client) PresignUpload(ctx context.Context, fileName, mimeType string, size int64) (PresignedUpload, error) {
	in := map[string]any{"fileName": fileName, "mimeType": mimeType, "fileSize": size}

	var out PresignedUpload
	err := c.do(ctx, http.MethodPost, "/api/file/presign-upload", in, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &Error{Status: resp.StatusCode, Message: resp.Status}
		}
		return fmt.Errorf("decode %s: %w", path, err)
	}

	if env.Code != 0 {
		return &Error{Code: env.Code, Message: env.Message, Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Status: resp.StatusCode, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
