// Package client is a typed HTTP client for the task board API.
//
// Calls that act for a user take an explicit Credential; the client itself
// holds no session state.
package client

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
	"time"

	"github.com/taskboard/backend/internal/board"
	"github.com/taskboard/backend/internal/ordering"
)

const defaultTimeout = 15 * time.Second

// Credential is the bearer token sent on authenticated calls.
type Credential struct {
	Token string
}

func (c Credential) valid() bool {
	return strings.TrimSpace(c.Token) != ""
}

// APIError is a non-2xx reply decoded from the response envelope.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Tokens is the result of a login or refresh.
type Tokens struct {
	Token           string    `json:"token"`
	ExpireAt        time.Time `json:"expire_at"`
	RefreshToken    string    `json:"refresh_token"`
	RefreshExpireAt time.Time `json:"refresh_expire_at"`
	User            *User     `json:"user,omitempty"`
}

func (t *Tokens) Credential() Credential {
	return Credential{Token: t.Token}
}

type Project struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

// NewTask is the body of a task creation. An empty Status means TODO.
type NewTask struct {
	Title       string          `json:"title"`
	Description *string         `json:"description,omitempty"`
	Status      ordering.Status `json:"status,omitempty"`
	AssigneeID  *string         `json:"assigneeId,omitempty"`
}

// TaskEdit collects content changes. Fields never set are not sent.
type TaskEdit struct {
	fields map[string]any
}

func (e *TaskEdit) set(key string, v any) *TaskEdit {
	if e.fields == nil {
		e.fields = make(map[string]any)
	}
	e.fields[key] = v
	return e
}

func (e *TaskEdit) Title(title string) *TaskEdit {
	return e.set("title", title)
}

// Description sets the description; nil clears it.
func (e *TaskEdit) Description(desc *string) *TaskEdit {
	return e.set("description", desc)
}

// Assignee sets the assignee membership id; nil unassigns.
func (e *TaskEdit) Assignee(membershipID *string) *TaskEdit {
	return e.set("assigneeId", membershipID)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Register(ctx context.Context, email, password, name string) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}
	body := map[string]string{"email": email, "password": password, "name": name}
	if err := c.do(ctx, nil, http.MethodPost, "/api/auth/register", body, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*Tokens, error) {
	var out Tokens
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, nil, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh rotates a refresh token. The old token stops working.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	var out Tokens
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, nil, http.MethodPost, "/api/auth/refresh", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context, cred Credential) (*User, error) {
	var out User
	if err := c.do(ctx, &cred, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Projects(ctx context.Context, cred Credential) ([]Project, error) {
	var out []Project
	if err := c.do(ctx, &cred, http.MethodGet, "/api/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateProject(ctx context.Context, cred Credential, name string) (*Project, error) {
	var out Project
	if err := c.do(ctx, &cred, http.MethodPost, "/api/projects", map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Tasks(ctx context.Context, cred Credential, projectID string) ([]board.Card, error) {
	var out []board.Card
	if err := c.do(ctx, &cred, http.MethodGet, projectPath(projectID, "tasks"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Board(ctx context.Context, cred Credential, projectID string) (*board.Board, error) {
	var out board.Board
	if err := c.do(ctx, &cred, http.MethodGet, projectPath(projectID, "board"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateTask(ctx context.Context, cred Credential, projectID string, task NewTask) (*board.Card, error) {
	var out board.Card
	if err := c.do(ctx, &cred, http.MethodPost, projectPath(projectID, "tasks"), task, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MoveTask sends a reposition patch carrying only status and order.
func (c *Client) MoveTask(ctx context.Context, cred Credential, projectID, taskID string, to ordering.Position) (*board.Card, error) {
	var out board.Card
	if err := c.do(ctx, &cred, http.MethodPatch, projectPath(projectID, "tasks", taskID), to, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) EditTask(ctx context.Context, cred Credential, projectID, taskID string, edit *TaskEdit) (*board.Card, error) {
	if edit == nil || len(edit.fields) == 0 {
		return nil, errors.New("empty task edit")
	}
	var out board.Card
	if err := c.do(ctx, &cred, http.MethodPatch, projectPath(projectID, "tasks", taskID), edit.fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTask(ctx context.Context, cred Credential, projectID, taskID string) error {
	return c.do(ctx, &cred, http.MethodDelete, projectPath(projectID, "tasks", taskID), nil, nil)
}

func projectPath(projectID string, segments ...string) string {
	parts := []string{"/api/projects", url.PathEscape(projectID)}
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return strings.Join(parts, "/")
}

func (c *Client) do(ctx context.Context, cred *Credential, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cred != nil {
		if !cred.valid() {
			return errors.New("missing credential")
		}
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
