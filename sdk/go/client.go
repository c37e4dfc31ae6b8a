package teamdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal teamdesk HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Member is a member profile.
type Member struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	DOB         string `json:"dob,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Designation string `json:"designation,omitempty"`
	Role        string `json:"role"`
	IsApproved  bool   `json:"is_approved"`
	CreatedAt   string `json:"created_at"`
}

type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Verified    bool   `json:"verified"`
}

type Signup struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	DOB         string `json:"dob,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Designation string `json:"designation,omitempty"`
}

type SignupResult struct {
	Identity         Identity `json:"identity"`
	Profile          Member   `json:"profile"`
	VerificationSent bool     `json:"verification_sent"`
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  Identity  `json:"identity"`
	Profile   Member    `json:"profile"`
	Access    string    `json:"access"`
}

type Me struct {
	IdentityID string  `json:"identity_id"`
	Access     string  `json:"access"`
	Profile    *Member `json:"profile,omitempty"`
}

type MemberStats struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
	Admins   int `json:"admins"`
}

// ProfileEdit changes the non-nil fields of a profile.
type ProfileEdit struct {
	Name        *string `json:"name,omitempty"`
	DOB         *string `json:"dob,omitempty"`
	Gender      *string `json:"gender,omitempty"`
	Designation *string `json:"designation,omitempty"`
	Role        *string `json:"role,omitempty"`
}

type Task struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	AssignedTo     string  `json:"assigned_to"`
	AssignedToName string  `json:"assigned_to_name"`
	AssignedBy     string  `json:"assigned_by"`
	AssignedByName string  `json:"assigned_by_name"`
	Status         string  `json:"status"`
	Priority       string  `json:"priority"`
	DueDate        *string `json:"due_date,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}

type NewTask struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AssignedTo  string `json:"assigned_to"`
	Priority    string `json:"priority,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// TaskEdit changes the non-nil fields of a task. An empty DueDate clears it.
type TaskEdit struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

type SubDomain struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at"`
}

type Activity struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id"`
	ActorName string         `json:"actor_name"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp"`
	Label     string         `json:"label"`
	Relative  string         `json:"relative"`
	Summary   string         `json:"summary"`
}

type Dashboard struct {
	Members        MemberStats `json:"members"`
	SubDomains     int         `json:"subdomains"`
	OpenTasks      int         `json:"open_tasks"`
	MyOpenTasks    int         `json:"my_open_tasks"`
	RecentActivity []Activity  `json:"recent_activity"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) Signup(ctx context.Context, in Signup) (SignupResult, error) {
	var resp SignupResult
	err := c.do(ctx, http.MethodPost, "auth/signup", in, &resp)
	return resp, err
}

func (c *Client) Verify(ctx context.Context, token string) (Identity, error) {
	var resp Identity
	err := c.do(ctx, http.MethodPost, "auth/verify", map[string]any{"token": token}, &resp)
	return resp, err
}

// Login signs in and stores the session token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{"email": email, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Logout revokes the session token and forgets it.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "auth/logout", nil, nil); err != nil {
		return err
	}
	c.BearerToken = ""
	return nil
}

func (c *Client) ResendVerification(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "auth/resend-verification", nil, nil)
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// Members lists members; empty filters match everything.
func (c *Client) Members(ctx context.Context, search, role, status string) ([]Member, error) {
	q := url.Values{}
	setQuery(q, "search", search)
	setQuery(q, "role", role)
	setQuery(q, "status", status)
	var resp struct {
		Items []Member `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("members", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) MemberStats(ctx context.Context) (MemberStats, error) {
	var resp MemberStats
	err := c.do(ctx, http.MethodGet, "members/stats", nil, &resp)
	return resp, err
}

func (c *Client) Approve(ctx context.Context, memberID string) (Member, error) {
	var resp Member
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("members/%s/approve", url.PathEscape(memberID)), nil, &resp)
	return resp, err
}

func (c *Client) Reject(ctx context.Context, memberID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("members/%s/reject", url.PathEscape(memberID)), nil, nil)
}

func (c *Client) ChangeRole(ctx context.Context, memberID, role string) (Member, error) {
	var resp Member
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("members/%s/role", url.PathEscape(memberID)), map[string]any{"role": role}, &resp)
	return resp, err
}

func (c *Client) EditMember(ctx context.Context, memberID string, edit ProfileEdit) (Member, error) {
	var resp Member
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("members/%s", url.PathEscape(memberID)), edit, &resp)
	return resp, err
}

func (c *Client) DeleteMember(ctx context.Context, memberID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("members/%s", url.PathEscape(memberID)), nil, nil)
}

// Tasks lists tasks. assignee is a member id, "mine" or "all".
func (c *Client) Tasks(ctx context.Context, status, assignee string) ([]Task, error) {
	q := url.Values{}
	setQuery(q, "status", status)
	setQuery(q, "assignee", assignee)
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("tasks", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) CreateTask(ctx context.Context, in NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", in, &resp)
	return resp, err
}

func (c *Client) EditTask(ctx context.Context, taskID string, edit TaskEdit) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("tasks/%s", url.PathEscape(taskID)), edit, &resp)
	return resp, err
}

func (c *Client) SetTaskStatus(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("tasks/%s/status", url.PathEscape(taskID)), map[string]any{"status": status}, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("tasks/%s", url.PathEscape(taskID)), nil, nil)
}

func (c *Client) SubDomains(ctx context.Context) ([]SubDomain, error) {
	var resp struct {
		Items []SubDomain `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "subdomains", nil, &resp)
	return resp.Items, err
}

// AddSubDomain registers a subdomain. Empty kind and status use the
// server defaults.
func (c *Client) AddSubDomain(ctx context.Context, name, rawURL, kind, status string) (SubDomain, error) {
	body := map[string]any{"name": name, "url": rawURL}
	if kind != "" {
		body["type"] = kind
	}
	if status != "" {
		body["status"] = status
	}
	var resp SubDomain
	err := c.do(ctx, http.MethodPost, "subdomains", body, &resp)
	return resp, err
}

func (c *Client) DeleteSubDomain(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("subdomains/%s", url.PathEscape(id)), nil, nil)
}

// Activities returns recent activity, newest first.
func (c *Client) Activities(ctx context.Context, action string, limit int) ([]Activity, error) {
	q := url.Values{}
	setQuery(q, "action", action)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Items []Activity `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("activities", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, "dashboard", nil, &resp)
	return resp, err
}

func (c *Client) Theme(ctx context.Context) (string, error) {
	var resp struct {
		Theme string `json:"theme"`
	}
	err := c.do(ctx, http.MethodGet, "me/theme", nil, &resp)
	return resp.Theme, err
}

// SetTheme stores mode; an empty mode toggles between dark and light.
func (c *Client) SetTheme(ctx context.Context, mode string) (string, error) {
	body := map[string]any{"theme": mode}
	if mode == "" {
		body = map[string]any{"toggle": true}
	}
	var resp struct {
		Theme string `json:"theme"`
	}
	err := c.do(ctx, http.MethodPut, "me/theme", body, &resp)
	return resp.Theme, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func setQuery(q url.Values, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		q.Set(key, v)
	}
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
