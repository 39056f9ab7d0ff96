package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"matchme-client/internal/models"
)

var ErrNotFound = errors.New("backend: not found")

// StatusError is returned for any non-2xx answer other than a meaningful 404.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.Code, e.Body)
}

// Client talks to the REST collaborators of the realtime session.
type Client struct {
	BaseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// WithToken returns a copy of the client authenticated with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp loginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login response carried no token")
	}
	return resp.Token, nil
}

// Me returns the authenticated user. It satisfies realtime.IdentityLookup.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) EnrichedMatches(ctx context.Context) ([]models.Match, error) {
	var matches []models.Match
	if err := c.doJSON(ctx, http.MethodGet, "/api/likes/enriched-matches", nil, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// ChatID resolves the conversation with otherUserID.
func (c *Client) ChatID(ctx context.Context, otherUserID int64) (int64, error) {
	var resp struct {
		ChatID int64 `json:"chatId"`
	}
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/chat/chat-id/%d", otherUserID), nil, &resp); err != nil {
		return 0, err
	}
	return resp.ChatID, nil
}

// ChatHistory fetches one page of history. A 404 means there is no (more)
// history and yields an empty page.
func (c *Client) ChatHistory(ctx context.Context, otherUserID int64, page, size int) (*models.HistoryPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	path := fmt.Sprintf("/api/chat/history/%d?%s", otherUserID, q.Encode())

	var hp models.HistoryPage
	err := c.doJSON(ctx, http.MethodGet, path, nil, &hp)
	if errors.Is(err, ErrNotFound) {
		return &models.HistoryPage{CurrentPage: page, Content: []models.HistoryMessage{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return &hp, nil
}

// Avatar downloads a profile picture. A user without one yields nil data and
// no error.
func (c *Client) Avatar(ctx context.Context, userID int64) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/files/profile-picture/%d", userID), nil, "")
	if errors.Is(err, ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read avatar: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// UploadAvatar sends r as the multipart "file" field.
func (c *Client) UploadAvatar(ctx context.Context, filename string, r io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("failed to copy avatar: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finish multipart body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/files/profile-picture", &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) Profile(ctx context.Context) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := c.doJSON(ctx, http.MethodGet, "/api/users/me/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdateProfile(ctx context.Context, p models.UserProfile) (*models.UserProfile, error) {
	var out models.UserProfile
	if err := c.doJSON(ctx, http.MethodPut, "/api/users/me/profile", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Bio(ctx context.Context) (*models.UserBio, error) {
	var b models.UserBio
	if err := c.doJSON(ctx, http.MethodGet, "/api/users/me/bio", nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		reqBody, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(reqBody)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do sends the request and returns the response for any 2xx status. The caller
// closes the body.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(msg)}
	}
	return resp, nil
}
