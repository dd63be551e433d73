package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 2 * time.Minute
	httpTimeoutEnvKey  = "SCFINGEST_HTTP_TIMEOUT"
)

// Client talks to a scfingest server. It keeps the session cookie issued by
// SignIn or Register for later calls.
type Client struct {
	baseURL string
	http    *http.Client
}

// UploadFile is one file sent by Upload.
type UploadFile struct {
	Slot     string
	Filename string
	Content  io.Reader
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: httpTimeoutFromEnv(), Jar: jar})
}

// NewClientWithHTTP uses hc as transport; hc should carry a cookie jar.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Ping checks whether the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// SignIn starts a session.
func (c *Client) SignIn(ctx context.Context, username, password string) (MeResponse, error) {
	var resp MeResponse
	err := c.do(ctx, http.MethodPost, "/user/sign-in", nil, SignInRequest{Username: username, Password: password}, &resp)
	return resp, err
}

// Register creates an account and starts a session.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (MeResponse, error) {
	var resp MeResponse
	err := c.do(ctx, http.MethodPost, "/user/register", nil, req, &resp)
	return resp, err
}

// SignOut revokes the current session.
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/user/sign-out", nil, nil, nil)
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (MeResponse, error) {
	var resp MeResponse
	err := c.do(ctx, http.MethodGet, "/user/me", nil, nil, &resp)
	return resp, err
}

// Manifest lists the slots the server accepts.
func (c *Client) Manifest(ctx context.Context) ([]SlotResponse, error) {
	var resp []SlotResponse
	err := c.do(ctx, http.MethodGet, "/manifest", nil, nil, &resp)
	return resp, err
}

// ListIngests returns recent ingests, newest first. With mine set only the
// caller's own ingests are returned.
func (c *Client) ListIngests(ctx context.Context, limit int, mine bool) ([]IngestSummary, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if mine {
		query.Set("mine", "true")
	}
	var resp []IngestSummary
	err := c.do(ctx, http.MethodGet, "/uploads", query, nil, &resp)
	return resp, err
}

// Upload posts files as one multipart ingest. Rejected (400) and partial
// (207) outcomes are returned as a response, not an error; the HTTP status
// is returned alongside.
func (c *Client) Upload(ctx context.Context, files []UploadFile) (UploadResponse, int, error) {
	var out UploadResponse

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile(f.Slot, f.Filename)
		if err != nil {
			return out, 0, err
		}
		if f.Content != nil {
			if _, err := io.Copy(part, f.Content); err != nil {
				return out, 0, fmt.Errorf("read %s: %w", f.Filename, err)
			}
		}
	}
	if err := mw.Close(); err != nil {
		return out, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return out, 0, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return out, 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, resp.StatusCode, err
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusMultiStatus, http.StatusBadRequest:
		if err := json.Unmarshal(payload, &out); err == nil && out.Overall != "" {
			return out, resp.StatusCode, nil
		}
	}
	if resp.StatusCode >= 400 {
		return out, resp.StatusCode, errorFromBody(resp.StatusCode, resp.Status, payload)
	}
	return out, resp.StatusCode, fmt.Errorf("unexpected upload response: %s", resp.Status)
}

// Download writes the object currently stored for slot to w.
func (c *Client) Download(ctx context.Context, slot string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+url.PathEscape(slot), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	err := errorFromBody(resp.StatusCode, resp.Status, payload)
	if apiErr, ok := err.(*APIError); ok {
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return err
}

func errorFromBody(status int, statusText string, payload []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(payload, &errResp); err == nil && errResp.Error != "" {
		return &APIError{Status: status, Code: errResp.Code, ErrorCode: errResp.ErrorCode, Message: errResp.Error}
	}
	return &APIError{Status: status, Message: "api error: " + statusText}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
