/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package api is the typed HTTP client for the retouch backend. Each endpoint
// gets its own method and result shape; responses are decoded at this
// boundary and never passed upward as loose maps.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"retouchdesk/internal/domain"
	applog "retouchdesk/internal/log"
	"retouchdesk/internal/session"
)

//go:embed posts.schema.json
var postsSchemaJSON []byte

// Options configures a Client.
type Options struct {
	// Timeout bounds short calls (login, register, posts). Generation-style
	// calls (analyze, upload, edit) run without a programmed deadline; the
	// surrounding context still applies.
	Timeout     time.Duration
	TLSInsecure bool
	// OnSessionExpired runs after a 401 cleared the token store, before the
	// failed call returns. The UI uses it to re-run the gate check.
	OnSessionExpired func()
}

// Client issues authenticated requests against a single backend base URL.
type Client struct {
	baseURL   string
	tokens    session.Store
	onExpired func()
	short     *http.Client
	long      *http.Client
	log       *slog.Logger
}

// New creates a client. baseURL may carry a trailing slash; it is normalized.
func New(baseURL string, tokens session.Store, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var transport http.RoundTripper
	if opts.TLSInsecure {
		transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		tokens:    tokens,
		onExpired: opts.OnSessionExpired,
		short:     &http.Client{Timeout: timeout, Transport: transport},
		long:      &http.Client{Transport: transport},
		log:       applog.WithComponent("api"),
	}
}

// BaseURL returns the normalized backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// ResolveURL turns server-relative paths (e.g. /static/edited_images/x.png)
// into absolute URLs against the backend. Absolute URLs pass through.
func (c *Client) ResolveURL(pathOrURL string) string {
	s := strings.TrimSpace(pathOrURL)
	if s == "" {
		return s
	}
	if u, err := url.Parse(s); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return s
	}
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return c.baseURL + s
}

// do issues one request. It attaches the bearer header when a token is
// stored, intercepts 401 globally, and converts other non-2xx responses into
// *Error with the server's detail field.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, slow bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok, err := c.tokens.Get(); err == nil && tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	cli := c.short
	if slow {
		cli = c.long
	}
	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if err := c.tokens.Clear(); err != nil {
			c.log.Warn("clearing token after 401 failed", slog.Any("err", err))
		}
		c.log.Info("session expired", slog.String("path", path))
		if c.onExpired != nil {
			c.onExpired()
		}
		return nil, ErrSessionExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &Error{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, dest any, slow bool) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(raw), "application/json", slow)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// readDetail extracts the `detail` field from an error body, best effort.
func readDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 1<<16))
	if err != nil {
		return ""
	}
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Detail)
}

// Login exchanges credentials for a bearer token. The token is returned, not
// stored; the auth flow persists it on success.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		Email       string `json:"email"`
	}
	payload := map[string]string{"email": email, "password": password}
	if err := c.postJSON(ctx, "/api/login", payload, &out, false); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", &Error{Status: http.StatusOK, Detail: "login response carried no access token"}
	}
	return out.AccessToken, nil
}

// Register creates an account. The referral code is passed through verbatim;
// the server decides whether one is required. Success does not log in.
func (c *Client) Register(ctx context.Context, email, password, referralCode string) error {
	payload := map[string]string{"email": email, "password": password, "referralCode": referralCode}
	return c.postJSON(ctx, "/api/register", payload, nil, false)
}

// Posts fetches the retouch-request feed. The payload is schema-checked
// before decoding; a shape mismatch fails with a decode error rather than
// rendering from missing fields.
func (c *Client) Posts(ctx context.Context) ([]domain.Post, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/posts", nil, "", false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read posts response: %w", err)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(postsSchemaJSON), gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validate posts response: %w", err)
	}
	if !result.Valid() {
		for _, e := range result.Errors() {
			c.log.Warn("posts payload shape mismatch", slog.String("err", e.String()))
		}
		return nil, fmt.Errorf("posts response does not match expected shape")
	}
	var out struct {
		OK    bool          `json:"ok"`
		Posts []domain.Post `json:"posts"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode posts response: %w", err)
	}
	return out.Posts, nil
}

// Analyze asks the backend for an edit instruction derived from a post's
// title and description.
func (c *Client) Analyze(ctx context.Context, title, description string) (string, error) {
	var out struct {
		OK       bool   `json:"ok"`
		Analysis string `json:"analysis"`
	}
	payload := map[string]string{"title": title, "description": description}
	if err := c.postJSON(ctx, "/api/analyze", payload, &out, true); err != nil {
		return "", err
	}
	return out.Analysis, nil
}

// Upload sends an arbitrary image file as multipart form data (field "file")
// and returns the server path of the stored copy.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("copy upload payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finish multipart body: %w", err)
	}
	// the multipart writer owns the content type (boundary included); no JSON header here
	resp, err := c.do(ctx, http.MethodPost, "/api/upload", &buf, mw.FormDataContentType(), true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out struct {
		OK       bool   `json:"ok"`
		FilePath string `json:"file_path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if strings.TrimSpace(out.FilePath) == "" {
		return "", &Error{Status: resp.StatusCode, Detail: "upload response carried no file path"}
	}
	return out.FilePath, nil
}

// EditResult is a successful edit generation.
type EditResult struct {
	EditedImagePath string
}

// Edit requests an image edit. Success requires the explicit ok=true flag;
// ok=false (or a missing flag) yields *EditRefusedError, transport failures
// yield *Error. Both present the same way, neither writes history.
func (c *Client) Edit(ctx context.Context, imageURL, prompt string) (EditResult, error) {
	var out struct {
		OK              *bool  `json:"ok"`
		EditedImagePath string `json:"edited_image_path"`
		ErrMsg          string `json:"error"`
		Detail          string `json:"detail"`
	}
	payload := map[string]string{"imageUrl": imageURL, "prompt": prompt}
	if err := c.postJSON(ctx, "/api/edit", payload, &out, true); err != nil {
		return EditResult{}, err
	}
	if out.OK == nil || !*out.OK {
		reason := strings.TrimSpace(out.ErrMsg)
		if reason == "" {
			reason = strings.TrimSpace(out.Detail)
		}
		return EditResult{}, &EditRefusedError{Reason: reason}
	}
	if strings.TrimSpace(out.EditedImagePath) == "" {
		return EditResult{}, &EditRefusedError{Reason: "edit succeeded but no image path was returned"}
	}
	return EditResult{EditedImagePath: out.EditedImagePath}, nil
}

// FetchFile downloads image bytes from an absolute URL or a server-relative
// path. Used for previews and for saving a local copy of an edited image.
func (c *Client) FetchFile(ctx context.Context, pathOrURL string) ([]byte, error) {
	target := c.ResolveURL(pathOrURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if tok, err := c.tokens.Get(); err == nil && tok != "" && strings.HasPrefix(target, c.baseURL) {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.long.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Status: resp.StatusCode, Detail: fmt.Sprintf("fetching %s failed", target)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	return data, nil
}
