/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"retouchdesk/internal/session"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *session.Memory, *int) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tokens := &session.Memory{}
	expiries := 0
	c := New(srv.URL, tokens, Options{OnSessionExpired: func() { expiries++ }})
	return c, tokens, &expiries
}

func TestLoginReturnsToken(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@b.com" || body["password"] != "x" {
			t.Errorf("unexpected credentials: %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "eyJhbGciOiJ.valid.jwt", "token_type": "bearer"})
	}))
	tok, err := c.Login(context.Background(), "a@b.com", "x")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok != "eyJhbGciOiJ.valid.jwt" {
		t.Fatalf("token = %q", tok)
	}
}

func TestLoginSurfacesDetail(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Email and password are required."})
	}))
	_, err := c.Login(context.Background(), "", "")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if apiErr.Detail != "Email and password are required." {
		t.Fatalf("detail = %q", apiErr.Detail)
	}
}

func TestAnyEndpoint401ClearsTokenAndNotifies(t *testing.T) {
	paths := []func(c *Client) error{
		func(c *Client) error { _, err := c.Posts(context.Background()); return err },
		func(c *Client) error { _, err := c.Analyze(context.Background(), "t", "d"); return err },
		func(c *Client) error { _, err := c.Edit(context.Background(), "u", "p"); return err },
		func(c *Client) error {
			_, err := c.Upload(context.Background(), "f.png", strings.NewReader("x"))
			return err
		},
	}
	for i, call := range paths {
		c, tokens, expiries := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		_ = tokens.Set("stale-token")
		err := call(c)
		if !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("call %d: err = %v, want ErrSessionExpired", i, err)
		}
		if _, err := tokens.Get(); !errors.Is(err, session.ErrNoToken) {
			t.Fatalf("call %d: token not cleared", i)
		}
		if *expiries != 1 {
			t.Fatalf("call %d: expiry callback fired %d times", i, *expiries)
		}
	}
}

func TestPostsAttachesBearerAndDecodes(t *testing.T) {
	c, tokens, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok123" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = io.WriteString(w, `{"ok":true,"posts":[
			{"id":"p1","title":"fix sky","author":"u1","imageUrl":"https://i.example/a.jpg","thumbnail":"https://i.example/a_t.jpg","score":10},
			{"id":"p2","title":"no image","author":"u2","imageUrl":"self.PhotoshopRequest"}
		]}`)
	}))
	_ = tokens.Set("tok123")
	posts, err := c.Posts(context.Background())
	if err != nil {
		t.Fatalf("Posts: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("len = %d, want 2 (filtering is the view's job)", len(posts))
	}
	if posts[0].ID != "p1" || posts[0].Thumbnail == "" || posts[0].Score != 10 {
		t.Fatalf("post decode wrong: %+v", posts[0])
	}
}

func TestPostsRejectsShapeMismatch(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// posts present but items missing required fields
		_, _ = io.WriteString(w, `{"posts":[{"id":"p1"}]}`)
	}))
	if _, err := c.Posts(context.Background()); err == nil {
		t.Fatalf("expected shape mismatch error")
	}
	c2, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"unexpected":"shape"}`)
	}))
	if _, err := c2.Posts(context.Background()); err == nil {
		t.Fatalf("expected error for missing posts field")
	}
}

func TestEditSuccessAndRefusal(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch body["prompt"] {
		case "good":
			_, _ = io.WriteString(w, `{"ok":true,"edited_image_path":"/files/out.png"}`)
		default:
			_, _ = io.WriteString(w, `{"ok":false,"error":"model unavailable"}`)
		}
	}))
	res, err := c.Edit(context.Background(), "https://i.example/a.jpg", "good")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if res.EditedImagePath != "/files/out.png" {
		t.Fatalf("path = %q", res.EditedImagePath)
	}

	_, err = c.Edit(context.Background(), "https://i.example/a.jpg", "bad")
	var refused *EditRefusedError
	if !errors.As(err, &refused) {
		t.Fatalf("err = %v, want *EditRefusedError", err)
	}
	if refused.Reason != "model unavailable" {
		t.Fatalf("reason = %q", refused.Reason)
	}
}

func TestEditMissingFlagIsRefusal(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"edited_image_path":"/files/out.png"}`)
	}))
	_, err := c.Edit(context.Background(), "u", "p")
	var refused *EditRefusedError
	if !errors.As(err, &refused) {
		t.Fatalf("err = %v, want *EditRefusedError for missing ok flag", err)
	}
}

func TestUploadSendsMultipartAndReturnsPath(t *testing.T) {
	c, tokens, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if !strings.HasPrefix(ct, "multipart/form-data") {
			t.Errorf("Content-Type = %q, want multipart", ct)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		if hdr.Filename != "cat.png" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "png-bytes" {
			t.Errorf("payload = %q", data)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "file_path": "/static/uploads/abc.png"})
	}))
	_ = tokens.Set("tok")
	path, err := c.Upload(context.Background(), "cat.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if path != "/static/uploads/abc.png" {
		t.Fatalf("path = %q", path)
	}
}

func TestResolveURL(t *testing.T) {
	c := New("http://backend:8000/", &session.Memory{}, Options{})
	cases := map[string]string{
		"https://i.example/a.png": "https://i.example/a.png",
		"/static/edited/x.png":    "http://backend:8000/static/edited/x.png",
		"static/edited/x.png":     "http://backend:8000/static/edited/x.png",
		"":                        "",
	}
	for in, want := range cases {
		if got := c.ResolveURL(in); got != want {
			t.Fatalf("ResolveURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegisterPassesReferralCodeVerbatim(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["referralCode"] != " SPACES-kept-As-Is " {
			t.Errorf("referralCode = %q", body["referralCode"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "message": "User registered successfully."})
	}))
	if err := c.Register(context.Background(), "a@b.com", "pw", " SPACES-kept-As-Is "); err != nil {
		t.Fatalf("Register: %v", err)
	}
}
