/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package session owns the bearer credential: durable storage in the OS
// keyring and best-effort inspection of the token payload.
package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// Service/key used for the OS keyring entry.
const (
	keyringService = "RetouchDesk"
	keyringToken   = "session_token"
)

// ErrNoToken is returned by Get when no credential is stored.
var ErrNoToken = errors.New("no session token stored")

// Store is the minimal durable token store. Set performs no validation of the
// token structure; Get returns ErrNoToken when absent.
type Store interface {
	Get() (string, error)
	Set(token string) error
	Clear() error
}

// Keyring stores the token in the OS keyring.
type Keyring struct{}

func (Keyring) Get() (string, error) {
	tok, err := keyring.Get(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("keyring get: %w", err)
	}
	return tok, nil
}

func (Keyring) Set(token string) error {
	if err := keyring.Set(keyringService, keyringToken, token); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

func (Keyring) Clear() error {
	err := keyring.Delete(keyringService, keyringToken)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

// Memory is an in-memory Store for tests and headless environments without a
// keyring daemon.
type Memory struct {
	mu    sync.Mutex
	tok   string
	hasIt bool
}

func (m *Memory) Get() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasIt {
		return "", ErrNoToken
	}
	return m.tok, nil
}

func (m *Memory) Set(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok = token
	m.hasIt = true
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok = ""
	m.hasIt = false
	return nil
}

// Claims is the informational subset of the token payload the client reads.
// The signature is never verified here; the server is the authority.
type Claims struct {
	Subject string `json:"sub"`
	Expiry  int64  `json:"exp"`
}

// Identity decodes the middle segment of a JWT-shaped token and returns the
// subject. The decode is best effort: any malformed token yields an error and
// the caller is expected to force a logout.
func Identity(token string) (string, error) {
	c, err := Decode(token)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(c.Subject) == "" {
		return "", errors.New("token payload has no subject")
	}
	return c.Subject, nil
}

// Decode parses the unsigned base64url payload segment of a token.
func Decode(token string) (Claims, error) {
	var c Claims
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return c, fmt.Errorf("token has %d segments, want 3", len(parts))
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		// some encoders emit padded segments
		raw, err = base64.URLEncoding.DecodeString(parts[1])
		if err != nil {
			return c, fmt.Errorf("decode token payload: %w", err)
		}
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("parse token payload: %w", err)
	}
	return c, nil
}
