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
	"errors"
	"fmt"
	"strings"
)

// ErrSessionExpired is returned for any 401 response. The token store has
// already been cleared and the expiry callback fired when a caller sees this;
// callers must not retry.
var ErrSessionExpired = errors.New("session expired")

// genericMessage is shown when the server provides no detail field.
const genericMessage = "request failed"

// Error is a non-2xx response other than 401. Detail carries the server's
// `detail` field when present.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if strings.TrimSpace(e.Detail) != "" {
		return e.Detail
	}
	return fmt.Sprintf("%s (status %d)", genericMessage, e.Status)
}

// Message returns the user-facing text for inline display.
func (e *Error) Message() string { return e.Error() }

// EditRefusedError is an application-level edit failure: the server answered
// 2xx but with ok=false (or without an explicit ok=true). It renders in the
// same inline failure panel as a transport Error but stays a distinct type.
type EditRefusedError struct {
	Reason string
}

func (e *EditRefusedError) Error() string {
	if strings.TrimSpace(e.Reason) != "" {
		return e.Reason
	}
	return "the editor did not return an image"
}

// Message returns the user-facing text for inline display.
func (e *EditRefusedError) Message() string { return e.Error() }

// UserMessage extracts the inline-displayable text from any error produced by
// this package.
func UserMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	var refused *EditRefusedError
	if errors.As(err, &refused) {
		return refused.Message()
	}
	if err != nil {
		return err.Error()
	}
	return genericMessage
}
