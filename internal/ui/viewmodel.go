/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package ui hosts the desktop shell and its view models. The view models in
// this file carry no Fyne dependency so the gating, tab and rendering rules
// stay testable in headless builds.
package ui

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"retouchdesk/internal/domain"
	applog "retouchdesk/internal/log"
	"retouchdesk/internal/session"
)

// Tab identifies one of the main application views.
type Tab int

const (
	TabQueue Tab = iota
	TabEditor
	TabHistory
)

func (t Tab) String() string {
	switch t {
	case TabQueue:
		return "queue"
	case TabEditor:
		return "editor"
	case TabHistory:
		return "history"
	default:
		return fmt.Sprintf("tab(%d)", int(t))
	}
}

// Tabs tracks the single active view. Selecting the history tab reports that
// the history list must be re-read; nothing else carries activation side
// effects. The active tab is not persisted across runs.
type Tabs struct {
	active Tab
}

func NewTabs() *Tabs { return &Tabs{active: TabQueue} }

func (t *Tabs) Active() Tab { return t.active }

// Select activates tab and reports whether the caller must refresh the
// history view.
func (t *Tabs) Select(tab Tab) (refreshHistory bool) {
	t.active = tab
	return tab == TabHistory
}

// GateVisible reports whether the credential gate must block the main
// application. Token presence is the sole criterion.
func GateVisible(tokens session.Store) bool {
	tok, err := tokens.Get()
	return err != nil || tok == ""
}

// IdentityOrLogout decodes the signed-in user identifier from the stored
// token. A malformed token clears the store and reports signed-out; the gate
// check afterwards does the rest.
func IdentityOrLogout(tokens session.Store) (string, bool) {
	tok, err := tokens.Get()
	if err != nil || tok == "" {
		return "", false
	}
	who, err := session.Identity(tok)
	if err != nil {
		applog.WithComponent("ui").Warn("stored token is malformed, forcing logout", slog.Any("err", err))
		_ = tokens.Clear()
		return "", false
	}
	return who, true
}

// EndSession is the common teardown for leaving the signed-in state: the
// stored credential is dropped and the shell returns to the queue tab with
// every view reset to placeholder content. Explicit logout and the 401-forced
// logout both go through it so the reset is identical.
func EndSession(tokens session.Store) Tab {
	if err := tokens.Clear(); err != nil {
		applog.WithComponent("ui").Warn("clearing token failed", slog.Any("err", err))
	}
	return TabQueue
}

// QueueEmptyKind distinguishes the two queue empty states from a populated
// queue.
type QueueEmptyKind int

const (
	QueueHasItems QueueEmptyKind = iota
	// QueueEmptyNoPosts: the feed itself was empty.
	QueueEmptyNoPosts
	// QueueEmptyNoDirectImages: posts exist but none carries an http(s)
	// image URL, so nothing is renderable.
	QueueEmptyNoDirectImages
)

// Queue empty-state copy, shared by the desktop shell and the CLI.
const (
	MsgQueueNoPosts        = "No posts available right now. Try refreshing in a moment."
	MsgQueueNoDirectImages = "Posts were found, but none link to a direct image."
)

// QueueItem is one renderable post.
type QueueItem struct {
	Post domain.Post
	// PreviewURL prefers the thumbnail and falls back to the full image.
	PreviewURL string
}

// QueueView is the queue tab's render state: either items, or one of the two
// empty kinds.
type QueueView struct {
	Items []QueueItem
	Empty QueueEmptyKind
}

// BuildQueue filters the feed down to posts with a direct http(s) image URL
// and classifies the result.
func BuildQueue(posts []domain.Post) QueueView {
	if len(posts) == 0 {
		return QueueView{Empty: QueueEmptyNoPosts}
	}
	items := make([]QueueItem, 0, len(posts))
	for _, p := range posts {
		if !p.HasDirectImage() {
			continue
		}
		items = append(items, QueueItem{Post: p, PreviewURL: p.DisplayImage()})
	}
	if len(items) == 0 {
		return QueueView{Empty: QueueEmptyNoDirectImages}
	}
	return QueueView{Items: items}
}

// PromptPlaceholder seeds the editor's instruction field when no analysis is
// available. Submitting it unchanged counts as submitting nothing.
const PromptPlaceholder = "Describe the edit you want to make..."

// UploadedAnalysis is the default analysis text for a user-uploaded image.
const UploadedAnalysis = "Uploaded image. Describe the edit you want to make."

// ErrPromptEmpty rejects an empty or placeholder-only prompt before any
// network call.
var ErrPromptEmpty = errors.New("enter an edit instruction first")

// ValidatePrompt returns the trimmed prompt or ErrPromptEmpty.
func ValidatePrompt(prompt string) (string, error) {
	p := strings.TrimSpace(prompt)
	if p == "" || p == PromptPlaceholder {
		return "", ErrPromptEmpty
	}
	return p, nil
}

// EditorState is what the editor tab renders: the post under edit and the
// seeded instruction text.
type EditorState struct {
	PostID   string
	Title    string
	ImageURL string
	Analysis string
}

// EditorFromPost seeds the editor from an analyzed queue post.
func EditorFromPost(p domain.Post, analysis string) EditorState {
	if strings.TrimSpace(analysis) == "" {
		analysis = PromptPlaceholder
	}
	return EditorState{PostID: p.ID, Title: p.Title, ImageURL: p.ImageURL, Analysis: analysis}
}

// EditorFromUpload synthesizes the editor state for a user-uploaded file:
// the id derives from the current time, the title is the filename and the
// image URL is the server-side path of the stored copy.
func EditorFromUpload(filename, serverPath string) EditorState {
	return EditorState{
		PostID:   fmt.Sprintf("upload-%d", time.Now().UnixMilli()),
		Title:    filename,
		ImageURL: serverPath,
		Analysis: UploadedAnalysis,
	}
}

// EditSuccess is the rendered outcome of a successful generation: the
// side-by-side comparison plus a download link target.
type EditSuccess struct {
	OriginalURL string
	EditedURL   string
	DownloadURL string
}

// ViewerSource validates an image viewer target. Empty and literally
// "undefined" sources are rejected; the caller logs and keeps the overlay
// closed.
func ViewerSource(src string) (string, bool) {
	s := strings.TrimSpace(src)
	if s == "" || s == "undefined" {
		return "", false
	}
	return s, true
}
