/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package domain defines the data model shared between the API client, the
// local history store, and the views.
package domain

import (
	"net/url"
	"strings"
	"time"
)

// Post is a retouch-request candidate fetched from the backend feed.
// Description and Thumbnail are optional; the remaining feed metadata
// (score, comment count, source link) is informational.
type Post struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Description string  `json:"description,omitempty"`
	ImageURL    string  `json:"imageUrl"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	PostURL     string  `json:"postUrl,omitempty"`
	Score       int     `json:"score,omitempty"`
	NumComments int     `json:"num_comments,omitempty"`
	CreatedUTC  float64 `json:"created_utc,omitempty"`
	CreatedDate string  `json:"created_date,omitempty"`
	Subreddit   string  `json:"subreddit,omitempty"`
}

// HasDirectImage reports whether the post's image URL carries an http(s)
// scheme. Posts without one are not rendered in the queue.
func (p Post) HasDirectImage() bool {
	u, err := url.Parse(strings.TrimSpace(p.ImageURL))
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// DisplayImage returns the thumbnail when available, else the full image.
func (p Post) DisplayImage() string {
	if strings.TrimSpace(p.Thumbnail) != "" {
		return p.Thumbnail
	}
	return p.ImageURL
}

// EditRecord describes one completed image-edit operation kept in the local
// history log.
type EditRecord struct {
	ID               string    `json:"id"`
	OriginalImageURL string    `json:"originalImageUrl"`
	EditedImageURL   string    `json:"editedImageUrl"`
	PostTitle        string    `json:"postTitle"`
	Prompt           string    `json:"prompt"`
	Timestamp        time.Time `json:"timestamp"`
}
