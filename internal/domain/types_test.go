/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import "testing"

func TestHasDirectImage(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://i.example.com/a.png", true},
		{"http://i.example.com/a.jpg", true},
		{"ftp://i.example.com/a.jpg", false},
		{"//i.example.com/a.jpg", false},
		{"not a url at all\n", false},
		{"", false},
		{"/static/uploads/local.png", false},
	}
	for _, c := range cases {
		p := Post{ImageURL: c.url}
		if got := p.HasDirectImage(); got != c.want {
			t.Fatalf("HasDirectImage(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}

func TestDisplayImagePrefersThumbnail(t *testing.T) {
	p := Post{ImageURL: "https://x/full.png", Thumbnail: "https://x/thumb.png"}
	if p.DisplayImage() != "https://x/thumb.png" {
		t.Fatalf("DisplayImage with thumbnail = %q", p.DisplayImage())
	}
	p.Thumbnail = "   "
	if p.DisplayImage() != "https://x/full.png" {
		t.Fatalf("DisplayImage without thumbnail = %q", p.DisplayImage())
	}
}
