/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"retouchdesk/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := domain.EditRecord{
			OriginalImageURL: fmt.Sprintf("https://x/orig%d.png", i),
			EditedImageURL:   fmt.Sprintf("/static/edited_images/e%d.png", i),
			PostTitle:        fmt.Sprintf("post %d", i),
			Prompt:           "remove background",
			Timestamp:        base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d, want 3", len(recs))
	}
	if recs[0].PostTitle != "post 2" || recs[2].PostTitle != "post 0" {
		t.Fatalf("ordering wrong: first=%q last=%q", recs[0].PostTitle, recs[2].PostTitle)
	}
	if recs[0].ID == "" {
		t.Fatalf("missing generated id")
	}
}

func TestCapNeverExceeded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < MaxEntries+13; i++ {
		rec := domain.EditRecord{
			OriginalImageURL: "https://x/o.png",
			EditedImageURL:   fmt.Sprintf("/files/e%d.png", i),
			PostTitle:        fmt.Sprintf("p%d", i),
			Prompt:           "x",
			Timestamp:        base.Add(time.Duration(i) * time.Second),
		}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		n, err := s.Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n > MaxEntries {
			t.Fatalf("after write %d: count = %d exceeds cap %d", i, n, MaxEntries)
		}
	}
	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != MaxEntries {
		t.Fatalf("len = %d, want %d", len(recs), MaxEntries)
	}
	// newest at index 0, oldest entries evicted
	if recs[0].PostTitle != fmt.Sprintf("p%d", MaxEntries+12) {
		t.Fatalf("head = %q, want newest", recs[0].PostTitle)
	}
	if recs[len(recs)-1].PostTitle != "p13" {
		t.Fatalf("tail = %q, want p13 (oldest surviving)", recs[len(recs)-1].PostTitle)
	}
}

func TestClearEmptiesStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Append(ctx, domain.EditRecord{OriginalImageURL: "a", EditedImageURL: "b", PostTitle: "t", Prompt: "p"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("count after clear = %d, want 0", n)
	}
	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("list after clear = %d entries", len(recs))
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := s.Append(ctx, domain.EditRecord{OriginalImageURL: "a", EditedImageURL: "b", PostTitle: "t", Prompt: "quoted"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	recs, err := s2.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || recs[0].Prompt != "quoted" {
		t.Fatalf("unexpected records after reopen: %+v", recs)
	}
}

func TestCorruptTimestampRowIsSkipped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Append(ctx, domain.EditRecord{OriginalImageURL: "a", EditedImageURL: "b", PostTitle: "good", Prompt: "p"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, insertEditSQL, "bad-id", "a", "b", "bad", "p", "not-a-time"); err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}
	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || recs[0].PostTitle != "good" {
		t.Fatalf("corrupt row not skipped: %+v", recs)
	}
}
