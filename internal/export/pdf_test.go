/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"retouchdesk/internal/domain"
)

func sampleRecords() []domain.EditRecord {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []domain.EditRecord{
		{
			ID:               "r2",
			PostTitle:        "Remove the lamp post",
			Prompt:           "remove the lamp post on the left",
			OriginalImageURL: "https://i.example/orig2.jpg",
			EditedImageURL:   "https://backend/static/edited_images/out2.png",
			Timestamp:        base.Add(time.Hour),
		},
		{
			ID:               "r1",
			PostTitle:        "",
			Prompt:           "make the sky dramatic",
			OriginalImageURL: "https://i.example/orig1.jpg",
			EditedImageURL:   "https://backend/static/edited_images/out1.png",
			Timestamp:        base,
		},
	}
}

func TestExportHistoryPDFWritesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "history.pdf")
	if err := ExportHistoryPDF(context.Background(), sampleRecords(), out, PDFOptions{}); err != nil {
		t.Fatalf("ExportHistoryPDF: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output is not a PDF (starts with %q)", data[:8])
	}
	if len(data) < 1000 {
		t.Fatalf("output suspiciously small: %d bytes", len(data))
	}
}

func TestExportHistoryPDFEmptyHistory(t *testing.T) {
	out := filepath.Join(t.TempDir(), "empty.pdf")
	if err := ExportHistoryPDF(context.Background(), nil, out, PDFOptions{Title: "Nothing yet"}); err != nil {
		t.Fatalf("ExportHistoryPDF: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}

func TestExportHistoryPDFHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := filepath.Join(t.TempDir(), "cancelled.pdf")
	if err := ExportHistoryPDF(ctx, sampleRecords(), out, PDFOptions{}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestSniffImageType(t *testing.T) {
	cases := []struct {
		data []byte
		want string
	}{
		{[]byte("\x89PNG\r\n\x1a\n        "), "PNG"},
		{[]byte("\xff\xd8\xff\xe0    "), "JPG"},
		{[]byte("GIF89a       "), "GIF"},
		{[]byte("plain text"), ""},
	}
	for _, c := range cases {
		if got := sniffImageType(c.data); got != c.want {
			t.Fatalf("sniffImageType(%q) = %q, want %q", c.data[:4], got, c.want)
		}
	}
}
