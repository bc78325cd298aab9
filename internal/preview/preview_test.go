/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package preview

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func decodeBounds(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func TestThumbnailKeepsAspect(t *testing.T) {
	src := encodePNG(t, 400, 200)
	out, err := Thumbnail(src, 100, 100)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	w, h := decodeBounds(t, out)
	if w != 100 || h != 50 {
		t.Fatalf("bounds = %dx%d, want 100x50", w, h)
	}
}

func TestThumbnailSmallSourcePassesThrough(t *testing.T) {
	src := encodePNG(t, 40, 30)
	out, err := Thumbnail(src, 100, 100)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if w, h := decodeBounds(t, out); w != 40 || h != 30 {
		t.Fatalf("bounds = %dx%d, want unchanged 40x30", w, h)
	}
}

func TestThumbnailRejectsGarbage(t *testing.T) {
	if _, err := Thumbnail([]byte("not an image"), 100, 100); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := NewCache(t.TempDir(), 10, time.Hour)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if _, ok := c.Get("https://i.example/a.jpg", 128, 128); ok {
		t.Fatalf("unexpected hit on empty cache")
	}
	calls := 0
	src := encodePNG(t, 300, 300)
	gen := func(context.Context) ([]byte, error) { calls++; return src, nil }
	first, err := c.GetOrCreate(context.Background(), "https://i.example/a.jpg", 128, 128, gen)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	second, err := c.GetOrCreate(context.Background(), "https://i.example/a.jpg", 128, 128, gen)
	if err != nil {
		t.Fatalf("GetOrCreate (cached): %v", err)
	}
	if calls != 1 {
		t.Fatalf("generator ran %d times, want 1", calls)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("cached bytes differ from generated bytes")
	}
	if w, h := decodeBounds(t, second); w != 128 || h != 128 {
		t.Fatalf("bounds = %dx%d, want 128x128", w, h)
	}
}

func TestSweepRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir, 0, time.Hour)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if err := c.Put("https://i.example/old.jpg", 64, 64, []byte("old")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	old := c.key("https://i.example/old.jpg", 64, 64)
	stale := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if err := c.Put("https://i.example/new.jpg", 64, 64, []byte("new")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Sweep(); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expired file survived the sweep")
	}
	if _, ok := c.Get("https://i.example/new.jpg", 64, 64); !ok {
		t.Fatalf("fresh file was evicted")
	}
}

func TestSweepEvictsOldestUntilBudgetFits(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir, 1, 0) // 1 MB budget, no age limit
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	chunk := make([]byte, 400*1024)
	for i, name := range []string{"a", "b", "c"} {
		if err := os.WriteFile(c.key(name, 64, 64), chunk, 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
		mod := time.Now().Add(time.Duration(i-3) * time.Minute)
		if err := os.Chtimes(c.key(name, 64, 64), mod, mod); err != nil {
			t.Fatalf("Chtimes %s: %v", name, err)
		}
	}
	if err := c.Sweep(); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	total, err := c.TotalBytes()
	if err != nil {
		t.Fatalf("TotalBytes: %v", err)
	}
	if total > 1024*1024 {
		t.Fatalf("total = %d, still over budget", total)
	}
	// oldest ("a") goes first
	if _, err := os.Stat(c.key("a", 64, 64)); !os.IsNotExist(err) {
		t.Fatalf("oldest entry survived eviction")
	}
	if _, err := os.Stat(c.key("c", 64, 64)); err != nil {
		t.Fatalf("newest entry evicted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir)); err != nil {
		t.Fatalf("cache dir missing: %v", err)
	}
}
