/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package preview produces and caches downscaled image previews. Thumbnails
// live as PNG files under one cache directory; the cache enforces a byte
// budget and a maximum file age, oldest-access first.
package preview

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	applog "retouchdesk/internal/log"
)

// Cache is an on-disk preview cache. The zero value is not usable; construct
// with NewCache.
type Cache struct {
	dir      string
	maxBytes int64
	maxAge   time.Duration
	log      *slog.Logger
}

// NewCache creates (or reuses) the cache directory. maxMB <= 0 disables the
// byte budget, maxAge <= 0 disables age-based expiry.
func NewCache(dir string, maxMB int, maxAge time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preview cache dir: %w", err)
	}
	return &Cache{
		dir:      dir,
		maxBytes: int64(maxMB) * 1024 * 1024,
		maxAge:   maxAge,
		log:      applog.WithComponent("preview"),
	}, nil
}

// key derives the cache filename for a source URL at a target size. The URL
// is hashed so arbitrary characters never reach the filesystem.
func (c *Cache) key(srcURL string, maxW, maxH int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%dx%d", srcURL, maxW, maxH)))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:16])+".png")
}

// Get returns cached preview bytes for the URL at the given bound, or false.
// A hit refreshes the file's mtime so eviction treats it as recently used.
func (c *Cache) Get(srcURL string, maxW, maxH int) ([]byte, bool) {
	path := c.key(srcURL, maxW, maxH)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	now := time.Now()
	_ = os.Chtimes(path, now, now)
	return data, true
}

// Put stores preview bytes and then enforces the cache budget.
func (c *Cache) Put(srcURL string, maxW, maxH int, data []byte) error {
	path := c.key(srcURL, maxW, maxH)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}
	if err := c.Sweep(); err != nil {
		c.log.Warn("preview cache sweep failed", slog.Any("err", err))
	}
	return nil
}

// GetOrCreate returns the cached preview or fetches the source via gen,
// downscales it and stores the result. gen receives the context unchanged.
func (c *Cache) GetOrCreate(ctx context.Context, srcURL string, maxW, maxH int, gen func(context.Context) ([]byte, error)) ([]byte, error) {
	if data, ok := c.Get(srcURL, maxW, maxH); ok {
		return data, nil
	}
	src, err := gen(ctx)
	if err != nil {
		return nil, err
	}
	thumb, err := Thumbnail(src, maxW, maxH)
	if err != nil {
		return nil, err
	}
	if err := c.Put(srcURL, maxW, maxH, thumb); err != nil {
		return nil, err
	}
	return thumb, nil
}

// Sweep removes files older than the age limit, then evicts oldest-first
// until the remaining files fit the byte budget.
func (c *Cache) Sweep() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read preview cache dir: %w", err)
	}
	type file struct {
		path string
		size int64
		mod  time.Time
	}
	var files []file
	var total int64
	cutoff := time.Now().Add(-c.maxAge)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(c.dir, e.Name())
		if c.maxAge > 0 && info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				c.log.Debug("expired preview removed", slog.String("file", e.Name()))
				continue
			}
		}
		files = append(files, file{path: path, size: info.Size(), mod: info.ModTime()})
		total += info.Size()
	}
	if c.maxBytes <= 0 || total <= c.maxBytes {
		return nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	for _, f := range files {
		if total <= c.maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			c.log.Warn("evicting preview failed", slog.String("file", f.path), slog.Any("err", err))
			continue
		}
		total -= f.size
	}
	return nil
}

// TotalBytes reports the bytes currently held by the cache.
func (c *Cache) TotalBytes() (int64, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if info, err := e.Info(); err == nil && !e.IsDir() {
			total += info.Size()
		}
	}
	return total, nil
}

// Thumbnail decodes src (PNG, JPEG or GIF) and downscales it to fit within
// maxW x maxH, keeping aspect ratio. Images already inside the bound are
// re-encoded unscaled. The result is always PNG.
func Thumbnail(src []byte, maxW, maxH int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("source image has empty bounds")
	}
	scale := 1.0
	if w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if s := float64(maxH) / float64(h); h > maxH && s < scale {
		scale = s
	}
	out := img
	if scale < 1.0 {
		dw := int(float64(w)*scale + 0.5)
		dh := int(float64(h)*scale + 0.5)
		if dw < 1 {
			dw = 1
		}
		if dh < 1 {
			dh = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		out = dst
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
