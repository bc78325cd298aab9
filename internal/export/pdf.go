/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export writes edit-history reports to files. The only format right
// now is PDF; built-in Helvetica keeps the output portable without font
// embedding.
package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"

	"retouchdesk/internal/domain"
)

// ImageFetcher loads image bytes for a record's edited image. Returning an
// error skips the image for that record; the textual entry still renders.
type ImageFetcher func(ctx context.Context, url string) ([]byte, error)

// PDFOptions controls history PDF export. Units are points.
type PDFOptions struct {
	Title string
	// FetchImage, when set, embeds each record's edited image as a small
	// contact print next to the entry. Nil exports text only.
	FetchImage ImageFetcher
}

// ExportHistoryPDF writes the given records (expected newest-first) to a
// multi-entry A4 report at outPath. Parent directories are created.
func ExportHistoryPDF(ctx context.Context, records []domain.EditRecord, outPath string, opt PDFOptions) error {
	title := opt.Title
	if title == "" {
		title = "Retouch Desk — Edit History"
	}

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor("Retouch Desk", false)
	pdf.SetAutoPageBreak(true, 48)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageW - left - right

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(usable, 22, title, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(usable, 14, fmt.Sprintf("%d entries, exported %s", len(records), time.Now().Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	pdf.Ln(8)

	const imgBox = 96.0
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		pdf.SetFont("Helvetica", "B", 11)
		head := rec.PostTitle
		if head == "" {
			head = "(untitled post)"
		}
		pdf.CellFormat(usable, 16, fmt.Sprintf("%d. %s", i+1, head), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(usable, 12, rec.Timestamp.Local().Format("2006-01-02 15:04:05"), "", 1, "L", false, 0, "")
		pdf.MultiCell(usable, 12, "Prompt: "+rec.Prompt, "", "L", false)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(usable, 11, "Original: "+rec.OriginalImageURL, "", "L", false)
		pdf.MultiCell(usable, 11, "Edited:   "+rec.EditedImageURL, "", "L", false)
		pdf.SetTextColor(0, 0, 0)

		if opt.FetchImage != nil && rec.EditedImageURL != "" {
			if data, err := opt.FetchImage(ctx, rec.EditedImageURL); err == nil {
				name := fmt.Sprintf("hist-%d", i)
				imgType := sniffImageType(data)
				if imgType != "" {
					pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: imgType}, bytes.NewReader(data))
					if pdf.Ok() {
						x := pdf.GetX()
						y := pdf.GetY() + 4
						pdf.ImageOptions(name, x, y, imgBox, 0, false, gofpdf.ImageOptions{ImageType: imgType}, 0, "")
						pdf.SetY(y + imgBox + 4)
					}
				}
			}
		}
		pdf.Ln(10)
	}

	if !filepath.IsAbs(outPath) {
		if abs, err := filepath.Abs(outPath); err == nil {
			outPath = abs
		}
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// sniffImageType maps magic bytes to the type names gofpdf understands.
func sniffImageType(data []byte) string {
	switch {
	case len(data) > 8 && bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "PNG"
	case len(data) > 3 && bytes.HasPrefix(data, []byte("\xff\xd8\xff")):
		return "JPG"
	case len(data) > 6 && (bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a"))):
		return "GIF"
	default:
		return ""
	}
}
