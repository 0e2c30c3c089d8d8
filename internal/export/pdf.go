/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"thumbtory/internal/scene"
	"thumbtory/internal/vector"
)

// ProofOptions controls the proof sheet.
type ProofOptions struct {
	// PageWidth in points; A4 landscape width when zero.
	PageWidth float64
	Margin    float64
	Frame     vector.Color
}

// WriteProofSheet renders one PDF page per result with the image scaled to
// the page width, its preset line and the SEO metadata. Document info
// carries title, author, subject and keywords from seo.
func WriteProofSheet(outPath string, results []Result, seo scene.SEO, date time.Time, opt ProofOptions) error {
	if len(results) == 0 {
		return fmt.Errorf("proof sheet: nothing to write")
	}
	pageW := opt.PageWidth
	if pageW <= 0 {
		pageW = 842
	}
	margin := opt.Margin
	if margin <= 0 {
		margin = 36
	}
	frame := opt.Frame
	if frame.A == 0 {
		frame = vector.Color{R: 0xd4, G: 0xd4, B: 0xd8, A: 255}
	}
	seo = seo.Normalize()

	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: pageW, Ht: pageW}})
	title := seo.Title
	if title == "" {
		title = "Thumbnail proofs"
	}
	pdf.SetTitle(title, true)
	if seo.Author != "" {
		pdf.SetAuthor(seo.Author, true)
	}
	if seo.Description != "" {
		pdf.SetSubject(seo.Description, true)
	}
	if len(seo.Keywords) > 0 {
		pdf.SetKeywords(strings.Join(seo.Keywords, ", "), true)
	}
	pdf.SetCreator("Thumbtory", false)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	imgW := pageW - 2*margin
	for i, r := range results {
		if r.Image == nil || r.Width <= 0 || r.Height <= 0 {
			continue
		}
		imgH := imgW * float64(r.Height) / float64(r.Width)
		pageH := imgH + 2*margin + 110
		pdf.AddPageFormat("", gofpdf.SizeType{Wd: pageW, Ht: pageH})

		pdf.SetFont("Helvetica", "B", 16)
		pdf.SetXY(margin, margin)
		pdf.CellFormat(imgW, 20, tr(fmt.Sprintf("%s  %dx%d", r.Preset.DisplayName, r.Width, r.Height)), "", 1, "L", false, 0, "")

		var buf bytes.Buffer
		if err := png.Encode(&buf, r.Image); err != nil {
			return fmt.Errorf("encode proof image %s: %w", r.Preset.ID, err)
		}
		name := fmt.Sprintf("proof-%d", i)
		pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, &buf)
		top := margin + 28
		pdf.ImageOptions(name, margin, top, imgW, imgH, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
		pdf.SetDrawColor(int(frame.R), int(frame.G), int(frame.B))
		pdf.SetLineWidth(0.5)
		pdf.Rect(margin, top, imgW, imgH, "D")

		pdf.SetFont("Helvetica", "", 10)
		pdf.SetXY(margin, top+imgH+10)
		lines := []string{
			fmt.Sprintf("File: %s  (%s, %d KB, %s)", Filename(seo, r.Preset, date, r.Format.Ext()), r.Format, r.SizeKB, r.Fit),
		}
		if seo.AltText != "" {
			lines = append(lines, "Alt: "+seo.AltText)
		}
		if len(seo.Keywords) > 0 {
			lines = append(lines, "Keywords: "+strings.Join(seo.Keywords, ", "))
		}
		if seo.Copyright != "" {
			lines = append(lines, "© "+seo.Copyright)
		}
		for _, ln := range lines {
			pdf.CellFormat(imgW, 14, tr(ln), "", 1, "L", false, 0, "")
		}
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
