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
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/HugoSmits86/nativewebp"
)

// Encode writes img in format. WebP output is lossless; JPEG quality is
// clamped to MinJPEGQuality..100.
func Encode(img image.Image, f Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch f {
	case FormatPNG:
		err = png.Encode(&buf, img)
	case FormatWebP:
		err = nativewebp.Encode(&buf, img, nil)
	case FormatJPEG:
		if quality < MinJPEGQuality {
			quality = MinJPEGQuality
		}
		if quality > 100 {
			quality = 100
		}
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	default:
		return nil, fmt.Errorf("unknown format %q", f)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("encode %s: empty output", f)
	}
	return buf.Bytes(), nil
}

// EstimateKB reports the size as ⌈b64len·3/4/1024⌉, matching what a data
// URL consumer would compute.
func EstimateKB(data []byte) int {
	b64 := base64.StdEncoding.EncodedLen(len(data))
	return int(math.Ceil(float64(b64) * 3 / 4 / 1024))
}

// DataURL encodes data for inline previews.
func DataURL(f Format, data []byte) string {
	return "data:" + f.MIME() + ";base64," + base64.StdEncoding.EncodeToString(data)
}
