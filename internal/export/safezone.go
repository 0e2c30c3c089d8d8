/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import "thumbtory/internal/vector"

// Placement maps surface coordinates into a cover-fitted target:
// target = Offset + surface·K.
type Placement struct {
	K       float64
	OffsetX float64
	OffsetY float64
}

// CoverPlacement returns the mapping used for a sw×sh surface covered into
// tw×th with the extra zoom.
func CoverPlacement(sw, sh, tw, th, zoom float64) Placement {
	k := Scale(FitCover, sw, sh, tw, th)
	if zoom > 1 {
		k *= zoom
	}
	return Placement{K: k, OffsetX: (tw - sw*k) / 2, OffsetY: (th - sh*k) / 2}
}

// SafeZoneShift returns the minimal per-axis translation, in target pixels,
// that brings r inside the interior inset by margin·size on each side. A box
// larger than the interior on an axis is centred on that axis instead.
func SafeZoneShift(r vector.Rect, tw, th, margin float64) vector.Pt {
	return vector.Pt{
		X: axisShift(r.X, r.W, tw, tw*margin),
		Y: axisShift(r.Y, r.H, th, th*margin),
	}
}

func axisShift(pos, size, total, inset float64) float64 {
	lo, hi := inset, total-inset
	switch {
	case size > hi-lo:
		return total/2 - (pos + size/2)
	case pos < lo:
		return lo - pos
	case pos+size > hi:
		return hi - (pos + size)
	}
	return 0
}

// SafeZoneOffsets computes per-object offsets, in surface units, for the
// given surface bounds so that every box lands in the safe zone of the
// target after cover placement. Boxes already inside get no entry.
func SafeZoneOffsets(bounds map[string]vector.Rect, p Placement, tw, th, margin float64) map[string]vector.Pt {
	out := map[string]vector.Pt{}
	if p.K <= 0 {
		return out
	}
	for id, b := range bounds {
		t := vector.Rect{X: p.OffsetX + b.X*p.K, Y: p.OffsetY + b.Y*p.K, W: b.W * p.K, H: b.H * p.K}
		d := SafeZoneShift(t, tw, th, margin)
		if d.X == 0 && d.Y == 0 {
			continue
		}
		out[id] = vector.Pt{X: d.X / p.K, Y: d.Y / p.K}
	}
	return out
}
