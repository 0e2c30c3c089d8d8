/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

// Smart guides snap a dragged rectangle to anchor edges and centres.
// The helpers are UI-agnostic and deterministic.

import "math"

// SnapOptions controls which guide candidates are considered and the threshold.
type SnapOptions struct {
	// Threshold is the maximum distance in scene units at which snapping
	// occurs. Typical values are 6–8 px.
	Threshold     float64
	SnapToEdges   bool
	SnapToCenters bool
}

// Anchor is a static reference rect such as the canvas bounds or another
// element. Higher Weight wins ties.
type Anchor struct {
	Rect   Rect
	Weight float64
}

// GuideLine describes a visual guide produced by an alignment.
// Orientation is "vertical" or "horizontal"; Kind is "edge" or "center".
type GuideLine struct {
	Orientation string
	Kind        string
	Position    float64
	From        Pt
	To          Pt
}

type axisBest struct {
	delta float64
	dist  float64
	guide GuideLine
}

// ComputeSmartGuides returns the snapped rectangle and the guides to draw.
// X and Y snap independently.
func ComputeSmartGuides(moving Rect, anchors []Anchor, opts SnapOptions) (Rect, []GuideLine) {
	if opts.Threshold <= 0 {
		opts.Threshold = 6
	}
	bx := axisBest{dist: math.Inf(1)}
	by := axisBest{dist: math.Inf(1)}

	mL, mR, mT, mB := moving.X, moving.X+moving.W, moving.Y, moving.Y+moving.H
	mc := moving.Center()

	for _, a := range anchors {
		aL, aR, aT, aB := a.Rect.X, a.Rect.X+a.Rect.W, a.Rect.Y, a.Rect.Y+a.Rect.H
		ac := a.Rect.Center()
		if opts.SnapToEdges {
			for _, c := range [][2]float64{{mL, aL}, {mR, aR}, {mL, aR}, {mR, aL}} {
				bx.consider(c[0]-c[1], opts.Threshold, a.Weight, vertical(c[1], moving, a.Rect, "edge"))
			}
			for _, c := range [][2]float64{{mT, aT}, {mB, aB}, {mT, aB}, {mB, aT}} {
				by.consider(c[0]-c[1], opts.Threshold, a.Weight, horizontal(c[1], moving, a.Rect, "edge"))
			}
		}
		if opts.SnapToCenters {
			bx.consider(mc.X-ac.X, opts.Threshold, a.Weight, vertical(ac.X, moving, a.Rect, "center"))
			by.consider(mc.Y-ac.Y, opts.Threshold, a.Weight, horizontal(ac.Y, moving, a.Rect, "center"))
		}
	}

	var guides []GuideLine
	snapped := moving
	if bx.dist <= opts.Threshold {
		snapped.X = FloatRound(moving.X-bx.delta, 3)
		guides = append(guides, bx.guide)
	}
	if by.dist <= opts.Threshold {
		snapped.Y = FloatRound(moving.Y-by.delta, 3)
		guides = append(guides, by.guide)
	}
	return snapped, guides
}

func (b *axisBest) consider(delta, threshold, weight float64, g GuideLine) {
	dist := math.Abs(delta)
	if dist > threshold {
		return
	}
	if dist/math.Max(1, weight) < b.dist {
		b.dist = dist
		b.delta = delta
		b.guide = g
	}
}

func vertical(x float64, a, b Rect, kind string) GuideLine {
	x = FloatRound(x, 3)
	return GuideLine{
		Orientation: "vertical",
		Kind:        kind,
		Position:    x,
		From:        Pt{x, math.Min(a.Y, b.Y)},
		To:          Pt{x, math.Max(a.Y+a.H, b.Y+b.H)},
	}
}

func horizontal(y float64, a, b Rect, kind string) GuideLine {
	y = FloatRound(y, 3)
	return GuideLine{
		Orientation: "horizontal",
		Kind:        kind,
		Position:    y,
		From:        Pt{math.Min(a.X, b.X), y},
		To:          Pt{math.Max(a.X+a.W, b.X+b.W), y},
	}
}
