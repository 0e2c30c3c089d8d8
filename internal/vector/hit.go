/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

// Hit testing for the three drawable outlines. Points are in scene
// coordinates; xf maps the local box to the scene.

// HitRect reports whether p falls inside box under xf.
func HitRect(box Rect, xf Affine2D, p Pt) bool {
	return box.Contains(xf.Invert().Apply(p))
}

// HitEllipse tests against the ellipse inscribed in box.
func HitEllipse(box Rect, xf Affine2D, p Pt) bool {
	q := xf.Invert().Apply(p)
	rx, ry := box.W/2, box.H/2
	if rx == 0 || ry == 0 {
		return false
	}
	dx := (q.X - (box.X + rx)) / rx
	dy := (q.Y - (box.Y + ry)) / ry
	return dx*dx+dy*dy <= 1
}

// TrianglePoints returns the isosceles triangle inscribed in box: apex at
// the top centre, base along the bottom edge.
func TrianglePoints(box Rect) [3]Pt {
	return [3]Pt{
		{box.X + box.W/2, box.Y},
		{box.X + box.W, box.Y + box.H},
		{box.X, box.Y + box.H},
	}
}

// HitTriangle tests against TrianglePoints(box).
func HitTriangle(box Rect, xf Affine2D, p Pt) bool {
	q := xf.Invert().Apply(p)
	t := TrianglePoints(box)
	d1 := cross(q, t[0], t[1])
	d2 := cross(q, t[1], t[2])
	d3 := cross(q, t[2], t[0])
	neg := d1 < 0 || d2 < 0 || d3 < 0
	pos := d1 > 0 || d2 > 0 || d3 > 0
	return !(neg && pos)
}

func cross(p, a, b Pt) float64 {
	return (p.X-b.X)*(a.Y-b.Y) - (a.X-b.X)*(p.Y-b.Y)
}
