/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package scene holds the authoritative editor state: the ordered element
// list, the background, the selection pointer and SEO metadata. It has no
// rendering knowledge; the canvas package mirrors it onto a drawing surface.
package scene

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when an operation references an element id that is
// not in the scene.
var ErrNotFound = errors.New("element not found")

// Kind discriminates element bodies.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindShape Kind = "shape"
)

// Body is the variant part of an Element. The set of implementations is
// closed: Text, Image and Shape.
type Body interface {
	Kind() Kind
	isBody()
}

// Text is a wrapped text box. Width is the wrap width in unscaled units.
type Text struct {
	Text       string  `json:"text"`
	FontFamily string  `json:"fontFamily"`
	FontSize   float64 `json:"fontSize"`
	Fill       string  `json:"fill"`
	FontWeight string  `json:"fontWeight,omitempty"`
	FontStyle  string  `json:"fontStyle,omitempty"`
	Underline  bool    `json:"underline,omitempty"`
	TextAlign  string  `json:"textAlign,omitempty"`
	Width      float64 `json:"width"`
}

// Image references pixel data by Src (data URL, file path or http URL).
type Image struct {
	Src    string  `json:"src"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type ShapeKind string

const (
	Rectangle ShapeKind = "rectangle"
	Circle    ShapeKind = "circle"
	Triangle  ShapeKind = "triangle"
)

type Shape struct {
	Shape       ShapeKind `json:"shape"`
	Width       float64   `json:"width"`
	Height      float64   `json:"height"`
	Fill        string    `json:"fill"`
	Stroke      string    `json:"stroke,omitempty"`
	StrokeWidth float64   `json:"strokeWidth,omitempty"`
}

func (Text) Kind() Kind  { return KindText }
func (Image) Kind() Kind { return KindImage }
func (Shape) Kind() Kind { return KindShape }
func (Text) isBody()     {}
func (Image) isBody()    {}
func (Shape) isBody()    {}

// Match dispatches on the body variant. Every consumer goes through Match
// (or a type switch with the same three cases), so adding a variant breaks
// each call site at compile time.
func Match[T any](b Body, text func(Text) T, image func(Image) T, shape func(Shape) T) T {
	switch v := b.(type) {
	case Text:
		return text(v)
	case Image:
		return image(v)
	case Shape:
		return shape(v)
	}
	panic(fmt.Sprintf("scene: unexpected body %T", b))
}

// Element is one editable object. Paint order is its index in Scene.Elements.
type Element struct {
	ID       string
	X, Y     float64
	ScaleX   float64
	ScaleY   float64
	Rotation float64 // degrees, clockwise
	Opacity  float64
	Body     Body
}

func (e Element) Kind() Kind { return e.Body.Kind() }

// Size returns the intrinsic (unscaled) width and height. Text height is
// not known without layout and is reported as zero.
func (e Element) Size() (w, h float64) {
	type wh struct{ w, h float64 }
	r := Match(e.Body,
		func(t Text) wh { return wh{t.Width, 0} },
		func(i Image) wh { return wh{i.Width, i.Height} },
		func(s Shape) wh { return wh{s.Width, s.Height} },
	)
	return r.w, r.h
}

type elementJSON struct {
	ID       string          `json:"id"`
	Type     Kind            `json:"type"`
	X        float64         `json:"x"`
	Y        float64         `json:"y"`
	ScaleX   float64         `json:"scaleX"`
	ScaleY   float64         `json:"scaleY"`
	Rotation float64         `json:"rotation"`
	Opacity  float64         `json:"opacity"`
	Props    json.RawMessage `json:"props"`
}

func (e Element) MarshalJSON() ([]byte, error) {
	if e.Body == nil {
		return nil, fmt.Errorf("element %s has no body", e.ID)
	}
	props, err := json.Marshal(e.Body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(elementJSON{
		ID: e.ID, Type: e.Body.Kind(),
		X: e.X, Y: e.Y, ScaleX: e.ScaleX, ScaleY: e.ScaleY,
		Rotation: e.Rotation, Opacity: e.Opacity, Props: props,
	})
}

func (e *Element) UnmarshalJSON(data []byte) error {
	var raw elementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var body Body
	switch raw.Type {
	case KindText:
		var t Text
		if err := unmarshalProps(raw.Props, &t); err != nil {
			return err
		}
		body = t
	case KindImage:
		var i Image
		if err := unmarshalProps(raw.Props, &i); err != nil {
			return err
		}
		body = i
	case KindShape:
		var s Shape
		if err := unmarshalProps(raw.Props, &s); err != nil {
			return err
		}
		body = s
	default:
		return fmt.Errorf("unknown element type %q", raw.Type)
	}
	*e = Element{
		ID: raw.ID, X: raw.X, Y: raw.Y, ScaleX: raw.ScaleX, ScaleY: raw.ScaleY,
		Rotation: raw.Rotation, Opacity: raw.Opacity, Body: body,
	}
	return nil
}

func unmarshalProps(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
