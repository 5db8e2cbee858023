// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package viewport converts between the square preview coordinate space of
// the minimap and the world coordinate space of the editor.
package viewport

import "math"

// DefaultScale is the number of world units per preview unit: the world
// spans 160,000 units for every 1,000 units of preview.
const DefaultScale = 160

// PreviewSize is the side length of the square preview space.
const PreviewSize = 1000

// Rect is an axis-aligned rectangle. W and H are never negative for
// rectangles produced by this package.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Canvas is the size, in pixels, of the surface the preview is drawn on.
type Canvas struct {
	Width  float64
	Height float64
}

// Mapper converts coordinates using a fixed linear scale.
type Mapper struct {
	scale float64
}

// New returns a mapper with the given scale, or [DefaultScale] if scale is
// not positive.
func New(scale float64) Mapper {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = DefaultScale
	}
	return Mapper{scale: scale}
}

// Scale returns the number of world units per preview unit.
func (m Mapper) Scale() float64 {
	if m.scale == 0 {
		return DefaultScale
	}
	return m.scale
}

func (m Mapper) PreviewToWorld(x, y float64) (float64, float64) {
	s := m.Scale()
	return x * s, y * s
}

func (m Mapper) WorldToPreview(x, y float64) (float64, float64) {
	s := m.Scale()
	return x / s, y / s
}

// WorldRectToPreviewRect converts r into preview units.
func (m Mapper) WorldRectToPreviewRect(r Rect) Rect {
	s := m.Scale()
	return Rect{X: r.X / s, Y: r.Y / s, W: r.W / s, H: r.H / s}
}

// PreviewRectToWorldRect converts r into world units.
func (m Mapper) PreviewRectToWorldRect(r Rect) Rect {
	s := m.Scale()
	return Rect{X: r.X * s, Y: r.Y * s, W: r.W * s, H: r.H * s}
}

// OverlayRect returns where the world rectangle r should be drawn on canvas.
//
// The square preview space is fitted into the canvas as large as possible
// and centered, so a canvas that is not square gets equal margins on both
// sides of its longer axis.
func (m Mapper) OverlayRect(r Rect, canvas Canvas) Rect {
	p := m.WorldRectToPreviewRect(r)
	side := min(canvas.Width, canvas.Height)
	if side <= 0 {
		return Rect{}
	}
	px := side / PreviewSize
	offX := (canvas.Width - side) / 2
	offY := (canvas.Height - side) / 2
	return Rect{
		X: offX + p.X*px,
		Y: offY + p.Y*px,
		W: p.W * px,
		H: p.H * px,
	}
}
