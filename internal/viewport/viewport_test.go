// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package viewport

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestPreviewToWorld(t *testing.T) {
	var m Mapper
	x, y := m.PreviewToWorld(1000, 500)
	if x != 160000 || y != 80000 {
		t.Fatalf("got (%v, %v)", x, y)
	}
}

func TestRoundTrip(t *testing.T) {
	m := New(DefaultScale)
	points := [][2]float64{{0, 0}, {1, 1}, {999.5, 0.25}, {-12.75, 333.3333}, {1e6, -1e-6}}
	for _, p := range points {
		wx, wy := m.PreviewToWorld(p[0], p[1])
		px, py := m.WorldToPreview(wx, wy)
		if diff := cmp.Diff(p, [2]float64{px, py}, approx); diff != "" {
			t.Errorf("preview round trip for %v\n%s", p, diff)
		}

		px, py = m.WorldToPreview(p[0], p[1])
		wx, wy = m.PreviewToWorld(px, py)
		if diff := cmp.Diff(p, [2]float64{wx, wy}, approx); diff != "" {
			t.Errorf("world round trip for %v\n%s", p, diff)
		}
	}
}

func TestRectRoundTrip(t *testing.T) {
	m := New(0)
	r := Rect{X: 16000, Y: 3200, W: 48000, H: 24000}
	got := m.PreviewRectToWorldRect(m.WorldRectToPreviewRect(r))
	if diff := cmp.Diff(r, got, approx); diff != "" {
		t.Errorf("wrong rect\n%s", diff)
	}
}

func TestNewInvalidScale(t *testing.T) {
	for _, s := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if got := New(s).Scale(); got != DefaultScale {
			t.Errorf("New(%v).Scale() = %v", s, got)
		}
	}
}

func TestOverlayRect(t *testing.T) {
	m := New(DefaultScale)
	// The whole world, and a quarter of it from the middle.
	world := Rect{W: 160000, H: 160000}
	middle := Rect{X: 40000, Y: 40000, W: 80000, H: 80000}

	tests := map[string]struct {
		r      Rect
		canvas Canvas
		want   Rect
	}{
		"square": {
			r:      world,
			canvas: Canvas{Width: 500, Height: 500},
			want:   Rect{W: 500, H: 500},
		},
		"wide": {
			r:      world,
			canvas: Canvas{Width: 800, Height: 400},
			want:   Rect{X: 200, W: 400, H: 400},
		},
		"tall": {
			r:      middle,
			canvas: Canvas{Width: 200, Height: 600},
			want:   Rect{X: 50, Y: 250, W: 100, H: 100},
		},
		"empty canvas": {
			r:      world,
			canvas: Canvas{},
			want:   Rect{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := m.OverlayRect(test.r, test.canvas)
			if diff := cmp.Diff(test.want, got, approx); diff != "" {
				t.Errorf("wrong overlay\n%s", diff)
			}
		})
	}
}
