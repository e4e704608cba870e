package model

import (
	"math"
	"testing"
)

func TestCanvasScreenRoundTrip(t *testing.T) {
	rect := MapRect{X: 40, Y: 20, Width: 800, Height: 450}
	orig := Position{X: 1000, Y: 300}

	screen := CanvasToScreen(orig, rect)
	back := ScreenToCanvas(screen, rect)

	if math.Abs(back.X-orig.X) > 1e-9 || math.Abs(back.Y-orig.Y) > 1e-9 {
		t.Fatalf("round trip drifted: %+v -> %+v -> %+v", orig, screen, back)
	}
}

func TestCanvasToScreenScales(t *testing.T) {
	// Half-size viewport: canvas coordinates halve.
	rect := MapRect{X: 0, Y: 0, Width: CanvasWidth / 2, Height: CanvasHeight / 2}

	got := CanvasToScreen(Position{X: 1600, Y: 900}, rect)
	if got.X != 800 || got.Y != 450 {
		t.Fatalf("expected (800,450), got %+v", got)
	}
}

func TestDegenerateRectMapsToOrigin(t *testing.T) {
	if got := CanvasToScreen(Position{X: 100, Y: 100}, MapRect{}); got != (Position{}) {
		t.Fatalf("expected origin for zero rect, got %+v", got)
	}
}

func TestClampToCanvas(t *testing.T) {
	cases := []struct {
		name string
		in   Position
		want Position
	}{
		{"inside", Position{X: 100, Y: 100}, Position{X: 100, Y: 100}},
		{"negative", Position{X: -5, Y: -5}, Position{X: 0, Y: 0}},
		{"past right edge", Position{X: 2000, Y: 100}, Position{X: CanvasWidth - CharacterSize, Y: 100}},
		{"past bottom edge", Position{X: 100, Y: 1000}, Position{X: 100, Y: CanvasHeight - CharacterSize}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClampToCanvas(tc.in); got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}
