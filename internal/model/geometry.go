package model

// All positions travel over the wire in a fixed logical canvas space so that
// every client sees the same coordinates regardless of its viewport. Screen
// mapping happens only at render time.
const (
	CanvasWidth   = 1600.0
	CanvasHeight  = 900.0
	CharacterSize = 64.0
)

// MapRect describes where the map is drawn on a particular screen.
type MapRect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// CanvasMapRect is the identity mapping, used when movement is computed
// directly in canvas coordinates.
func CanvasMapRect() MapRect {
	return MapRect{X: 0, Y: 0, Width: CanvasWidth, Height: CanvasHeight}
}

// CenteredPosition returns the canvas position that centers a character.
func CenteredPosition() Position {
	return Position{
		X: CanvasWidth/2 - CharacterSize/2,
		Y: CanvasHeight/2 - CharacterSize/2,
	}
}

// CanvasToScreen converts a canvas position to screen coordinates for the
// given map rectangle.
func CanvasToScreen(p Position, rect MapRect) Position {
	if rect.Width <= 0 || rect.Height <= 0 {
		return Position{}
	}
	scaleX := rect.Width / CanvasWidth
	scaleY := rect.Height / CanvasHeight
	return Position{
		X: rect.X + p.X*scaleX,
		Y: rect.Y + p.Y*scaleY,
	}
}

// ScreenToCanvas converts a screen position back to canvas coordinates.
func ScreenToCanvas(p Position, rect MapRect) Position {
	if rect.Width <= 0 || rect.Height <= 0 {
		return Position{}
	}
	scaleX := CanvasWidth / rect.Width
	scaleY := CanvasHeight / rect.Height
	return Position{
		X: (p.X - rect.X) * scaleX,
		Y: (p.Y - rect.Y) * scaleY,
	}
}

// ClampToCanvas constrains a character position to the canvas bounds. The
// server never clamps; clients do this before publishing.
func ClampToCanvas(p Position) Position {
	return Position{
		X: clamp(p.X, 0, CanvasWidth-CharacterSize),
		Y: clamp(p.Y, 0, CanvasHeight-CharacterSize),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
