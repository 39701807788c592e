package math

// Vec2 is a 2D vector, used for texture coordinates.
type Vec2 struct {
	X, Y float32
}

// FlipV returns the coordinate with V mirrored (top-left to bottom-left origin).
func (v Vec2) FlipV() Vec2 {
	return Vec2{v.X, 1 - v.Y}
}
