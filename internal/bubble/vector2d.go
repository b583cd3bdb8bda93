package bubble

import "math"

// Vec2 is a 2D vector in arena pixel space.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Plus(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vec2) Minus(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vec2) Times(s float64) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

func (v Vec2) Dot(o Vec2) float64 {
	return v.X*o.X + v.Y*o.Y
}

func (v Vec2) Magnitude() float64 {
	return math.Hypot(v.X, v.Y)
}

// Angle returns atan2(y, x). The zero vector maps to 0, the fixed +X axis.
func (v Vec2) Angle() float64 {
	if v.IsZero() {
		return 0
	}
	return math.Atan2(v.Y, v.X)
}

// Rotate rotates the vector by -angle radians, projecting it onto a frame whose
// X axis points along angle. RotateBack undoes it.
func (v Vec2) Rotate(sin, cos float64) Vec2 {
	return Vec2{
		X: v.X*cos + v.Y*sin,
		Y: v.Y*cos - v.X*sin,
	}
}

func (v Vec2) RotateBack(sin, cos float64) Vec2 {
	return Vec2{
		X: v.X*cos - v.Y*sin,
		Y: v.Y*cos + v.X*sin,
	}
}

func (v Vec2) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// Unit returns the unit vector at the given angle.
func Unit(angle float64) Vec2 {
	return Vec2{X: math.Cos(angle), Y: math.Sin(angle)}
}
