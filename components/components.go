// Package components defines the plain data types shared by the simulation
// core subsystems.
package components

// Vec2 is a 2D vector in world pixels.
type Vec2 struct {
	X, Y float32
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

// Scale returns v scaled by s.
func (v Vec2) Scale(s float32) Vec2 { return Vec2{v.X * s, v.Y * s} }

// Dot returns the dot product of v and o.
func (v Vec2) Dot(o Vec2) float32 { return v.X*o.X + v.Y*o.Y }

// LenSq returns the squared length of v.
func (v Vec2) LenSq() float32 { return v.X*v.X + v.Y*v.Y }

// AABB is an axis-aligned bounding box stored as min/max corners.
type AABB struct {
	MinX, MinY float32
	MaxX, MaxY float32
}

// AABBFromCenter builds an AABB from a center point and half extents.
func AABBFromCenter(center, half Vec2) AABB {
	return AABB{
		MinX: center.X - half.X,
		MinY: center.Y - half.Y,
		MaxX: center.X + half.X,
		MaxY: center.Y + half.Y,
	}
}

// Center returns the AABB's center point.
func (a AABB) Center() Vec2 {
	return Vec2{(a.MinX + a.MaxX) * 0.5, (a.MinY + a.MaxY) * 0.5}
}

// Overlaps reports whether a and b intersect.
func (a AABB) Overlaps(b AABB) bool {
	return a.MinX <= b.MaxX && a.MaxX >= b.MinX && a.MinY <= b.MaxY && a.MaxY >= b.MinY
}

// Contains reports whether the point is inside the AABB.
func (a AABB) Contains(p Vec2) bool {
	return p.X >= a.MinX && p.X <= a.MaxX && p.Y >= a.MinY && p.Y <= a.MaxY
}

// Expand returns the AABB grown by eps on every side.
func (a AABB) Expand(eps float32) AABB {
	return AABB{a.MinX - eps, a.MinY - eps, a.MaxX + eps, a.MaxY + eps}
}
