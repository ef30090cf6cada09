package pose

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Identity is the unit quaternion with no rotation.
var Identity = quat.Number{Real: 1}

const degenerate = 1e-9

// IsFiniteVec reports whether all components of v are finite.
func IsFiniteVec(v r3.Vec) bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

// IsFiniteQuat reports whether all components of q are finite.
func IsFiniteQuat(q quat.Number) bool {
	return finite(q.Real) && finite(q.Imag) && finite(q.Jmag) && finite(q.Kmag)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Normalize returns q scaled to unit length. Zero-length or non-finite input yields Identity.
func Normalize(q quat.Number) quat.Number {
	if !IsFiniteQuat(q) {
		return Identity
	}
	n := quat.Abs(q)
	if n < degenerate {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// Dot returns the 4D dot product of two quaternions.
func Dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// Rotate applies the unit quaternion q to v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// AxisAngle returns the rotation of angle radians about axis.
func AxisAngle(axis r3.Vec, angle float64) quat.Number {
	n := r3.Norm(axis)
	if n < degenerate {
		return Identity
	}
	axis = r3.Scale(1/n, axis)
	s := math.Sin(angle / 2)
	return quat.Number{Real: math.Cos(angle / 2), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

// FromEuler builds a rotation from yaw (about +Y), pitch (about +X) and roll (about +Z),
// in radians, applied roll first, then pitch, then yaw.
func FromEuler(yaw, pitch, roll float64) quat.Number {
	qy := AxisAngle(r3.Vec{Y: 1}, yaw)
	qx := AxisAngle(r3.Vec{X: 1}, pitch)
	qz := AxisAngle(r3.Vec{Z: 1}, roll)
	return Normalize(quat.Mul(qy, quat.Mul(qx, qz)))
}

// Yaw returns the heading angle of the horizontal direction v about +Y, measured so
// that AxisAngle(+Y, Yaw(v)) maps +X onto v's horizontal projection.
func Yaw(v r3.Vec) float64 {
	return math.Atan2(-v.Z, v.X)
}

// Slerp interpolates along the shortest arc from a to b. t=0 yields a, t=1 yields b.
func Slerp(a, b quat.Number, t float64) quat.Number {
	d := Dot(a, b)
	if d < 0 {
		b = quat.Scale(-1, b)
		d = -d
	}
	if d > 0.9995 {
		return Normalize(quat.Add(a, quat.Scale(t, quat.Sub(b, a))))
	}
	theta := math.Acos(d)
	s := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / s
	wb := math.Sin(t*theta) / s
	return Normalize(quat.Add(quat.Scale(wa, a), quat.Scale(wb, b)))
}

// Angle returns the rotation angle in radians between two unit quaternions.
func Angle(a, b quat.Number) float64 {
	d := math.Abs(Dot(a, b))
	if d > 1 {
		d = 1
	}
	return 2 * math.Acos(d)
}

// FromAxes builds the orientation whose local +X points along across and whose local
// +Y points as close to up as possible. Local +Z is X×Y. Returns false when the
// vectors are too short or parallel to define a frame.
func FromAxes(across, up r3.Vec) (quat.Number, bool) {
	if r3.Norm(across) < degenerate || r3.Norm(up) < degenerate {
		return Identity, false
	}
	x := r3.Unit(across)
	y := r3.Sub(up, r3.Scale(r3.Dot(up, x), x))
	if r3.Norm(y) < degenerate {
		return Identity, false
	}
	y = r3.Unit(y)
	z := r3.Cross(x, y)
	return fromBasis(x, y, z), true
}

// fromBasis converts the rotation matrix with columns x, y, z to a unit quaternion.
func fromBasis(x, y, z r3.Vec) quat.Number {
	m00, m01, m02 := x.X, y.X, z.X
	m10, m11, m12 := x.Y, y.Y, z.Y
	m20, m21, m22 := x.Z, y.Z, z.Z

	var q quat.Number
	trace := m00 + m11 + m22
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = quat.Number{Real: s / 4, Imag: (m21 - m12) / s, Jmag: (m02 - m20) / s, Kmag: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = quat.Number{Real: (m21 - m12) / s, Imag: s / 4, Jmag: (m01 + m10) / s, Kmag: (m02 + m20) / s}
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = quat.Number{Real: (m02 - m20) / s, Imag: (m01 + m10) / s, Jmag: s / 4, Kmag: (m12 + m21) / s}
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = quat.Number{Real: (m10 - m01) / s, Imag: (m02 + m20) / s, Jmag: (m12 + m21) / s, Kmag: s / 4}
	}
	return Normalize(q)
}
