package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const tol = 1e-9

func assertVec(t *testing.T, want, got r3.Vec) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-6, "x")
	assert.InDelta(t, want.Y, got.Y, 1e-6, "y")
	assert.InDelta(t, want.Z, got.Z, 1e-6, "z")
}

// assertSameRotation treats q and -q as the same rotation.
func assertSameRotation(t *testing.T, want, got quat.Number) {
	t.Helper()
	assert.InDelta(t, 1, math.Abs(Dot(want, got)), 1e-9, "want %v, got %v", want, got)
}

func TestFromBasis(t *testing.T) {
	tests := []struct {
		name string
		want quat.Number
	}{
		{"identity has positive trace", Identity},
		{"half turn about X", AxisAngle(r3.Vec{X: 1}, math.Pi)},
		{"half turn about Y", AxisAngle(r3.Vec{Y: 1}, math.Pi)},
		{"half turn about Z", AxisAngle(r3.Vec{Z: 1}, math.Pi)},
		{"oblique axis", AxisAngle(r3.Vec{X: 1, Y: 1, Z: 1}, 2.5)},
		{"near half turn about X", AxisAngle(r3.Vec{X: 1, Y: 0.1}, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := Rotate(tt.want, r3.Vec{X: 1})
			y := Rotate(tt.want, r3.Vec{Y: 1})
			z := Rotate(tt.want, r3.Vec{Z: 1})

			got := fromBasis(x, y, z)

			assert.InDelta(t, 1, quat.Abs(got), tol)
			assertSameRotation(t, tt.want, got)
			assertVec(t, x, Rotate(got, r3.Vec{X: 1}))
			assertVec(t, y, Rotate(got, r3.Vec{Y: 1}))
		})
	}
}

func TestFromAxes(t *testing.T) {
	t.Run("aligned axes give identity", func(t *testing.T) {
		q, ok := FromAxes(r3.Vec{X: 2}, r3.Vec{Y: 3})
		assert.True(t, ok)
		assertSameRotation(t, Identity, q)
	})

	t.Run("up is made orthogonal to across", func(t *testing.T) {
		q, ok := FromAxes(r3.Vec{X: 1}, r3.Vec{X: 0.5, Y: 1})
		assert.True(t, ok)
		assertSameRotation(t, Identity, q)
	})

	t.Run("across along -Z is a quarter turn about Y", func(t *testing.T) {
		q, ok := FromAxes(r3.Vec{Z: -1}, r3.Vec{Y: 1})
		assert.True(t, ok)
		assertSameRotation(t, AxisAngle(r3.Vec{Y: 1}, math.Pi/2), q)
	})

	t.Run("degenerate input", func(t *testing.T) {
		_, ok := FromAxes(r3.Vec{}, r3.Vec{Y: 1})
		assert.False(t, ok, "zero across")
		_, ok = FromAxes(r3.Vec{X: 1}, r3.Vec{X: -2})
		assert.False(t, ok, "parallel up")
	})
}

func TestSlerp(t *testing.T) {
	quarter := AxisAngle(r3.Vec{Y: 1}, math.Pi/2)

	t.Run("endpoints", func(t *testing.T) {
		assertSameRotation(t, Identity, Slerp(Identity, quarter, 0))
		assertSameRotation(t, quarter, Slerp(Identity, quarter, 1))
	})

	t.Run("crossing the antipode takes the short arc", func(t *testing.T) {
		far := quat.Scale(-1, quarter)
		if Dot(Identity, far) >= 0 {
			t.Fatal("expected the negated target to be on the far hemisphere")
		}

		got := Slerp(Identity, far, 0.5)

		assert.InDelta(t, 1, quat.Abs(got), tol)
		assertSameRotation(t, AxisAngle(r3.Vec{Y: 1}, math.Pi/4), got)
		assert.InDelta(t, math.Pi/4, Angle(Identity, got), 1e-9)
	})

	t.Run("nearly equal inputs", func(t *testing.T) {
		near := AxisAngle(r3.Vec{Y: 1}, 0.01)
		got := Slerp(Identity, near, 0.5)
		assert.InDelta(t, 1, quat.Abs(got), tol)
		assert.InDelta(t, 0.005, Angle(Identity, got), 1e-6)
	})
}

func TestYaw_AxisAngleRoundTrip(t *testing.T) {
	for _, angle := range []float64{0, 0.3, math.Pi / 2, 2.8, -0.7, -math.Pi / 2, -3} {
		v := Rotate(AxisAngle(r3.Vec{Y: 1}, angle), r3.Vec{X: 1})
		assert.InDelta(t, angle, Yaw(v), 1e-9, "angle %v", angle)

		v.Y = 5
		assert.InDelta(t, angle, Yaw(v), 1e-9, "vertical component must not change the heading")
	}
}

func TestFromEuler(t *testing.T) {
	t.Run("yaw only", func(t *testing.T) {
		assertSameRotation(t, AxisAngle(r3.Vec{Y: 1}, 0.8), FromEuler(0.8, 0, 0))
	})

	t.Run("roll applies before yaw", func(t *testing.T) {
		q := FromEuler(math.Pi/2, 0, math.Pi/2)
		assertVec(t, r3.Vec{Y: 1}, Rotate(q, r3.Vec{X: 1}))
	})

	t.Run("pitch tips +Z down", func(t *testing.T) {
		q := FromEuler(0, math.Pi/2, 0)
		assertVec(t, r3.Vec{Y: -1}, Rotate(q, r3.Vec{Z: 1}))
	})
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, Identity, Normalize(quat.Number{}))
	assert.Equal(t, Identity, Normalize(quat.Number{Real: math.NaN()}))

	got := Normalize(quat.Number{Real: 2, Imag: 2})
	assert.InDelta(t, 1, quat.Abs(got), tol)
	assert.InDelta(t, math.Sqrt2/2, got.Real, tol)
}
