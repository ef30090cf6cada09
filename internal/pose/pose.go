// Package pose defines tracker roles, 6-DoF poses and the vector/quaternion helpers
// shared by calibration, synthesis, filtering and transmission.
package pose

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Role is a body location that receives a virtual tracker.
type Role int

const (
	Head Role = iota
	Chest
	Waist
	LeftElbow
	RightElbow
	LeftHand
	RightHand
	LeftKnee
	RightKnee
	LeftFoot
	RightFoot
	NumRoles
)

var roleNames = [NumRoles]string{
	"head", "chest", "waist",
	"left_elbow", "right_elbow",
	"left_hand", "right_hand",
	"left_knee", "right_knee",
	"left_foot", "right_foot",
}

// Roles returns every role in declaration order.
func Roles() []Role {
	roles := make([]Role, NumRoles)
	for i := range roles {
		roles[i] = Role(i)
	}
	return roles
}

// String returns the snake_case role name.
func (r Role) String() string {
	if r < 0 || r >= NumRoles {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

// ParseRole returns the role with the given name.
func ParseRole(name string) (Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range roleNames {
		if n == name {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if r < 0 || r >= NumRoles {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(roleNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Pose is a position in room space (metres) and a unit orientation quaternion.
type Pose struct {
	Position    r3.Vec      `json:"position"`
	Orientation quat.Number `json:"orientation"`
}

// IsFinite reports whether every component of the pose is a finite number.
func (p Pose) IsFinite() bool {
	return IsFiniteVec(p.Position) && IsFiniteQuat(p.Orientation)
}

// OrientationSource selects which landmark geometry drives a role's orientation.
type OrientationSource string

const (
	OrientNone      OrientationSource = "none"
	OrientHips      OrientationSource = "hips"
	OrientShoulders OrientationSource = "shoulders"
	OrientHead      OrientationSource = "head"
	OrientLeftHand  OrientationSource = "left_hand"
	OrientRightHand OrientationSource = "right_hand"
	OrientLeftShin  OrientationSource = "left_shin"
	OrientRightShin OrientationSource = "right_shin"
	OrientLeftFoot  OrientationSource = "left_foot"
	OrientRightFoot OrientationSource = "right_foot"
)

// Valid reports whether s is a known source. The empty string means OrientNone.
func (s OrientationSource) Valid() bool {
	switch s {
	case "", OrientNone, OrientHips, OrientShoulders, OrientHead,
		OrientLeftHand, OrientRightHand, OrientLeftShin, OrientRightShin,
		OrientLeftFoot, OrientRightFoot:
		return true
	}
	return false
}
