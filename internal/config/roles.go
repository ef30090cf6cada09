package config

import (
	"fmt"

	"github.com/ayusman/vtrack/internal/calibration"
	"github.com/ayusman/vtrack/internal/pose"
)

// Tracking modes select the base set of roles.
const (
	ModeFullBody  = "full_body"
	ModeUpperBody = "upper_body"
	ModeHandsOnly = "hands_only"
)

var modeRoles = map[string][]pose.Role{
	ModeFullBody:  {pose.Head, pose.Waist, pose.LeftHand, pose.RightHand, pose.LeftFoot, pose.RightFoot},
	ModeUpperBody: {pose.Head, pose.Waist, pose.LeftHand, pose.RightHand},
	ModeHandsOnly: {pose.LeftHand, pose.RightHand},
}

// RolesConfig chooses which roles are tracked and on which VMT indices.
type RolesConfig struct {
	Mode string `yaml:"mode"`
	// Enable adds roles on top of the mode, including the optional chest, elbows
	// and knees.
	Enable  []pose.Role `yaml:"enable"`
	Disable []pose.Role `yaml:"disable"`
	// Indices overrides VMT tracker indices.
	Indices map[pose.Role]int `yaml:"indices"`
}

// Table builds the role mapping table for the calibration profile.
func (r RolesConfig) Table() (map[pose.Role]calibration.RoleMapping, error) {
	mode := r.Mode
	if mode == "" {
		mode = ModeFullBody
	}
	base, ok := modeRoles[mode]
	if !ok {
		return nil, fmt.Errorf("unknown mode %q", r.Mode)
	}

	all := calibration.DefaultRoles()
	for role, m := range calibration.OptionalRoles() {
		all[role] = m
	}

	table := make(map[pose.Role]calibration.RoleMapping)
	for _, role := range base {
		table[role] = all[role]
	}
	for _, role := range r.Enable {
		m, ok := all[role]
		if !ok {
			return nil, fmt.Errorf("role %s cannot be enabled", role)
		}
		table[role] = m
	}
	for _, role := range r.Disable {
		delete(table, role)
	}

	used := make(map[int]pose.Role)
	for role, idx := range r.Indices {
		if idx < 0 {
			return nil, fmt.Errorf("negative tracker index for %s", role)
		}
		if m, ok := table[role]; ok {
			m.TrackerIndex = idx
			table[role] = m
		}
	}
	for _, role := range pose.Roles() {
		m, ok := table[role]
		if !ok {
			continue
		}
		if other, dup := used[m.TrackerIndex]; dup {
			return nil, fmt.Errorf("tracker index %d used by %s and %s", m.TrackerIndex, other, role)
		}
		used[m.TrackerIndex] = role
	}
	return table, nil
}
