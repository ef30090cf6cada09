package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/vtrack/internal/calibration"
	"github.com/ayusman/vtrack/internal/pose"
)

// ProfileRepository persists calibration profiles. It implements
// calibration.Persistence for the active profile.
type ProfileRepository struct {
	db *sql.DB
}

// Profiles returns the profile repository for this store.
func (s *Store) Profiles() *ProfileRepository {
	return &ProfileRepository{db: s.db}
}

var _ calibration.Persistence = (*ProfileRepository)(nil)

// Save upserts the profile and marks it active.
func (r *ProfileRepository) Save(p calibration.Profile) error {
	roles, err := json.Marshal(p.Roles)
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO calibration_profiles
		   (id, name, version, offset_x, offset_y, offset_z, rot_w, rot_x, rot_y, rot_z, scale, roles, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name, version = excluded.version,
		   offset_x = excluded.offset_x, offset_y = excluded.offset_y, offset_z = excluded.offset_z,
		   rot_w = excluded.rot_w, rot_x = excluded.rot_x, rot_y = excluded.rot_y, rot_z = excluded.rot_z,
		   scale = excluded.scale, roles = excluded.roles, updated_at = excluded.updated_at`,
		p.ID, p.Name, int64(p.Version),
		p.Offset.X, p.Offset.Y, p.Offset.Z,
		p.Rotation.Real, p.Rotation.Imag, p.Rotation.Jmag, p.Rotation.Kmag,
		p.Scale, string(roles), p.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.ID, err)
	}

	_, err = tx.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		SettingActiveProfile, p.ID,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Load returns the active profile, or nil when none was saved.
func (r *ProfileRepository) Load() (*calibration.Profile, error) {
	var id string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, SettingActiveProfile).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p, err := r.GetByID(id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// GetByID retrieves a profile by its ID.
func (r *ProfileRepository) GetByID(id string) (*calibration.Profile, error) {
	var (
		p       calibration.Profile
		version int64
		roles   string
		updated int64
	)
	err := r.db.QueryRow(
		`SELECT id, name, version, offset_x, offset_y, offset_z, rot_w, rot_x, rot_y, rot_z, scale, roles, updated_at
		 FROM calibration_profiles WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.Name, &version,
		&p.Offset.X, &p.Offset.Y, &p.Offset.Z,
		&p.Rotation.Real, &p.Rotation.Imag, &p.Rotation.Jmag, &p.Rotation.Kmag,
		&p.Scale, &roles, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	p.Version = uint64(version)
	p.UpdatedAt = time.Unix(0, updated).UTC()
	p.Roles = make(map[pose.Role]calibration.RoleMapping)
	if err := json.Unmarshal([]byte(roles), &p.Roles); err != nil {
		return nil, fmt.Errorf("profile %s roles: %w", id, err)
	}
	return &p, nil
}

// List returns all stored profiles, newest first.
func (r *ProfileRepository) List() ([]calibration.Profile, error) {
	rows, err := r.db.Query(`SELECT id FROM calibration_profiles ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	profiles := make([]calibration.Profile, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetByID(id)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, nil
}

// Delete removes a profile. The active profile cannot be deleted.
func (r *ProfileRepository) Delete(id string) error {
	var active string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, SettingActiveProfile).Scan(&active)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if active == id {
		return fmt.Errorf("delete profile %s: %w", id, ErrActiveProfile)
	}

	result, err := r.db.Exec(`DELETE FROM calibration_profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

