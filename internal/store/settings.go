package store

import (
	"database/sql"
	"errors"
)

// Setting keys used by the application.
const (
	SettingActiveProfile   = "active_profile"
	SettingTrackingEnabled = "tracking_enabled"
	SettingFirstRun        = "first_run"
)

// SettingsRepository stores key-value settings.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value for key and whether it was set.
func (r *SettingsRepository) Get(key string) (string, bool, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// Delete removes key. Deleting a missing key returns ErrNotFound.
func (r *SettingsRepository) Delete(key string) error {
	result, err := r.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
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

// Reset removes the given keys so their defaults apply again. Keys that were never
// set are skipped.
func (r *SettingsRepository) Reset(keys ...string) error {
	for _, key := range keys {
		if err := r.Delete(key); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// Bool returns a boolean setting, or def when it is unset or unparsable.
func (r *SettingsRepository) Bool(key string, def bool) bool {
	v, ok, err := r.Get(key)
	if err != nil || !ok {
		return def
	}
	switch v {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return def
}

// SetBool stores a boolean setting.
func (r *SettingsRepository) SetBool(key string, v bool) error {
	if v {
		return r.Set(key, "true")
	}
	return r.Set(key, "false")
}
