package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Calibration profiles; offsets and rotation are stored as columns so the
		// active calibration can be inspected with plain SQL.
		`CREATE TABLE IF NOT EXISTS calibration_profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			version INTEGER NOT NULL,
			offset_x REAL NOT NULL,
			offset_y REAL NOT NULL,
			offset_z REAL NOT NULL,
			rot_w REAL NOT NULL,
			rot_x REAL NOT NULL,
			rot_y REAL NOT NULL,
			rot_z REAL NOT NULL,
			scale REAL NOT NULL CHECK(scale > 0),
			roles TEXT NOT NULL DEFAULT '{}',
			updated_at INTEGER NOT NULL
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Handshake history - one row per calibration attempt
		`CREATE TABLE IF NOT EXISTS handshakes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			profile_id TEXT REFERENCES calibration_profiles(id) ON DELETE SET NULL,
			succeeded INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			samples INTEGER NOT NULL,
			scale REAL NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_handshakes_created_at ON handshakes(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
