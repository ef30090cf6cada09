package store

import (
	"database/sql"
	"time"
)

// HandshakeRecord is one calibration attempt.
type HandshakeRecord struct {
	ID        int64     `json:"id"`
	ProfileID string    `json:"profile_id,omitempty"`
	Succeeded bool      `json:"succeeded"`
	Reason    string    `json:"reason,omitempty"`
	Samples   int       `json:"samples"`
	Scale     float64   `json:"scale,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HandshakeRepository records calibration attempts.
type HandshakeRepository struct {
	db *sql.DB
}

// Handshakes returns the handshake repository for this store.
func (s *Store) Handshakes() *HandshakeRepository {
	return &HandshakeRepository{db: s.db}
}

// Record inserts an attempt and sets its ID. A zero CreatedAt is set to now.
func (r *HandshakeRepository) Record(h *HandshakeRecord) error {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	var profileID sql.NullString
	if h.ProfileID != "" {
		profileID = sql.NullString{String: h.ProfileID, Valid: true}
	}

	result, err := r.db.Exec(
		`INSERT INTO handshakes (profile_id, succeeded, reason, samples, scale, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		profileID, h.Succeeded, h.Reason, h.Samples, h.Scale, h.CreatedAt.UnixNano(),
	)
	if err != nil {
		return err
	}
	h.ID, err = result.LastInsertId()
	return err
}

// List returns up to limit attempts, newest first.
func (r *HandshakeRepository) List(limit int) ([]HandshakeRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(
		`SELECT id, profile_id, succeeded, reason, samples, scale, created_at
		 FROM handshakes
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []HandshakeRecord
	for rows.Next() {
		var (
			h         HandshakeRecord
			profileID sql.NullString
			created   int64
		)
		if err := rows.Scan(&h.ID, &profileID, &h.Succeeded, &h.Reason, &h.Samples, &h.Scale, &created); err != nil {
			return nil, err
		}
		h.ProfileID = profileID.String
		h.CreatedAt = time.Unix(0, created).UTC()
		records = append(records, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
