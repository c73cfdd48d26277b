package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeLayout is fixed-width so that created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Extraction operations

// RecordExtraction inserts an extraction and its file records. Recording the
// same token twice replaces the earlier record.
func (s *Store) RecordExtraction(e *Extraction) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM extractions WHERE token = ?`, e.Token); err != nil {
		return wrapErr("failed to replace extraction "+e.Token, err)
	}

	_, err = tx.Exec(`
		INSERT INTO extractions
		(token, device_id, package, database_name, local_path, pathway, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Token,
		e.DeviceID,
		e.Package,
		e.Database,
		e.LocalPath,
		e.Pathway,
		e.SizeBytes,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return wrapErr("failed to insert extraction "+e.Token, err)
	}

	for _, f := range e.Files {
		_, err := tx.Exec(`
			INSERT INTO extraction_files (token, name, technique, ok, size_bytes, detail)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.Token, f.Name, f.Technique, f.OK, f.SizeBytes, f.Detail)
		if err != nil {
			return wrapErr("failed to insert file "+f.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit extraction %s: %w", e.Token, err)
	}
	return nil
}

// GetExtraction retrieves an extraction and its files by token.
func (s *Store) GetExtraction(token string) (*Extraction, error) {
	query := `
		SELECT token, device_id, package, database_name, local_path, pathway, size_bytes, created_at
		FROM extractions
		WHERE token = ?
	`

	e, err := scanExtraction(s.db.QueryRow(query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("failed to get extraction "+token, err)
	}

	files, err := s.getFiles(token)
	if err != nil {
		return nil, err
	}
	e.Files = files
	return e, nil
}

// ListExtractions returns all extractions, newest first. File records are
// not loaded.
func (s *Store) ListExtractions() ([]*Extraction, error) {
	query := `
		SELECT token, device_id, package, database_name, local_path, pathway, size_bytes, created_at
		FROM extractions
		ORDER BY created_at DESC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, wrapErr("failed to list extractions", err)
	}
	defer rows.Close()

	var extractions []*Extraction
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extraction: %w", err)
		}
		extractions = append(extractions, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating extractions: %w", err)
	}
	return extractions, nil
}

// DeleteExtraction removes an extraction record. File records cascade.
func (s *Store) DeleteExtraction(token string) error {
	res, err := s.db.Exec(`DELETE FROM extractions WHERE token = ?`, token)
	if err != nil {
		return wrapErr("failed to delete extraction "+token, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("token %s: %w", token, ErrNotFound)
	}
	return nil
}

// DeleteByPath removes every extraction stored at localPath and returns how
// many were removed.
func (s *Store) DeleteByPath(localPath string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM extractions WHERE local_path = ?`, localPath)
	if err != nil {
		return 0, wrapErr("failed to delete extractions at "+localPath, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) getFiles(token string) ([]ExtractionFile, error) {
	rows, err := s.db.Query(`
		SELECT name, COALESCE(technique, ''), ok, size_bytes, COALESCE(detail, '')
		FROM extraction_files
		WHERE token = ?
		ORDER BY rowid
	`, token)
	if err != nil {
		return nil, wrapErr("failed to get files of "+token, err)
	}
	defer rows.Close()

	var files []ExtractionFile
	for rows.Next() {
		var f ExtractionFile
		if err := rows.Scan(&f.Name, &f.Technique, &f.OK, &f.SizeBytes, &f.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExtraction(row scanner) (*Extraction, error) {
	var e Extraction
	var createdAt string
	err := row.Scan(
		&e.Token,
		&e.DeviceID,
		&e.Package,
		&e.Database,
		&e.LocalPath,
		&e.Pathway,
		&e.SizeBytes,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for %s: %w", e.Token, err)
	}
	return &e, nil
}
