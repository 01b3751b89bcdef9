package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// ErrNotFound is returned when a lookup by ID or key matches nothing.
var ErrNotFound = errors.New("not found")

// ErrDuplicateRoute is returned when a source with the same route exists.
var ErrDuplicateRoute = errors.New("a source with this route already exists")

const sourceColumns = `id, name, description, category, route, original_url, is_active,
	check_frequency, custom_selectors, created_at, updated_at`

// SourceFilter narrows ListSources.
type SourceFilter struct {
	ActiveOnly bool
	Category   string
}

// InsertSource stores a new source and returns its ID.
func (db *DB) InsertSource(s Source) (int64, error) {
	if s.CheckFrequency <= 0 {
		s.CheckFrequency = DefaultCheckFrequency
	}
	now := db.timestamp()
	result, err := db.conn.Exec(
		`INSERT INTO sources (name, description, category, route, original_url, is_active,
			check_frequency, custom_selectors, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, nullString(s.Description), nullString(s.Category), s.Route,
		nullString(s.OriginalURL), boolInt(s.IsActive), s.CheckFrequency,
		nullString(s.CustomSelectors), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateRoute
		}
		return 0, fmt.Errorf("inserting source: %w", err)
	}
	return result.LastInsertId()
}

// UpdateSource overwrites the editable fields of a source.
func (db *DB) UpdateSource(s Source) error {
	if s.CheckFrequency <= 0 {
		s.CheckFrequency = DefaultCheckFrequency
	}
	result, err := db.conn.Exec(
		`UPDATE sources SET name = ?, description = ?, category = ?, route = ?, original_url = ?,
			is_active = ?, check_frequency = ?, custom_selectors = ?, updated_at = ?
		WHERE id = ?`,
		s.Name, nullString(s.Description), nullString(s.Category), s.Route,
		nullString(s.OriginalURL), boolInt(s.IsActive), s.CheckFrequency,
		nullString(s.CustomSelectors), db.timestamp(), s.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRoute
		}
		return fmt.Errorf("updating source: %w", err)
	}
	return expectAffected(result)
}

// GetSource returns the source with the given ID.
func (db *DB) GetSource(id int64) (*Source, error) {
	row := db.conn.QueryRow("SELECT "+sourceColumns+" FROM sources WHERE id = ?", id)
	return scanSource(row)
}

// GetSourceByRoute returns the source with the given route.
func (db *DB) GetSourceByRoute(route string) (*Source, error) {
	row := db.conn.QueryRow("SELECT "+sourceColumns+" FROM sources WHERE route = ?", route)
	return scanSource(row)
}

// ListSources returns sources ordered by name.
func (db *DB) ListSources(f SourceFilter) ([]Source, error) {
	q := sq.Select(sourceColumns).From("sources").OrderBy("name", "id")
	if f.ActiveOnly {
		q = q.Where(sq.Eq{"is_active": 1})
	}
	if f.Category != "" {
		q = q.Where(sq.Eq{"category": f.Category})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building source query: %w", err)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *s)
	}
	return sources, rows.Err()
}

// SetSourceActive enables or disables a source.
func (db *DB) SetSourceActive(id int64, active bool) error {
	result, err := db.conn.Exec(
		"UPDATE sources SET is_active = ?, updated_at = ? WHERE id = ?",
		boolInt(active), db.timestamp(), id,
	)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// ToggleSource flips the active flag and returns the new value.
func (db *DB) ToggleSource(id int64) (bool, error) {
	s, err := db.GetSource(id)
	if err != nil {
		return false, err
	}
	if err := db.SetSourceActive(id, !s.IsActive); err != nil {
		return false, err
	}
	return !s.IsActive, nil
}

// DeleteSource removes a source together with its items and outcomes.
// Alerts survive with a NULL source.
func (db *DB) DeleteSource(id int64) error {
	result, err := db.conn.Exec("DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*Source, error) {
	var (
		s                                  Source
		desc, category, origURL, selectors sql.NullString
		active                             int
		createdAt, updatedAt               sql.NullString
	)
	err := row.Scan(&s.ID, &s.Name, &desc, &category, &s.Route, &origURL, &active,
		&s.CheckFrequency, &selectors, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Description = desc.String
	s.Category = category.String
	s.OriginalURL = origURL.String
	s.CustomSelectors = selectors.String
	s.IsActive = active != 0
	s.CreatedAt = parseTime(createdAt.String)
	s.UpdatedAt = parseTime(updatedAt.String)
	return &s, nil
}

func expectAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
