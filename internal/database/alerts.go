package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// AlertFilter narrows ListAlerts. A zero Limit returns every alert.
type AlertFilter struct {
	UnreadOnly bool
	SourceID   int64
	Limit      uint64
}

// InsertAlert stores a standalone alert.
func (db *DB) InsertAlert(a Alert) (int64, error) {
	var id int64
	err := db.withTx(func(tx *sql.Tx) error {
		var err error
		id, err = db.insertAlert(tx, a)
		return err
	})
	return id, err
}

func (db *DB) insertAlert(tx *sql.Tx, a Alert) (int64, error) {
	result, err := tx.Exec(
		"INSERT INTO alerts (source_id, level, message, is_read, created_at) VALUES (?, ?, ?, ?, ?)",
		a.SourceID, a.Level, a.Message, boolInt(a.IsRead), db.timestamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting alert: %w", err)
	}
	return result.LastInsertId()
}

// ListAlerts returns alerts with unread ones first, newest first within each group.
func (db *DB) ListAlerts(f AlertFilter) ([]Alert, error) {
	q := sq.Select("a.id", "a.source_id", "s.name", "a.level", "a.message", "a.is_read", "a.created_at").
		From("alerts a").
		LeftJoin("sources s ON s.id = a.source_id").
		OrderBy("a.is_read", "a.created_at DESC", "a.id DESC")
	if f.UnreadOnly {
		q = q.Where(sq.Eq{"a.is_read": 0})
	}
	if f.SourceID > 0 {
		q = q.Where(sq.Eq{"a.source_id": f.SourceID})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building alert query: %w", err)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var (
			a        Alert
			sourceID sql.NullInt64
			name     sql.NullString
			read     int
			created  string
		)
		if err := rows.Scan(&a.ID, &sourceID, &name, &a.Level, &a.Message, &read, &created); err != nil {
			return nil, err
		}
		if sourceID.Valid {
			id := sourceID.Int64
			a.SourceID = &id
		}
		a.SourceName = name.String
		a.IsRead = read != 0
		a.CreatedAt = parseTime(created)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// MarkAlertRead marks one alert as read.
func (db *DB) MarkAlertRead(id int64) error {
	result, err := db.conn.Exec("UPDATE alerts SET is_read = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// MarkAllAlertsRead marks every unread alert as read and returns how many changed.
func (db *DB) MarkAllAlertsRead() (int64, error) {
	result, err := db.conn.Exec("UPDATE alerts SET is_read = 1 WHERE is_read = 0")
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
