package database

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// DefaultHealthWindow is the number of recent outcomes health is computed over.
const DefaultHealthWindow = 10

const outcomeColumns = `id, source_id, status, http_status, item_count, avg_title_length,
	avg_content_length, image_count, quality_score, duration, error_message, created_at`

// RecordRun persists the result of one run atomically: the optional item
// replacement, the outcome and its alerts either all land or none do.
// It returns the outcome ID.
func (db *DB) RecordRun(rec RunRecord) (int64, error) {
	var id int64
	err := db.withTx(func(tx *sql.Tx) error {
		if rec.ReplaceItems {
			if err := db.replaceItems(tx, rec.Outcome.SourceID, rec.Items); err != nil {
				return err
			}
		}
		var err error
		if id, err = db.insertOutcome(tx, rec.Outcome); err != nil {
			return err
		}
		for _, a := range rec.Alerts {
			if _, err := db.insertAlert(tx, a); err != nil {
				return err
			}
		}
		return nil
	})
	return id, err
}

// InsertOutcome stores a single outcome outside of a run.
func (db *DB) InsertOutcome(o FetchOutcome) (int64, error) {
	var id int64
	err := db.withTx(func(tx *sql.Tx) error {
		var err error
		id, err = db.insertOutcome(tx, o)
		return err
	})
	return id, err
}

func (db *DB) insertOutcome(tx *sql.Tx, o FetchOutcome) (int64, error) {
	created := db.timestamp()
	if !o.CreatedAt.IsZero() {
		created = formatTime(o.CreatedAt)
	}
	result, err := tx.Exec(
		`INSERT INTO fetch_outcomes (source_id, status, http_status, item_count, avg_title_length,
			avg_content_length, image_count, quality_score, duration, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.SourceID, o.Status, o.HTTPStatus, o.ItemCount, o.AvgTitleLength, o.AvgContentLength,
		o.ImageCount, o.QualityScore, o.Duration, nullString(o.ErrorMessage), created,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting outcome: %w", err)
	}
	return result.LastInsertId()
}

// GetOutcomes returns the most recent outcomes of a source, newest first.
func (db *DB) GetOutcomes(sourceID int64, limit int) ([]FetchOutcome, error) {
	if limit <= 0 {
		limit = DefaultHealthWindow
	}
	rows, err := db.conn.Query(
		"SELECT "+outcomeColumns+` FROM fetch_outcomes WHERE source_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, sourceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []FetchOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// LatestOutcome returns the newest outcome of a source.
func (db *DB) LatestOutcome(sourceID int64) (*FetchOutcome, error) {
	outcomes, err := db.GetOutcomes(sourceID, 1)
	if err != nil {
		return nil, err
	}
	if len(outcomes) == 0 {
		return nil, ErrNotFound
	}
	return &outcomes[0], nil
}

// GetSourceHealth summarizes the last limit outcomes of a source.
func (db *DB) GetSourceHealth(sourceID int64, limit int) (*SourceHealth, error) {
	outcomes, err := db.GetOutcomes(sourceID, limit)
	if err != nil {
		return nil, err
	}

	h := &SourceHealth{SourceID: sourceID, TotalChecks: len(outcomes)}
	if len(outcomes) == 0 {
		return h, nil
	}

	var successes, quality, items int
	for _, o := range outcomes {
		if o.Status == StatusSuccess {
			successes++
		}
		quality += o.QualityScore
		items += o.ItemCount
	}
	n := float64(len(outcomes))
	h.SuccessRate = float64(successes) / n * 100
	h.AvgQuality = float64(quality) / n
	h.AvgItems = float64(items) / n

	last := outcomes[0]
	h.LastStatus = last.Status
	h.LastCheckAt = &last.CreatedAt
	h.LastErrorMsg = last.ErrorMessage
	return h, nil
}

// GetSourceTrend returns the outcomes of a source since a point in time,
// oldest first.
func (db *DB) GetSourceTrend(sourceID int64, since time.Time) ([]TrendPoint, error) {
	query, args, err := sq.Select("created_at", "status", "quality_score", "item_count", "duration").
		From("fetch_outcomes").
		Where(sq.Eq{"source_id": sourceID}).
		Where(sq.GtOrEq{"created_at": formatTime(since)}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building trend query: %w", err)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []TrendPoint
	for rows.Next() {
		var (
			p       TrendPoint
			created string
		)
		if err := rows.Scan(&created, &p.Status, &p.QualityScore, &p.ItemCount, &p.Duration); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(created)
		points = append(points, p)
	}
	return points, rows.Err()
}

func scanOutcome(row rowScanner) (FetchOutcome, error) {
	var (
		o          FetchOutcome
		httpStatus sql.NullInt64
		errMsg     sql.NullString
		created    string
	)
	err := row.Scan(&o.ID, &o.SourceID, &o.Status, &httpStatus, &o.ItemCount, &o.AvgTitleLength,
		&o.AvgContentLength, &o.ImageCount, &o.QualityScore, &o.Duration, &errMsg, &created)
	if err != nil {
		return FetchOutcome{}, err
	}
	if httpStatus.Valid {
		code := int(httpStatus.Int64)
		o.HTTPStatus = &code
	}
	o.ErrorMessage = errMsg.String
	o.CreatedAt = parseTime(created)
	return o, nil
}
