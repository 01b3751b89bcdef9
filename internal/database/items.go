package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const itemColumns = `id, source_id, title, link, guid, description, content, author, image_url,
	published_at, fetched_at, word_count, has_full_content, quality_issues, extraction_metadata`

// ItemFilter narrows GetItems. A zero Limit returns every item.
type ItemFilter struct {
	SourceID int64
	Limit    uint64
}

// GetItems returns the current items of a source, newest first.
func (db *DB) GetItems(f ItemFilter) ([]Item, error) {
	q := sq.Select(itemColumns).From("items").
		Where(sq.Eq{"source_id": f.SourceID}).
		OrderBy("published_at DESC", "id")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building item query: %w", err)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CountItems returns how many items a source currently holds.
func (db *DB) CountItems(sourceID int64) (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM items WHERE source_id = ?", sourceID).Scan(&n)
	return n, err
}

// ReplaceItems swaps the items of a source for a new set.
func (db *DB) ReplaceItems(sourceID int64, items []Item) error {
	return db.withTx(func(tx *sql.Tx) error {
		return db.replaceItems(tx, sourceID, items)
	})
}

func (db *DB) replaceItems(tx *sql.Tx, sourceID int64, items []Item) error {
	if _, err := tx.Exec("DELETE FROM items WHERE source_id = ?", sourceID); err != nil {
		return fmt.Errorf("clearing items: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO items (source_id, title, link, guid, description, content, author, image_url,
			published_at, fetched_at, word_count, has_full_content, quality_issues, extraction_metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing item insert: %w", err)
	}
	defer stmt.Close()

	fetched := db.timestamp()
	for _, it := range items {
		issues := it.QualityIssues
		if issues == nil {
			issues = []string{}
		}
		issuesJSON, err := json.Marshal(issues)
		if err != nil {
			return fmt.Errorf("encoding quality issues: %w", err)
		}
		metaJSON, err := json.Marshal(it.ExtractionMetadata)
		if err != nil {
			return fmt.Errorf("encoding extraction metadata: %w", err)
		}
		published := ""
		if !it.PublishedAt.IsZero() {
			published = formatTime(it.PublishedAt)
		}
		if _, err := stmt.Exec(
			sourceID, it.Title, nullString(it.Link), nullString(it.GUID), nullString(it.Description),
			nullString(it.Content), nullString(it.Author), nullString(it.ImageURL),
			nullString(published), fetched, it.WordCount, boolInt(it.HasFullContent),
			string(issuesJSON), string(metaJSON),
		); err != nil {
			return fmt.Errorf("inserting item %q: %w", it.Title, err)
		}
	}
	return nil
}

func scanItem(row rowScanner) (Item, error) {
	var (
		it                                       Item
		link, guid, desc, content, author, image sql.NullString
		published, fetched, issuesJSON, metaJSON sql.NullString
		full                                     int
	)
	err := row.Scan(&it.ID, &it.SourceID, &it.Title, &link, &guid, &desc, &content, &author, &image,
		&published, &fetched, &it.WordCount, &full, &issuesJSON, &metaJSON)
	if err != nil {
		return Item{}, err
	}
	it.Link = link.String
	it.GUID = guid.String
	it.Description = desc.String
	it.Content = content.String
	it.Author = author.String
	it.ImageURL = image.String
	it.PublishedAt = parseTime(published.String)
	it.FetchedAt = parseTime(fetched.String)
	it.HasFullContent = full != 0
	if issuesJSON.Valid && issuesJSON.String != "" {
		if err := json.Unmarshal([]byte(issuesJSON.String), &it.QualityIssues); err != nil {
			return Item{}, fmt.Errorf("decoding quality issues of item %d: %w", it.ID, err)
		}
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &it.ExtractionMetadata); err != nil {
			return Item{}, fmt.Errorf("decoding extraction metadata of item %d: %w", it.ID, err)
		}
	}
	return it, nil
}
