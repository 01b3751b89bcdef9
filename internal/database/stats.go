package database

import "encoding/json"

// GetStats returns aggregate counts across the whole store.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM sources", &s.TotalSources},
		{"SELECT COUNT(*) FROM sources WHERE is_active = 1", &s.ActiveSources},
		{"SELECT COUNT(*) FROM items", &s.TotalItems},
		{"SELECT COUNT(*) FROM fetch_outcomes", &s.TotalOutcomes},
		{"SELECT COUNT(*) FROM alerts WHERE is_read = 0", &s.UnreadAlerts},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// GetExtractionStats summarizes the extraction metadata of a source's items.
func (db *DB) GetExtractionStats(sourceID int64) (*ExtractionStats, error) {
	rows, err := db.conn.Query(
		"SELECT word_count, has_full_content, extraction_metadata FROM items WHERE source_id = ?",
		sourceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	st := &ExtractionStats{ByMethod: make(map[string]int)}
	words := 0
	for rows.Next() {
		var (
			wc, full int
			metaJSON *string
		)
		if err := rows.Scan(&wc, &full, &metaJSON); err != nil {
			return nil, err
		}
		st.TotalItems++
		words += wc
		if full != 0 {
			st.FullContent++
		} else {
			st.PartialContent++
		}

		method := "unknown"
		if metaJSON != nil {
			var meta ExtractionMetadata
			if json.Unmarshal([]byte(*metaJSON), &meta) == nil && meta.Method != "" {
				method = meta.Method
			}
		}
		st.ByMethod[method]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if st.TotalItems > 0 {
		st.AvgWordCount = float64(words) / float64(st.TotalItems)
	}
	return st, nil
}
