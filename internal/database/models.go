package database

import "time"

// Outcome statuses.
const (
	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusError   = "error"
)

// Alert levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// DefaultCheckFrequency is the polling interval in minutes for new sources.
const DefaultCheckFrequency = 30

// Source is a monitored feed route or scraped web page.
type Source struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Category        string    `json:"category,omitempty"`
	Route           string    `json:"route"`
	OriginalURL     string    `json:"original_url,omitempty"`
	IsActive        bool      `json:"is_active"`
	CheckFrequency  int       `json:"check_frequency"`
	CustomSelectors string    `json:"custom_selectors,omitempty"` // JSON extraction hints
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ExtractionMetadata records how an item's content was obtained.
type ExtractionMetadata struct {
	Method        string `json:"extraction_method"`
	ContentLength int    `json:"content_length"`
}

// Item is one normalized entry fetched from a source.
type Item struct {
	ID                 int64              `json:"id"`
	SourceID           int64              `json:"source_id"`
	Title              string             `json:"title"`
	Link               string             `json:"link"`
	GUID               string             `json:"guid"`
	Description        string             `json:"description,omitempty"`
	Content            string             `json:"content"`
	Author             string             `json:"author,omitempty"`    // empty when unknown
	ImageURL           string             `json:"image_url,omitempty"` // empty when unknown
	PublishedAt        time.Time          `json:"published_at"`
	FetchedAt          time.Time          `json:"fetched_at"`
	WordCount          int                `json:"word_count"`
	HasFullContent     bool               `json:"has_full_content"`
	QualityIssues      []string           `json:"quality_issues"`
	ExtractionMetadata ExtractionMetadata `json:"extraction_metadata"`
}

// FetchOutcome is the immutable record of a single run against a source.
type FetchOutcome struct {
	ID               int64     `json:"id"`
	SourceID         int64     `json:"source_id"`
	Status           string    `json:"status"`
	HTTPStatus       *int      `json:"http_status,omitempty"`
	ItemCount        int       `json:"item_count"`
	AvgTitleLength   float64   `json:"avg_title_length"`
	AvgContentLength float64   `json:"avg_content_length"`
	ImageCount       int       `json:"image_count"`
	QualityScore     int       `json:"quality_score"`
	Duration         float64   `json:"duration"` // seconds
	ErrorMessage     string    `json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Alert is an operator notification raised by a run.
type Alert struct {
	ID         int64     `json:"id"`
	SourceID   *int64    `json:"source_id,omitempty"`
	SourceName string    `json:"source_name,omitempty"` // empty when the source is gone
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunRecord is everything a single run persists. Items are only written when
// ReplaceItems is set.
type RunRecord struct {
	Outcome      FetchOutcome
	Alerts       []Alert
	Items        []Item
	ReplaceItems bool
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalSources  int `json:"total_sources"`
	ActiveSources int `json:"active_sources"`
	TotalItems    int `json:"total_items"`
	TotalOutcomes int `json:"total_outcomes"`
	UnreadAlerts  int `json:"unread_alerts"`
}

// SourceHealth summarizes the most recent outcomes of a source.
type SourceHealth struct {
	SourceID     int64      `json:"source_id"`
	TotalChecks  int        `json:"total_checks"`
	SuccessRate  float64    `json:"success_rate"` // percent of success outcomes
	AvgQuality   float64    `json:"avg_quality"`
	AvgItems     float64    `json:"avg_items"`
	LastStatus   string     `json:"last_status"`
	LastCheckAt  *time.Time `json:"last_check_at,omitempty"`
	LastErrorMsg string     `json:"last_error_msg,omitempty"`
}

// TrendPoint is one outcome in a source's history.
type TrendPoint struct {
	CreatedAt    time.Time `json:"created_at"`
	Status       string    `json:"status"`
	QualityScore int       `json:"quality_score"`
	ItemCount    int       `json:"item_count"`
	Duration     float64   `json:"duration"`
}

// ExtractionStats describes how a source's current items were extracted.
type ExtractionStats struct {
	TotalItems     int            `json:"total_items"`
	ByMethod       map[string]int `json:"by_method"`
	FullContent    int            `json:"full_content"`
	PartialContent int            `json:"partial_content"`
	AvgWordCount   float64        `json:"avg_word_count"`
}
