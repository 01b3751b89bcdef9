package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Hints are operator-supplied CSS selectors that steer extraction for a
// source. Every field is optional.
type Hints struct {
	Title    string `json:"title,omitempty"`
	Content  string `json:"content,omitempty"`
	Date     string `json:"date,omitempty"`
	Link     string `json:"link,omitempty"`
	ListItem string `json:"list_item,omitempty"`
}

// ParseHints decodes the JSON hints stored on a source. Blank input yields
// empty hints and no error; malformed JSON is an error so that callers can
// decide whether to degrade or fail.
func ParseHints(raw string) (Hints, error) {
	var h Hints
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return h, nil
	}
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return Hints{}, fmt.Errorf("decoding hints: %w", err)
	}
	h.Title = strings.TrimSpace(h.Title)
	h.Content = strings.TrimSpace(h.Content)
	h.Date = strings.TrimSpace(h.Date)
	h.Link = strings.TrimSpace(h.Link)
	h.ListItem = strings.TrimSpace(h.ListItem)
	return h, nil
}

// IsEmpty reports whether no selector is set.
func (h Hints) IsEmpty() bool {
	return h == Hints{}
}

// JSON encodes the hints for storage. Empty hints encode as "".
func (h Hints) JSON() string {
	if h.IsEmpty() {
		return ""
	}
	data, err := json.Marshal(h)
	if err != nil {
		return ""
	}
	return string(data)
}
