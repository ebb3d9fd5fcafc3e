package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/shaibs3/LinkWatch/internal/linkstore"
)

var csvHeader = []string{
	"url", "link_type", "source_type", "source_id", "source_field", "anchor",
	"status_code", "status_text", "is_broken", "is_warning", "is_skipped", "is_dismissed",
	"redirect_url", "redirect_count", "response_time_ms", "first_detected",
	"last_check", "check_count", "error_message",
}

// WriteCSV writes the result set as flat tabular data.
func WriteCSV(w io.Writer, links []linkstore.Link) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for i := range links {
		if err := cw.Write(csvRow(&links[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(l *linkstore.Link) []string {
	lastCheck := ""
	if l.LastCheck != nil {
		lastCheck = l.LastCheck.Format(time.RFC3339)
	}
	return []string{
		l.URL,
		string(l.LinkType),
		string(l.SourceType),
		strconv.FormatInt(l.SourceID, 10),
		l.SourceField,
		l.Anchor,
		strconv.Itoa(l.StatusCode),
		l.StatusText,
		strconv.FormatBool(l.Broken),
		strconv.FormatBool(l.Warning),
		strconv.FormatBool(l.Skipped),
		strconv.FormatBool(l.Dismissed),
		l.RedirectURL,
		strconv.Itoa(l.RedirectCount),
		strconv.FormatInt(l.ResponseTimeMS, 10),
		l.FirstDetected.Format(time.RFC3339),
		lastCheck,
		strconv.Itoa(l.CheckCount),
		l.ErrorMessage,
	}
}

// WriteJSON writes the result set as a structured document.
func WriteJSON(w io.Writer, links []linkstore.Link) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Count int              `json:"count"`
		Links []linkstore.Link `json:"links"`
	}{Count: len(links), Links: links})
}
