package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shaibs3/LinkWatch/internal/linkstore"
)

func sampleLinks() []linkstore.Link {
	checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []linkstore.Link{
		{
			ID: 1, URL: "https://a.com/broken", LinkType: "external",
			SourceType: "post", SourceID: 7, SourceField: "content",
			Anchor: "docs, maybe", StatusCode: 404, StatusText: "Not Found",
			Broken: true, LastCheck: &checked, CheckCount: 3,
			ErrorMessage: "", FirstDetected: checked.Add(-48 * time.Hour),
		},
		{
			ID: 2, URL: "https://b.com/ok", LinkType: "external",
			SourceType: "post", SourceID: 7, SourceField: "content",
			StatusCode: 200, StatusText: "OK", FirstDetected: checked,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleLinks()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per link")
	require.Equal(t, csvHeader, rows[0])
	require.Equal(t, "https://a.com/broken", rows[1][0])
	require.Equal(t, "docs, maybe", rows[1][5], "commas in fields survive quoting")
	require.Equal(t, "true", rows[1][8])
	require.Equal(t, "", rows[2][16], "never-checked links have an empty last_check")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleLinks()))

	var doc struct {
		Count int              `json:"count"`
		Links []linkstore.Link `json:"links"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Equal(t, 2, doc.Count)
	require.Len(t, doc.Links, 2)
	require.Equal(t, "https://a.com/broken", doc.Links[0].URL)
}
