package content

import "context"

// SourceType identifies one kind of content-store collaborator.
type SourceType string

const (
	SourceTypePost        SourceType = "post"
	SourceTypePage        SourceType = "page"
	SourceTypeComment     SourceType = "comment"
	SourceTypeWidget      SourceType = "widget"
	SourceTypeMenu        SourceType = "menu"
	SourceTypeCustomField SourceType = "custom_field"
)

// Format is the markup dialect hint of a content unit. The extractor
// dispatches on it and falls back to plain HTML when it is unrecognized.
type Format string

const (
	FormatHTML       Format = "html"
	FormatBlocks     Format = "blocks"
	FormatShortcodes Format = "shortcodes"
	FormatWidgets    Format = "widgets"
)

// Unit is one item from the external content store: an opaque markup string
// plus a format hint.
type Unit struct {
	ID         int64
	SourceType SourceType
	Field      string
	Format     Format
	Raw        string
}

// Source is the content-store collaborator for one source type. The store
// itself (posts, comments, widgets, ...) lives outside this system.
type Source interface {
	Type() SourceType
	// ListUnits returns all content units of this source type.
	ListUnits(ctx context.Context) ([]Unit, error)
	// RewriteUnit replaces the raw content of one unit. Returns false when
	// the unit no longer exists.
	RewriteUnit(ctx context.Context, id int64, field, newContent string) (bool, error)
}
