package extract

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/shaibs3/LinkWatch/internal/classify"
	"github.com/shaibs3/LinkWatch/internal/content"
)

// RawLink is one link occurrence discovered inside a content unit, already
// resolved against the site origin.
type RawLink struct {
	URL    string
	Anchor string
	Kind   classify.TagKind
}

// Extractor parses content units into link occurrences. One instance is safe
// for concurrent use.
type Extractor struct {
	origin *url.URL
	logger *zap.Logger
}

// blockCommentRe matches block-editor comment headers carrying a JSON
// attribute payload, e.g. <!-- block:image {"src":"/a.png"} -->.
var blockCommentRe = regexp.MustCompile(`<!--\s*[\w/]+:[\w/-]+\s+({.*?})\s*/?-->`)

// shortcodeAttrRe matches url-bearing shortcode attributes, e.g.
// [button link="https://..."] or [embed src='...'].
var shortcodeAttrRe = regexp.MustCompile(`\[[\w-]+[^\]]*?\b(?:url|href|src|link)=["']([^"']+)["']`)

// urlKeys are the JSON object keys treated as link-bearing inside structured
// block and widget payloads.
var urlKeys = map[string]classify.TagKind{
	"url":      classify.TagAnchor,
	"href":     classify.TagAnchor,
	"link":     classify.TagAnchor,
	"linkurl":  classify.TagAnchor,
	"src":      classify.TagImage,
	"mediaurl": classify.TagImage,
	"imageurl": classify.TagImage,
	"embedurl": classify.TagIframe,
	"videourl": classify.TagIframe,
}

func NewExtractor(siteOrigin string, logger *zap.Logger) (*Extractor, error) {
	origin, err := url.Parse(siteOrigin)
	if err != nil {
		return nil, err
	}
	return &Extractor{origin: origin, logger: logger.Named("extract")}, nil
}

// Extract returns every link occurrence in the unit. Duplicates within one
// unit are allowed; dedup happens at the store. A fragment that fails to
// parse contributes zero links, it never fails the whole unit.
func (e *Extractor) Extract(unit content.Unit) []RawLink {
	var found []RawLink

	switch unit.Format {
	case content.FormatBlocks:
		found = append(found, e.fromBlockComments(unit.Raw)...)
		found = append(found, e.fromHTML(unit.Raw)...)
	case content.FormatShortcodes:
		found = append(found, e.fromShortcodes(unit.Raw)...)
		found = append(found, e.fromHTML(unit.Raw)...)
	case content.FormatWidgets:
		found = append(found, e.fromWidgetPayload(unit.Raw)...)
	default:
		// Unrecognized hints degrade to plain HTML parsing.
		found = append(found, e.fromHTML(unit.Raw)...)
	}

	out := make([]RawLink, 0, len(found))
	for _, l := range found {
		if resolved, ok := e.resolve(l.URL); ok {
			l.URL = resolved
			out = append(out, l)
		}
	}
	return out
}

// fromHTML pulls literal <a href>, <img src> and <iframe src> occurrences.
func (e *Extractor) fromHTML(raw string) []RawLink {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		e.logger.Debug("html parse failed, skipping fragment", zap.Error(err))
		return nil
	}

	var links []RawLink
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			links = append(links, RawLink{
				URL:    href,
				Anchor: strings.TrimSpace(s.Text()),
				Kind:   classify.TagAnchor,
			})
		}
	})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			links = append(links, RawLink{
				URL:    src,
				Anchor: strings.TrimSpace(s.AttrOr("alt", "")),
				Kind:   classify.TagImage,
			})
		}
	})
	doc.Find("iframe[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			links = append(links, RawLink{URL: src, Kind: classify.TagIframe})
		}
	})
	return links
}

// fromBlockComments walks the JSON attribute payload of every block comment.
func (e *Extractor) fromBlockComments(raw string) []RawLink {
	var links []RawLink
	for _, m := range blockCommentRe.FindAllStringSubmatch(raw, -1) {
		var payload any
		if err := json.Unmarshal([]byte(m[1]), &payload); err != nil {
			// Malformed block attributes yield nothing for this block.
			continue
		}
		links = append(links, walkJSON(payload)...)
	}
	return links
}

func (e *Extractor) fromShortcodes(raw string) []RawLink {
	var links []RawLink
	for _, m := range shortcodeAttrRe.FindAllStringSubmatch(raw, -1) {
		links = append(links, RawLink{URL: m[1], Kind: classify.TagAnchor})
	}
	return links
}

// fromWidgetPayload treats the unit as a JSON widget blob. String values that
// themselves contain markup are re-parsed as HTML.
func (e *Extractor) fromWidgetPayload(raw string) []RawLink {
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		// Not valid JSON after all; degrade to HTML.
		return e.fromHTML(raw)
	}

	links := walkJSON(payload)
	for _, s := range collectMarkupStrings(payload) {
		links = append(links, e.fromHTML(s)...)
	}
	return links
}

// walkJSON collects values under link-bearing keys at any nesting depth.
func walkJSON(v any) []RawLink {
	var links []RawLink
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if kind, ok := urlKeys[strings.ToLower(k)]; ok {
				if s, ok := child.(string); ok && s != "" {
					links = append(links, RawLink{URL: s, Kind: kind})
					continue
				}
			}
			links = append(links, walkJSON(child)...)
		}
	case []any:
		for _, child := range val {
			links = append(links, walkJSON(child)...)
		}
	}
	return links
}

func collectMarkupStrings(v any) []string {
	var out []string
	switch val := v.(type) {
	case string:
		if strings.Contains(val, "<a ") || strings.Contains(val, "<img ") || strings.Contains(val, "<iframe ") {
			out = append(out, val)
		}
	case map[string]any:
		for _, child := range val {
			out = append(out, collectMarkupStrings(child)...)
		}
	case []any:
		for _, child := range val {
			out = append(out, collectMarkupStrings(child)...)
		}
	}
	return out
}

// resolve turns a raw href into an absolute http(s) URL against the site
// origin. Fragment-only references and non-http schemes are discarded.
func (e *Extractor) resolve(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		// Relative; resolved below.
	default:
		// mailto:, tel:, javascript:, data: and friends.
		return "", false
	}

	resolved := e.origin.ResolveReference(u)
	if resolved.Host == "" {
		return "", false
	}
	return resolved.String(), true
}
