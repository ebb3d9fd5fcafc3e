package classify

import (
	"net/url"
	"path"
	"strings"
)

// LinkType describes the classification of a discovered link.
type LinkType string

const (
	LinkTypeInternal LinkType = "internal"
	LinkTypeExternal LinkType = "external"
	LinkTypeImage    LinkType = "image"
	LinkTypeEmbed    LinkType = "embed"
)

// TagKind is the markup element a link occurrence came from.
type TagKind string

const (
	TagAnchor TagKind = "a"
	TagImage  TagKind = "img"
	TagIframe TagKind = "iframe"
)

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	".svg": {}, ".bmp": {}, ".ico": {}, ".avif": {}, ".tiff": {},
}

var embedHosts = []string{
	"youtube.com",
	"youtu.be",
	"vimeo.com",
	"dailymotion.com",
	"player.twitch.tv",
	"open.spotify.com",
	"soundcloud.com",
}

// Classify determines the link type of a URL relative to the site's own
// origin. It is pure: no network access, deterministic for a given input.
func Classify(rawURL string, kind TagKind, siteOrigin string) LinkType {
	u, err := url.Parse(rawURL)
	if err != nil {
		return LinkTypeExternal
	}

	host := strings.ToLower(u.Hostname())
	for _, eh := range embedHosts {
		if host == eh || strings.HasSuffix(host, "."+eh) {
			return LinkTypeEmbed
		}
	}

	if kind == TagImage || kind == TagIframe {
		if kind == TagIframe {
			return LinkTypeEmbed
		}
		return LinkTypeImage
	}
	if _, ok := imageExtensions[strings.ToLower(path.Ext(u.Path))]; ok {
		return LinkTypeImage
	}

	origin, err := url.Parse(siteOrigin)
	if err == nil && sameHost(host, strings.ToLower(origin.Hostname())) {
		return LinkTypeInternal
	}
	return LinkTypeExternal
}

// sameHost treats the bare domain and its www. variant as equivalent.
func sameHost(a, b string) bool {
	return strings.TrimPrefix(a, "www.") == strings.TrimPrefix(b, "www.")
}
