package classify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	const origin = "https://example.com"

	tests := []struct {
		name string
		url  string
		kind TagKind
		want LinkType
	}{
		{"same host anchor", "https://example.com/about", TagAnchor, LinkTypeInternal},
		{"www variant is internal", "https://www.example.com/about", TagAnchor, LinkTypeInternal},
		{"other host anchor", "https://other.com/page", TagAnchor, LinkTypeExternal},
		{"subdomain is external", "https://blog.example.org/post", TagAnchor, LinkTypeExternal},
		{"img tag", "https://cdn.example.net/logo", TagImage, LinkTypeImage},
		{"anchor to image file", "https://example.com/photo.JPG", TagAnchor, LinkTypeImage},
		{"anchor to png", "https://other.com/chart.png", TagAnchor, LinkTypeImage},
		{"iframe", "https://widgets.other.com/embed", TagIframe, LinkTypeEmbed},
		{"youtube anchor", "https://www.youtube.com/watch?v=abc", TagAnchor, LinkTypeEmbed},
		{"youtu.be short link", "https://youtu.be/abc", TagAnchor, LinkTypeEmbed},
		{"vimeo iframe", "https://player.vimeo.com/video/123", TagIframe, LinkTypeEmbed},
		{"embed host wins over img kind", "https://youtube.com/img.png", TagImage, LinkTypeEmbed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.url, tt.kind, origin))
		})
	}
}

func TestClassify_OriginWithWWW(t *testing.T) {
	// Origin configured with www, link without.
	require.Equal(t, LinkTypeInternal, Classify("https://example.com/", TagAnchor, "https://www.example.com"))
}
