package citations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArticle(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		html    string
		want    Article
		wantErr bool
	}{
		{
			name: "OpenGraph",
			url:  "https://www.bakery.example/posts/rye?ref=home",
			html: `<html><head>
				<title>Site | Rye</title>
				<meta property="og:title" content="All about rye">
				<meta property="og:url" content="/posts/rye">
				<meta property="og:image" content="/img/rye.jpg">
				<meta property="og:description" content="Rye in short.">
				<meta property="article:published_time" content="2024-03-01">
				</head><body><nav><p>Menu</p></nav><article><p>Rye is a grain.</p><p>It  makes
				bread.</p></article></body></html>`,
			want: Article{
				Title:         "All about rye",
				URL:           "https://www.bakery.example/posts/rye",
				Domain:        "bakery.example",
				PublishedDate: "2024-03-01",
				Excerpt:       "Rye in short.",
				Thumbnail:     "https://www.bakery.example/img/rye.jpg",
				Body:          "Rye is a grain.\n\nIt makes bread.",
			},
		},
		{
			name: "PlainDocument",
			url:  "https://news.example/a",
			html: `<html><head><meta name="description" content="Desc"></head><body><h1>Headline</h1><p>First.</p><p>Second.</p></body></html>`,
			want: Article{
				Title:   "Headline",
				URL:     "https://news.example/a",
				Domain:  "news.example",
				Excerpt: "Desc",
				Body:    "First.\n\nSecond.",
			},
		},
		{
			name: "ExcerptFromFirstParagraph",
			url:  "https://news.example/b",
			html: `<title>T</title><p>Lead paragraph.</p>`,
			want: Article{
				Title:   "T",
				URL:     "https://news.example/b",
				Domain:  "news.example",
				Excerpt: "Lead paragraph.",
				Body:    "Lead paragraph.",
			},
		},
		{
			name:    "Empty",
			url:     "https://news.example/c",
			html:    `<html><body><div></div></body></html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArticle(tt.url, strings.NewReader(tt.html))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
