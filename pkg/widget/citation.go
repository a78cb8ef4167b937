package widget

// Citation attributes part of an answer to a published article. Citations
// are attached to a completed answer in one piece and never change after.
type Citation struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Domain        string  `json:"domain"`
	PublishedDate string  `json:"publishedDate,omitempty"`
	Excerpt       string  `json:"excerpt,omitempty"`
	Thumbnail     string  `json:"thumbnail,omitempty"`
	Score         float64 `json:"score,omitempty"`
}

// BrandArticle is the article card shown under a food brand source.
type BrandArticle struct {
	Title     string `json:"title"`
	Excerpt   string `json:"excerpt"`
	Thumbnail string `json:"thumbnail,omitempty"`
	URL       string `json:"url"`
}

// BrandSource is the source shape of the food brand widget: each source
// carries its share of the answer as a percentage.
type BrandSource struct {
	Name       string       `json:"name"`
	Percentage int          `json:"percentage"`
	Color      string       `json:"color"`
	Article    BrandArticle `json:"article"`
}

// Answer is a completed answer with its sources.
type Answer struct {
	Text    string     `json:"text"`
	Sources []Citation `json:"sources,omitempty"`
}
