package preview

import (
	"sort"

	"github.com/mikeboe/widget-studio/pkg/widget"
)

// FoodSources maps scored citations to the brand cards of the food
// variant. Percentages are proportional to score and always sum to 100;
// when no citation has a positive score they are split evenly. Colors
// cycle through palette.
func FoodSources(citations []widget.Citation, palette []string) []widget.BrandSource {
	if len(citations) == 0 {
		return nil
	}

	weights := make([]float64, len(citations))
	var total float64
	for i, c := range citations {
		if c.Score > 0 {
			weights[i] = c.Score
			total += c.Score
		}
	}
	if total == 0 {
		for i := range weights {
			weights[i] = 1
		}
		total = float64(len(weights))
	}

	pcts := largestRemainder(weights, total, 100)
	out := make([]widget.BrandSource, len(citations))
	for i, c := range citations {
		name := c.Domain
		if name == "" {
			name = c.Title
		}
		var color string
		if len(palette) > 0 {
			color = palette[i%len(palette)]
		}
		out[i] = widget.BrandSource{
			Name:       name,
			Percentage: pcts[i],
			Color:      color,
			Article: widget.BrandArticle{
				Title:     c.Title,
				Excerpt:   c.Excerpt,
				Thumbnail: c.Thumbnail,
				URL:       c.URL,
			},
		}
	}
	return out
}

func largestRemainder(weights []float64, total float64, sum int) []int {
	type rem struct {
		i    int
		frac float64
	}
	out := make([]int, len(weights))
	rems := make([]rem, len(weights))
	given := 0
	for i, w := range weights {
		exact := w / total * float64(sum)
		out[i] = int(exact)
		given += out[i]
		rems[i] = rem{i: i, frac: exact - float64(out[i])}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for k := 0; given < sum; k++ {
		out[rems[k%len(rems)].i]++
		given++
	}
	return out
}
