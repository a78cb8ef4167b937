package widget

import "time"

// Variant names one branded widget presentation.
type Variant string

const (
	VariantFloating     Variant = "floating"
	VariantInlineSearch Variant = "inline-search"
	VariantCarousel     Variant = "carousel"
	VariantFood         Variant = "food"
	VariantPublisher    Variant = "publisher"
)

// DefaultPerceivedLatency is the pause between accepting a query and
// starting to stream the answer.
const DefaultPerceivedLatency = 1500 * time.Millisecond

// Theme holds the hard-coded presentation of a variant. Every Settings
// field a configuration leaves unset falls back to the value here.
type Theme struct {
	Variant          Variant
	Collapsible      bool
	TwoRowCarousel   bool
	CarouselInterval time.Duration
	PerceivedLatency time.Duration
	FontFamily       string
	Palette          []string

	Title         string
	Placeholder   string
	CollapsedText string
	BrandingText  string

	AutoScroll      bool
	Streaming       bool
	DefaultExpanded bool

	Border     Appearance
	Background Appearance
	Text       Appearance

	Width  int
	Height int

	Categories    []string
	SeedQuestions []string
}

var themes = map[Variant]Theme{
	VariantFloating: {
		Variant:          VariantFloating,
		Collapsible:      true,
		PerceivedLatency: DefaultPerceivedLatency,
		FontFamily:       "Inter, sans-serif",
		Title:            "Ask AI",
		Placeholder:      "Ask anything...",
		CollapsedText:    "Ask a question",
		BrandingText:     "Powered by Widget Studio",
		Streaming:        true,
		Border:           Appearance{Type: AppearanceGradient, GradientStart: "#6366f1", GradientEnd: "#ec4899"},
		Background:       Appearance{Type: AppearanceSolid, SolidColor: "#ffffff"},
		Text:             Appearance{Type: AppearanceSolid, SolidColor: "#111827"},
		Width:            380,
		Height:           560,
		SeedQuestions: []string{
			"What can you help me with?",
			"Summarize today's top story",
			"What are people asking about?",
		},
	},
	VariantInlineSearch: {
		Variant:          VariantInlineSearch,
		PerceivedLatency: DefaultPerceivedLatency,
		FontFamily:       "Georgia, serif",
		Title:            "Search with AI",
		Placeholder:      "Search articles...",
		BrandingText:     "AI answers from our newsroom",
		Streaming:        true,
		DefaultExpanded:  true,
		Border:           Appearance{Type: AppearanceSolid, SolidColor: "#d1d5db"},
		Background:       Appearance{Type: AppearanceSolid, SolidColor: "#f9fafb"},
		Text:             Appearance{Type: AppearanceSolid, SolidColor: "#1f2937"},
		Width:            720,
		Height:           420,
		Categories:       []string{"News", "Sports", "Culture"},
	},
	VariantCarousel: {
		Variant:          VariantCarousel,
		Collapsible:      true,
		TwoRowCarousel:   true,
		CarouselInterval: 3 * time.Second,
		PerceivedLatency: DefaultPerceivedLatency,
		FontFamily:       "Inter, sans-serif",
		Title:            "Popular questions",
		Placeholder:      "Type your question...",
		CollapsedText:    "Explore with AI",
		BrandingText:     "Powered by Widget Studio",
		AutoScroll:       true,
		Streaming:        true,
		Border:           Appearance{Type: AppearanceNone},
		Background:       Appearance{Type: AppearanceGradient, GradientStart: "#0f172a", GradientEnd: "#1e293b"},
		Text:             Appearance{Type: AppearanceSolid, SolidColor: "#f8fafc"},
		Width:            960,
		Height:           320,
		SeedQuestions: []string{
			"What happened this week?",
			"Who won the match?",
			"What is trending now?",
			"Explain the latest policy change",
			"What should I read next?",
			"How does this affect me?",
		},
	},
	VariantFood: {
		Variant:          VariantFood,
		Collapsible:      true,
		CarouselInterval: 40 * time.Second,
		PerceivedLatency: DefaultPerceivedLatency,
		FontFamily:       "Poppins, sans-serif",
		Palette:          []string{"#f97316", "#22c55e", "#eab308", "#3b82f6", "#a855f7"},
		Title:            "Ask our nutrition assistant",
		Placeholder:      "Ask about recipes and nutrition...",
		CollapsedText:    "Hungry for answers?",
		BrandingText:     "Answers based on our recipes",
		AutoScroll:       true,
		Streaming:        true,
		Border:           Appearance{Type: AppearanceSolid, SolidColor: "#f97316"},
		Background:       Appearance{Type: AppearanceSolid, SolidColor: "#fff7ed"},
		Text:             Appearance{Type: AppearanceSolid, SolidColor: "#431407"},
		Width:            420,
		Height:           600,
		Categories:       []string{"Recipes", "Nutrition", "Baking"},
		SeedQuestions: []string{
			"What is the best bread for weight loss?",
			"How do I make sourdough at home?",
			"Which grains are high in protein?",
		},
	},
	VariantPublisher: {
		Variant:          VariantPublisher,
		PerceivedLatency: DefaultPerceivedLatency,
		FontFamily:       "Merriweather, serif",
		Title:            "Ask the archive",
		Placeholder:      "What do you want to know?",
		BrandingText:     "Answers cite our reporting",
		Streaming:        true,
		DefaultExpanded:  true,
		Border:           Appearance{Type: AppearanceSolid, SolidColor: "#111827"},
		Background:       Appearance{Type: AppearanceSolid, SolidColor: "#ffffff"},
		Text:             Appearance{Type: AppearanceSolid, SolidColor: "#111827"},
		Width:            640,
		Height:           480,
		SeedQuestions: []string{
			"What did we report on the election?",
			"Show me coverage of climate policy",
		},
	},
}

// Variants lists the known variants in a stable order.
func Variants() []Variant {
	return []Variant{VariantFloating, VariantInlineSearch, VariantCarousel, VariantFood, VariantPublisher}
}

// Defaults returns the theme of v and whether v is a known variant.
func Defaults(v Variant) (Theme, bool) {
	t, ok := themes[v]
	if !ok {
		return Theme{}, false
	}
	t.Palette = append([]string(nil), t.Palette...)
	t.Categories = append([]string(nil), t.Categories...)
	t.SeedQuestions = append([]string(nil), t.SeedQuestions...)
	return t, true
}

// DefaultConfiguration is the configuration a new widget of variant v is
// created with.
func DefaultConfiguration(v Variant) (Configuration, error) {
	t, ok := Defaults(v)
	if !ok {
		return Configuration{}, nil
	}
	border, background, text := t.Border, t.Background, t.Text
	width, height := t.Width, t.Height
	return FromSettings(Settings{
		Title:           &t.Title,
		Placeholder:     &t.Placeholder,
		CollapsedText:   &t.CollapsedText,
		BrandingText:    &t.BrandingText,
		AutoScroll:      &t.AutoScroll,
		Streaming:       &t.Streaming,
		DefaultExpanded: &t.DefaultExpanded,
		Border:          &border,
		Background:      &background,
		Text:            &text,
		Width:           &width,
		Height:          &height,
		Categories:      t.Categories,
		SeedQuestions:   t.SeedQuestions,
	})
}
