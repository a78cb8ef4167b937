// Package preview turns a widget configuration into the props and markup of
// a branded widget.
package preview

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mikeboe/widget-studio/pkg/seed"
	"github.com/mikeboe/widget-studio/pkg/widget"
)

// Props are the presentational inputs of a variant, with every configured
// field resolved against the variant defaults.
type Props struct {
	Title         string `json:"title"`
	Placeholder   string `json:"placeholder"`
	CollapsedText string `json:"collapsedText,omitempty"`
	BrandingText  string `json:"brandingText"`

	AutoScroll      bool `json:"autoScroll"`
	Streaming       bool `json:"streaming"`
	DefaultExpanded bool `json:"defaultExpanded"`
	Collapsible     bool `json:"collapsible"`

	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FontFamily string `json:"fontFamily"`

	Categories         []string `json:"categories,omitempty"`
	SeedQuestions      []string `json:"seedQuestions,omitempty"`
	SeedQuestionsRow1  []string `json:"seedQuestionsRow1,omitempty"`
	SeedQuestionsRow2  []string `json:"seedQuestionsRow2,omitempty"`
	CarouselIntervalMs int      `json:"carouselIntervalMs,omitempty"`

	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// Style holds resolved CSS values for the three paintable surfaces.
type Style struct {
	Border     string `json:"border"`
	Background string `json:"background"`
	Text       string `json:"text"`

	BorderType     widget.AppearanceType `json:"borderType"`
	BackgroundType widget.AppearanceType `json:"backgroundType"`
	TextType       widget.AppearanceType `json:"textType"`

	// TextColor is Text as a plain color. A gradient contributes its
	// first stop.
	TextColor string `json:"textColor"`
}

// RenderedWidget is the result of rendering one configuration for one
// variant.
type RenderedWidget struct {
	Variant widget.Variant `json:"variant"`
	Props   Props          `json:"props"`
	Style   Style          `json:"style"`
	Palette []string       `json:"palette,omitempty"`
	// Issues lists configuration keys that were ignored because their
	// value had the wrong shape.
	Issues []string `json:"issues,omitempty"`
}

// Render resolves cfg for the variant named by discriminator. It has no
// state of its own: the same inputs always give the same output. An
// unknown discriminator renders nothing and returns nil.
func Render(discriminator string, cfg widget.Configuration) *RenderedWidget {
	variant := widget.Variant(discriminator)
	theme, ok := widget.Defaults(variant)
	if !ok {
		return nil
	}

	s, err := cfg.Decode()
	rw := &RenderedWidget{
		Variant: variant,
		Props:   baseProps(theme, s),
		Style: Style{
			Border:         resolveAppearance(s.Border, theme.Border, "none"),
			Background:     resolveAppearance(s.Background, theme.Background, "transparent"),
			Text:           resolveAppearance(s.Text, theme.Text, "inherit"),
			BorderType:     effectiveType(s.Border, theme.Border),
			BackgroundType: effectiveType(s.Background, theme.Background),
			TextType:       effectiveType(s.Text, theme.Text),
			TextColor:      resolveWith(paintColor, s.Text, theme.Text, "inherit"),
		},
		Palette: theme.Palette,
	}
	var derr *widget.DecodeError
	if errors.As(err, &derr) {
		rw.Issues = derr.Keys
	}

	if adapt, ok := variantAdapters[variant]; ok {
		adapt(&rw.Props, theme, s)
	}
	return rw
}

func baseProps(theme widget.Theme, s widget.Settings) Props {
	p := Props{
		Title:           stringOr(s.Title, theme.Title),
		Placeholder:     stringOr(s.Placeholder, theme.Placeholder),
		CollapsedText:   stringOr(s.CollapsedText, theme.CollapsedText),
		BrandingText:    stringOr(s.BrandingText, theme.BrandingText),
		AutoScroll:      boolOr(s.AutoScroll, theme.AutoScroll),
		Streaming:       boolOr(s.Streaming, theme.Streaming),
		DefaultExpanded: boolOr(s.DefaultExpanded, theme.DefaultExpanded),
		Collapsible:     theme.Collapsible,
		Width:           positiveOr(s.Width, theme.Width),
		Height:          positiveOr(s.Height, theme.Height),
		FontFamily:      theme.FontFamily,
		Categories:      listOr(s.Categories, theme.Categories),
		SeedQuestions:   listOr(s.SeedQuestions, theme.SeedQuestions),
	}
	if theme.CarouselInterval > 0 {
		p.CarouselIntervalMs = positiveOr(s.CarouselIntervalMs, int(theme.CarouselInterval.Milliseconds()))
	}
	if s.SystemPrompt != nil {
		p.SystemPrompt = *s.SystemPrompt
	}
	if !p.Collapsible {
		p.CollapsedText = ""
		p.DefaultExpanded = true
	}
	return p
}

// variantAdapters rename or reshape generic props for variants whose
// components expect something else.
var variantAdapters = map[widget.Variant]func(p *Props, theme widget.Theme, s widget.Settings){
	widget.VariantCarousel: func(p *Props, theme widget.Theme, s widget.Settings) {
		if len(s.SeedQuestionsRow1) > 0 || len(s.SeedQuestionsRow2) > 0 {
			p.SeedQuestionsRow1 = append([]string(nil), s.SeedQuestionsRow1...)
			p.SeedQuestionsRow2 = append([]string(nil), s.SeedQuestionsRow2...)
		} else {
			p.SeedQuestionsRow1, p.SeedQuestionsRow2 = seed.SplitRows(p.SeedQuestions)
		}
		p.SeedQuestions = nil
	},
	widget.VariantInlineSearch: func(p *Props, theme widget.Theme, s widget.Settings) {
		// the search bar has no room for suggestion chips
		p.SeedQuestions = nil
	},
	widget.VariantFood: func(p *Props, theme widget.Theme, s widget.Settings) {
		if !p.AutoScroll {
			p.CarouselIntervalMs = 0
		}
	},
}

var colorPattern = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|[a-zA-Z]{3,20}|rgba?\([0-9.,\s%]+\)|hsla?\([0-9.,\s%deg]+\))$`)

// safeColor reports whether c can be placed in a style attribute as is.
func safeColor(c string) bool {
	return colorPattern.MatchString(strings.TrimSpace(c))
}

// paint converts an appearance into a CSS value. ok is false when the
// appearance is incomplete or carries an unsafe color.
func paint(a widget.Appearance, none string) (string, bool) {
	switch a.Type {
	case widget.AppearanceSolid:
		if !safeColor(a.SolidColor) {
			return "", false
		}
		return strings.TrimSpace(a.SolidColor), true
	case widget.AppearanceGradient:
		if !safeColor(a.GradientStart) || !safeColor(a.GradientEnd) {
			return "", false
		}
		return fmt.Sprintf("linear-gradient(135deg, %s, %s)", strings.TrimSpace(a.GradientStart), strings.TrimSpace(a.GradientEnd)), true
	case widget.AppearanceNone:
		return none, true
	}
	return "", false
}

// paintColor is paint for properties that only take a color.
func paintColor(a widget.Appearance, none string) (string, bool) {
	if a.Type == widget.AppearanceGradient {
		if !safeColor(a.GradientStart) || !safeColor(a.GradientEnd) {
			return "", false
		}
		return strings.TrimSpace(a.GradientStart), true
	}
	return paint(a, none)
}

func resolveAppearance(configured *widget.Appearance, fallback widget.Appearance, none string) string {
	return resolveWith(paint, configured, fallback, none)
}

func resolveWith(p func(widget.Appearance, string) (string, bool), configured *widget.Appearance, fallback widget.Appearance, none string) string {
	if configured != nil {
		if v, ok := p(*configured, none); ok {
			return v
		}
	}
	if v, ok := p(fallback, none); ok {
		return v
	}
	return none
}

func effectiveType(configured *widget.Appearance, fallback widget.Appearance) widget.AppearanceType {
	if configured != nil {
		if _, ok := paint(*configured, ""); ok {
			return configured.Type
		}
	}
	return fallback.Type
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func positiveOr(v *int, def int) int {
	if v == nil || *v <= 0 {
		return def
	}
	return *v
}

func listOr(v, def []string) []string {
	if v == nil {
		return append([]string(nil), def...)
	}
	return append([]string(nil), v...)
}
