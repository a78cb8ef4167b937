package preview

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/mikeboe/widget-studio/pkg/widget"
)

// Status is the live session state shown inside a preview. A nil Status
// renders the widget at rest.
type Status struct {
	State    string
	Expanded bool
	Query    string
	Text     string
	Error    string
	Sources  []widget.Citation
}

type page struct {
	W        *RenderedWidget
	S        Status
	Style    template.CSS
	Title    template.CSS
	Open     bool
	Brands   []widget.BrandSource
	HasState bool
}

var widgetTemplate = template.Must(template.New("widget").Parse(`<div class="ws-widget ws-{{.W.Variant}}" data-variant="{{.W.Variant}}"{{if .HasState}} data-state="{{.S.State}}"{{end}} style="{{.Style}}">
{{- if not .Open}}
  <button class="ws-collapsed" type="button">{{.W.Props.CollapsedText}}</button>
{{- else}}
  <header class="ws-header"><h2 class="ws-title"{{with .Title}} style="{{.}}"{{end}}>{{.W.Props.Title}}</h2></header>
  {{- with .W.Props.Categories}}
  <nav class="ws-categories">{{range .}}<span class="ws-category">{{.}}</span>{{end}}</nav>
  {{- end}}
  <form class="ws-search"><input class="ws-input" type="text" name="q" placeholder="{{.W.Props.Placeholder}}" value="{{.S.Query}}"></form>
  {{- with .W.Props.SeedQuestions}}
  <ul class="ws-seeds">{{range .}}<li class="ws-seed">{{.}}</li>{{end}}</ul>
  {{- end}}
  {{- if or .W.Props.SeedQuestionsRow1 .W.Props.SeedQuestionsRow2}}
  <div class="ws-carousel" data-interval="{{.W.Props.CarouselIntervalMs}}">
    <ul class="ws-row" data-row="1">{{range .W.Props.SeedQuestionsRow1}}<li class="ws-seed">{{.}}</li>{{end}}</ul>
    <ul class="ws-row" data-row="2">{{range .W.Props.SeedQuestionsRow2}}<li class="ws-seed">{{.}}</li>{{end}}</ul>
  </div>
  {{- end}}
  {{- if eq .S.State "loading"}}
  <div class="ws-loading" role="status">Thinking...</div>
  {{- end}}
  {{- with .S.Text}}
  <article class="ws-answer">{{.}}</article>
  {{- end}}
  {{- with .S.Error}}
  <div class="ws-error" role="alert">{{.}}</div>
  {{- end}}
  {{- if .Brands}}
  <ol class="ws-brands">{{range .Brands}}<li class="ws-brand" data-percentage="{{.Percentage}}"><a href="{{.Article.URL}}">{{.Name}}</a></li>{{end}}</ol>
  {{- else if .S.Sources}}
  <ol class="ws-sources">{{range .S.Sources}}<li class="ws-source"><a href="{{.URL}}">{{.Title}}</a></li>{{end}}</ol>
  {{- end}}
  <footer class="ws-branding">{{.W.Props.BrandingText}}</footer>
{{- end}}
</div>
`))

// WriteHTML renders rw as standalone markup. Colors have already been
// checked by Render, so the style attribute is emitted as trusted CSS.
func WriteHTML(w io.Writer, rw *RenderedWidget, st *Status) error {
	if rw == nil {
		return nil
	}
	p := page{W: rw, Open: rw.Props.DefaultExpanded || !rw.Props.Collapsible}
	if st != nil {
		p.S = *st
		p.HasState = st.State != ""
		if rw.Props.Collapsible {
			p.Open = st.Expanded
		}
	}
	p.Style = styleOf(rw)
	if rw.Style.TextType == widget.AppearanceGradient {
		p.Title = template.CSS(fmt.Sprintf("background-image:%s;-webkit-background-clip:text;background-clip:text;color:transparent", rw.Style.Text))
	}
	if rw.Variant == widget.VariantFood && len(p.S.Sources) > 0 {
		p.Brands = FoodSources(p.S.Sources, rw.Palette)
	}
	if err := widgetTemplate.Execute(w, p); err != nil {
		return fmt.Errorf("failed to render %s widget: %w", rw.Variant, err)
	}
	return nil
}

func styleOf(rw *RenderedWidget) template.CSS {
	var b strings.Builder
	fmt.Fprintf(&b, "width:%dpx;height:%dpx;", rw.Props.Width, rw.Props.Height)
	if rw.Props.FontFamily != "" && safeFont(rw.Props.FontFamily) {
		fmt.Fprintf(&b, "font-family:%s;", rw.Props.FontFamily)
	}
	if rw.Style.BorderType == widget.AppearanceGradient {
		fmt.Fprintf(&b, "border:2px solid transparent;border-image:%s 1;", rw.Style.Border)
	} else if rw.Style.Border != "none" {
		fmt.Fprintf(&b, "border:2px solid %s;", rw.Style.Border)
	}
	fmt.Fprintf(&b, "background:%s;color:%s", rw.Style.Background, rw.Style.TextColor)
	return template.CSS(b.String())
}

// safeFont allows the characters a font stack needs and nothing that could
// close the declaration.
func safeFont(f string) bool {
	for _, r := range f {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == ' ', r == ',', r == '-', r == '\'', r == '"':
		default:
			return false
		}
	}
	return true
}
