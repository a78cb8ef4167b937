package widget

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// AppearanceType selects how a border, background or text color is painted.
type AppearanceType string

const (
	AppearanceSolid    AppearanceType = "solid"
	AppearanceGradient AppearanceType = "gradient"
	AppearanceNone     AppearanceType = "none"
)

// Appearance describes one paintable surface of a widget.
type Appearance struct {
	Type          AppearanceType `json:"type"`
	SolidColor    string         `json:"solidColor,omitempty"`
	GradientStart string         `json:"gradientStart,omitempty"`
	GradientEnd   string         `json:"gradientEnd,omitempty"`
}

// Settings is the typed view of a Configuration. Nil fields were not set.
type Settings struct {
	Title         *string `json:"title,omitempty"`
	Placeholder   *string `json:"placeholder,omitempty"`
	CollapsedText *string `json:"collapsedText,omitempty"`
	BrandingText  *string `json:"brandingText,omitempty"`

	AutoScroll      *bool `json:"autoScroll,omitempty"`
	Streaming       *bool `json:"streaming,omitempty"`
	DefaultExpanded *bool `json:"defaultExpanded,omitempty"`

	Border     *Appearance `json:"border,omitempty"`
	Background *Appearance `json:"background,omitempty"`
	Text       *Appearance `json:"text,omitempty"`

	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`

	Categories        []string `json:"categories,omitempty"`
	SeedQuestions     []string `json:"seedQuestions,omitempty"`
	SeedQuestionsRow1 []string `json:"seedQuestionsRow1,omitempty"`
	SeedQuestionsRow2 []string `json:"seedQuestionsRow2,omitempty"`

	CarouselIntervalMs *int    `json:"carouselIntervalMs,omitempty"`
	SystemPrompt       *string `json:"systemPrompt,omitempty"`
}

// Configuration is the wire and storage form of a widget configuration.
// Keys are kept raw so that fields this package does not know about
// survive a merge untouched.
type Configuration map[string]json.RawMessage

// Parse decodes a JSON object into a Configuration.
func Parse(data []byte) (Configuration, error) {
	var cfg Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if cfg == nil {
		cfg = Configuration{}
	}
	return cfg, nil
}

// FromSettings encodes the non-nil fields of s.
func FromSettings(s Settings) (Configuration, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return Parse(data)
}

// Clone returns a copy that shares no map or byte storage with c.
func (c Configuration) Clone() Configuration {
	out := make(Configuration, len(c))
	for k, v := range c {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Merge returns c with every top-level key of partial overwriting the
// corresponding key of c. Nested objects are replaced, not merged, so a
// border switched from gradient to solid keeps no gradient stops.
func (c Configuration) Merge(partial Configuration) Configuration {
	out := c.Clone()
	for k, v := range partial {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// With returns a copy of c with key set to the JSON encoding of value.
func (c Configuration) With(key string, value any) (Configuration, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return c.Merge(Configuration{key: data}), nil
}

// DecodeError reports the keys Decode had to skip.
type DecodeError struct {
	Keys []string
	Err  error
}

func (e *DecodeError) Error() string {
	return "failed to decode configuration: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode returns the typed view of c. Unknown keys are ignored. A key whose
// value has the wrong shape is skipped and reported in a *DecodeError; the
// remaining keys are still decoded.
func (c Configuration) Decode() (Settings, error) {
	var s Settings
	var bad []string
	var errs []error
	for _, k := range c.keys() {
		one, err := json.Marshal(map[string]json.RawMessage{k: c[k]})
		if err == nil {
			err = json.Unmarshal(one, &s)
		}
		if err != nil {
			bad = append(bad, k)
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
	}
	if len(bad) > 0 {
		return s, &DecodeError{Keys: bad, Err: errors.Join(errs...)}
	}
	return s, nil
}

func (c Configuration) keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON keeps a nil Configuration encoding as an empty object.
func (c Configuration) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]json.RawMessage(c))
}
